package types

// ReactionKind is one of the four fixed reaction categories a user may
// apply to a post. Each kind carries a distinct scoring weight.
type ReactionKind string

const (
	ReactionInsight   ReactionKind = "I"
	ReactionPractical ReactionKind = "P"
	ReactionAmplifier ReactionKind = "A"
	ReactionThanks    ReactionKind = "T"
)

// Valid reports whether k is one of the four known kinds.
func (k ReactionKind) Valid() bool {
	switch k {
	case ReactionInsight, ReactionPractical, ReactionAmplifier, ReactionThanks:
		return true
	}
	return false
}

// ReactionCounts holds the per-post aggregate tally, one non-negative
// counter per reaction kind.
type ReactionCounts struct {
	Insight   int `json:"I"`
	Practical int `json:"P"`
	Amplifier int `json:"A"`
	Thanks    int `json:"T"`
}

// Get returns the counter for the given kind.
func (c ReactionCounts) Get(k ReactionKind) int {
	switch k {
	case ReactionInsight:
		return c.Insight
	case ReactionPractical:
		return c.Practical
	case ReactionAmplifier:
		return c.Amplifier
	case ReactionThanks:
		return c.Thanks
	}
	return 0
}

// Set overwrites the counter for the given kind.
func (c *ReactionCounts) Set(k ReactionKind, v int) {
	switch k {
	case ReactionInsight:
		c.Insight = v
	case ReactionPractical:
		c.Practical = v
	case ReactionAmplifier:
		c.Amplifier = v
	case ReactionThanks:
		c.Thanks = v
	}
}

type ShelfItem struct {
	ID       string `json:"id"`
	Category string `json:"category"` // BOOK, SHOW or MUSIC
	Title    string `json:"title" validate:"required"`
	Author   string `json:"author" validate:"required"`
}

type User struct {
	ID                  string      `json:"id"`
	Name                string      `json:"name"`
	Handle              string      `json:"handle"`
	Avatar              string      `json:"avatar"`
	Bio                 string      `json:"bio"`
	PulseScore          int         `json:"pulse_score"`
	IsArbiter           bool        `json:"is_arbiter"`
	IsVerified          bool        `json:"is_verified"`
	DailyPingsRemaining int64       `json:"daily_pings_remaining"`
	Following           []string    `json:"following"`
	Bookmarks           []string    `json:"bookmarks"`
	Shelf               []ShelfItem `json:"shelf"`
	HasVoiceBio         bool        `json:"has_voice_bio"`
}

type Comment struct {
	ID         string `json:"id"`
	PostID     string `json:"post_id"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	UserAvatar string `json:"user_avatar"`
	Content    string `json:"content"`
	IsVoice    bool   `json:"is_voice"`
	CreatedAt  string `json:"created_at"`
}

type Post struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	UserName     string         `json:"user_name"`
	UserAvatar   string         `json:"user_avatar"`
	CoAuthorName string         `json:"co_author_name,omitempty"`
	Content      string         `json:"content"`
	DepthBadge   bool           `json:"depth_badge"`
	SlowMode     bool           `json:"is_slow_mode"`
	ScheduledFor string         `json:"scheduled_for,omitempty"`
	Published    bool           `json:"published"`
	Reactions    ReactionCounts `json:"reactions"`
	// CurrentUserReaction is the viewer's active kind for this post, empty
	// when the viewer has not reacted. At most one kind is active per
	// (user, post) at any time.
	CurrentUserReaction ReactionKind `json:"current_user_reaction,omitempty"`
	PocketID            string       `json:"pocket_id,omitempty"`
	PocketName          string       `json:"pocket_name,omitempty"`
	ImageURL            string       `json:"image_url,omitempty"`
	Comments            []Comment    `json:"comments"`
	CreatedAt           string       `json:"created_at"`
}

// PocketCapacity is the fixed membership cap of every pocket.
const PocketCapacity = 50

type Pocket struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	MemberCount          int      `json:"member_count"`
	MaxMembers           int      `json:"max_members"`
	Tags                 []string `json:"tags"`
	IsMember             bool     `json:"is_member"`
	ApplicationQuestions []string `json:"application_questions"`
	IsCampfire           bool     `json:"is_campfire"`
	CampfireTime         string   `json:"campfire_time,omitempty"`
	CreatedBy            string   `json:"created_by"`
}

type ChatMessage struct {
	ID        string `json:"id"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type Ping struct {
	ID         string        `json:"id"`
	SenderID   string        `json:"sender_id"`
	ReceiverID string        `json:"receiver_id"`
	FromUser   string        `json:"from_user"`
	FromAvatar string        `json:"from_avatar"`
	Context    string        `json:"context"`
	IsRead     bool          `json:"is_read"`
	CreatedAt  string        `json:"created_at"`
	Messages   []ChatMessage `json:"messages"`
}

type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
	Handle   string `json:"handle" validate:"required"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type PostCreateRequest struct {
	Content      string `json:"content" validate:"required"`
	PocketID     string `json:"pocket_id"`
	ImageURL     string `json:"image_url"`
	CoAuthorName string `json:"co_author_name"`
	ScheduledFor string `json:"scheduled_for"`
}

type CommentCreateRequest struct {
	Content string `json:"content" validate:"required"`
	IsVoice bool   `json:"is_voice"`
}

type ReactionRequest struct {
	Kind ReactionKind `json:"kind" validate:"required,oneof=I P A T"`
}

type ProfileUpdateRequest struct {
	Name      string      `json:"name" validate:"required"`
	Bio       string      `json:"bio"`
	Avatar    string      `json:"avatar"`
	IsArbiter bool        `json:"is_arbiter"`
	Shelf     []ShelfItem `json:"shelf"`
}

type PocketCreateRequest struct {
	Name                 string   `json:"name" validate:"required"`
	Description          string   `json:"description" validate:"required"`
	Tags                 []string `json:"tags"`
	ApplicationQuestions []string `json:"application_questions"`
}

type PocketApplication struct {
	Answers []string `json:"answers" validate:"required,len=3"`
}

type PingCreateRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required"`
	Context    string `json:"context" validate:"required"`
}

type MessageCreateRequest struct {
	Content string `json:"content" validate:"required"`
}
