package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pulseout/pulse-service/internal/config"
	"github.com/pulseout/pulse-service/internal/storage"
	"github.com/pulseout/pulse-service/internal/types"
)

type Postgres struct {
	Db *sql.DB
}

func NewPostgres(cfg *config.Config) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.PGSQL.ConnString())
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		return nil, err
	}

	pg := &Postgres{Db: db}
	if err := pg.CreateTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return pg, nil
}

func (p *Postgres) CreateTables() error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			password TEXT NOT NULL,
			name VARCHAR(255) NOT NULL,
			handle VARCHAR(255) UNIQUE NOT NULL,
			avatar TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			pulse_score INTEGER NOT NULL DEFAULT 0,
			is_arbiter BOOLEAN NOT NULL DEFAULT FALSE,
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			has_voice_bio BOOLEAN NOT NULL DEFAULT FALSE,
			bookmarks TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS follows (
			follower_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			following_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (follower_id, following_id)
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS pockets (
			id TEXT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			application_questions TEXT[] NOT NULL DEFAULT '{}',
			is_campfire BOOLEAN NOT NULL DEFAULT FALSE,
			campfire_time VARCHAR(255) NOT NULL DEFAULT '',
			created_by TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS pocket_members (
			pocket_id TEXT NOT NULL REFERENCES pockets(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			role VARCHAR(50) NOT NULL DEFAULT 'member',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (pocket_id, user_id)
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			pocket_id TEXT REFERENCES pockets(id) ON DELETE SET NULL,
			content TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			co_author_name VARCHAR(255) NOT NULL DEFAULT '',
			depth_badge BOOLEAN NOT NULL DEFAULT FALSE,
			is_slow_mode BOOLEAN NOT NULL DEFAULT FALSE,
			scheduled_for TIMESTAMP,
			published BOOLEAN NOT NULL DEFAULT TRUE,
			reactions_i INTEGER NOT NULL DEFAULT 0,
			reactions_p INTEGER NOT NULL DEFAULT 0,
			reactions_a INTEGER NOT NULL DEFAULT 0,
			reactions_t INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS post_reactions (
			user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			reaction_type VARCHAR(10) NOT NULL,
			reacted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, post_id)
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS comments (
			id TEXT PRIMARY KEY,
			post_id TEXT NOT NULL REFERENCES posts(id),
			user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			is_voice BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS pings (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			receiver_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			context TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			ping_id TEXT NOT NULL REFERENCES pings(id) ON DELETE CASCADE,
			sender_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE OR REPLACE FUNCTION notify_collection_changed() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify(TG_ARGV[0], TG_OP);
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql;
		`,
		`
		DROP TRIGGER IF EXISTS posts_changed ON posts;
		`,
		`
		CREATE TRIGGER posts_changed
		AFTER INSERT OR UPDATE OR DELETE ON posts
		FOR EACH STATEMENT EXECUTE FUNCTION notify_collection_changed('posts_changed');
		`,
		`
		DROP TRIGGER IF EXISTS pings_changed ON pings;
		`,
		`
		CREATE TRIGGER pings_changed
		AFTER INSERT OR UPDATE OR DELETE ON pings
		FOR EACH STATEMENT EXECUTE FUNCTION notify_collection_changed('pings_changed');
		`,
	}

	for _, q := range queries {
		if _, err := p.Db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// mapError converts driver integrity errors into storage sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503":
			return storage.ErrHasDependents
		case "23505":
			return storage.ErrDuplicate
		}
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// --- Profiles ---

func (p *Postgres) CreateUser(email, password, name, handle string) (string, error) {
	userID := uuid.NewString()
	query := `
	INSERT INTO profiles (id, email, password, name, handle)
	VALUES ($1, $2, $3, $4, $5)
	`

	_, err := p.Db.Exec(query, userID, email, password, name, handle)
	if err != nil {
		return "", mapError(err)
	}

	return userID, nil
}

func (p *Postgres) GetUserByEmail(email string) (string, string, error) {
	var userID, hashedPassword string
	query := `
	SELECT id, password FROM profiles WHERE email = $1
	`

	err := p.Db.QueryRow(query, email).Scan(&userID, &hashedPassword)
	if err != nil {
		return "", "", mapError(err)
	}

	return userID, hashedPassword, nil
}

func (p *Postgres) GetProfile(userID string) (types.User, error) {
	var u types.User
	var bookmarks pq.StringArray
	query := `
	SELECT id, name, handle, avatar, bio, pulse_score, is_arbiter, is_verified, has_voice_bio, bookmarks
	FROM profiles WHERE id = $1
	`

	err := p.Db.QueryRow(query, userID).Scan(
		&u.ID, &u.Name, &u.Handle, &u.Avatar, &u.Bio,
		&u.PulseScore, &u.IsArbiter, &u.IsVerified, &u.HasVoiceBio, &bookmarks)
	if err != nil {
		return types.User{}, mapError(err)
	}

	u.Bookmarks = []string(bookmarks)
	return u, nil
}

func (p *Postgres) UpdateProfile(userID, name, bio, avatar string, isArbiter bool) error {
	query := `
	UPDATE profiles SET name = $2, bio = $3, avatar = $4, is_arbiter = $5 WHERE id = $1
	`

	_, err := p.Db.Exec(query, userID, name, bio, avatar, isArbiter)
	return mapError(err)
}

func (p *Postgres) SetVoiceBio(userID string) error {
	_, err := p.Db.Exec(`UPDATE profiles SET has_voice_bio = TRUE WHERE id = $1`, userID)
	return mapError(err)
}

func (p *Postgres) SearchProfiles(query string, limit int) ([]types.User, error) {
	rows, err := p.Db.Query(`
	SELECT id, name, handle, avatar, bio, pulse_score, is_arbiter, is_verified
	FROM profiles
	WHERE name ILIKE '%' || $1 || '%' OR handle ILIKE '%' || $1 || '%'
	LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		var u types.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Handle, &u.Avatar, &u.Bio,
			&u.PulseScore, &u.IsArbiter, &u.IsVerified); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (p *Postgres) GetPulseScore(userID string) (int, error) {
	var score int
	err := p.Db.QueryRow(`SELECT pulse_score FROM profiles WHERE id = $1`, userID).Scan(&score)
	if err != nil {
		return 0, mapError(err)
	}
	return score, nil
}

func (p *Postgres) UpdatePulseScore(userID string, score int) error {
	_, err := p.Db.Exec(`UPDATE profiles SET pulse_score = $2 WHERE id = $1`, userID, score)
	return mapError(err)
}

// UpdateBookmarks replaces the stored bookmark set wholesale.
func (p *Postgres) UpdateBookmarks(userID string, bookmarks []string) error {
	_, err := p.Db.Exec(`UPDATE profiles SET bookmarks = $2 WHERE id = $1`,
		userID, pq.Array(bookmarks))
	return mapError(err)
}

// --- Follows ---

func (p *Postgres) GetFollowing(userID string) ([]string, error) {
	rows, err := p.Db.Query(`SELECT following_id FROM follows WHERE follower_id = $1`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) InsertFollow(followerID, followingID string) error {
	query := `
	INSERT INTO follows (follower_id, following_id)
	VALUES ($1, $2)
	ON CONFLICT DO NOTHING
	`

	_, err := p.Db.Exec(query, followerID, followingID)
	return mapError(err)
}

func (p *Postgres) DeleteFollow(followerID, followingID string) error {
	_, err := p.Db.Exec(`DELETE FROM follows WHERE follower_id = $1 AND following_id = $2`,
		followerID, followingID)
	return mapError(err)
}

// --- Posts ---

// GetPostsForViewer returns the published feed. Authors additionally see
// their own pending time capsules, so a scheduled post can be reviewed or
// deleted before the worker publishes it.
func (p *Postgres) GetPostsForViewer(viewerID string) ([]types.Post, error) {
	rows, err := p.Db.Query(`
	SELECT p.id, p.user_id, u.name, u.avatar, p.co_author_name, p.content,
	       p.depth_badge, p.is_slow_mode, p.scheduled_for, p.published,
	       p.reactions_i, p.reactions_p, p.reactions_a, p.reactions_t,
	       COALESCE(p.pocket_id, ''), COALESCE(pk.name, ''), p.image_url, p.created_at
	FROM posts p
	JOIN profiles u ON u.id = p.user_id
	LEFT JOIN pockets pk ON pk.id = p.pocket_id
	WHERE (p.published = TRUE OR p.user_id = $1)
	ORDER BY p.created_at DESC
	`, viewerID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var posts []types.Post
	var ids []string
	for rows.Next() {
		var post types.Post
		var scheduledFor sql.NullTime
		var createdAt time.Time
		if err := rows.Scan(&post.ID, &post.UserID, &post.UserName, &post.UserAvatar,
			&post.CoAuthorName, &post.Content, &post.DepthBadge, &post.SlowMode,
			&scheduledFor, &post.Published,
			&post.Reactions.Insight, &post.Reactions.Practical,
			&post.Reactions.Amplifier, &post.Reactions.Thanks,
			&post.PocketID, &post.PocketName, &post.ImageURL, &createdAt); err != nil {
			return nil, err
		}
		if scheduledFor.Valid {
			post.ScheduledFor = formatTime(scheduledFor.Time)
		}
		post.CreatedAt = formatTime(createdAt)
		post.Comments = []types.Comment{}
		ids = append(ids, post.ID)
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	comments, err := p.loadComments(ids)
	if err != nil {
		return nil, err
	}
	reactions, err := p.loadViewerReactions(viewerID, ids)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if cs, ok := comments[posts[i].ID]; ok {
			posts[i].Comments = cs
		}
		posts[i].CurrentUserReaction = reactions[posts[i].ID]
	}

	return posts, nil
}

func (p *Postgres) loadComments(postIDs []string) (map[string][]types.Comment, error) {
	if len(postIDs) == 0 {
		return map[string][]types.Comment{}, nil
	}
	rows, err := p.Db.Query(`
	SELECT c.id, c.post_id, c.user_id, u.name, u.avatar, c.content, c.is_voice, c.created_at
	FROM comments c
	JOIN profiles u ON u.id = c.user_id
	WHERE c.post_id = ANY($1)
	ORDER BY c.created_at
	`, pq.Array(postIDs))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	comments := map[string][]types.Comment{}
	for rows.Next() {
		var c types.Comment
		var createdAt time.Time
		if err := rows.Scan(&c.ID, &c.PostID, &c.UserID, &c.UserName, &c.UserAvatar,
			&c.Content, &c.IsVoice, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = formatTime(createdAt)
		comments[c.PostID] = append(comments[c.PostID], c)
	}
	return comments, rows.Err()
}

// loadViewerReactions returns the viewer's active kind per post id, from the
// per-user reaction relation that is the durable source of truth.
func (p *Postgres) loadViewerReactions(viewerID string, postIDs []string) (map[string]types.ReactionKind, error) {
	reactions := map[string]types.ReactionKind{}
	if viewerID == "" || len(postIDs) == 0 {
		return reactions, nil
	}
	rows, err := p.Db.Query(`
	SELECT post_id, reaction_type FROM post_reactions
	WHERE user_id = $1 AND post_id = ANY($2)
	`, viewerID, pq.Array(postIDs))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var postID, kind string
		if err := rows.Scan(&postID, &kind); err != nil {
			return nil, err
		}
		reactions[postID] = types.ReactionKind(kind)
	}
	return reactions, rows.Err()
}

func (p *Postgres) CreatePost(authorID string, req types.PostCreateRequest, depthBadge bool) (string, error) {
	postID := uuid.NewString()

	var pocketID interface{}
	if req.PocketID != "" {
		pocketID = req.PocketID
	}

	var scheduledFor interface{}
	published := true
	if req.ScheduledFor != "" {
		t, err := time.Parse(time.RFC3339, req.ScheduledFor)
		if err != nil {
			return "", fmt.Errorf("invalid scheduled_for timestamp: %w", err)
		}
		scheduledFor = t
		published = false
	}

	query := `
	INSERT INTO posts (id, user_id, pocket_id, content, image_url, co_author_name, depth_badge, scheduled_for, published)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := p.Db.Exec(query, postID, authorID, pocketID, req.Content,
		req.ImageURL, req.CoAuthorName, depthBadge, scheduledFor, published)
	if err != nil {
		return "", mapError(err)
	}

	return postID, nil
}

func (p *Postgres) DeletePost(postID, authorID string) error {
	res, err := p.Db.Exec(`DELETE FROM posts WHERE id = $1 AND user_id = $2`, postID, authorID)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdatePostReactions(postID string, counts types.ReactionCounts) error {
	query := `
	UPDATE posts SET reactions_i = $2, reactions_p = $3, reactions_a = $4, reactions_t = $5
	WHERE id = $1
	`

	_, err := p.Db.Exec(query, postID,
		counts.Insight, counts.Practical, counts.Amplifier, counts.Thanks)
	return mapError(err)
}

func (p *Postgres) UpsertReaction(userID, postID string, kind types.ReactionKind) error {
	query := `
	INSERT INTO post_reactions (user_id, post_id, reaction_type)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id, post_id) DO UPDATE SET reaction_type = $3, reacted_at = CURRENT_TIMESTAMP
	`

	_, err := p.Db.Exec(query, userID, postID, string(kind))
	return mapError(err)
}

func (p *Postgres) DeleteReaction(userID, postID string) error {
	_, err := p.Db.Exec(`DELETE FROM post_reactions WHERE user_id = $1 AND post_id = $2`,
		userID, postID)
	return mapError(err)
}

func (p *Postgres) AddComment(postID, userID, content string, isVoice bool) (string, error) {
	commentID := uuid.NewString()
	query := `
	INSERT INTO comments (id, post_id, user_id, content, is_voice)
	VALUES ($1, $2, $3, $4, $5)
	`

	_, err := p.Db.Exec(query, commentID, postID, userID, content, isVoice)
	if err != nil {
		return "", mapError(err)
	}

	return commentID, nil
}

func (p *Postgres) DeleteComment(commentID, userID string) error {
	res, err := p.Db.Exec(`DELETE FROM comments WHERE id = $1 AND user_id = $2`, commentID, userID)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PublishDueCapsules flips due time-capsule posts to published and returns
// how many were published.
func (p *Postgres) PublishDueCapsules() (int, error) {
	res, err := p.Db.Exec(`
	UPDATE posts SET published = TRUE
	WHERE published = FALSE AND scheduled_for IS NOT NULL AND scheduled_for <= CURRENT_TIMESTAMP
	`)
	if err != nil {
		return 0, mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// --- Pockets ---

func (p *Postgres) GetPockets(viewerID string) ([]types.Pocket, error) {
	rows, err := p.Db.Query(`
	SELECT pk.id, pk.name, pk.description, pk.tags, pk.application_questions,
	       pk.is_campfire, pk.campfire_time, pk.created_by,
	       (SELECT COUNT(*) FROM pocket_members m WHERE m.pocket_id = pk.id),
	       EXISTS (SELECT 1 FROM pocket_members m WHERE m.pocket_id = pk.id AND m.user_id = $1)
	FROM pockets pk
	ORDER BY pk.created_at
	`, viewerID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var pockets []types.Pocket
	for rows.Next() {
		var pk types.Pocket
		var tags, questions pq.StringArray
		if err := rows.Scan(&pk.ID, &pk.Name, &pk.Description, &tags, &questions,
			&pk.IsCampfire, &pk.CampfireTime, &pk.CreatedBy,
			&pk.MemberCount, &pk.IsMember); err != nil {
			return nil, err
		}
		pk.Tags = []string(tags)
		pk.ApplicationQuestions = []string(questions)
		pk.MaxMembers = types.PocketCapacity
		pockets = append(pockets, pk)
	}
	return pockets, rows.Err()
}

func (p *Postgres) CreatePocket(creatorID string, req types.PocketCreateRequest) (string, error) {
	pocketID := uuid.NewString()
	query := `
	INSERT INTO pockets (id, name, description, tags, application_questions, created_by)
	VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := p.Db.Exec(query, pocketID, req.Name, req.Description,
		pq.Array(req.Tags), pq.Array(req.ApplicationQuestions), creatorID)
	if err != nil {
		return "", mapError(err)
	}

	return pocketID, nil
}

func (p *Postgres) DeletePocket(pocketID, creatorID string) error {
	res, err := p.Db.Exec(`DELETE FROM pockets WHERE id = $1 AND created_by = $2`,
		pocketID, creatorID)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// JoinPocket inserts a membership row unless the pocket already holds its
// fixed capacity of members.
func (p *Postgres) JoinPocket(pocketID, userID, role string) error {
	res, err := p.Db.Exec(`
	INSERT INTO pocket_members (pocket_id, user_id, role)
	SELECT $1, $2, $3
	WHERE (SELECT COUNT(*) FROM pocket_members WHERE pocket_id = $1) < $4
	`, pocketID, userID, role, types.PocketCapacity)
	if err != nil {
		// A foreign key violation on insert means the pocket is gone.
		mapped := mapError(err)
		if errors.Is(mapped, storage.ErrHasDependents) {
			return storage.ErrNotFound
		}
		return mapped
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrPocketFull
	}
	return nil
}

// --- Pings ---

func (p *Postgres) GetPingsForUser(userID string) ([]types.Ping, error) {
	rows, err := p.Db.Query(`
	SELECT pg.id, pg.sender_id, pg.receiver_id, pg.context, pg.is_read, pg.created_at,
	       s.name, s.avatar, r.name, r.avatar
	FROM pings pg
	JOIN profiles s ON s.id = pg.sender_id
	JOIN profiles r ON r.id = pg.receiver_id
	WHERE pg.sender_id = $1 OR pg.receiver_id = $1
	ORDER BY pg.created_at DESC
	`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var pings []types.Ping
	for rows.Next() {
		var ping types.Ping
		var createdAt time.Time
		var senderName, senderAvatar, receiverName, receiverAvatar string
		if err := rows.Scan(&ping.ID, &ping.SenderID, &ping.ReceiverID,
			&ping.Context, &ping.IsRead, &createdAt,
			&senderName, &senderAvatar, &receiverName, &receiverAvatar); err != nil {
			return nil, err
		}
		// The conversation is labeled with the other participant.
		if ping.SenderID == userID {
			ping.FromUser = receiverName
			ping.FromAvatar = receiverAvatar
		} else {
			ping.FromUser = senderName
			ping.FromAvatar = senderAvatar
		}
		ping.CreatedAt = formatTime(createdAt)
		ping.Messages = []types.ChatMessage{}
		pings = append(pings, ping)
	}
	return pings, rows.Err()
}

func (p *Postgres) CreatePing(senderID, receiverID, context string) (string, error) {
	pingID := uuid.NewString()
	query := `
	INSERT INTO pings (id, sender_id, receiver_id, context)
	VALUES ($1, $2, $3, $4)
	`

	_, err := p.Db.Exec(query, pingID, senderID, receiverID, context)
	if err != nil {
		// A foreign key violation on insert means the receiver is gone.
		mapped := mapError(err)
		if errors.Is(mapped, storage.ErrHasDependents) {
			return "", storage.ErrNotFound
		}
		return "", mapped
	}

	return pingID, nil
}

func (p *Postgres) MarkPingRead(pingID, receiverID string) error {
	res, err := p.Db.Exec(`UPDATE pings SET is_read = TRUE WHERE id = $1 AND receiver_id = $2`,
		pingID, receiverID)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (p *Postgres) GetMessages(pingID string) ([]types.ChatMessage, error) {
	rows, err := p.Db.Query(`
	SELECT id, sender_id, content, created_at
	FROM messages WHERE ping_id = $1
	ORDER BY created_at
	`, pingID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var messages []types.ChatMessage
	for rows.Next() {
		var m types.ChatMessage
		var createdAt time.Time
		if err := rows.Scan(&m.ID, &m.SenderID, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = formatTime(createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (p *Postgres) AddMessage(pingID, senderID, content string) (string, error) {
	messageID := uuid.NewString()
	query := `
	INSERT INTO messages (id, ping_id, sender_id, content)
	VALUES ($1, $2, $3, $4)
	`

	_, err := p.Db.Exec(query, messageID, pingID, senderID, content)
	if err != nil {
		return "", mapError(err)
	}

	return messageID, nil
}
