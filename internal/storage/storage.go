package storage

import (
	"context"
	"errors"

	"github.com/pulseout/pulse-service/internal/types"
)

// Sentinel errors mapped from backend integrity violations so handlers can
// surface the distinct user-facing messages without importing the driver.
var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicate     = errors.New("record already exists")
	ErrHasDependents = errors.New("record has dependent rows")
	ErrPocketFull    = errors.New("pocket is at capacity")
)

// Store is the remote store boundary: every durable read and write the
// service performs goes through it.
type Store interface {
	// Profiles
	CreateUser(email, password, name, handle string) (string, error)
	GetUserByEmail(email string) (string, string, error)
	GetProfile(userID string) (types.User, error)
	UpdateProfile(userID, name, bio, avatar string, isArbiter bool) error
	SetVoiceBio(userID string) error
	SearchProfiles(query string, limit int) ([]types.User, error)
	GetPulseScore(userID string) (int, error)
	UpdatePulseScore(userID string, score int) error
	UpdateBookmarks(userID string, bookmarks []string) error

	// Follows
	GetFollowing(userID string) ([]string, error)
	InsertFollow(followerID, followingID string) error
	DeleteFollow(followerID, followingID string) error

	// Posts and reactions
	GetPostsForViewer(viewerID string) ([]types.Post, error)
	CreatePost(authorID string, req types.PostCreateRequest, depthBadge bool) (string, error)
	DeletePost(postID, authorID string) error
	UpdatePostReactions(postID string, counts types.ReactionCounts) error
	UpsertReaction(userID, postID string, kind types.ReactionKind) error
	DeleteReaction(userID, postID string) error
	AddComment(postID, userID, content string, isVoice bool) (string, error)
	DeleteComment(commentID, userID string) error
	PublishDueCapsules() (int, error)

	// Pockets
	GetPockets(viewerID string) ([]types.Pocket, error)
	CreatePocket(creatorID string, req types.PocketCreateRequest) (string, error)
	DeletePocket(pocketID, creatorID string) error
	JoinPocket(pocketID, userID, role string) error

	// Pings and messages
	GetPingsForUser(userID string) ([]types.Ping, error)
	CreatePing(senderID, receiverID, context string) (string, error)
	MarkPingRead(pingID, receiverID string) error
	GetMessages(pingID string) ([]types.ChatMessage, error)
	AddMessage(pingID, senderID, content string) (string, error)
}

// Subscriber delivers coarse change notifications for a collection. The
// stream carries no row payloads; a received event only means "something
// in this collection changed".
type Subscriber interface {
	Subscribe(ctx context.Context, c types.Collection) (<-chan types.ChangeEvent, error)
}
