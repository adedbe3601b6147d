// Package pulse implements the optimistic mutation controller: reaction,
// follow and bookmark toggles are applied to the session cache first and
// then written through to the remote store. Remote failures are logged
// and reported, but the optimistic local state is never rolled back; the
// coarse realtime refetch is the only repair mechanism.
package pulse

import (
	"errors"
	"log/slog"

	"github.com/pulseout/pulse-service/internal/session"
	"github.com/pulseout/pulse-service/internal/types"
)

var ErrPostNotFound = errors.New("post not in session cache")

// Store is the slice of the remote store the controller writes through to.
type Store interface {
	UpdatePostReactions(postID string, counts types.ReactionCounts) error
	UpsertReaction(userID, postID string, kind types.ReactionKind) error
	DeleteReaction(userID, postID string) error
	GetPulseScore(userID string) (int, error)
	UpdatePulseScore(userID string, score int) error
	InsertFollow(followerID, followingID string) error
	DeleteFollow(followerID, followingID string) error
	UpdateBookmarks(userID string, bookmarks []string) error
}

// Weight returns the scoring weight of a reaction kind. The empty kind
// (no reaction) weighs zero.
func Weight(k types.ReactionKind) int {
	switch k {
	case types.ReactionInsight:
		return 5
	case types.ReactionAmplifier:
		return 3
	case types.ReactionPractical:
		return 2
	case types.ReactionThanks:
		return 1
	}
	return 0
}

// ApplyToggle computes the aggregate counters and active kind that result
// from a user requesting `requested` while `old` was active. Requesting
// the active kind again is a retraction. Counters never go below zero,
// even when retracting a kind that was never counted.
func ApplyToggle(counts types.ReactionCounts, old, requested types.ReactionKind) (types.ReactionCounts, types.ReactionKind) {
	if old == requested {
		if v := counts.Get(requested) - 1; v >= 0 {
			counts.Set(requested, v)
		} else {
			counts.Set(requested, 0)
		}
		return counts, ""
	}

	if old != "" {
		if v := counts.Get(old) - 1; v >= 0 {
			counts.Set(old, v)
		} else {
			counts.Set(old, 0)
		}
	}
	counts.Set(requested, counts.Get(requested)+1)
	return counts, requested
}

// ScoreDelta returns the author score adjustment for a reaction change
// from old to new: weight(new) - weight(old).
func ScoreDelta(old, new types.ReactionKind) int {
	return Weight(new) - Weight(old)
}

// Controller applies toggles optimistically and writes them through.
type Controller struct {
	store Store
}

func NewController(store Store) *Controller {
	return &Controller{store: store}
}

// ToggleReaction applies a reaction toggle for the session user on the
// given post. The cached post is patched synchronously; three remote
// writes follow in order: aggregate counters, per-user reaction row,
// author score. A failed aggregate write aborts the sequence (the local
// patch stands); failures of the later writes are logged only. Nothing
// is retried.
func (c *Controller) ToggleReaction(sess *session.Session, postID string, requested types.ReactionKind) (types.Post, error) {
	user := sess.User()

	post, ok := sess.Post(postID)
	if !ok {
		return types.Post{}, ErrPostNotFound
	}

	oldKind := post.CurrentUserReaction
	newCounts, newKind := ApplyToggle(post.Reactions, oldKind, requested)

	// Local patch first: visible before any remote round-trip completes.
	sess.PatchPost(postID, func(p *types.Post) {
		p.Reactions = newCounts
		p.CurrentUserReaction = newKind
	})
	post.Reactions = newCounts
	post.CurrentUserReaction = newKind

	if err := c.store.UpdatePostReactions(postID, newCounts); err != nil {
		slog.Error("Failed to write reaction aggregates",
			slog.String("post_id", postID),
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()))
		return post, err
	}

	if newKind == "" {
		if err := c.store.DeleteReaction(user.ID, postID); err != nil {
			slog.Error("Failed to delete reaction record",
				slog.String("post_id", postID),
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()))
		}
	} else {
		if err := c.store.UpsertReaction(user.ID, postID, newKind); err != nil {
			slog.Error("Failed to upsert reaction record",
				slog.String("post_id", postID),
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()))
		}
	}

	if post.UserID != user.ID {
		if delta := ScoreDelta(oldKind, newKind); delta != 0 {
			c.adjustAuthorScore(post.UserID, delta)
		}
	}

	return post, nil
}

// adjustAuthorScore reads the author's current score and writes back
// score+delta. Read-then-write with no version token: the last write to
// land wins.
func (c *Controller) adjustAuthorScore(authorID string, delta int) {
	score, err := c.store.GetPulseScore(authorID)
	if err != nil {
		slog.Error("Failed to read author pulse score",
			slog.String("author_id", authorID),
			slog.String("error", err.Error()))
		return
	}
	if err := c.store.UpdatePulseScore(authorID, score+delta); err != nil {
		slog.Error("Failed to write author pulse score",
			slog.String("author_id", authorID),
			slog.Int("delta", delta),
			slog.String("error", err.Error()))
	}
}

// ToggleFollow flips the target's membership in the session user's
// following set and issues the matching insert or delete on the follow
// relation. It returns whether the user follows the target afterwards.
func (c *Controller) ToggleFollow(sess *session.Session, targetID string) (bool, error) {
	user := sess.User()

	following := false
	for _, id := range user.Following {
		if id == targetID {
			following = true
			break
		}
	}

	if following {
		sess.PatchUser(func(u *types.User) {
			kept := make([]string, 0, len(u.Following))
			for _, id := range u.Following {
				if id != targetID {
					kept = append(kept, id)
				}
			}
			u.Following = kept
		})
		if err := c.store.DeleteFollow(user.ID, targetID); err != nil {
			slog.Error("Failed to delete follow",
				slog.String("follower_id", user.ID),
				slog.String("following_id", targetID),
				slog.String("error", err.Error()))
			return false, err
		}
		return false, nil
	}

	sess.PatchUser(func(u *types.User) {
		u.Following = append(append([]string(nil), u.Following...), targetID)
	})
	if err := c.store.InsertFollow(user.ID, targetID); err != nil {
		slog.Error("Failed to insert follow",
			slog.String("follower_id", user.ID),
			slog.String("following_id", targetID),
			slog.String("error", err.Error()))
		return true, err
	}
	return true, nil
}

// ToggleBookmark flips the post's membership in the session user's
// bookmark set and persists the entire updated set as one field write.
// It returns whether the post is bookmarked afterwards.
func (c *Controller) ToggleBookmark(sess *session.Session, postID string) (bool, error) {
	user := sess.User()

	bookmarked := false
	for _, id := range user.Bookmarks {
		if id == postID {
			bookmarked = true
			break
		}
	}

	var updated []string
	if bookmarked {
		for _, id := range user.Bookmarks {
			if id != postID {
				updated = append(updated, id)
			}
		}
		if updated == nil {
			updated = []string{}
		}
	} else {
		updated = append(append([]string{}, user.Bookmarks...), postID)
	}

	sess.PatchUser(func(u *types.User) {
		u.Bookmarks = updated
	})

	if err := c.store.UpdateBookmarks(user.ID, updated); err != nil {
		slog.Error("Failed to persist bookmarks",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()))
		return !bookmarked, err
	}
	return !bookmarked, nil
}
