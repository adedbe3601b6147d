package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pulseout/pulse-service/internal/types"
)

// Store is the slice of the remote store sessions load snapshots from.
type Store interface {
	GetProfile(userID string) (types.User, error)
	GetFollowing(userID string) ([]string, error)
	GetPostsForViewer(viewerID string) ([]types.Post, error)
	GetPockets(viewerID string) ([]types.Pocket, error)
	GetPingsForUser(userID string) ([]types.Ping, error)
}

// ShelfStore serves the fallback shelf copy kept outside the profile row.
// It survives restarts, so a fresh session starts with the last saved
// shelf instead of an empty one.
type ShelfStore interface {
	LoadShelf(ctx context.Context, userID string) ([]types.ShelfItem, error)
}

// Session holds the latest known snapshot of the signed-in user, their
// posts feed, pockets and ping conversations. Snapshots are replaced
// wholesale on refetch; optimistic mutations patch a single entity in
// place by id. There is no eviction: a session lives until teardown.
type Session struct {
	mu      sync.RWMutex
	user    types.User
	posts   []types.Post
	pockets []types.Pocket
	pings   []types.Ping
}

// User returns a copy of the cached user snapshot. The slice fields are
// copied too, so callers can read the snapshot while a concurrent patch
// rewrites the cached user.
func (s *Session) User() types.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u := s.user
	u.Following = copyStrings(s.user.Following)
	u.Bookmarks = copyStrings(s.user.Bookmarks)
	if s.user.Shelf != nil {
		u.Shelf = make([]types.ShelfItem, len(s.user.Shelf))
		copy(u.Shelf, s.user.Shelf)
	}
	return u
}

// copyStrings preserves nil-ness so empty sets keep encoding as [].
func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// SetUser replaces the cached user snapshot.
func (s *Session) SetUser(u types.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// PatchUser applies fn to the cached user under the lock.
func (s *Session) PatchUser(fn func(*types.User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.user)
}

// Posts returns a copy of the cached posts snapshot.
func (s *Session) Posts() []types.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Post, len(s.posts))
	copy(out, s.posts)
	return out
}

// Post returns the cached post with the given id.
func (s *Session) Post(postID string) (types.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.posts {
		if s.posts[i].ID == postID {
			return s.posts[i], true
		}
	}
	return types.Post{}, false
}

// ReplacePosts overwrites the whole posts snapshot.
func (s *Session) ReplacePosts(posts []types.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = posts
}

// PatchPost applies fn to the cached post with the given id. It reports
// whether the post was found.
func (s *Session) PatchPost(postID string, fn func(*types.Post)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.posts {
		if s.posts[i].ID == postID {
			fn(&s.posts[i])
			return true
		}
	}
	return false
}

// RemovePost drops the post with the given id from the snapshot.
func (s *Session) RemovePost(postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.posts {
		if s.posts[i].ID == postID {
			s.posts = append(s.posts[:i], s.posts[i+1:]...)
			return
		}
	}
}

// Pockets returns a copy of the cached pockets snapshot.
func (s *Session) Pockets() []types.Pocket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Pocket, len(s.pockets))
	copy(out, s.pockets)
	return out
}

// ReplacePockets overwrites the whole pockets snapshot.
func (s *Session) ReplacePockets(pockets []types.Pocket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pockets = pockets
}

// Pings returns a copy of the cached pings snapshot.
func (s *Session) Pings() []types.Ping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Ping, len(s.pings))
	copy(out, s.pings)
	return out
}

// ReplacePings overwrites the whole pings snapshot.
func (s *Session) ReplacePings(pings []types.Ping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings = pings
}

// PatchPing applies fn to the cached ping with the given id.
func (s *Session) PatchPing(pingID string, fn func(*types.Ping)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pings {
		if s.pings[i].ID == pingID {
			fn(&s.pings[i])
			return true
		}
	}
	return false
}

// Manager owns the live sessions, keyed by user id. Init loads the full
// snapshot from the store; Teardown discards it.
type Manager struct {
	mu       sync.RWMutex
	store    Store
	shelves  ShelfStore
	sessions map[string]*Session
}

// NewManager creates a session manager. shelves may be nil when no shelf
// fallback store is wired.
func NewManager(store Store, shelves ShelfStore) *Manager {
	return &Manager{
		store:    store,
		shelves:  shelves,
		sessions: make(map[string]*Session),
	}
}

// Init loads the user's profile, follows, feed, pockets and pings into a
// fresh session, replacing any previous session for the same user.
func (m *Manager) Init(userID string) (*Session, error) {
	user, err := m.store.GetProfile(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	following, err := m.store.GetFollowing(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load follows: %w", err)
	}
	user.Following = following
	if user.Bookmarks == nil {
		user.Bookmarks = []string{}
	}

	// The shelf lives in the fallback store, not on the profile row. A
	// failed load degrades to an empty shelf rather than failing init.
	if m.shelves != nil {
		shelf, err := m.shelves.LoadShelf(context.Background(), userID)
		if err != nil {
			slog.Error("Failed to load shelf copy", slog.String("user_id", userID), slog.String("error", err.Error()))
		} else {
			user.Shelf = shelf
		}
	}

	posts, err := m.store.GetPostsForViewer(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load posts: %w", err)
	}
	pockets, err := m.store.GetPockets(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pockets: %w", err)
	}
	pings, err := m.store.GetPingsForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pings: %w", err)
	}

	sess := &Session{
		user:    user,
		posts:   posts,
		pockets: pockets,
		pings:   pings,
	}

	m.mu.Lock()
	m.sessions[userID] = sess
	m.mu.Unlock()

	return sess, nil
}

// Get returns the live session for the user, if any.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[userID]
	return sess, ok
}

// GetOrInit returns the live session for the user, initializing one when
// none exists yet.
func (m *Manager) GetOrInit(userID string) (*Session, error) {
	if sess, ok := m.Get(userID); ok {
		return sess, nil
	}
	return m.Init(userID)
}

// Teardown discards the user's session and everything cached in it.
func (m *Manager) Teardown(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// ActiveUsers returns the ids of users with a live session.
func (m *Manager) ActiveUsers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]string, 0, len(m.sessions))
	for userID := range m.sessions {
		users = append(users, userID)
	}
	return users
}

// RefreshPosts refetches the whole posts collection for the user and
// overwrites the cached snapshot.
func (m *Manager) RefreshPosts(userID string) error {
	sess, ok := m.Get(userID)
	if !ok {
		return nil
	}
	posts, err := m.store.GetPostsForViewer(userID)
	if err != nil {
		return err
	}
	sess.ReplacePosts(posts)
	return nil
}

// RefreshPings refetches the whole pings collection for the user and
// overwrites the cached snapshot.
func (m *Manager) RefreshPings(userID string) error {
	sess, ok := m.Get(userID)
	if !ok {
		return nil
	}
	pings, err := m.store.GetPingsForUser(userID)
	if err != nil {
		return err
	}
	sess.ReplacePings(pings)
	return nil
}

// RefreshPockets refetches the whole pockets collection for the user and
// overwrites the cached snapshot.
func (m *Manager) RefreshPockets(userID string) error {
	sess, ok := m.Get(userID)
	if !ok {
		return nil
	}
	pockets, err := m.store.GetPockets(userID)
	if err != nil {
		return err
	}
	sess.ReplacePockets(pockets)
	return nil
}
