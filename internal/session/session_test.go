package session

import (
	"context"
	"errors"
	"testing"

	"github.com/pulseout/pulse-service/internal/types"
)

type fakeStore struct {
	profiles  map[string]types.User
	following map[string][]string
	posts     []types.Post
	pockets   []types.Pocket
	pings     []types.Ping

	failPosts bool
	postLoads int
}

func (f *fakeStore) GetProfile(userID string) (types.User, error) {
	u, ok := f.profiles[userID]
	if !ok {
		return types.User{}, errors.New("no such profile")
	}
	return u, nil
}

func (f *fakeStore) GetFollowing(userID string) ([]string, error) {
	return f.following[userID], nil
}

func (f *fakeStore) GetPostsForViewer(viewerID string) ([]types.Post, error) {
	if f.failPosts {
		return nil, errors.New("posts unavailable")
	}
	f.postLoads++
	return f.posts, nil
}

func (f *fakeStore) GetPockets(viewerID string) ([]types.Pocket, error) {
	return f.pockets, nil
}

func (f *fakeStore) GetPingsForUser(userID string) ([]types.Ping, error) {
	return f.pings, nil
}

func newStoreWithUser() *fakeStore {
	return &fakeStore{
		profiles:  map[string]types.User{"user-a": {ID: "user-a", Name: "Ana"}},
		following: map[string][]string{"user-a": {"user-b"}},
		posts:     []types.Post{{ID: "post-1", Content: "first"}},
		pockets:   []types.Pocket{{ID: "pk-1", Name: "Slow Living"}},
		pings:     []types.Ping{{ID: "ping-1", Context: "about your post"}},
	}
}

func TestManager_InitLoadsFullSnapshot(t *testing.T) {
	m := NewManager(newStoreWithUser(), nil)

	sess, err := m.Init("user-a")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	user := sess.User()
	if user.Name != "Ana" {
		t.Fatalf("Expected profile loaded, got %+v", user)
	}
	if len(user.Following) != 1 || user.Following[0] != "user-b" {
		t.Fatalf("Expected following merged into user, got %v", user.Following)
	}
	if len(sess.Posts()) != 1 || len(sess.Pockets()) != 1 || len(sess.Pings()) != 1 {
		t.Fatal("Expected posts, pockets and pings loaded")
	}
}

func TestManager_InitUnknownUser(t *testing.T) {
	m := NewManager(newStoreWithUser(), nil)

	if _, err := m.Init("ghost"); err == nil {
		t.Fatal("Expected error for unknown user")
	}
}

func TestManager_Teardown(t *testing.T) {
	m := NewManager(newStoreWithUser(), nil)

	if _, err := m.Init("user-a"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	m.Teardown("user-a")

	if _, ok := m.Get("user-a"); ok {
		t.Fatal("Expected session discarded after teardown")
	}
	if got := len(m.ActiveUsers()); got != 0 {
		t.Fatalf("Expected no active users, got %d", got)
	}
}

func TestManager_GetOrInitReusesSession(t *testing.T) {
	store := newStoreWithUser()
	m := NewManager(store, nil)

	first, err := m.GetOrInit("user-a")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := m.GetOrInit("user-a")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if first != second {
		t.Fatal("Expected the same session instance")
	}
	if store.postLoads != 1 {
		t.Fatalf("Expected a single snapshot load, got %d", store.postLoads)
	}
}

func TestManager_RefreshPostsOverwritesWholesale(t *testing.T) {
	store := newStoreWithUser()
	m := NewManager(store, nil)
	sess, err := m.Init("user-a")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// An optimistic patch...
	sess.PatchPost("post-1", func(p *types.Post) {
		p.Reactions.Insight = 9
	})

	// ...is discarded entirely by the next refetch.
	store.posts = []types.Post{{ID: "post-1", Content: "first"}, {ID: "post-2", Content: "second"}}
	if err := m.RefreshPosts("user-a"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	posts := sess.Posts()
	if len(posts) != 2 {
		t.Fatalf("Expected 2 posts after refresh, got %d", len(posts))
	}
	if posts[0].Reactions.Insight != 0 {
		t.Fatalf("Expected optimistic patch overwritten, got %+v", posts[0].Reactions)
	}
}

func TestManager_RefreshIgnoresMissingSession(t *testing.T) {
	m := NewManager(newStoreWithUser(), nil)

	if err := m.RefreshPosts("nobody"); err != nil {
		t.Fatalf("Expected refresh of absent session to be a no-op, got %v", err)
	}
}

type fakeShelfStore struct {
	shelves map[string][]types.ShelfItem
	fail    bool
}

func (f *fakeShelfStore) LoadShelf(ctx context.Context, userID string) ([]types.ShelfItem, error) {
	if f.fail {
		return nil, errors.New("shelf store unavailable")
	}
	return f.shelves[userID], nil
}

func TestManager_InitLoadsShelfFallback(t *testing.T) {
	shelves := &fakeShelfStore{shelves: map[string][]types.ShelfItem{
		"user-a": {{ID: "1", Category: "BOOK", Title: "Meditations", Author: "Marcus Aurelius"}},
	}}
	m := NewManager(newStoreWithUser(), shelves)

	sess, err := m.Init("user-a")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	shelf := sess.User().Shelf
	if len(shelf) != 1 || shelf[0].Title != "Meditations" {
		t.Fatalf("Expected shelf loaded from fallback store, got %+v", shelf)
	}
}

func TestManager_InitShelfFailureDegrades(t *testing.T) {
	m := NewManager(newStoreWithUser(), &fakeShelfStore{fail: true})

	sess, err := m.Init("user-a")
	if err != nil {
		t.Fatalf("Expected shelf failure not to fail init, got %v", err)
	}
	if got := len(sess.User().Shelf); got != 0 {
		t.Fatalf("Expected empty shelf on failed load, got %d items", got)
	}
}

func TestSession_UserSnapshotDoesNotAliasCache(t *testing.T) {
	sess := &Session{}
	sess.SetUser(types.User{
		ID:        "user-a",
		Following: []string{"user-b"},
		Bookmarks: []string{"post-1"},
		Shelf:     []types.ShelfItem{{ID: "1", Category: "BOOK", Title: "Meditations", Author: "Marcus Aurelius"}},
	})

	snapshot := sess.User()

	// A patch that rewrites the cached slices must not show through a
	// snapshot taken earlier.
	sess.PatchUser(func(u *types.User) {
		u.Following = append(u.Following, "user-c")
		u.Following[0] = "user-z"
		u.Bookmarks = nil
		u.Shelf[0].Title = "Replaced"
	})

	if len(snapshot.Following) != 1 || snapshot.Following[0] != "user-b" {
		t.Fatalf("Expected snapshot following untouched, got %v", snapshot.Following)
	}
	if len(snapshot.Bookmarks) != 1 || snapshot.Bookmarks[0] != "post-1" {
		t.Fatalf("Expected snapshot bookmarks untouched, got %v", snapshot.Bookmarks)
	}
	if snapshot.Shelf[0].Title != "Meditations" {
		t.Fatalf("Expected snapshot shelf untouched, got %+v", snapshot.Shelf)
	}

	// And the reverse: writing into a snapshot must not reach the cache.
	snapshot.Following[0] = "mangled"
	if got := sess.User().Following[0]; got != "user-z" {
		t.Fatalf("Expected cached following unaffected by snapshot write, got %q", got)
	}
}

func TestSession_PatchPost(t *testing.T) {
	sess := &Session{}
	sess.ReplacePosts([]types.Post{{ID: "post-1"}})

	if ok := sess.PatchPost("post-1", func(p *types.Post) { p.Content = "patched" }); !ok {
		t.Fatal("Expected patch to find the post")
	}
	if ok := sess.PatchPost("missing", func(p *types.Post) {}); ok {
		t.Fatal("Expected patch of unknown post to report false")
	}

	got, _ := sess.Post("post-1")
	if got.Content != "patched" {
		t.Fatalf("Expected patched content, got %q", got.Content)
	}
}

func TestSession_RemovePost(t *testing.T) {
	sess := &Session{}
	sess.ReplacePosts([]types.Post{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	sess.RemovePost("b")

	posts := sess.Posts()
	if len(posts) != 2 || posts[0].ID != "a" || posts[1].ID != "c" {
		t.Fatalf("Expected [a c], got %v", posts)
	}
}
