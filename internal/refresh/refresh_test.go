package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pulseout/pulse-service/internal/session"
	"github.com/pulseout/pulse-service/internal/types"
)

type fakeSessionStore struct {
	mu        sync.Mutex
	posts     []types.Post
	pings     []types.Ping
	postLoads int
	pingLoads int
}

func (f *fakeSessionStore) GetProfile(userID string) (types.User, error) {
	return types.User{ID: userID}, nil
}

func (f *fakeSessionStore) GetFollowing(userID string) ([]string, error) {
	return nil, nil
}

func (f *fakeSessionStore) GetPostsForViewer(viewerID string) ([]types.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postLoads++
	return f.posts, nil
}

func (f *fakeSessionStore) GetPockets(viewerID string) ([]types.Pocket, error) {
	return nil, nil
}

func (f *fakeSessionStore) GetPingsForUser(userID string) ([]types.Ping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingLoads++
	return f.pings, nil
}

func (f *fakeSessionStore) setPosts(posts []types.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = posts
}

func (f *fakeSessionStore) loads() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.postLoads, f.pingLoads
}

// fakeSubscriber hands out pre-made channels per collection.
type fakeSubscriber struct {
	channels map[types.Collection]chan types.ChangeEvent
	failFor  types.Collection
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		channels: map[types.Collection]chan types.ChangeEvent{
			types.CollectionPosts: make(chan types.ChangeEvent, 4),
			types.CollectionPings: make(chan types.ChangeEvent, 4),
		},
	}
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, c types.Collection) (<-chan types.ChangeEvent, error) {
	if c == f.failFor {
		return nil, errors.New("subscription refused")
	}
	return f.channels[c], nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []types.ChangeEvent
}

func (p *capturingPublisher) PublishCollectionChanged(event types.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}

func TestTrigger_PostChangeRefetchesAllSessions(t *testing.T) {
	store := &fakeSessionStore{posts: []types.Post{{ID: "post-1"}}}
	sessions := session.NewManager(store, nil)
	for _, userID := range []string{"user-a", "user-b"} {
		if _, err := sessions.Init(userID); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	baselinePosts, _ := store.loads()

	sub := newFakeSubscriber()
	pub := &capturingPublisher{}
	trigger := New(sub, sessions, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go trigger.Run(ctx)

	store.setPosts([]types.Post{{ID: "post-1"}, {ID: "post-2"}})
	sub.channels[types.CollectionPosts] <- types.NewChangeEvent(types.CollectionPosts)

	// One refetch per live session, then the event is forwarded.
	waitFor(t, func() bool {
		posts, _ := store.loads()
		return posts == baselinePosts+2 && pub.count() == 1
	})

	sessA, _ := sessions.Get("user-a")
	if got := len(sessA.Posts()); got != 2 {
		t.Fatalf("Expected session overwritten with 2 posts, got %d", got)
	}
}

func TestTrigger_PingChangeRefetchesPingsOnly(t *testing.T) {
	store := &fakeSessionStore{}
	sessions := session.NewManager(store, nil)
	if _, err := sessions.Init("user-a"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	basePosts, basePings := store.loads()

	sub := newFakeSubscriber()
	trigger := New(sub, sessions, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go trigger.Run(ctx)

	sub.channels[types.CollectionPings] <- types.NewChangeEvent(types.CollectionPings)

	waitFor(t, func() bool {
		_, pings := store.loads()
		return pings == basePings+1
	})
	posts, _ := store.loads()
	if posts != basePosts {
		t.Fatalf("Expected no posts refetch on a pings event, got %d extra", posts-basePosts)
	}
}

func TestTrigger_SubscribeFailure(t *testing.T) {
	sub := newFakeSubscriber()
	sub.failFor = types.CollectionPosts
	trigger := New(sub, session.NewManager(&fakeSessionStore{}, nil), nil)

	if err := trigger.Run(context.Background()); err == nil {
		t.Fatal("Expected error when subscription fails")
	}
}

func TestTrigger_StopsOnContextCancel(t *testing.T) {
	sub := newFakeSubscriber()
	trigger := New(sub, session.NewManager(&fakeSessionStore{}, nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- trigger.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Trigger did not stop after cancellation")
	}
}
