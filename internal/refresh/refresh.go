// Package refresh reacts to coarse change notifications by refetching the
// affected collection for every live session and overwriting the cached
// snapshot. No incremental merge is attempted: any optimistic local state
// on the collection is discarded in favor of the fresh fetch.
package refresh

import (
	"context"
	"log/slog"

	"github.com/pulseout/pulse-service/internal/session"
	"github.com/pulseout/pulse-service/internal/storage"
	"github.com/pulseout/pulse-service/internal/types"
)

// Publisher forwards a change event to connected UI clients so they can
// refetch on their side as well.
type Publisher interface {
	PublishCollectionChanged(event types.ChangeEvent)
}

type Trigger struct {
	sub       storage.Subscriber
	sessions  *session.Manager
	publisher Publisher
}

// New creates a refresh trigger. publisher may be nil when no realtime
// push surface is wired.
func New(sub storage.Subscriber, sessions *session.Manager, publisher Publisher) *Trigger {
	return &Trigger{
		sub:       sub,
		sessions:  sessions,
		publisher: publisher,
	}
}

// Run subscribes to the posts and pings collections and services change
// events until ctx is done.
func (t *Trigger) Run(ctx context.Context) error {
	postEvents, err := t.sub.Subscribe(ctx, types.CollectionPosts)
	if err != nil {
		return err
	}
	pingEvents, err := t.sub.Subscribe(ctx, types.CollectionPings)
	if err != nil {
		return err
	}

	slog.Info("Realtime refresh trigger started")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Realtime refresh trigger shutting down")
			return ctx.Err()
		case event, ok := <-postEvents:
			if !ok {
				return nil
			}
			t.handle(event)
		case event, ok := <-pingEvents:
			if !ok {
				return nil
			}
			t.handle(event)
		}
	}
}

// handle refetches the changed collection for every live session. A failed
// refetch for one user is logged and does not block the others; the next
// change event retries implicitly.
func (t *Trigger) handle(event types.ChangeEvent) {
	for _, userID := range t.sessions.ActiveUsers() {
		var err error
		switch event.Collection {
		case types.CollectionPosts:
			err = t.sessions.RefreshPosts(userID)
		case types.CollectionPings:
			err = t.sessions.RefreshPings(userID)
		}
		if err != nil {
			slog.Error("Failed to refresh collection",
				slog.String("collection", string(event.Collection)),
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
		}
	}

	if t.publisher != nil {
		t.publisher.PublishCollectionChanged(event)
	}
}
