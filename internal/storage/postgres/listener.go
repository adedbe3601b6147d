package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/pulseout/pulse-service/internal/config"
	"github.com/pulseout/pulse-service/internal/types"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute

	// Ping the connection when no notification arrived for this long.
	listenerIdlePing = 90 * time.Second
)

// Listener implements storage.Subscriber over Postgres LISTEN/NOTIFY. The
// notify_collection_changed trigger fires per statement, so a single remote
// change by any user produces one coarse event for the whole collection.
type Listener struct {
	connStr string
}

func NewListener(cfg *config.Config) *Listener {
	return &Listener{connStr: cfg.PGSQL.ConnString()}
}

// Subscribe opens a dedicated listening connection for the collection's
// notification channel. The returned channel is closed when ctx is done.
func (l *Listener) Subscribe(ctx context.Context, c types.Collection) (<-chan types.ChangeEvent, error) {
	channel := fmt.Sprintf("%s_changed", c)

	pl := pq.NewListener(l.connStr, minReconnectInterval, maxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				slog.Error("Postgres listener event",
					slog.Int("event", int(ev)),
					slog.String("channel", channel),
					slog.String("error", err.Error()))
			}
		})

	if err := pl.Listen(channel); err != nil {
		pl.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	events := make(chan types.ChangeEvent, 16)

	go func() {
		defer close(events)
		defer pl.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case <-pl.Notify:
				// Payload is ignored on purpose: the contract is only
				// "something in this collection changed".
				select {
				case events <- types.NewChangeEvent(c):
				default:
					slog.Warn("Change event channel full, dropping notification",
						slog.String("collection", string(c)))
				}
			case <-time.After(listenerIdlePing):
				go func() {
					if err := pl.Ping(); err != nil {
						slog.Error("Postgres listener ping failed",
							slog.String("channel", channel),
							slog.String("error", err.Error()))
					}
				}()
			}
		}
	}()

	return events, nil
}
