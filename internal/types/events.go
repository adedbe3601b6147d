package types

import "time"

// Collection names a remote resource collection that can be watched for
// changes.
type Collection string

const (
	CollectionPosts Collection = "posts"
	CollectionPings Collection = "pings"
)

// EventType represents the type of real-time event
type EventType string

const (
	EventCollectionChanged EventType = "collection.changed"
	EventPingReceived      EventType = "ping.received"
)

// Event represents a real-time event that can be sent over WebSocket
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// ChangeEvent is a coarse change notification: something in the named
// collection changed. It carries no row payload; consumers are expected
// to refetch the whole collection.
type ChangeEvent struct {
	Collection Collection `json:"collection"`
	ChangedAt  string     `json:"changed_at"`
}

// PingReceivedEvent notifies a user that a new ping arrived for them.
type PingReceivedEvent struct {
	PingID   string `json:"ping_id"`
	SenderID string `json:"sender_id"`
	Context  string `json:"context"`
	SentAt   string `json:"sent_at"`
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewChangeEvent creates a collection-changed event for the given
// collection, stamped with the current time.
func NewChangeEvent(c Collection) ChangeEvent {
	return ChangeEvent{
		Collection: c,
		ChangedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}
