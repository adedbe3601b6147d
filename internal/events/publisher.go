package events

import (
	"time"

	"github.com/pulseout/pulse-service/internal/types"
)

// Publisher interface for publishing realtime events
type Publisher interface {
	PublishCollectionChanged(event types.ChangeEvent)
	PublishPingReceived(pingID, senderID, receiverID, context string)
}

// WebSocketHub interface for the WebSocket hub
type WebSocketHub interface {
	BroadcastToUser(userID string, event *types.Event)
	BroadcastToAll(event *types.Event)
	IsUserConnected(userID string) bool
}

// EventPublisher implements the Publisher interface
type EventPublisher struct {
	hub WebSocketHub
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(hub WebSocketHub) *EventPublisher {
	return &EventPublisher{
		hub: hub,
	}
}

// PublishCollectionChanged pushes a coarse "something changed" event for a
// collection to every connected client. Clients respond by refetching the
// collection; no row payload is carried.
func (p *EventPublisher) PublishCollectionChanged(event types.ChangeEvent) {
	p.hub.BroadcastToAll(types.NewEvent(types.EventCollectionChanged, event))
}

// PublishPingReceived notifies the receiver of a new ping, if connected.
func (p *EventPublisher) PublishPingReceived(pingID, senderID, receiverID, context string) {
	if !p.hub.IsUserConnected(receiverID) {
		return
	}

	eventData := &types.PingReceivedEvent{
		PingID:   pingID,
		SenderID: senderID,
		Context:  context,
		SentAt:   time.Now().UTC().Format(time.RFC3339),
	}

	p.hub.BroadcastToUser(receiverID, types.NewEvent(types.EventPingReceived, eventData))
}
