package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "STORE_CHANGED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is a plain Event implementation used for ad-hoc events.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// StoreChanged announces that a user's collection was mutated and its
// snapshot should be re-pushed to connected clients.
func StoreChanged(userId, collection string) BaseEvent {
	return BaseEvent{
		Type: "STORE_CHANGED",
		Data: map[string]interface{}{
			"user_id":    userId,
			"collection": collection,
		},
		OccurredAt: time.Now(),
	}
}
