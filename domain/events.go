package domain

import "context"

// ChannelUserChanges is the bus channel carrying user lifecycle events. The
// datastore service subscribes to it and provisions default resources for
// newly verified users.
const ChannelUserChanges = "user:changes"

// EventTypeUserVerified marks the one-time not-verified -> verified
// transition of a user.
const EventTypeUserVerified = "user_verified"

// Event is a message published to the external event bus.
type Event struct {
	Type    string         `json:"event_type"`
	Payload map[string]any `json:"payload"`
}

// EventBus publishes events to an external bus with at-least-once,
// fire-and-forget semantics. Publish failures are the caller's to log and
// swallow; this core performs no acknowledgement, retry or outbox handling.
type EventBus interface {
	Publish(ctx context.Context, channel string, event Event) error
}
