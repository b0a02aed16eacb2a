package contracts

import "context"

type NotificationType string

const (
	NotificationMessage   NotificationType = "MESSAGE"
	NotificationCall      NotificationType = "CALL"
	NotificationCallEnded NotificationType = "CALL_ENDED"
)

// Notification is the out-of-band fallback payload dispatched when a relayed
// event's recipient has no live connection. Data values are scalar strings
// only; the transport may not support structured fields.
type Notification struct {
	Recipient string            `json:"recipient"`
	Type      NotificationType  `json:"notificationType"`
	Data      map[string]string `json:"data"`
}

// NotificationDispatcher delivers one fallback notification. Implementations
// own transport concerns such as reserved-key remapping; the core always
// speaks from/to internally.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// NotificationQueue decouples the live-relay path from dispatch: components
// publish and return immediately; a background worker consumes and calls the
// dispatcher. A slow or failing dispatch never delays a signaling response.
type NotificationQueue interface {
	Publish(ctx context.Context, n Notification) error
	// Subscribe starts the consumer loop; handler errors are the handler's
	// problem, the queue keeps reading.
	Subscribe(ctx context.Context, group string, handler func(ctx context.Context, entryID string, n Notification) error) error
	Acknowledge(ctx context.Context, group, entryID string) error
	DeleteEntry(ctx context.Context, entryID string) error
}
