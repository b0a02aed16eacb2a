package contracts

import (
	"context"
)

// DeliveryMode selects the send semantics of the connection registry.
type DeliveryMode int

const (
	// DeliveryDurable is for ordinary application events: delivered to every
	// currently connected receiver, at most once, no retry.
	DeliveryDurable DeliveryMode = iota
	// DeliveryVolatile is for call-signaling events: dropped, never buffered,
	// when the target is unreachable or its connection is backed up. A stale
	// call event replayed after a reconnect would resurrect a dead call in
	// the UI, so volatile sends must never be queued for redelivery.
	DeliveryVolatile
)

// Registry is the single in-memory authority over live connections.
type Registry interface {
	// IsReachable reports whether the identity has at least one live connection.
	IsReachable(identity string) bool
	// Send delivers the payload to every live connection of identity.
	// A no-op, not an error, when identity is unreachable.
	Send(ctx context.Context, identity string, payload any, mode DeliveryMode)
	// Broadcast fans the payload out to every connected identity except the
	// one named by except ("" excludes nobody).
	Broadcast(ctx context.Context, except string, payload any, mode DeliveryMode)
}

// Client represents the minimal interface the registry needs to talk to an
// individual live connection.
type Client interface {
	ID() string
	Identity() string
	// Send blocks until the frame is accepted or the client is gone.
	Send(ctx context.Context, data []byte) error
	// TrySend never blocks; reports whether the frame was accepted.
	TrySend(data []byte) bool
	Close()
}
