package contracts

import (
	"context"
	"time"

	"chirp/internal/core/domain"
)

// PresenceStore mirrors last presence transitions to durable storage so a
// restarted coordinator can still answer since-when queries.
type PresenceStore interface {
	SetPresence(ctx context.Context, identity string, online bool, at time.Time) error
	GetPresence(ctx context.Context, identities []string) (map[string]domain.PresenceRecord, error)
}
