package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chirp/internal/core/contracts"
	"chirp/internal/core/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var presenceTracer = otel.Tracer("presence-service")

type IPresenceService interface {
	// HandleOnline and HandleOffline are wired to the connection registry's
	// transition hooks; exactly one fires per 0↔positive crossing.
	HandleOnline(ctx context.Context, identity string)
	HandleOffline(ctx context.Context, identity string)
	// Query answers batch presence lookups; verbose adds the since-when
	// timestamp of the last transition.
	Query(ctx context.Context, identities []string, verbose bool) map[string]domain.PresenceRecord
	OnlineIdentities() []string
}

// PresenceService derives online/offline transitions from the connection
// registry and announces them to everyone else. It keeps the authoritative
// last-transition record in memory and mirrors each transition to the
// presence store so since-when survives a restart.
type PresenceService struct {
	mu       sync.RWMutex
	records  map[string]domain.PresenceRecord
	registry contracts.Registry
	store    contracts.PresenceStore
	log      *slog.Logger
}

func NewPresenceService(
	log *slog.Logger,
	registry contracts.Registry,
	store contracts.PresenceStore,
) *PresenceService {
	return &PresenceService{
		records:  make(map[string]domain.PresenceRecord),
		registry: registry,
		store:    store,
		log:      log,
	}
}

func (s *PresenceService) HandleOnline(ctx context.Context, identity string) {
	s.transition(ctx, identity, true)
}

func (s *PresenceService) HandleOffline(ctx context.Context, identity string) {
	s.transition(ctx, identity, false)
}

func (s *PresenceService) transition(ctx context.Context, identity string, online bool) {
	ctx, span := presenceTracer.Start(ctx, "PresenceService.transition", trace.WithAttributes(
		attribute.String("identity", identity),
		attribute.Bool("online", online),
	))
	defer span.End()
	at := time.Now()
	record := domain.PresenceRecord{Online: online, At: at}

	s.mu.Lock()
	s.records[identity] = record
	s.mu.Unlock()

	s.registry.Broadcast(ctx, identity, domain.PresenceEvent{
		Type:     domain.TypePresence,
		Identity: identity,
		Online:   online,
		At:       at,
	}, contracts.DeliveryDurable)

	if err := s.store.SetPresence(ctx, identity, online, at); err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "presence - transition - mirror failed", "identity", identity, "err", err)
	}
	s.log.InfoContext(ctx, "presence - transition - announced", "identity", identity, "online", online)
}

func (s *PresenceService) Query(ctx context.Context, identities []string, verbose bool) map[string]domain.PresenceRecord {
	out := make(map[string]domain.PresenceRecord, len(identities))
	var missing []string

	s.mu.RLock()
	for _, id := range identities {
		if rec, ok := s.records[id]; ok {
			out[id] = rec
		} else {
			missing = append(missing, id)
		}
	}
	s.mu.RUnlock()

	// Identities this process has never seen may still have a mirrored
	// record from before a restart; only verbose callers care about At.
	if verbose && len(missing) > 0 {
		mirrored, err := s.store.GetPresence(ctx, missing)
		if err != nil {
			s.log.ErrorContext(ctx, "presence - query - mirror lookup failed", "err", err)
		}
		for id, rec := range mirrored {
			// A restarted coordinator has no live connection for them.
			rec.Online = false
			out[id] = rec
		}
	}
	for _, id := range identities {
		if _, ok := out[id]; !ok {
			out[id] = domain.PresenceRecord{}
		}
	}
	return out
}

func (s *PresenceService) OnlineIdentities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, rec := range s.records {
		if rec.Online {
			out = append(out, id)
		}
	}
	return out
}
