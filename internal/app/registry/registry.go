package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"chirp/internal/core/contracts"
)

// Registry tracks every live connection per identity and is the only owner
// of the connection-count bookkeeping. A 0→1 crossing fires the online hook,
// a 1→0 crossing fires the offline hooks; intermediate count changes fire
// nothing.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]map[string]contracts.Client // identity -> conn_id -> client
	byConn     map[string]contracts.Client
	onOnline   []func(ctx context.Context, identity string)
	onOffline  []func(ctx context.Context, identity string)
	log        *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		byIdentity: make(map[string]map[string]contracts.Client),
		byConn:     make(map[string]contracts.Client),
		log:        log,
	}
}

// OnOnline registers a hook fired after an identity's count crosses 0→1.
// Hooks run outside the registry lock, in registration order.
func (r *Registry) OnOnline(hook func(ctx context.Context, identity string)) {
	r.onOnline = append(r.onOnline, hook)
}

// OnOffline registers a hook fired after an identity's count crosses 1→0.
func (r *Registry) OnOffline(hook func(ctx context.Context, identity string)) {
	r.onOffline = append(r.onOffline, hook)
}

func (r *Registry) Register(ctx context.Context, c contracts.Client) {
	identity := c.Identity()
	r.mu.Lock()
	m := r.byIdentity[identity]
	if m == nil {
		m = make(map[string]contracts.Client)
		r.byIdentity[identity] = m
	}
	wasOffline := len(m) == 0
	m[c.ID()] = c
	r.byConn[c.ID()] = c
	r.mu.Unlock()

	if wasOffline {
		for _, hook := range r.onOnline {
			hook(ctx, identity)
		}
	}
}

func (r *Registry) Unregister(ctx context.Context, c contracts.Client) {
	identity := c.Identity()
	r.mu.Lock()
	wentOffline := false
	if m := r.byIdentity[identity]; m != nil {
		if _, ok := m[c.ID()]; ok {
			delete(m, c.ID())
			if len(m) == 0 {
				delete(r.byIdentity, identity)
				wentOffline = true
			}
		}
	}
	delete(r.byConn, c.ID())
	r.mu.Unlock()

	if wentOffline {
		for _, hook := range r.onOffline {
			hook(ctx, identity)
		}
	}
}

func (r *Registry) IsReachable(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[identity]) > 0
}

// Send delivers the payload to every live connection of identity. Durable
// sends block on a slow client; volatile sends are dropped when the identity
// is unreachable or a client's buffer is full, never queued.
func (r *Registry) Send(ctx context.Context, identity string, payload any, mode contracts.DeliveryMode) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("registry - send - marshal failed", "identity", identity, "err", err)
		return
	}
	for _, c := range r.clientsOf(identity) {
		r.deliver(ctx, c, data, mode)
	}
}

// Broadcast fans out to all connected identities except one.
func (r *Registry) Broadcast(ctx context.Context, except string, payload any, mode contracts.DeliveryMode) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("registry - broadcast - marshal failed", "err", err)
		return
	}
	r.mu.RLock()
	targets := make([]contracts.Client, 0, len(r.byConn))
	for identity, m := range r.byIdentity {
		if identity == except {
			continue
		}
		for _, c := range m {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()
	for _, c := range targets {
		r.deliver(ctx, c, data, mode)
	}
}

func (r *Registry) deliver(ctx context.Context, c contracts.Client, data []byte, mode contracts.DeliveryMode) {
	if mode == contracts.DeliveryVolatile {
		if !c.TrySend(data) {
			r.log.Debug("registry - deliver - volatile frame dropped", "identity", c.Identity(), "conn_id", c.ID())
		}
		return
	}
	if err := c.Send(ctx, data); err != nil {
		r.log.Debug("registry - deliver - durable send failed", "identity", c.Identity(), "conn_id", c.ID(), "err", err)
	}
}

func (r *Registry) clientsOf(identity string) []contracts.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byIdentity[identity]
	if len(m) == 0 {
		return nil
	}
	out := make([]contracts.Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}
