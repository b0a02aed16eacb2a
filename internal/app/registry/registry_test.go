package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"chirp/internal/core/contracts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertion)
var _ contracts.Registry = (*Registry)(nil)

type fakeClient struct {
	mu       sync.Mutex
	id       string
	identity string
	frames   [][]byte
	full     bool
	closed   bool
}

func (c *fakeClient) ID() string       { return c.id }
func (c *fakeClient) Identity() string { return c.identity }

func (c *fakeClient) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeClient) TrySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.frames = append(c.frames, data)
	return true
}

func (c *fakeClient) Close() { c.closed = true }

func (c *fakeClient) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newTestRegistry() *Registry {
	return NewRegistry(slog.Default())
}

func TestRegistry_TransitionHooks(t *testing.T) {
	r := newTestRegistry()
	var online, offline []string
	r.OnOnline(func(ctx context.Context, identity string) { online = append(online, identity) })
	r.OnOffline(func(ctx context.Context, identity string) { offline = append(offline, identity) })

	ctx := context.Background()
	c1 := &fakeClient{id: "conn-1", identity: "alice"}
	c2 := &fakeClient{id: "conn-2", identity: "alice"}

	r.Register(ctx, c1)
	assert.Equal(t, []string{"alice"}, online, "first connection crosses 0 to 1")
	assert.True(t, r.IsReachable("alice"))

	r.Register(ctx, c2)
	assert.Len(t, online, 1, "second connection fires no hook")

	r.Unregister(ctx, c1)
	assert.Empty(t, offline, "one connection remains")
	assert.True(t, r.IsReachable("alice"))

	r.Unregister(ctx, c2)
	assert.Equal(t, []string{"alice"}, offline, "last connection crosses 1 to 0")
	assert.False(t, r.IsReachable("alice"))
}

func TestRegistry_UnregisterUnknownClientIsNoop(t *testing.T) {
	r := newTestRegistry()
	fired := 0
	r.OnOffline(func(ctx context.Context, identity string) { fired++ })

	r.Unregister(context.Background(), &fakeClient{id: "ghost", identity: "bob"})
	assert.Zero(t, fired)
}

func TestRegistry_SendReachesAllConnections(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	c1 := &fakeClient{id: "conn-1", identity: "alice"}
	c2 := &fakeClient{id: "conn-2", identity: "alice"}
	other := &fakeClient{id: "conn-3", identity: "bob"}
	r.Register(ctx, c1)
	r.Register(ctx, c2)
	r.Register(ctx, other)

	r.Send(ctx, "alice", map[string]string{"type": "presence"}, contracts.DeliveryDurable)

	assert.Equal(t, 1, c1.frameCount())
	assert.Equal(t, 1, c2.frameCount())
	assert.Zero(t, other.frameCount())

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(c1.frames[0], &decoded))
	assert.Equal(t, "presence", decoded["type"])
}

func TestRegistry_SendToUnreachableIsNoop(t *testing.T) {
	r := newTestRegistry()
	// must not panic or error
	r.Send(context.Background(), "nobody", map[string]string{"type": "x"}, contracts.DeliveryDurable)
}

func TestRegistry_VolatileDropsOnBackpressure(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	c := &fakeClient{id: "conn-1", identity: "alice", full: true}
	r.Register(ctx, c)

	r.Send(ctx, "alice", map[string]string{"type": "call:incoming"}, contracts.DeliveryVolatile)
	assert.Zero(t, c.frameCount(), "volatile frame is dropped, never queued")

	c.full = false
	r.Send(ctx, "alice", map[string]string{"type": "call:incoming"}, contracts.DeliveryVolatile)
	assert.Equal(t, 1, c.frameCount())
}

func TestRegistry_BroadcastSkipsExcept(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	alice := &fakeClient{id: "conn-1", identity: "alice"}
	bob := &fakeClient{id: "conn-2", identity: "bob"}
	carol := &fakeClient{id: "conn-3", identity: "carol"}
	r.Register(ctx, alice)
	r.Register(ctx, bob)
	r.Register(ctx, carol)

	r.Broadcast(ctx, "alice", map[string]string{"type": "presence"}, contracts.DeliveryDurable)

	assert.Zero(t, alice.frameCount())
	assert.Equal(t, 1, bob.frameCount())
	assert.Equal(t, 1, carol.frameCount())
}
