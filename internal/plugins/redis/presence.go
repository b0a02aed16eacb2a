package redis

import (
	"context"
	"strconv"
	"time"

	"chirp/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

type RedisPresenceStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPresenceStore(rdb *redis.Client, ttl time.Duration) *RedisPresenceStore {
	return &RedisPresenceStore{
		rdb: rdb,
		ttl: ttl,
	}
}

func presenceKey(identity string) string {
	return "presence:" + identity
}

// SetPresence mirrors one transition. The hash carries the state plus the
// transition time in unix millis; the TTL keeps abandoned identities from
// accumulating forever.
func (p *RedisPresenceStore) SetPresence(ctx context.Context, identity string, online bool, at time.Time) error {
	key := presenceKey(identity)
	err := p.rdb.HSet(ctx, key,
		"online", strconv.FormatBool(online),
		"at", strconv.FormatInt(at.UnixMilli(), 10),
	).Err()
	if err != nil {
		return err
	}
	return p.rdb.Expire(ctx, key, p.ttl).Err()
}

// GetPresence answers a batch lookup with one pipelined round trip. Identities
// with no mirrored record are simply absent from the result.
func (p *RedisPresenceStore) GetPresence(ctx context.Context, identities []string) (map[string]domain.PresenceRecord, error) {
	out := make(map[string]domain.PresenceRecord, len(identities))
	if len(identities) == 0 {
		return out, nil
	}

	pipe := p.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(identities))
	for _, id := range identities {
		cmds[id] = pipe.HGetAll(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	for id, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		online, _ := strconv.ParseBool(fields["online"])
		millis, err := strconv.ParseInt(fields["at"], 10, 64)
		if err != nil {
			continue
		}
		out[id] = domain.PresenceRecord{
			Online: online,
			At:     time.UnixMilli(millis),
		}
	}
	return out, nil
}
