package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chirp/internal/core/contracts"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const notificationStream = "stream:notifications"

// RedisNotificationQueue buffers fallback notifications on a single stream so
// the signaling path returns as soon as XADD lands. A consumer group lets a
// restarted worker pick up entries published while it was down.
type RedisNotificationQueue struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisNotificationQueue(rdb *redis.Client, log *slog.Logger) *RedisNotificationQueue {
	return &RedisNotificationQueue{rdb: rdb, log: log}
}

func (q *RedisNotificationQueue) Publish(ctx context.Context, n contracts.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: notificationStream,
		MaxLen: 10000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": payload},
	}).Err()
}

func (q *RedisNotificationQueue) Subscribe(
	ctx context.Context,
	group string,
	handler func(ctx context.Context, entryID string, n contracts.Notification) error,
) error {
	// Create group if not exists
	err := q.rdb.XGroupCreateMkStream(ctx, notificationStream, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	consumerName := uuid.NewString()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
					Group:    group,
					Consumer: consumerName,
					Streams:  []string{notificationStream, ">"},
					Count:    10,
					Block:    2 * time.Second,
				}).Result()
				if err != nil {
					if err != redis.Nil && ctx.Err() == nil {
						q.log.Error("queue - stream read error", "err", err)
					}
					continue
				}
				for _, stream := range res {
					for _, msg := range stream.Messages {
						raw, ok := msg.Values["data"].(string)
						if !ok {
							continue
						}
						var n contracts.Notification
						if err := json.Unmarshal([]byte(raw), &n); err != nil {
							q.log.Error("queue - malformed entry", "entry_id", msg.ID, "err", err)
							continue
						}
						if err := handler(ctx, msg.ID, n); err != nil {
							q.log.Error("queue - handler error", "entry_id", msg.ID, "err", err)
						}
					}
				}
			}
		}
	}()
	return nil
}

func (q *RedisNotificationQueue) Acknowledge(ctx context.Context, group, entryID string) error {
	return q.rdb.XAck(ctx, notificationStream, group, entryID).Err()
}

func (q *RedisNotificationQueue) DeleteEntry(ctx context.Context, entryID string) error {
	return q.rdb.XDel(ctx, notificationStream, entryID).Err()
}
