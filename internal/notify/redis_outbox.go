// Package notify delivers thread notifications to subscribers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"commentary/api/internal/store"
	"commentary/api/internal/thread"
)

const (
	defaultInboxLimit = 200
	defaultInboxTTL   = 30 * 24 * time.Hour
)

// RedisOutbox keeps a bounded per-recipient inbox of notifications that the
// host application can poll. Each recipient's list holds the newest entries
// first.
type RedisOutbox struct {
	client *redis.Client
	prefix string
	limit  int64
	ttl    time.Duration
}

// NewRedisOutbox creates a new Redis-backed outbox
func NewRedisOutbox(redisURL string) (*RedisOutbox, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisOutboxWithClient(client), nil
}

// NewRedisOutboxWithClient creates an outbox from an existing Redis client
func NewRedisOutboxWithClient(client *redis.Client) *RedisOutbox {
	return &RedisOutbox{
		client: client,
		prefix: "inbox:",
		limit:  defaultInboxLimit,
		ttl:    defaultInboxTTL,
	}
}

func (o *RedisOutbox) key(recipient store.Ref) string {
	return o.prefix + recipient.String()
}

// Notify pushes n onto the inbox of every recipient in one pipeline.
func (o *RedisOutbox) Notify(ctx context.Context, n thread.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, err = o.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, recipient := range n.Recipients {
			key := o.key(recipient)
			pipe.LPush(ctx, key, payload)
			pipe.LTrim(ctx, key, 0, o.limit-1)
			pipe.Expire(ctx, key, o.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue notification: %w", err)
	}
	return nil
}

// Pending returns up to limit notifications for recipient, newest first.
func (o *RedisOutbox) Pending(ctx context.Context, recipient store.Ref, limit int64) ([]thread.Notification, error) {
	if limit <= 0 || limit > o.limit {
		limit = o.limit
	}
	raw, err := o.client.LRange(ctx, o.key(recipient), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	items := make([]thread.Notification, 0, len(raw))
	for _, entry := range raw {
		var n thread.Notification
		if err := json.Unmarshal([]byte(entry), &n); err != nil {
			return nil, fmt.Errorf("unmarshal notification: %w", err)
		}
		items = append(items, n)
	}
	return items, nil
}

// Clear empties recipient's inbox
func (o *RedisOutbox) Clear(ctx context.Context, recipient store.Ref) error {
	if err := o.client.Del(ctx, o.key(recipient)).Err(); err != nil {
		return fmt.Errorf("clear inbox: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (o *RedisOutbox) Close() error {
	return o.client.Close()
}

// Ping checks if Redis is reachable
func (o *RedisOutbox) Ping(ctx context.Context) error {
	return o.client.Ping(ctx).Err()
}
