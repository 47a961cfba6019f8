package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskpulse/project/internal/domain"
)

const (
	DefaultDedupeTTL    = 24 * time.Hour
	DefaultDedupePrefix = "taskpulse:notified:"
)

// RedisDeduper remembers which (event, recipient) pairs are already stored
// so a redelivered event can skip them without a store round trip. A pair is
// only marked after its record is persisted.
type RedisDeduper struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{Client: client, Prefix: DefaultDedupePrefix, TTL: DefaultDedupeTTL}
}

func (d *RedisDeduper) key(eventID, userID string) string {
	return d.Prefix + eventID + ":" + userID
}

// Seen reports whether the pair was marked and has not expired.
func (d *RedisDeduper) Seen(ctx context.Context, eventID, userID string) (bool, error) {
	n, err := d.Client.Exists(ctx, d.key(eventID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("lookup %s for %s: %w: %w", eventID, userID, domain.ErrUnavailable, err)
	}
	return n > 0, nil
}

// Mark records that the pair's notification is persisted.
func (d *RedisDeduper) Mark(ctx context.Context, eventID, userID string) error {
	if err := d.Client.Set(ctx, d.key(eventID, userID), 1, d.TTL).Err(); err != nil {
		return fmt.Errorf("mark %s for %s: %w: %w", eventID, userID, domain.ErrUnavailable, err)
	}
	return nil
}

func (d *RedisDeduper) Ping(ctx context.Context) error {
	if err := d.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// ParseRedisURL builds a client from a redis:// URL.
func ParseRedisURL(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
