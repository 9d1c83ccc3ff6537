// Package dedup guards against gateway redeliveries. The payment gateway
// may call the webhook more than once for the same payment; the booking's
// notification_sent flag is the authoritative dedup, this guard just
// short-circuits fully processed payments before they touch the store.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard remembers which gateway payment ids have been fully processed.
type Guard interface {
	Seen(ctx context.Context, paymentID string) (bool, error)
	Mark(ctx context.Context, paymentID string) error
}

const keyPrefix = "vagafogo:payment:"

type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard creates a guard backed by redis. TTL bounds memory: a
// redelivery later than the TTL falls through to the notification_sent
// check, which stays correct.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Seen(ctx context.Context, paymentID string) (bool, error) {
	n, err := g.client.Exists(ctx, keyPrefix+paymentID).Result()
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return n > 0, nil
}

func (g *RedisGuard) Mark(ctx context.Context, paymentID string) error {
	if err := g.client.Set(ctx, keyPrefix+paymentID, 1, g.ttl).Err(); err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	return nil
}
