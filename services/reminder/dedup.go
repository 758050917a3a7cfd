package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Dedup records that a reminder interval has fired for an appointment. Claim
// returns true exactly once per key; the scheduler only sends when it wins
// the claim.
type Dedup interface {
	Claim(ctx context.Context, appointmentID, interval string) (bool, error)
}

// RedisDedup claims via SETNX. Records outlive the appointment start by a
// day, which is long past the point a duplicate could fire.
type RedisDedup struct {
	client *redis.Client
}

func NewRedisDedup(client *redis.Client) *RedisDedup {
	return &RedisDedup{client: client}
}

func (d *RedisDedup) Claim(ctx context.Context, appointmentID, interval string) (bool, error) {
	key := fmt.Sprintf("reminder:%s:%s", appointmentID, interval)
	ok, err := d.client.SetNX(ctx, key, 1, 24*time.Hour).Result()
	if err != nil {
		return false, fmt.Errorf("reminder dedup claim failed: %w", err)
	}
	return ok, nil
}

// MemoryDedup backs tests.
type MemoryDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{seen: make(map[string]bool)}
}

func (d *MemoryDedup) Claim(_ context.Context, appointmentID, interval string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := appointmentID + ":" + interval
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}
