package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Guard keeps two broadcasts of the same notification from running at once.
type Guard interface {
	Acquire(ctx context.Context, notificationID string) (bool, error)
	Release(ctx context.Context, notificationID string) error
}

// MemoryGuard only protects against re-entry within one process.
type MemoryGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{active: make(map[string]struct{})}
}

func (g *MemoryGuard) Acquire(_ context.Context, notificationID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[notificationID]; busy {
		return false, nil
	}
	g.active[notificationID] = struct{}{}
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, notificationID string) error {
	g.mu.Lock()
	delete(g.active, notificationID)
	g.mu.Unlock()
	return nil
}

// RedisGuard shares the in-flight marker between replicas. The TTL frees a
// notification whose broadcaster died mid-run.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, notificationID string) (bool, error) {
	return g.client.SetNX(ctx, guardKey(notificationID), "1", g.ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, notificationID string) error {
	return g.client.Del(ctx, guardKey(notificationID)).Err()
}

func guardKey(notificationID string) string {
	return "broadcast:inflight:" + notificationID
}
