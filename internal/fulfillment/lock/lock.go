package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// releaseScript deletes the key only when it still holds the caller's token,
// so a lock that expired and was taken by another worker is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis hands out owner-tagged keys. The same primitive backs the per-order
// fulfillment lock and the CRM idempotency keys.
type Redis struct {
	Client *redis.Client
	Prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{Client: client, Prefix: prefix}
}

func (r *Redis) key(name string) string {
	return r.Prefix + name
}

// Acquire sets name to owner unless it is already held. ttl of zero keeps
// the key until it is released.
func (r *Redis) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	ok, err := r.Client.SetNX(ctx, r.key(name), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", name, err)
	}
	return ok, nil
}

// Release deletes name if owner still holds it.
func (r *Redis) Release(ctx context.Context, name, owner string) error {
	if err := releaseScript.Run(ctx, r.Client, []string{r.key(name)}, owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}

// Holder reports who holds name, or "" when it is free.
func (r *Redis) Holder(ctx context.Context, name string) (string, error) {
	val, err := r.Client.Get(ctx, r.key(name)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return val, nil
}
