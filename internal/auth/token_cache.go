package auth

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"ms-boxoffice/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/zeebo/blake3"
)

const (
	// StaffTokenPrefix namespaces verified tokens in Redis
	StaffTokenPrefix = "staff_token:"
	// TokenExpiryBuffer is how long before expiry a cached verification stops being used
	TokenExpiryBuffer = 30 * time.Second
)

// CachedVerifier remembers successful verifications in Redis so scanner
// devices polling the API do not hit the identity provider on every request.
// Only a hash of the token is stored.
type CachedVerifier struct {
	Next   Verifier
	Client *redis.Client
	MaxTTL time.Duration
	log    *logger.Logger
}

func NewCachedVerifier(next Verifier, client *redis.Client, maxTTL time.Duration, log *logger.Logger) *CachedVerifier {
	return &CachedVerifier{Next: next, Client: client, MaxTTL: maxTTL, log: log}
}

func tokenKey(rawToken string) string {
	sum := blake3.Sum256([]byte(rawToken))
	return StaffTokenPrefix + hex.EncodeToString(sum[:])
}

func (c *CachedVerifier) Verify(ctx context.Context, rawToken string) (Staff, error) {
	key := tokenKey(rawToken)
	if staff, ok := c.cached(ctx, key); ok {
		return staff, nil
	}

	staff, err := c.Next.Verify(ctx, rawToken)
	if err != nil {
		return Staff{}, err
	}
	if err := c.store(ctx, key, staff); err != nil {
		c.log.Warn("AUTH", fmt.Sprintf("Failed to cache staff token: %v", err))
	}
	return staff, nil
}

func (c *CachedVerifier) cached(ctx context.Context, key string) (Staff, bool) {
	raw, err := c.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return Staff{}, false
	}
	if err != nil {
		c.log.Warn("AUTH", fmt.Sprintf("Failed to read staff token cache: %v", err))
		return Staff{}, false
	}
	var staff Staff
	if err := json.Unmarshal([]byte(raw), &staff); err != nil {
		return Staff{}, false
	}
	if !time.Now().Add(TokenExpiryBuffer).Before(staff.Expiry) {
		return Staff{}, false
	}
	return staff, true
}

func (c *CachedVerifier) store(ctx context.Context, key string, staff Staff) error {
	ttl := time.Until(staff.Expiry) - TokenExpiryBuffer
	if c.MaxTTL > 0 && ttl > c.MaxTTL {
		ttl = c.MaxTTL
	}
	if ttl <= 0 {
		return nil
	}
	body, err := json.Marshal(staff)
	if err != nil {
		return fmt.Errorf("marshal staff: %w", err)
	}
	if err := c.Client.Set(ctx, key, body, ttl).Err(); err != nil {
		return fmt.Errorf("store staff token: %w", err)
	}
	return nil
}
