package utils

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// GenerateOrderID returns the opaque, lifetime-stable order id.
func GenerateOrderID() string {
	return uuid.NewString()
}

// GenerateProductID derives a readable catalog id for lines created without one.
func GenerateProductID(kind string) string {
	return fmt.Sprintf("%s_%s", kind, uuid.NewString()[:8])
}

// IdempotencyKey scopes a payment request to one order step.
func IdempotencyKey(orderID, step string) string {
	return fmt.Sprintf("%s:%s", orderID, step)
}

// AttemptKey scopes a payment request to one attempt at a step. Requests
// with the same parts share a key; changing any part (a new card, another
// amount) starts a fresh attempt.
func AttemptKey(orderID, step string, parts ...string) string {
	sum := blake3.Sum256([]byte(strings.Join(parts, "\x1f")))
	return IdempotencyKey(orderID, step+":"+hex.EncodeToString(sum[:8]))
}

func GenerateEventID() string {
	return fmt.Sprintf("evt_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
}
