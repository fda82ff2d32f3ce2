// Package access caches which providers have paid for which requests, so
// the contact-reveal check does not hit Postgres on every page view. Redis
// is a read-through cache over lead_unlocks; Postgres stays the source of
// truth and a miss falls back to it.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Entries expire so a stale grant can never outlive a refund by much even
// if the revoke delete is lost.
const grantTTL = 24 * time.Hour

type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func key(providerID, requestID uuid.UUID) string {
	return fmt.Sprintf("unlock:%s:%s", providerID, requestID)
}

// Grant records that the provider has unlocked the request. Best effort:
// cache failures are returned for logging but must not fail the caller.
func (c *Cache) Grant(ctx context.Context, providerID, requestID uuid.UUID) error {
	return c.rdb.Set(ctx, key(providerID, requestID), "1", grantTTL).Err()
}

// Revoke removes a grant after a refund.
func (c *Cache) Revoke(ctx context.Context, providerID, requestID uuid.UUID) error {
	return c.rdb.Del(ctx, key(providerID, requestID)).Err()
}

// Has reports whether a grant is cached. A false return means "unknown",
// not "denied": callers fall back to the database.
func (c *Cache) Has(ctx context.Context, providerID, requestID uuid.UUID) (bool, error) {
	n, err := c.rdb.Exists(ctx, key(providerID, requestID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
