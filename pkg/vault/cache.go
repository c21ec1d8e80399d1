package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sahayak-health/platform/pkg/common/logger"
	"github.com/sahayak-health/platform/pkg/common/models"
)

// RedisClient is the subset of the redis API the cache uses; *redis.Client
// satisfies it.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedStore layers a redis read-through cache over another Store. The
// full mapping is cached as JSON, written only after the inner store has
// committed, so warm and cold lookups return identical creation metadata;
// only the access metadata in a cached copy may lag. Resolve always goes
// to the inner store because the metadata bump and the audit record are
// mandatory side effects.
type CachedStore struct {
	inner Store
	rdb   RedisClient
	ttl   time.Duration
}

func NewCachedStore(inner Store, rdb RedisClient, ttl time.Duration) *CachedStore {
	return &CachedStore{inner: inner, rdb: rdb, ttl: ttl}
}

func keyCacheKey(hash string, entityType models.EntityType) string {
	return fmt.Sprintf("vault:key:%s:%s", entityType, hash)
}

func pseudonymCacheKey(pseudonym string) string {
	return "vault:p:" + pseudonym
}

func (c *CachedStore) GetOrCreate(ctx context.Context, value string, entityType models.EntityType, actor models.Principal, encounterID string) (models.PseudonymMapping, bool, error) {
	normalized := Normalize(value)
	if normalized == "" {
		return models.PseudonymMapping{}, false, ErrEmptyValue
	}
	cacheKey := keyCacheKey(KeyHash(normalized), entityType)

	if data, err := c.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
		var cached models.PseudonymMapping
		if json.Unmarshal(data, &cached) == nil && cached.Pseudonym != "" {
			return cached, false, nil
		}
	}

	mapping, created, err := c.inner.GetOrCreate(ctx, value, entityType, actor, encounterID)
	if err != nil {
		return models.PseudonymMapping{}, false, err
	}

	// Best effort; the database remains the source of truth.
	if data, err := json.Marshal(mapping); err == nil {
		if err := c.rdb.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
			logger.Log.WithError(err).Debug("vault cache set failed")
		}
	}
	if err := c.rdb.Set(ctx, pseudonymCacheKey(mapping.Pseudonym), "1", c.ttl).Err(); err != nil {
		logger.Log.WithError(err).Debug("vault cache set failed")
	}

	return mapping, created, nil
}

func (c *CachedStore) Resolve(ctx context.Context, pseudonym string, actor models.Principal, encounterID string) (models.PseudonymMapping, error) {
	return c.inner.Resolve(ctx, pseudonym, actor, encounterID)
}

func (c *CachedStore) Exists(ctx context.Context, pseudonym string) (bool, error) {
	if hit, err := c.rdb.Exists(ctx, pseudonymCacheKey(pseudonym)).Result(); err == nil && hit > 0 {
		return true, nil
	}

	exists, err := c.inner.Exists(ctx, pseudonym)
	if err != nil {
		return false, err
	}
	if exists {
		if err := c.rdb.Set(ctx, pseudonymCacheKey(pseudonym), "1", c.ttl).Err(); err != nil {
			logger.Log.WithError(err).Debug("vault cache set failed")
		}
	}
	return exists, nil
}
