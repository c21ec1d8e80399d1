package vault

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sahayak-health/platform/pkg/audit"
	"github.com/sahayak-health/platform/pkg/common/models"
)

// fakeRedis is a map-backed RedisClient.
type fakeRedis struct {
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case string:
		f.data[key] = v
	case []byte:
		f.data[key] = string(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// countingStore counts how often the inner store is consulted.
type countingStore struct {
	inner        Store
	getOrCreates int
	exists       int
}

func (s *countingStore) GetOrCreate(ctx context.Context, value string, entityType models.EntityType, actor models.Principal, encounterID string) (models.PseudonymMapping, bool, error) {
	s.getOrCreates++
	return s.inner.GetOrCreate(ctx, value, entityType, actor, encounterID)
}

func (s *countingStore) Resolve(ctx context.Context, pseudonym string, actor models.Principal, encounterID string) (models.PseudonymMapping, error) {
	return s.inner.Resolve(ctx, pseudonym, actor, encounterID)
}

func (s *countingStore) Exists(ctx context.Context, pseudonym string) (bool, error) {
	s.exists++
	return s.inner.Exists(ctx, pseudonym)
}

func newCachedTestStore() (*CachedStore, *countingStore) {
	sink := audit.NewMemoryStore()
	counting := &countingStore{inner: NewMemoryStore(audit.NewRecorder(sink, audit.DefaultRetryPolicy()))}
	return NewCachedStore(counting, newFakeRedis(), time.Minute), counting
}

func TestCachedGetOrCreateWarmHit(t *testing.T) {
	cached, counting := newCachedTestStore()
	ctx := context.Background()

	first, created, err := cached.GetOrCreate(ctx, "Ramesh Kumar", models.EntityPerson, asha, "enc-1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected the cold call to create a mapping")
	}

	second, created, err := cached.GetOrCreate(ctx, "Ramesh Kumar", models.EntityPerson, asha, "enc-1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected the warm call to reuse the mapping")
	}
	if counting.getOrCreates != 1 {
		t.Errorf("expected the warm call to be served from the cache, inner store consulted %d times", counting.getOrCreates)
	}

	// The warm response carries the same creation metadata as the cold one.
	if second.Pseudonym != first.Pseudonym {
		t.Errorf("expected %s, got %s", first.Pseudonym, second.Pseudonym)
	}
	if second.OriginalValue != first.OriginalValue {
		t.Errorf("expected original value %q, got %q", first.OriginalValue, second.OriginalValue)
	}
	if second.EntityType != first.EntityType {
		t.Errorf("expected entity type %s, got %s", first.EntityType, second.EntityType)
	}
	if second.CreatedBy != asha.ID {
		t.Errorf("expected created_by %q, got %q", asha.ID, second.CreatedBy)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestCachedGetOrCreateNormalizedKey(t *testing.T) {
	cached, counting := newCachedTestStore()
	ctx := context.Background()

	first, _, err := cached.GetOrCreate(ctx, "Ramesh Kumar", models.EntityPerson, asha, "enc-1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	// Variant spellings of the same value hit the same cache entry.
	second, created, err := cached.GetOrCreate(ctx, "  ramesh kumar ", models.EntityPerson, asha, "enc-1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if created || second.Pseudonym != first.Pseudonym {
		t.Errorf("expected cached reuse of %s, got %s (created=%v)", first.Pseudonym, second.Pseudonym, created)
	}
	if counting.getOrCreates != 1 {
		t.Errorf("inner store consulted %d times, expected 1", counting.getOrCreates)
	}
}

func TestCachedExists(t *testing.T) {
	cached, counting := newCachedTestStore()
	ctx := context.Background()

	mapping, _, err := cached.GetOrCreate(ctx, "Shanti", models.EntityPerson, asha, "enc-1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	ok, err := cached.Exists(ctx, mapping.Pseudonym)
	if err != nil || !ok {
		t.Errorf("expected existing pseudonym, got ok=%v err=%v", ok, err)
	}
	if counting.exists != 0 {
		t.Errorf("expected the existence check to be served from the cache, inner store consulted %d times", counting.exists)
	}

	ok, err = cached.Exists(ctx, NewPseudonym())
	if err != nil || ok {
		t.Errorf("expected unknown pseudonym, got ok=%v err=%v", ok, err)
	}
	if counting.exists != 1 {
		t.Errorf("expected the unknown pseudonym to fall through to the inner store, consulted %d times", counting.exists)
	}
}
