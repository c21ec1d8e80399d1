package audit

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sahayak-health/platform/pkg/common/logger"
	"github.com/sahayak-health/platform/pkg/common/models"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

var testPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   time.Millisecond,
	MaxDelay:    5 * time.Millisecond,
}

type flakyStore struct {
	mu       sync.Mutex
	failures int
	attempts int
	inner    *MemoryStore
}

func (s *flakyStore) Append(ctx context.Context, record models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failures {
		return errors.New("store down")
	}
	return s.inner.Append(ctx, record)
}

func (s *flakyStore) ListByEncounter(ctx context.Context, encounterID string, limit int) ([]models.AuditRecord, error) {
	return s.inner.ListByEncounter(ctx, encounterID, limit)
}

func TestRecordRetriesTransientFailure(t *testing.T) {
	store := &flakyStore{failures: 2, inner: NewMemoryStore()}
	recorder := NewRecorder(store, testPolicy)

	err := recorder.Record(context.Background(), models.AuditRecord{
		EncounterID: "enc-1",
		ActorID:     "asha-1",
		Action:      ActionMappingCreate,
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if store.attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", store.attempts)
	}
	if got := len(store.inner.All()); got != 1 {
		t.Errorf("expected exactly 1 committed record, got %d", got)
	}
}

func TestRecordExhaustsRetryBudget(t *testing.T) {
	store := &flakyStore{failures: 100, inner: NewMemoryStore()}
	recorder := NewRecorder(store, testPolicy)

	err := recorder.Record(context.Background(), models.AuditRecord{Action: ActionResolveHit})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if store.attempts != testPolicy.MaxAttempts {
		t.Errorf("expected %d attempts, got %d", testPolicy.MaxAttempts, store.attempts)
	}
}

func TestRecordHonorsContextCancellation(t *testing.T) {
	store := &flakyStore{failures: 100, inner: NewMemoryStore()}
	recorder := NewRecorder(store, RetryPolicy{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := recorder.Record(ctx, models.AuditRecord{Action: ActionResolveHit})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestListByEncounter(t *testing.T) {
	store := NewMemoryStore()
	recorder := NewRecorder(store, testPolicy)
	ctx := context.Background()

	actions := []string{ActionMappingCreate, ActionResolveHit, ActionGuardrailBlock}
	for _, action := range actions {
		if err := recorder.Record(ctx, models.AuditRecord{EncounterID: "enc-1", Action: action}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := recorder.Record(ctx, models.AuditRecord{EncounterID: "enc-2", Action: ActionResolveMiss}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	records, err := recorder.ListByEncounter(ctx, "enc-1", 10)
	if err != nil {
		t.Fatalf("ListByEncounter failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records for enc-1, got %d", len(records))
	}
	// Newest first.
	if records[0].Action != ActionGuardrailBlock {
		t.Errorf("expected newest record first, got %s", records[0].Action)
	}
	for _, rec := range records {
		if rec.EncounterID != "enc-1" {
			t.Errorf("record from wrong encounter: %+v", rec)
		}
		if rec.ID == 0 || rec.CreatedAt.IsZero() {
			t.Errorf("record missing assigned metadata: %+v", rec)
		}
	}

	limited, err := recorder.ListByEncounter(ctx, "enc-1", 2)
	if err != nil {
		t.Fatalf("ListByEncounter failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected limit applied, got %d records", len(limited))
	}
}

func TestRetryPolicyDelayBounded(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 8, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}

	for attempt := 0; attempt < 20; attempt++ {
		d := policy.delay(attempt)
		if d < 0 || d > policy.MaxDelay {
			t.Fatalf("attempt %d: delay %v outside [0, %v]", attempt, d, policy.MaxDelay)
		}
	}
}
