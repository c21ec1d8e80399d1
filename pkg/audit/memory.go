package audit

import (
	"context"
	"sync"
	"time"

	"github.com/sahayak-health/platform/pkg/common/models"
)

// MemoryStore keeps audit records in process memory. Used by unit tests and
// local development; the append-only contract is identical to Repository.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	records []models.AuditRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(ctx context.Context, record models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = s.nextID
	record.CreatedAt = time.Now().UTC()
	s.nextID++
	s.records = append(s.records, record)
	return nil
}

func (s *MemoryStore) ListByEncounter(ctx context.Context, encounterID string, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.AuditRecord
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if s.records[i].EncounterID == encounterID {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

// All returns a snapshot of every record, newest last.
func (s *MemoryStore) All() []models.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AuditRecord, len(s.records))
	copy(out, s.records)
	return out
}
