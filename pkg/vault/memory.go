package vault

import (
	"context"
	"sync"
	"time"

	"github.com/sahayak-health/platform/pkg/audit"
	"github.com/sahayak-health/platform/pkg/common/models"
)

type memoryKey struct {
	hash       string
	entityType models.EntityType
}

// MemoryStore is the in-process Store used by unit tests and local runs.
// A single mutex serializes each operation end to end, audit write
// included, matching the postgres repository's atomicity guarantee.
type MemoryStore struct {
	mu          sync.Mutex
	byKey       map[memoryKey]string
	byPseudonym map[string]*models.PseudonymMapping
	audits      AuditSink
}

func NewMemoryStore(audits AuditSink) *MemoryStore {
	return &MemoryStore{
		byKey:       make(map[memoryKey]string),
		byPseudonym: make(map[string]*models.PseudonymMapping),
		audits:      audits,
	}
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, value string, entityType models.EntityType, actor models.Principal, encounterID string) (models.PseudonymMapping, bool, error) {
	normalized := Normalize(value)
	if normalized == "" {
		return models.PseudonymMapping{}, false, ErrEmptyValue
	}
	key := memoryKey{hash: KeyHash(normalized), entityType: entityType}

	s.mu.Lock()
	defer s.mu.Unlock()

	if pseudonym, ok := s.byKey[key]; ok {
		return *s.byPseudonym[pseudonym], false, nil
	}

	mapping := &models.PseudonymMapping{
		Pseudonym:     NewPseudonym(),
		OriginalValue: value,
		EntityType:    entityType,
		CreatedBy:     actor.ID,
		CreatedAt:     time.Now().UTC(),
	}

	// The mapping and its mapping_create record stand or fall together:
	// nothing is inserted until the audit write has succeeded.
	if err := s.audits.Record(ctx, models.AuditRecord{
		EncounterID: encounterID,
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		Action:      audit.ActionMappingCreate,
		Context: map[string]interface{}{
			"pseudonym":   mapping.Pseudonym,
			"entity_type": string(entityType),
		},
	}); err != nil {
		return models.PseudonymMapping{}, false, err
	}

	s.byKey[key] = mapping.Pseudonym
	s.byPseudonym[mapping.Pseudonym] = mapping
	return *mapping, true, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, pseudonym string, actor models.Principal, encounterID string) (models.PseudonymMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, ok := s.byPseudonym[pseudonym]

	action := audit.ActionResolveHit
	if !ok {
		action = audit.ActionResolveMiss
	}
	// Audit first; the metadata bump never happens without its record.
	if err := s.audits.Record(ctx, models.AuditRecord{
		EncounterID: encounterID,
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		Action:      action,
		Context:     map[string]interface{}{"pseudonym": pseudonym},
	}); err != nil {
		return models.PseudonymMapping{}, err
	}

	if !ok {
		return models.PseudonymMapping{}, ErrMappingNotFound
	}

	now := time.Now().UTC()
	mapping.AccessedCount++
	mapping.LastAccessedAt = &now
	return *mapping, nil
}

func (s *MemoryStore) Exists(ctx context.Context, pseudonym string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byPseudonym[pseudonym]
	return ok, nil
}

// Len reports the number of mappings; test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byPseudonym)
}
