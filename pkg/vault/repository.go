package vault

import (
	"context"
	"errors"
	"time"

	"github.com/sahayak-health/platform/pkg/audit"
	"github.com/sahayak-health/platform/pkg/common/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type mappingModel struct {
	Pseudonym      string     `gorm:"primaryKey;column:pseudonym"`
	ValueHash      string     `gorm:"column:value_hash;uniqueIndex:idx_vault_key"`
	EntityType     string     `gorm:"column:entity_type;uniqueIndex:idx_vault_key"`
	OriginalValue  string     `gorm:"column:original_value"`
	CreatedBy      string     `gorm:"column:created_by"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	AccessedCount  int64      `gorm:"column:accessed_count"`
	LastAccessedAt *time.Time `gorm:"column:last_accessed_at"`
}

func (mappingModel) TableName() string { return "pii_vault" }

// Repository is the postgres-backed Store. Rows are never deleted;
// retention is indefinite by design.
type Repository struct {
	db     *gorm.DB
	audits AuditSink
}

func NewRepository(db *gorm.DB, audits AuditSink) *Repository {
	return &Repository{db: db, audits: audits}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&mappingModel{})
}

// GetOrCreate inserts with ON CONFLICT DO NOTHING on the (value_hash,
// entity_type) key; a losing racer re-reads the winner's row, so exactly
// one mapping ever exists per key.
func (r *Repository) GetOrCreate(ctx context.Context, value string, entityType models.EntityType, actor models.Principal, encounterID string) (models.PseudonymMapping, bool, error) {
	normalized := Normalize(value)
	if normalized == "" {
		return models.PseudonymMapping{}, false, ErrEmptyValue
	}
	hash := KeyHash(normalized)

	if row, err := r.lookupByKey(ctx, hash, entityType); err == nil {
		return mapRow(row), false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PseudonymMapping{}, false, err
	}

	candidate := mappingModel{
		Pseudonym:     NewPseudonym(),
		ValueHash:     hash,
		EntityType:    string(entityType),
		OriginalValue: value,
		CreatedBy:     actor.ID,
		CreatedAt:     time.Now().UTC(),
	}

	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "value_hash"}, {Name: "entity_type"}},
			DoNothing: true,
		}).Create(&candidate)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race; the winner's row already carries its record.
			return nil
		}
		created = true

		// The row and its mapping_create record stand or fall together:
		// audit failure rolls the mapping back.
		return r.audits.Record(ctx, models.AuditRecord{
			EncounterID: encounterID,
			ActorID:     actor.ID,
			ActorRole:   actor.Role,
			Action:      audit.ActionMappingCreate,
			Context: map[string]interface{}{
				"pseudonym":   candidate.Pseudonym,
				"entity_type": string(entityType),
			},
		})
	})
	if err != nil {
		return models.PseudonymMapping{}, false, err
	}

	if !created {
		// Reuse the winner's pseudonym.
		row, err := r.lookupByKey(ctx, hash, entityType)
		if err != nil {
			return models.PseudonymMapping{}, false, err
		}
		return mapRow(row), false, nil
	}

	return mapRow(candidate), true, nil
}

// Resolve looks up the original value, bumps access metadata and writes the
// audit record; the resolution does not count as complete without it.
func (r *Repository) Resolve(ctx context.Context, pseudonym string, actor models.Principal, encounterID string) (models.PseudonymMapping, error) {
	var row mappingModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&mappingModel{}).Where("pseudonym = ?", pseudonym).Updates(map[string]interface{}{
			"accessed_count":   gorm.Expr("accessed_count + 1"),
			"last_accessed_at": time.Now().UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("pseudonym = ?", pseudonym).First(&row).Error; err != nil {
			return err
		}
		// The metadata bump commits with its resolve_hit record or not at all.
		return r.audits.Record(ctx, models.AuditRecord{
			EncounterID: encounterID,
			ActorID:     actor.ID,
			ActorRole:   actor.Role,
			Action:      audit.ActionResolveHit,
			Context:     map[string]interface{}{"pseudonym": pseudonym},
		})
	})

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if auditErr := r.audits.Record(ctx, models.AuditRecord{
			EncounterID: encounterID,
			ActorID:     actor.ID,
			ActorRole:   actor.Role,
			Action:      audit.ActionResolveMiss,
			Context:     map[string]interface{}{"pseudonym": pseudonym},
		}); auditErr != nil {
			return models.PseudonymMapping{}, auditErr
		}
		return models.PseudonymMapping{}, ErrMappingNotFound
	}
	if err != nil {
		return models.PseudonymMapping{}, err
	}

	return mapRow(row), nil
}

func (r *Repository) Exists(ctx context.Context, pseudonym string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&mappingModel{}).Where("pseudonym = ?", pseudonym).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) lookupByKey(ctx context.Context, hash string, entityType models.EntityType) (mappingModel, error) {
	var row mappingModel
	err := r.db.WithContext(ctx).Where("value_hash = ? AND entity_type = ?", hash, string(entityType)).First(&row).Error
	return row, err
}

func mapRow(row mappingModel) models.PseudonymMapping {
	return models.PseudonymMapping{
		Pseudonym:      row.Pseudonym,
		OriginalValue:  row.OriginalValue,
		EntityType:     models.EntityType(row.EntityType),
		CreatedBy:      row.CreatedBy,
		CreatedAt:      row.CreatedAt,
		AccessedCount:  row.AccessedCount,
		LastAccessedAt: row.LastAccessedAt,
	}
}
