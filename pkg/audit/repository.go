package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sahayak-health/platform/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Store is the append-only sink. No update or delete is exposed.
type Store interface {
	Append(ctx context.Context, record models.AuditRecord) error
	ListByEncounter(ctx context.Context, encounterID string, limit int) ([]models.AuditRecord, error)
}

type auditRecordModel struct {
	ID          int64          `gorm:"primaryKey;column:id"`
	EncounterID string         `gorm:"column:encounter_id;index"`
	ActorID     string         `gorm:"column:actor_id;index"`
	ActorRole   string         `gorm:"column:actor_role"`
	Action      string         `gorm:"column:action;index"`
	Context     datatypes.JSON `gorm:"column:context"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
}

func (auditRecordModel) TableName() string { return "audit_records" }

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&auditRecordModel{})
}

func (r *Repository) Append(ctx context.Context, record models.AuditRecord) error {
	var payload datatypes.JSON
	if record.Context != nil {
		data, err := json.Marshal(record.Context)
		if err != nil {
			return err
		}
		payload = datatypes.JSON(data)
	}

	entry := &auditRecordModel{
		EncounterID: record.EncounterID,
		ActorID:     record.ActorID,
		ActorRole:   string(record.ActorRole),
		Action:      record.Action,
		Context:     payload,
		CreatedAt:   time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *Repository) ListByEncounter(ctx context.Context, encounterID string, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []auditRecordModel
	if err := r.db.WithContext(ctx).Where("encounter_id = ?", encounterID).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]models.AuditRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.AuditRecord{
			ID:          row.ID,
			EncounterID: row.EncounterID,
			ActorID:     row.ActorID,
			ActorRole:   models.Role(row.ActorRole),
			Action:      row.Action,
			Context:     jsonMap(row.Context),
			CreatedAt:   row.CreatedAt,
		})
	}
	return records, nil
}

func jsonMap(data datatypes.JSON) map[string]interface{} {
	if len(data) == 0 {
		return nil
	}
	var result map[string]interface{}
	_ = json.Unmarshal(data, &result)
	return result
}
