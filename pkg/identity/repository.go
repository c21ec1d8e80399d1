package identity

import (
	"context"
	"errors"
	"time"

	"github.com/sahayak-health/platform/pkg/common/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrPrincipalExists   = errors.New("principal already registered")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type principalModel struct {
	ID           string `gorm:"primaryKey;column:id"`
	Name         string `gorm:"column:name"`
	Phone        string `gorm:"column:phone"`
	Role         string `gorm:"column:role;index"`
	PasswordHash string `gorm:"column:password_hash"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (principalModel) TableName() string { return "principals" }

type ownershipModel struct {
	EncounterID string    `gorm:"primaryKey;column:encounter_id"`
	OwnerID     string    `gorm:"column:owner_id;index"`
	AssignedAt  time.Time `gorm:"column:assigned_at"`
}

func (ownershipModel) TableName() string { return "encounter_ownership" }

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&principalModel{}, &ownershipModel{})
}

type CreatePrincipalInput struct {
	ID           string
	Name         string
	Phone        string
	Role         models.Role
	PasswordHash string
}

func (r *Repository) CreatePrincipal(ctx context.Context, input CreatePrincipalInput) (models.Principal, error) {
	var existing int64
	if err := r.db.WithContext(ctx).Model(&principalModel{}).Where("id = ?", input.ID).Count(&existing).Error; err != nil {
		return models.Principal{}, err
	}
	if existing > 0 {
		return models.Principal{}, ErrPrincipalExists
	}

	row := principalModel{
		ID:           input.ID,
		Name:         input.Name,
		Phone:        input.Phone,
		Role:         string(input.Role),
		PasswordHash: input.PasswordHash,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Principal{}, err
	}

	return mapPrincipal(row), nil
}

func (r *Repository) GetPrincipal(ctx context.Context, id string) (models.Principal, error) {
	var row principalModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Principal{}, ErrPrincipalNotFound
	}
	if err != nil {
		return models.Principal{}, err
	}
	return mapPrincipal(row), nil
}

func (r *Repository) GetPasswordHash(ctx context.Context, id string) (string, error) {
	var row principalModel
	err := r.db.WithContext(ctx).Select("password_hash").Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrPrincipalNotFound
	}
	if err != nil {
		return "", err
	}
	return row.PasswordHash, nil
}

// AssignEncounter records ownership once; a repeated assignment for the
// same encounter is a no-op, ownership never transfers silently.
func (r *Repository) AssignEncounter(ctx context.Context, encounterID, ownerID string) error {
	row := ownershipModel{
		EncounterID: encounterID,
		OwnerID:     ownerID,
		AssignedAt:  time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "encounter_id"}},
		DoNothing: true,
	}).Create(&row).Error
}

// Ownership returns the ownership record for an encounter, or a zero record
// when none exists.
func (r *Repository) Ownership(ctx context.Context, encounterID string) (models.OwnershipRecord, error) {
	var row ownershipModel
	err := r.db.WithContext(ctx).Where("encounter_id = ?", encounterID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.OwnershipRecord{}, nil
	}
	if err != nil {
		return models.OwnershipRecord{}, err
	}
	return models.OwnershipRecord{
		EncounterID: row.EncounterID,
		OwnerID:     row.OwnerID,
		AssignedAt:  row.AssignedAt,
	}, nil
}

// OwnerOf returns the owning principal id, or empty when no record exists.
func (r *Repository) OwnerOf(ctx context.Context, encounterID string) (string, error) {
	record, err := r.Ownership(ctx, encounterID)
	if err != nil {
		return "", err
	}
	return record.OwnerID, nil
}

func mapPrincipal(row principalModel) models.Principal {
	return models.Principal{
		ID:   row.ID,
		Name: row.Name,
		Role: models.Role(row.Role),
	}
}
