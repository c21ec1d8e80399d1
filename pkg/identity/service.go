package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sahayak-health/platform/pkg/common/models"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Service is the reference identity and ownership provider: it backs the
// resolvePrincipal and ownerOf collaborator interfaces the privacy core
// consumes.
type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

type RegisterInput struct {
	ID       string
	Name     string
	Phone    string
	Role     models.Role
	Password string
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (models.Principal, error) {
	if !input.Role.Valid() {
		return models.Principal{}, fmt.Errorf("unknown role %q", input.Role)
	}
	if input.Password == "" {
		return models.Principal{}, fmt.Errorf("password required")
	}
	if input.ID == "" {
		input.ID = uuid.New().String()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.Principal{}, err
	}

	return s.repo.CreatePrincipal(ctx, CreatePrincipalInput{
		ID:           strings.TrimSpace(input.ID),
		Name:         strings.TrimSpace(input.Name),
		Phone:        strings.TrimSpace(input.Phone),
		Role:         input.Role,
		PasswordHash: string(hash),
	})
}

func (s *Service) Authenticate(ctx context.Context, principalID, password string) (models.Principal, error) {
	if password == "" {
		return models.Principal{}, ErrInvalidCredentials
	}

	principal, err := s.repo.GetPrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return models.Principal{}, ErrInvalidCredentials
		}
		return models.Principal{}, err
	}

	hash, err := s.repo.GetPasswordHash(ctx, principal.ID)
	if err != nil {
		return models.Principal{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return models.Principal{}, ErrInvalidCredentials
	}

	return principal, nil
}

func (s *Service) ResolvePrincipal(ctx context.Context, id string) (models.Principal, error) {
	return s.repo.GetPrincipal(ctx, id)
}

func (s *Service) AssignEncounter(ctx context.Context, encounterID, ownerID string) error {
	if encounterID == "" || ownerID == "" {
		return fmt.Errorf("encounter id and owner id required")
	}
	return s.repo.AssignEncounter(ctx, encounterID, ownerID)
}

// OwnerOf satisfies the rehydration resolver's OwnershipProvider.
func (s *Service) OwnerOf(ctx context.Context, encounterID string) (string, error) {
	return s.repo.OwnerOf(ctx, encounterID)
}

func (s *Service) Ownership(ctx context.Context, encounterID string) (models.OwnershipRecord, error) {
	return s.repo.Ownership(ctx, encounterID)
}
