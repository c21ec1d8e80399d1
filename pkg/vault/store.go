package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sahayak-health/platform/pkg/common/models"
)

const TokenPrefix = "PII-"

// TokenPattern recognizes pseudonym tokens embedded anywhere in text.
var TokenPattern = regexp.MustCompile(`PII-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

var (
	ErrMappingNotFound = errors.New("pseudonym mapping not found")
	ErrEmptyValue      = errors.New("cannot pseudonymize empty value")
)

// Store is the durable pseudonym vault. GetOrCreate is idempotent: for one
// (normalized value, entity type) key exactly one row ever exists, and
// concurrent callers converge on the same pseudonym. Resolve increments
// access metadata and writes an audit record as a mandatory side effect.
type Store interface {
	GetOrCreate(ctx context.Context, value string, entityType models.EntityType, actor models.Principal, encounterID string) (models.PseudonymMapping, bool, error)
	Resolve(ctx context.Context, pseudonym string, actor models.Principal, encounterID string) (models.PseudonymMapping, error)
	Exists(ctx context.Context, pseudonym string) (bool, error)
}

// AuditSink is what the vault needs from the audit log.
type AuditSink interface {
	Record(ctx context.Context, record models.AuditRecord) error
}

func NewPseudonym() string {
	return TokenPrefix + uuid.New().String()
}

func IsPseudonym(s string) bool {
	return TokenPattern.MatchString(s) && len(s) == len(TokenPrefix)+36
}

// Normalize is the canonical key form: trimmed and case-folded.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// KeyHash digests the normalized value so the unique index stays small and
// the key column never holds raw PII.
func KeyHash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
