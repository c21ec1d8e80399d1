package guardrail

import (
	"context"
	"errors"
	"fmt"

	"github.com/sahayak-health/platform/pkg/audit"
	"github.com/sahayak-health/platform/pkg/common/logger"
	"github.com/sahayak-health/platform/pkg/common/models"
)

var (
	// ErrPIILeakDetected is a deterministic policy decision; callers must
	// never retry the identical request.
	ErrPIILeakDetected = errors.New("guardrail blocked: identifying text detected")

	// ErrCheckUnavailable means no verdict could be obtained. Fail-closed:
	// the downstream model is not invoked.
	ErrCheckUnavailable = errors.New("guardrail check unavailable")
)

// AuditSink is what the gate needs from the audit log.
type AuditSink interface {
	Record(ctx context.Context, record models.AuditRecord) error
}

// Gate runs strictly after pseudonymization and strictly before model
// invocation. There is no bypass path.
type Gate struct {
	checker Checker
	audits  AuditSink
}

func NewGate(checker Checker, audits AuditSink) *Gate {
	return &Gate{checker: checker, audits: audits}
}

// Inspect obtains the verdict for a pseudonymized text. A block writes one
// audit record with counts and types only, then surfaces ErrPIILeakDetected.
// A checker failure surfaces ErrCheckUnavailable; in both cases the caller
// must not invoke the model.
func (g *Gate) Inspect(ctx context.Context, text string, actor models.Principal, encounterID string) (models.GuardrailVerdict, error) {
	verdict, err := g.checker.Check(ctx, text)
	if err != nil {
		return models.GuardrailVerdict{}, fmt.Errorf("%w: %v", ErrCheckUnavailable, err)
	}

	if !verdict.Blocked {
		return verdict, nil
	}

	logger.Log.WithFields(map[string]interface{}{
		"encounter_id": encounterID,
		"types_found":  len(verdict.EntityTypesFound),
	}).Warn("Guardrail blocked request")

	if err := g.audits.Record(ctx, models.AuditRecord{
		EncounterID: encounterID,
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		Action:      audit.ActionGuardrailBlock,
		Context: map[string]interface{}{
			"entity_types_found": verdict.EntityTypesFound,
			"types_count":        len(verdict.EntityTypesFound),
		},
	}); err != nil {
		return models.GuardrailVerdict{}, err
	}

	return verdict, ErrPIILeakDetected
}
