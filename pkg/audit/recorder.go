package audit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sahayak-health/platform/pkg/common/logger"
	"github.com/sahayak-health/platform/pkg/common/models"
)

// ErrUnavailable means the audit store rejected the append even after the
// retry budget was spent. Callers must treat this as failure of the
// operation that triggered the audit write.
var ErrUnavailable = errors.New("audit store unavailable")

// RetryPolicy is applied only to the idempotent append; attempts are spaced
// by exponential backoff with full jitter, capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	backoff := p.BaseDelay << uint(attempt)
	if backoff <= 0 || backoff > p.MaxDelay {
		backoff = p.MaxDelay
	}
	return time.Duration(rand.Int63n(int64(backoff) + 1))
}

// Recorder writes audit records through a Store, retrying transient
// failures. An operation is not complete until its record is committed.
type Recorder struct {
	store  Store
	policy RetryPolicy
}

func NewRecorder(store Store, policy RetryPolicy) *Recorder {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &Recorder{store: store, policy: policy}
}

func (r *Recorder) Record(ctx context.Context, record models.AuditRecord) error {
	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.policy.delay(attempt - 1)):
			}
		}

		lastErr = r.store.Append(ctx, record)
		if lastErr == nil {
			return nil
		}

		logger.Log.WithError(lastErr).WithFields(map[string]interface{}{
			"action":  record.Action,
			"actor":   record.ActorID,
			"attempt": attempt + 1,
		}).Warn("Audit append failed, retrying")
	}

	logger.Log.WithError(lastErr).WithField("action", record.Action).Error("Audit retry budget exhausted")
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (r *Recorder) ListByEncounter(ctx context.Context, encounterID string, limit int) ([]models.AuditRecord, error) {
	return r.store.ListByEncounter(ctx, encounterID, limit)
}
