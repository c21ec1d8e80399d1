package guardrail

import (
	"context"
	"time"

	"github.com/sahayak-health/platform/pkg/common/logger"
	"github.com/sahayak-health/platform/pkg/common/models"
	"github.com/sony/gobreaker"
)

// BreakerChecker shields a remote checker with a circuit breaker. An open
// circuit surfaces as an error, which the gate treats as fail-closed; it is
// never converted into a pass.
type BreakerChecker struct {
	inner   Checker
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerChecker(inner Checker) *BreakerChecker {
	settings := gobreaker.Settings{
		Name:        "guardrail-checker",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Guardrail breaker state change")
		},
	}

	return &BreakerChecker{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerChecker) Check(ctx context.Context, text string) (models.GuardrailVerdict, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Check(ctx, text)
	})
	if err != nil {
		return models.GuardrailVerdict{}, err
	}
	return result.(models.GuardrailVerdict), nil
}
