package guardrail

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/sahayak-health/platform/pkg/audit"
	"github.com/sahayak-health/platform/pkg/common/logger"
	"github.com/sahayak-health/platform/pkg/common/models"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

var asha = models.Principal{ID: "asha-1", Role: models.RoleAshaWorker}

type stubChecker struct {
	verdict models.GuardrailVerdict
	err     error
}

func (s stubChecker) Check(ctx context.Context, text string) (models.GuardrailVerdict, error) {
	return s.verdict, s.err
}

func TestInspectPass(t *testing.T) {
	sink := audit.NewMemoryStore()
	gate := NewGate(stubChecker{}, audit.NewRecorder(sink, audit.DefaultRetryPolicy()))

	verdict, err := gate.Inspect(context.Background(), "PII-tokens only, BP 140/90", asha, "enc-1")
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if verdict.Blocked {
		t.Error("expected clean verdict")
	}
	if got := len(sink.All()); got != 0 {
		t.Errorf("expected no audit records on pass, got %d", got)
	}
}

func TestInspectBlock(t *testing.T) {
	sink := audit.NewMemoryStore()
	gate := NewGate(stubChecker{verdict: models.GuardrailVerdict{
		Blocked:          true,
		EntityTypesFound: []string{"ID_NUMBER", "PHONE_NUMBER"},
	}}, audit.NewRecorder(sink, audit.DefaultRetryPolicy()))

	verdict, err := gate.Inspect(context.Background(), "call 9876543210", asha, "enc-1")
	if !errors.Is(err, ErrPIILeakDetected) {
		t.Fatalf("expected ErrPIILeakDetected, got %v", err)
	}
	if len(verdict.EntityTypesFound) != 2 {
		t.Errorf("expected verdict carried through, got %v", verdict.EntityTypesFound)
	}

	records := sink.All()
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 audit record, got %d", len(records))
	}
	rec := records[0]
	if rec.Action != audit.ActionGuardrailBlock {
		t.Errorf("expected guardrail_block, got %s", rec.Action)
	}
	if rec.EncounterID != "enc-1" || rec.ActorID != "asha-1" {
		t.Errorf("audit record misattributed: %+v", rec)
	}
	if rec.Context["types_count"] != 2 {
		t.Errorf("expected types_count 2, got %v", rec.Context["types_count"])
	}
	// Counts and types only; never the matched text.
	if _, ok := rec.Context["text"]; ok {
		t.Error("audit record must not carry the inspected text")
	}
}

func TestInspectCheckerFailure(t *testing.T) {
	sink := audit.NewMemoryStore()
	gate := NewGate(stubChecker{err: errors.New("endpoint timeout")}, audit.NewRecorder(sink, audit.DefaultRetryPolicy()))

	_, err := gate.Inspect(context.Background(), "anything", asha, "enc-1")
	if !errors.Is(err, ErrCheckUnavailable) {
		t.Fatalf("expected ErrCheckUnavailable, got %v", err)
	}
	if errors.Is(err, ErrPIILeakDetected) {
		t.Error("checker failure must not look like a leak")
	}
	if got := len(sink.All()); got != 0 {
		t.Errorf("expected no audit records on checker failure, got %d", got)
	}
}

func TestRegexCheckerDefaultRules(t *testing.T) {
	checker, err := NewRegexChecker(DefaultRules())
	if err != nil {
		t.Fatalf("NewRegexChecker failed: %v", err)
	}

	tests := []struct {
		name      string
		text      string
		blocked   bool
		wantTypes []string
	}{
		{
			name:    "clean pseudonymized text",
			text:    "PII-6ba7b810-9dad-11d1-80b4-00c04fd430c8, 34M, BP 140/90",
			blocked: false,
		},
		{
			name:      "aadhaar number",
			text:      "aadhaar 1234 5678 9012 on file",
			blocked:   true,
			wantTypes: []string{"ID_NUMBER"},
		},
		{
			name:      "indian mobile",
			text:      "call +91 9876543210 tomorrow",
			blocked:   true,
			wantTypes: []string{"PHONE_NUMBER"},
		},
		{
			name:      "email address",
			text:      "send report to ramesh@example.com",
			blocked:   true,
			wantTypes: []string{"EMAIL_ADDRESS"},
		},
		{
			name:      "multiple types sorted",
			text:      "ramesh@example.com born 12/03/1990",
			blocked:   true,
			wantTypes: []string{"DATE_TIME", "EMAIL_ADDRESS"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := checker.Check(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}
			if verdict.Blocked != tt.blocked {
				t.Fatalf("blocked = %v, want %v", verdict.Blocked, tt.blocked)
			}
			if len(verdict.EntityTypesFound) != len(tt.wantTypes) {
				t.Fatalf("types = %v, want %v", verdict.EntityTypesFound, tt.wantTypes)
			}
			for i, want := range tt.wantTypes {
				if verdict.EntityTypesFound[i] != want {
					t.Errorf("types[%d] = %s, want %s", i, verdict.EntityTypesFound[i], want)
				}
			}
		})
	}
}

func TestRegexCheckerRejectsBadPattern(t *testing.T) {
	_, err := NewRegexChecker(RulesConfig{Rules: []Rule{
		{Name: "broken", Type: "ID_NUMBER", Pattern: `[unclosed`, Enabled: true},
	}})
	if err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestRegexCheckerSkipsDisabledRules(t *testing.T) {
	checker, err := NewRegexChecker(RulesConfig{Rules: []Rule{
		{Name: "Email", Type: "EMAIL_ADDRESS", Pattern: `@`, Enabled: false},
	}})
	if err != nil {
		t.Fatalf("NewRegexChecker failed: %v", err)
	}

	verdict, err := checker.Check(context.Background(), "ramesh@example.com")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict.Blocked {
		t.Error("disabled rule must not block")
	}
}
