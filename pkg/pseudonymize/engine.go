package pseudonymize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sahayak-health/platform/pkg/common/logger"
	"github.com/sahayak-health/platform/pkg/common/models"
	"github.com/sahayak-health/platform/pkg/vault"
)

// Engine replaces detected entity spans with vault pseudonyms. Any vault
// failure aborts the whole document: a partially substituted text never
// leaves this package.
type Engine struct {
	vault vault.Store
}

func NewEngine(store vault.Store) *Engine {
	return &Engine{vault: store}
}

type Result struct {
	Document models.PseudonymizedDocument
	Mappings []models.PseudonymMapping
	Created  int
	Skipped  int
}

func (e *Engine) Pseudonymize(ctx context.Context, text string, entities []models.DetectedEntity, actor models.Principal, encounterID string) (Result, error) {
	spans, skipped := selectSpans(text, entities)

	var (
		builder       strings.Builder
		substitutions []models.Substitution
		mappings      []models.PseudonymMapping
		seen          = make(map[string]struct{})
		cursor        = 0
		createdCount  = 0
	)

	for _, span := range spans {
		raw := text[span.Start:span.End]

		mapping, created, err := e.vault.GetOrCreate(ctx, raw, span.Type, actor, encounterID)
		if err != nil {
			return Result{}, fmt.Errorf("vault write for %s span: %w", span.Type, err)
		}
		if created {
			createdCount++
		}

		builder.WriteString(text[cursor:span.Start])
		start := builder.Len()
		builder.WriteString(mapping.Pseudonym)

		substitutions = append(substitutions, models.Substitution{
			Pseudonym:  mapping.Pseudonym,
			EntityType: span.Type,
			Start:      start,
			End:        builder.Len(),
		})
		if _, ok := seen[mapping.Pseudonym]; !ok {
			seen[mapping.Pseudonym] = struct{}{}
			mappings = append(mappings, mapping)
		}
		cursor = span.End
	}
	builder.WriteString(text[cursor:])

	return Result{
		Document: models.PseudonymizedDocument{
			Text:          builder.String(),
			Substitutions: substitutions,
		},
		Mappings: mappings,
		Created:  createdCount,
		Skipped:  skipped,
	}, nil
}

// selectSpans validates, orders and de-overlaps entity spans. Malformed and
// overlapping spans are skipped and logged; the document still processes.
func selectSpans(text string, entities []models.DetectedEntity) ([]models.DetectedEntity, int) {
	var valid []models.DetectedEntity
	skipped := 0
	for _, ent := range entities {
		if ent.Start < 0 || ent.End > len(text) || ent.Start >= ent.End {
			skipped++
			logger.Log.WithFields(map[string]interface{}{
				"entity_type": ent.Type,
				"start":       ent.Start,
				"end":         ent.End,
			}).Warn("Skipping malformed entity span")
			continue
		}
		valid = append(valid, ent)
	}

	// Ascending start; on shared start keep the longest, then the most
	// confident, in front so containment pruning prefers it.
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		if valid[i].End != valid[j].End {
			return valid[i].End > valid[j].End
		}
		return valid[i].Confidence > valid[j].Confidence
	})

	var kept []models.DetectedEntity
	lastEnd := 0
	for _, ent := range valid {
		if ent.Start >= lastEnd {
			kept = append(kept, ent)
			lastEnd = ent.End
			continue
		}
		skipped++
		if ent.End <= lastEnd {
			// Fully contained in the previously kept span.
			continue
		}
		logger.Log.WithFields(map[string]interface{}{
			"entity_type": ent.Type,
			"start":       ent.Start,
			"end":         ent.End,
		}).Warn("Skipping partially overlapping entity span")
	}

	return kept, skipped
}
