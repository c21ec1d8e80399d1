package guardrail

import (
	"context"
	"regexp"
	"sort"

	"github.com/sahayak-health/platform/pkg/common/models"
)

// Checker produces a verdict for one pseudonymized text. Implementations:
// RegexChecker (local rules), HTTPChecker (managed service), BreakerChecker
// (decorator). The gate treats them identically.
type Checker interface {
	Check(ctx context.Context, text string) (models.GuardrailVerdict, error)
}

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// RegexChecker scans for raw identifier patterns that survived
// pseudonymization. It reports types and counts, never the matched values.
type RegexChecker struct {
	rules []compiledRule
}

func NewRegexChecker(cfg RulesConfig) (*RegexChecker, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &RegexChecker{rules: compiled}, nil
}

func (c *RegexChecker) Check(ctx context.Context, text string) (models.GuardrailVerdict, error) {
	found := make(map[string]struct{})
	for _, rule := range c.rules {
		if rule.re.MatchString(text) {
			found[rule.rule.Type] = struct{}{}
		}
	}

	if len(found) == 0 {
		return models.GuardrailVerdict{}, nil
	}

	types := make([]string, 0, len(found))
	for t := range found {
		types = append(types, t)
	}
	sort.Strings(types)

	return models.GuardrailVerdict{Blocked: true, EntityTypesFound: types}, nil
}
