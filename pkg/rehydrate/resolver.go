package rehydrate

import (
	"context"
	"errors"
	"sort"

	"github.com/sahayak-health/platform/pkg/access"
	"github.com/sahayak-health/platform/pkg/audit"
	"github.com/sahayak-health/platform/pkg/common/logger"
	"github.com/sahayak-health/platform/pkg/common/models"
	"github.com/sahayak-health/platform/pkg/vault"
)

// OwnershipProvider answers who owns an encounter. An empty owner with a
// nil error means no ownership record exists (which denies AshaWorkers);
// an error means the lookup itself failed.
type OwnershipProvider interface {
	OwnerOf(ctx context.Context, encounterID string) (string, error)
}

// AuditSink is what the resolver needs from the audit log.
type AuditSink interface {
	Record(ctx context.Context, record models.AuditRecord) error
}

// Resolver rehydrates structured payloads for authorized principals.
// Authorization happens before any vault access; a denial returns zero data.
type Resolver struct {
	vault     vault.Store
	ownership OwnershipProvider
	audits    AuditSink
}

func NewResolver(store vault.Store, ownership OwnershipProvider, audits AuditSink) *Resolver {
	return &Resolver{vault: store, ownership: ownership, audits: audits}
}

type Result struct {
	Payload          map[string]interface{}
	UnresolvedCount  int
	UnresolvedTokens []string
}

func (r *Resolver) Rehydrate(ctx context.Context, payload map[string]interface{}, principal models.Principal, encounterID string) (Result, error) {
	resource, err := r.resourceFor(ctx, encounterID)
	if err != nil {
		return Result{}, err
	}

	if err := r.authorize(ctx, principal, resource, access.ActionResolvePII); err != nil {
		return Result{}, err
	}

	tokens := collectTokens(payload)
	resolved := make(map[string]string, len(tokens))
	var unresolved []string

	for _, token := range tokens {
		mapping, err := r.vault.Resolve(ctx, token, principal, encounterID)
		if errors.Is(err, vault.ErrMappingNotFound) {
			// Stale mapping: leave the token in place, flag the field,
			// keep going. Never fabricate a value.
			unresolved = append(unresolved, token)
			continue
		}
		if err != nil {
			return Result{}, err
		}
		resolved[token] = mapping.OriginalValue
	}

	out, _ := substituteValue(payload, resolved).(map[string]interface{})

	if len(unresolved) > 0 {
		logger.Log.WithFields(map[string]interface{}{
			"encounter_id": encounterID,
			"unresolved":   len(unresolved),
		}).Warn("Rehydration left stale pseudonyms in place")
	}

	return Result{
		Payload:          out,
		UnresolvedCount:  len(unresolved),
		UnresolvedTokens: unresolved,
	}, nil
}

// ResolveOne resolves a single pseudonym for an authorized principal.
func (r *Resolver) ResolveOne(ctx context.Context, pseudonym string, principal models.Principal, encounterID string) (models.PseudonymMapping, error) {
	resource, err := r.resourceFor(ctx, encounterID)
	if err != nil {
		return models.PseudonymMapping{}, err
	}

	if err := r.authorize(ctx, principal, resource, access.ActionResolvePII); err != nil {
		return models.PseudonymMapping{}, err
	}

	return r.vault.Resolve(ctx, pseudonym, principal, encounterID)
}

func (r *Resolver) resourceFor(ctx context.Context, encounterID string) (access.Resource, error) {
	resource := access.Resource{EncounterID: encounterID}
	if encounterID == "" {
		return resource, nil
	}

	owner, err := r.ownership.OwnerOf(ctx, encounterID)
	if err != nil {
		return access.Resource{}, err
	}
	resource.OwnerID = owner
	return resource, nil
}

// authorize applies the guard and audits every denial exactly once.
func (r *Resolver) authorize(ctx context.Context, principal models.Principal, resource access.Resource, action access.Action) error {
	if access.Authorize(principal, resource, action) == access.Allow {
		return nil
	}

	if err := r.audits.Record(ctx, models.AuditRecord{
		EncounterID: resource.EncounterID,
		ActorID:     principal.ID,
		ActorRole:   principal.Role,
		Action:      audit.ActionAccessDenied,
		Context:     map[string]interface{}{"requested_action": string(action)},
	}); err != nil {
		return err
	}

	return access.ErrForbidden
}

// collectTokens walks the payload and returns each distinct pseudonym once,
// in first-seen order.
func collectTokens(payload map[string]interface{}) []string {
	seen := make(map[string]int)
	order := 0

	var walk func(value interface{})
	walk = func(value interface{}) {
		switch v := value.(type) {
		case string:
			for _, token := range vault.TokenPattern.FindAllString(v, -1) {
				if _, ok := seen[token]; !ok {
					seen[token] = order
					order++
				}
			}
		case map[string]interface{}:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(v[k])
			}
		case []interface{}:
			for _, nested := range v {
				walk(nested)
			}
		}
	}
	walk(payload)

	tokens := make([]string, len(seen))
	for token, idx := range seen {
		tokens[idx] = token
	}
	return tokens
}

// substituteValue rebuilds the payload with resolved tokens replaced;
// unresolved tokens pass through untouched. The input is never mutated.
func substituteValue(value interface{}, resolved map[string]string) interface{} {
	switch v := value.(type) {
	case string:
		return vault.TokenPattern.ReplaceAllStringFunc(v, func(token string) string {
			if original, ok := resolved[token]; ok {
				return original
			}
			return token
		})
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, nested := range v {
			out[k] = substituteValue(nested, resolved)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, nested := range v {
			out[i] = substituteValue(nested, resolved)
		}
		return out
	default:
		return value
	}
}
