package access

import (
	"errors"

	"github.com/sahayak-health/platform/pkg/common/models"
)

// ErrForbidden is surfaced to callers on a Deny; no data accompanies it.
var ErrForbidden = errors.New("forbidden")

type Action string

const (
	ActionResolvePII Action = "resolve_pii"
	ActionReadAudit  Action = "read_audit"
)

type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// Resource is the target of an authorization check: an encounter and its
// owning AshaWorker, supplied by the ownership provider.
type Resource struct {
	EncounterID string
	OwnerID     string
}

// Authorize is a total, pure function over the closed role set. There is no
// implicit default-allow: anything not explicitly granted is denied,
// including unknown roles and unknown actions.
func Authorize(principal models.Principal, resource Resource, action Action) Decision {
	switch principal.Role {
	case models.RoleAshaWorker:
		switch action {
		case ActionResolvePII:
			if resource.OwnerID != "" && resource.OwnerID == principal.ID {
				return Allow
			}
			return Deny
		case ActionReadAudit:
			// AshaWorkers never read audit trails, ownership or not.
			return Deny
		}
		return Deny

	case models.RoleDoctor:
		switch action {
		case ActionResolvePII, ActionReadAudit:
			return Allow
		}
		return Deny

	case models.RoleAdmin:
		switch action {
		case ActionResolvePII, ActionReadAudit:
			return Allow
		}
		return Deny
	}

	return Deny
}
