package access

import (
	"testing"

	"github.com/sahayak-health/platform/pkg/common/models"
)

func TestAuthorize(t *testing.T) {
	owned := Resource{EncounterID: "enc-1", OwnerID: "asha-1"}
	foreign := Resource{EncounterID: "enc-2", OwnerID: "asha-2"}
	unowned := Resource{EncounterID: "enc-3"}

	ashaOne := models.Principal{ID: "asha-1", Role: models.RoleAshaWorker}
	doctor := models.Principal{ID: "doc-1", Role: models.RoleDoctor}
	admin := models.Principal{ID: "adm-1", Role: models.RoleAdmin}

	tests := []struct {
		name      string
		principal models.Principal
		resource  Resource
		action    Action
		want      Decision
	}{
		{"asha resolves own encounter", ashaOne, owned, ActionResolvePII, Allow},
		{"asha resolves foreign encounter", ashaOne, foreign, ActionResolvePII, Deny},
		{"asha resolves unowned encounter", ashaOne, unowned, ActionResolvePII, Deny},
		{"asha reads audit of own encounter", ashaOne, owned, ActionReadAudit, Deny},
		{"asha reads audit of foreign encounter", ashaOne, foreign, ActionReadAudit, Deny},
		{"asha unknown action", ashaOne, owned, Action("export"), Deny},

		{"doctor resolves any encounter", doctor, foreign, ActionResolvePII, Allow},
		{"doctor resolves unowned encounter", doctor, unowned, ActionResolvePII, Allow},
		{"doctor reads audit", doctor, foreign, ActionReadAudit, Allow},
		{"doctor unknown action", doctor, foreign, Action("export"), Deny},

		{"admin resolves any encounter", admin, foreign, ActionResolvePII, Allow},
		{"admin reads audit", admin, unowned, ActionReadAudit, Allow},
		{"admin unknown action", admin, owned, Action("export"), Deny},

		{"unknown role", models.Principal{ID: "x", Role: models.Role("intern")}, owned, ActionResolvePII, Deny},
		{"empty role", models.Principal{ID: "x"}, owned, ActionResolvePII, Deny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Authorize(tt.principal, tt.resource, tt.action); got != tt.want {
				t.Errorf("Authorize(%s, %s, %s) = %s, want %s",
					tt.principal.Role, tt.resource.EncounterID, tt.action, got, tt.want)
			}
		})
	}
}

func TestAuthorizeOwnershipRequiresMatch(t *testing.T) {
	// An empty owner never matches, even against an empty principal ID.
	anonymous := models.Principal{Role: models.RoleAshaWorker}
	if got := Authorize(anonymous, Resource{EncounterID: "enc-1"}, ActionResolvePII); got != Deny {
		t.Errorf("empty owner vs empty principal: got %s, want deny", got)
	}
}
