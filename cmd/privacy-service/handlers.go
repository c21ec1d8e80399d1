package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sahayak-health/platform/pkg/access"
	"github.com/sahayak-health/platform/pkg/audit"
	"github.com/sahayak-health/platform/pkg/common/logger"
	"github.com/sahayak-health/platform/pkg/common/models"
	"github.com/sahayak-health/platform/pkg/gateway/middleware"
	"github.com/sahayak-health/platform/pkg/guardrail"
	"github.com/sahayak-health/platform/pkg/identity"
	"github.com/sahayak-health/platform/pkg/observability/metrics"
	"github.com/sahayak-health/platform/pkg/vault"
)

func (a *PrivacyApp) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	principal, err := a.identity.Authenticate(r.Context(), req.PrincipalID, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "authentication unavailable", http.StatusInternalServerError)
		return
	}

	token, err := a.jwt.IssueToken(principal)
	if err != nil {
		http.Error(w, "authentication unavailable", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, models.LoginResponse{Token: token, Principal: principal})
}

// handleRegister provisions a principal. Admin only; field workers are
// enrolled by their district administrator, not self-service.
func (a *PrivacyApp) handleRegister(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if principal.Role != models.RoleAdmin {
		metrics.IncAccessDenials()
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		ID       string      `json:"id,omitempty"`
		Name     string      `json:"name"`
		Phone    string      `json:"phone,omitempty"`
		Role     models.Role `json:"role"`
		Password string      `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if !req.Role.Valid() || req.Password == "" {
		http.Error(w, "role and password required", http.StatusBadRequest)
		return
	}

	created, err := a.identity.Register(r.Context(), identity.RegisterInput{
		ID:       req.ID,
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     req.Role,
		Password: req.Password,
	})
	if errors.Is(err, identity.ErrPrincipalExists) {
		http.Error(w, "principal already registered", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (a *PrivacyApp) handlePseudonymize(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.PseudonymizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if principal.Role == models.RoleAshaWorker && req.EncounterID != "" {
		if err := a.identity.AssignEncounter(r.Context(), req.EncounterID, principal.ID); err != nil {
			http.Error(w, "ownership assignment failed", http.StatusInternalServerError)
			return
		}
	}

	result, err := a.engine.Pseudonymize(r.Context(), req.Text, req.Entities, principal, req.EncounterID)
	if err != nil {
		// Fail-closed: no partially substituted text is ever returned.
		logger.Log.WithError(err).Error("pseudonymization failed")
		http.Error(w, "pseudonymization failed", http.StatusServiceUnavailable)
		return
	}

	metrics.AddMappingsCreated(int64(result.Created))
	writeJSON(w, http.StatusOK, models.PseudonymizeResponse{
		Document: result.Document,
		Mappings: result.Mappings,
		Skipped:  result.Skipped,
	})
}

func (a *PrivacyApp) handleGuardrailCheck(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		EncounterID string `json:"encounter_id,omitempty"`
		Text        string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	verdict, err := a.gate.Inspect(r.Context(), req.Text, principal, req.EncounterID)
	if errors.Is(err, guardrail.ErrPIILeakDetected) {
		writeJSON(w, http.StatusUnprocessableEntity, models.GuardrailCheckResponse{
			Passed:           false,
			EntityTypesFound: verdict.EntityTypesFound,
		})
		return
	}
	if err != nil {
		http.Error(w, "guardrail check unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, models.GuardrailCheckResponse{Passed: true})
}

func (a *PrivacyApp) handleRehydrate(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.RehydrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.EncounterID == "" || req.Payload == nil {
		http.Error(w, "encounter_id and payload required", http.StatusBadRequest)
		return
	}

	result, err := a.resolver.Rehydrate(r.Context(), req.Payload, principal, req.EncounterID)
	if errors.Is(err, access.ErrForbidden) {
		metrics.IncAccessDenials()
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if err != nil {
		http.Error(w, "rehydration failed", http.StatusServiceUnavailable)
		return
	}

	metrics.AddResolveMisses(int64(result.UnresolvedCount))
	writeJSON(w, http.StatusOK, models.RehydrateResponse{
		Payload:          result.Payload,
		UnresolvedCount:  result.UnresolvedCount,
		UnresolvedTokens: result.UnresolvedTokens,
	})
}

func (a *PrivacyApp) handleResolve(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if !vault.IsPseudonym(req.Pseudonym) {
		http.Error(w, "not a pseudonym token", http.StatusBadRequest)
		return
	}

	mapping, err := a.resolver.ResolveOne(r.Context(), req.Pseudonym, principal, req.EncounterID)
	if errors.Is(err, access.ErrForbidden) {
		metrics.IncAccessDenials()
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if errors.Is(err, vault.ErrMappingNotFound) {
		metrics.IncResolveMisses()
		http.Error(w, "mapping not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "resolve failed", http.StatusServiceUnavailable)
		return
	}

	metrics.IncResolveHits()
	writeJSON(w, http.StatusOK, models.ResolveResponse{
		Pseudonym:     mapping.Pseudonym,
		OriginalValue: mapping.OriginalValue,
		EntityType:    mapping.EntityType,
	})
}

func (a *PrivacyApp) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	encounterID := mux.Vars(r)["encounterID"]
	ownership, err := a.identity.Ownership(r.Context(), encounterID)
	if err != nil {
		http.Error(w, "ownership lookup failed", http.StatusServiceUnavailable)
		return
	}

	resource := access.Resource{EncounterID: encounterID, OwnerID: ownership.OwnerID}
	if access.Authorize(principal, resource, access.ActionReadAudit) == access.Deny {
		if err := a.recorder.Record(r.Context(), models.AuditRecord{
			EncounterID: encounterID,
			ActorID:     principal.ID,
			ActorRole:   principal.Role,
			Action:      audit.ActionAccessDenied,
			Context:     map[string]interface{}{"requested_action": string(access.ActionReadAudit)},
		}); err != nil {
			http.Error(w, "audit unavailable", http.StatusServiceUnavailable)
			return
		}
		metrics.IncAccessDenials()
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	records, err := a.recorder.ListByEncounter(r.Context(), encounterID, 100)
	if err != nil {
		http.Error(w, "audit unavailable", http.StatusServiceUnavailable)
		return
	}

	// Admin reads are logged the same as everyone else's.
	if err := a.recorder.Record(r.Context(), models.AuditRecord{
		EncounterID: encounterID,
		ActorID:     principal.ID,
		ActorRole:   principal.Role,
		Action:      audit.ActionAuditRead,
		Context:     map[string]interface{}{"records_returned": len(records)},
	}); err != nil {
		http.Error(w, "audit unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"encounter_id": encounterID,
		"records":      records,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
