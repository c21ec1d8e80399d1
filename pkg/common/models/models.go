package models

import (
	"time"
)

// Roles form a closed set; authorization is a total function over them.
type Role string

const (
	RoleAshaWorker Role = "asha_worker"
	RoleDoctor     Role = "doctor"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAshaWorker, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

type Principal struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

// EntityType mirrors the detector's taxonomy (Presidio-style).
type EntityType string

const (
	EntityPerson      EntityType = "PERSON"
	EntityLocation    EntityType = "LOCATION"
	EntityPhoneNumber EntityType = "PHONE_NUMBER"
	EntityEmail       EntityType = "EMAIL_ADDRESS"
	EntityDate        EntityType = "DATE_TIME"
	EntityID          EntityType = "ID_NUMBER"
)

// DetectedEntity is produced by the external entity detector; offsets are
// byte offsets into the transcript.
type DetectedEntity struct {
	Text       string     `json:"text"`
	Type       EntityType `json:"entity_type"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Confidence float64    `json:"confidence"`
}

// PseudonymMapping is the vault row: created once, content never mutated,
// only access metadata changes. Mappings are retained indefinitely.
type PseudonymMapping struct {
	Pseudonym      string     `json:"pseudonym"`
	OriginalValue  string     `json:"original_value,omitempty"`
	EntityType     EntityType `json:"entity_type"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	AccessedCount  int64      `json:"accessed_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// Substitution records one applied span replacement, in document order.
type Substitution struct {
	Pseudonym  string     `json:"pseudonym"`
	EntityType EntityType `json:"entity_type"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
}

type PseudonymizedDocument struct {
	Text          string         `json:"text"`
	Substitutions []Substitution `json:"substitutions"`
}

// OwnershipRecord maps an encounter to the AshaWorker who captured it.
type OwnershipRecord struct {
	EncounterID string    `json:"encounter_id"`
	OwnerID     string    `json:"owner_id"`
	AssignedAt  time.Time `json:"assigned_at"`
}

// GuardrailVerdict is the external safety check's answer for one text.
type GuardrailVerdict struct {
	Blocked          bool     `json:"blocked"`
	EntityTypesFound []string `json:"entity_types_found,omitempty"`
}

// AuditRecord is immutable once written; there is no update or delete.
type AuditRecord struct {
	ID          int64                  `json:"id"`
	EncounterID string                 `json:"encounter_id,omitempty"`
	ActorID     string                 `json:"actor_id"`
	ActorRole   Role                   `json:"actor_role,omitempty"`
	Action      string                 `json:"action"`
	Context     map[string]interface{} `json:"context,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// API payloads

type PseudonymizeRequest struct {
	EncounterID string           `json:"encounter_id,omitempty"`
	Text        string           `json:"text"`
	Entities    []DetectedEntity `json:"entities"`
}

type PseudonymizeResponse struct {
	Document PseudonymizedDocument `json:"document"`
	Mappings []PseudonymMapping    `json:"mappings"`
	Skipped  int                   `json:"skipped_spans,omitempty"`
}

type GuardrailCheckResponse struct {
	Passed           bool     `json:"passed"`
	EntityTypesFound []string `json:"entity_types_found,omitempty"`
}

type RehydrateRequest struct {
	EncounterID string                 `json:"encounter_id"`
	Payload     map[string]interface{} `json:"payload"`
}

type RehydrateResponse struct {
	Payload          map[string]interface{} `json:"payload"`
	UnresolvedCount  int                    `json:"unresolved_count"`
	UnresolvedTokens []string               `json:"unresolved_tokens,omitempty"`
}

type ResolveRequest struct {
	Pseudonym   string `json:"pseudonym"`
	EncounterID string `json:"encounter_id,omitempty"`
}

type ResolveResponse struct {
	Pseudonym     string     `json:"pseudonym"`
	OriginalValue string     `json:"original_value"`
	EntityType    EntityType `json:"entity_type"`
}

type LoginRequest struct {
	PrincipalID string `json:"principal_id"`
	Password    string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	Principal Principal `json:"principal"`
}

// Event is the kafka envelope shared by the encounter pipeline.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // transcribed, pseudonymized, structured
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
