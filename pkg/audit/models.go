package audit

// Action tags recorded on audit rows. Every mapping creation, resolution
// attempt, guardrail block and authorization denial produces exactly one row.
const (
	ActionMappingCreate  = "mapping_create"
	ActionResolveHit     = "resolve_hit"
	ActionResolveMiss    = "resolve_miss"
	ActionGuardrailBlock = "guardrail_block"
	ActionAccessDenied   = "access_denied"
	ActionAuditRead      = "audit_read"
)
