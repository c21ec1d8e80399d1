package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	encountersProcessed atomic.Int64
	encountersBlocked   atomic.Int64
	encountersFailed    atomic.Int64
	mappingsCreated     atomic.Int64
	resolveHits         atomic.Int64
	resolveMisses       atomic.Int64
	accessDenials       atomic.Int64
)

func IncEncountersProcessed() { encountersProcessed.Add(1) }
func IncEncountersBlocked()   { encountersBlocked.Add(1) }
func IncEncountersFailed()    { encountersFailed.Add(1) }
func IncResolveHits()         { resolveHits.Add(1) }
func IncResolveMisses()       { resolveMisses.Add(1) }
func IncAccessDenials()       { accessDenials.Add(1) }

func AddMappingsCreated(n int64) { mappingsCreated.Add(n) }
func AddResolveMisses(n int64)   { resolveMisses.Add(n) }

// WritePrometheus renders the counters in text exposition format.
func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP sahayak_privacy_encounters_processed_total Encounters fully processed through the pipeline.\n")
	fmt.Fprintf(w, "# TYPE sahayak_privacy_encounters_processed_total counter\n")
	fmt.Fprintf(w, "sahayak_privacy_encounters_processed_total %d\n", encountersProcessed.Load())

	fmt.Fprintf(w, "# HELP sahayak_privacy_encounters_blocked_total Encounters stopped by the guardrail gate.\n")
	fmt.Fprintf(w, "# TYPE sahayak_privacy_encounters_blocked_total counter\n")
	fmt.Fprintf(w, "sahayak_privacy_encounters_blocked_total %d\n", encountersBlocked.Load())

	fmt.Fprintf(w, "# HELP sahayak_privacy_encounters_failed_total Encounters that hit a transient failure and will be retried.\n")
	fmt.Fprintf(w, "# TYPE sahayak_privacy_encounters_failed_total counter\n")
	fmt.Fprintf(w, "sahayak_privacy_encounters_failed_total %d\n", encountersFailed.Load())

	fmt.Fprintf(w, "# HELP sahayak_privacy_mappings_created_total New pseudonym mappings written to the vault.\n")
	fmt.Fprintf(w, "# TYPE sahayak_privacy_mappings_created_total counter\n")
	fmt.Fprintf(w, "sahayak_privacy_mappings_created_total %d\n", mappingsCreated.Load())

	fmt.Fprintf(w, "# HELP sahayak_privacy_resolve_hits_total Pseudonym resolutions that found a mapping.\n")
	fmt.Fprintf(w, "# TYPE sahayak_privacy_resolve_hits_total counter\n")
	fmt.Fprintf(w, "sahayak_privacy_resolve_hits_total %d\n", resolveHits.Load())

	fmt.Fprintf(w, "# HELP sahayak_privacy_resolve_misses_total Pseudonym resolutions against unknown tokens.\n")
	fmt.Fprintf(w, "# TYPE sahayak_privacy_resolve_misses_total counter\n")
	fmt.Fprintf(w, "sahayak_privacy_resolve_misses_total %d\n", resolveMisses.Load())

	fmt.Fprintf(w, "# HELP sahayak_privacy_access_denials_total Authorization denials across rehydration and audit reads.\n")
	fmt.Fprintf(w, "# TYPE sahayak_privacy_access_denials_total counter\n")
	fmt.Fprintf(w, "sahayak_privacy_access_denials_total %d\n", accessDenials.Load())
}
