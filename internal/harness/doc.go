// Package harness runs tracking scenarios against the engine.
//
// A scenario loads a catalog, feeds a timeline of inbound events through
// engine.Process and validates the publications and the final activity
// trees. Each run uses a fresh in-memory store; the trace is the store's
// publication log read back in seq order.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: unlock_then_triage
//	description: "What this scenario validates"
//	catalog: ../catalog          # or inline CUE under templates:
//	max_pending: 10              # optional
//	events:
//	  - category: DISCOVERED
//	    observer: obs-a
//	    elapsed_ms: 0
//	    discovery: {urn: urn:rescue-victim, inputs: {victim-id: v1}}
//	  - category: ADDRESSING
//	    observer: obs-a
//	    elapsed_ms: 1000
//	    activity: {urn: urn:unlock-victim, subject: p1, confidence: 1}
//	  - category: ADDRESSING
//	    observer: obs-a
//	    elapsed_ms: -1
//	    activity: {urn: urn:unlock-victim, subject: p1, confidence: 0}
//	    expect_error: NEGATIVE_ELAPSED
//	assertions:
//	  - type: ledger
//	    observer: obs-a
//	    urn: urn:rescue-victim
//	    category: ADDRESSING
//	    expect: {p1: 1}
//	  - type: summary
//	    urn: urn:rescue-victim
//	    active_duration: 15
//
// # Assertion Types
//
//   - trace_contains: a publication matches category, observer, urn and snapshot
//   - trace_order: first publications about the listed urns appear in order
//   - trace_count: exactly count publications match
//   - completion: an activity's completion flag
//   - duration: one of an activity's derived durations, in seconds
//   - ledger: an activity's awareness, preparing or addressing snapshot
//   - summary: the merged activity's team metrics
//   - pending: the number of orphan events an observer still holds
//
// State assertions without an observer are evaluated on the consensus
// tree merged across observers.
//
// # Deterministic Testing
//
// Instance ids come from testutil.SequenceIDs ("jag-1", "jag-2", ...;
// merged trees use "merged-N") and seqs from the engine's logical clock,
// so identical scenarios produce identical traces for golden comparison.
package harness
