// Package harness runs YAML conformance scenarios against an editing
// session.
//
// A scenario names a starting document, a flow of session operations and a
// list of assertions on the final state. Every applied operation is recorded
// as a TraceEvent carrying the session revision, the allocations touched by
// lineage propagation and the validation codes of every revalidated round.
// The trace is compared against a canonical-JSON golden file, so a change in
// propagation or validation behavior shows up as a golden diff.
//
// Scenario files look like:
//
//	name: acme-exercise
//	description: Acme exercises its super pro-rata right in Series A
//	document: ../documents/acme.json
//	flow:
//	  - op: toggle_exercise
//	    round: 1
//	    holder: Acme
//	    expect:
//	      codes: {1: []}
//	assertions:
//	  - type: allocation
//	    round: 1
//	    holder: Acme
//	    expect: {pro_rata_type: super, pro_rata_percentage: 0.2}
//
// Document paths are resolved relative to the scenario file.
package harness
