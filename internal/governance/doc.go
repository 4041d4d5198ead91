// Package governance implements the API change validation pipeline.
//
// A run threads a State record through four fixed stages:
//
//	Detect   → compare two versions of a file and extract the changed endpoint
//	Retrieve → look up governance policies relevant to the change summary
//	Validate → judge the changed code against each policy, one verdict per policy
//	Report   → compile the verdicts into a markdown report
//
// Every stage returns a new State; none mutates its input. Failures are recorded
// in State.Err rather than returned, so a run always reaches PhaseDone with a
// report, falling back to placeholder text when upstream stages degraded.
//
// The stage order is fixed. There is no configurable graph.
package governance
