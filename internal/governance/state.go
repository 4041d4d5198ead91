package governance

import "slices"

const (
	// NoChangesSentinel is the change summary recorded when the two versions are identical.
	NoChangesSentinel = "No changes detected."

	// NoDocumentsVerdict is the single verdict produced when no policy was retrieved.
	NoDocumentsVerdict = "No relevant governance documents found to validate against."

	// NoValidationReport is the report produced when there are no verdicts to compile.
	NoValidationReport = "No validation was performed."

	// NoReportPlaceholder fills the report when upstream stages failed.
	NoReportPlaceholder = "No report was generated."

	// DefaultSummary replaces a change summary missing from the detector response.
	DefaultSummary = "No summary provided."
)

// State is the context record threaded through the pipeline.
//
// Stages never modify a State in place; the With methods return copies whose
// slices are not shared with the receiver.
type State struct {
	RunID  string `json:"run_id,omitempty"`
	Source string `json:"source,omitempty"`

	OldCode string `json:"old_code"`
	NewCode string `json:"new_code"`

	// ChangedFragment is empty when no change was detected.
	ChangedFragment string `json:"changed_fragment"`
	// ChangeSummary is the retrieval query.
	ChangeSummary string `json:"change_summary"`

	RetrievedPolicies []string `json:"retrieved_policies"`
	// Verdicts align index-for-index with RetrievedPolicies, or hold the single
	// NoDocumentsVerdict.
	Verdicts []string `json:"verdicts"`

	Report string `json:"report"`

	// Phase is the last phase completed.
	Phase Phase `json:"phase,omitempty"`

	// Err is the first failure recorded by any stage.
	Err *StageError `json:"error,omitempty"`
}

// NewState creates the initial state for a pair of file versions.
func NewState(oldCode, newCode string) State {
	return State{
		OldCode:           oldCode,
		NewCode:           newCode,
		RetrievedPolicies: []string{},
		Verdicts:          []string{},
	}
}

// Unchanged reports whether the detector found no change.
func (s State) Unchanged() bool {
	return s.ChangeSummary == NoChangesSentinel
}

// Failed reports whether any stage recorded an error.
func (s State) Failed() bool {
	return s.Err != nil
}

// clone returns a copy with independent slices.
func (s State) clone() State {
	s.RetrievedPolicies = slices.Clone(s.RetrievedPolicies)
	s.Verdicts = slices.Clone(s.Verdicts)
	if s.Err != nil {
		e := *s.Err
		s.Err = &e
	}
	return s
}

// WithDetection records the detector's output.
func (s State) WithDetection(d Detection) State {
	out := s.clone()
	out.ChangedFragment = d.Fragment
	out.ChangeSummary = d.Summary
	return out
}

// WithPolicies records retrieved policy texts.
func (s State) WithPolicies(policies []string) State {
	out := s.clone()
	out.RetrievedPolicies = slices.Clone(policies)
	if out.RetrievedPolicies == nil {
		out.RetrievedPolicies = []string{}
	}
	return out
}

// WithVerdicts records validation verdicts.
func (s State) WithVerdicts(verdicts []string) State {
	out := s.clone()
	out.Verdicts = slices.Clone(verdicts)
	if out.Verdicts == nil {
		out.Verdicts = []string{}
	}
	return out
}

// WithReport records the compiled report.
func (s State) WithReport(report string) State {
	out := s.clone()
	out.Report = report
	return out
}

// WithPhase records the last completed phase.
func (s State) WithPhase(p Phase) State {
	out := s.clone()
	out.Phase = p
	return out
}

// WithError records err unless an earlier error is already present.
func (s State) WithError(err *StageError) State {
	out := s.clone()
	if out.Err == nil && err != nil {
		e := *err
		out.Err = &e
	}
	return out
}
