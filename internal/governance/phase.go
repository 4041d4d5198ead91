package governance

// Phase identifies a pipeline stage.
type Phase string

const (
	// PhaseDetect extracts the changed code and summarizes it.
	PhaseDetect Phase = "detect"

	// PhaseRetrieve fetches policies relevant to the change summary.
	PhaseRetrieve Phase = "retrieve"

	// PhaseValidate checks the changed code against each policy.
	PhaseValidate Phase = "validate"

	// PhaseReport compiles verdicts into the final report.
	PhaseReport Phase = "report"

	// PhaseDone is the terminal phase. It is always reached.
	PhaseDone Phase = "done"
)

// AllPhases returns all phases in execution order.
func AllPhases() []Phase {
	return []Phase{PhaseDetect, PhaseRetrieve, PhaseValidate, PhaseReport, PhaseDone}
}

// StageStatus describes a stage's progress.
type StageStatus string

const (
	StatusInProgress StageStatus = "in_progress"
	StatusCompleted  StageStatus = "completed"
	StatusDegraded   StageStatus = "degraded"
)

// Progress reports pipeline progress.
type Progress struct {
	RunID      string      `json:"run_id,omitempty"`
	Phase      Phase       `json:"phase"`
	Status     StageStatus `json:"status"`
	Message    string      `json:"message"`
	Percentage int         `json:"percentage"`
}

// ProgressCallback receives progress updates during a run.
type ProgressCallback func(Progress)
