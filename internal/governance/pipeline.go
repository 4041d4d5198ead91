package governance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apigov/internal/logging"
)

// DefaultStageTimeout bounds each stage.
const DefaultStageTimeout = 5 * time.Minute

var tracer = otel.Tracer("github.com/fyrsmithlabs/apigov/internal/governance")

// StageFunc transforms the state for one phase.
type StageFunc func(ctx context.Context, s State) State

// Stage binds a phase to its implementation.
type Stage struct {
	Phase Phase
	Run   StageFunc
}

// Config tunes a Pipeline.
type Config struct {
	TopK                  int
	ValidationConcurrency int
	StageTimeout          time.Duration
	// Redactor masks secrets before code is sent to the generator. Optional.
	Redactor Redactor
	Logger   *logging.Logger
}

// Pipeline runs the Detect, Retrieve, Validate and Report stages in order.
type Pipeline struct {
	stages       []Stage
	stageTimeout time.Duration
	logger       *logging.Logger
	progress     ProgressCallback
}

// New creates a pipeline over a text generator and a policy index.
func New(gen TextGenerator, index SemanticIndex, cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := cfg.StageTimeout
	if timeout <= 0 {
		timeout = DefaultStageTimeout
	}

	return &Pipeline{
		stages: []Stage{
			{Phase: PhaseDetect, Run: NewDetector(gen, cfg.Redactor, logger).Run},
			{Phase: PhaseRetrieve, Run: NewRetriever(index, cfg.TopK, logger).Run},
			{Phase: PhaseValidate, Run: NewValidator(gen, cfg.ValidationConcurrency, logger).Run},
			{Phase: PhaseReport, Run: NewCompiler(gen, logger).Run},
		},
		stageTimeout: timeout,
		logger:       logger.Named("pipeline"),
	}
}

// OnProgress sets the progress callback.
func (p *Pipeline) OnProgress(cb ProgressCallback) {
	p.progress = cb
}

// Run validates a change from oldCode to newCode.
func (p *Pipeline) Run(ctx context.Context, oldCode, newCode string) (State, error) {
	return p.Execute(ctx, NewState(oldCode, newCode))
}

// Execute folds the initial state through every stage. The only error returned
// is ctx's, when it is already done before the first stage; stage failures are
// recorded on the returned State instead.
func (p *Pipeline) Execute(ctx context.Context, initial State) (State, error) {
	if err := ctx.Err(); err != nil {
		return initial, err
	}

	if initial.RunID != "" {
		ctx = logging.WithRunID(ctx, initial.RunID)
	}
	if initial.Source != "" {
		ctx = logging.WithSource(ctx, initial.Source)
	}

	ctx, span := tracer.Start(ctx, "governance.Pipeline")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", initial.RunID), attribute.String("source", initial.Source))

	state := initial.clone()
	total := len(p.stages)
	for i, st := range p.stages {
		p.report(Progress{
			RunID:      state.RunID,
			Phase:      st.Phase,
			Status:     StatusInProgress,
			Message:    fmt.Sprintf("Starting stage: %s", st.Phase),
			Percentage: (i * 100) / total,
		})

		hadErr := state.Failed()
		state = p.runStage(ctx, st, state)

		status := StatusCompleted
		msg := fmt.Sprintf("Completed stage: %s", st.Phase)
		if !hadErr && state.Failed() {
			status = StatusDegraded
			msg = fmt.Sprintf("Stage %s degraded: %s", st.Phase, state.Err.Message)
		}
		p.report(Progress{
			RunID:      state.RunID,
			Phase:      st.Phase,
			Status:     status,
			Message:    msg,
			Percentage: ((i + 1) * 100) / total,
		})
	}

	if state.Report == "" {
		if state.Unchanged() {
			state = state.WithReport(NoChangesSentinel)
		} else {
			state = state.WithReport(NoReportPlaceholder)
		}
	}
	state = state.WithPhase(PhaseDone)

	outcome := "ok"
	switch {
	case state.Failed():
		outcome = "degraded"
		span.SetStatus(codes.Error, state.Err.Message)
		p.logger.Warn(ctx, "pipeline completed with error",
			zap.String("stage", string(state.Err.Stage)),
			zap.String("kind", string(state.Err.Kind)),
			zap.String("error", state.Err.Message))
	case state.Unchanged():
		outcome = "unchanged"
		p.logger.Info(ctx, "pipeline completed, no changes")
	default:
		p.logger.Info(ctx, "pipeline completed", zap.Int("verdicts", len(state.Verdicts)))
	}
	RunsTotal.WithLabelValues(outcome).Inc()

	p.report(Progress{
		RunID:      state.RunID,
		Phase:      PhaseDone,
		Status:     StatusCompleted,
		Message:    "Pipeline complete",
		Percentage: 100,
	})
	return state, nil
}

// runStage runs one stage under its own deadline, converting panics and
// deadline overruns into stage errors.
func (p *Pipeline) runStage(parent context.Context, st Stage, in State) (out State) {
	ctx, cancel := context.WithTimeout(parent, p.stageTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "governance."+string(st.Phase))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "stage panicked", zap.String("stage", string(st.Phase)), zap.Any("panic", r))
			out = in.WithError(&StageError{
				Stage:   st.Phase,
				Kind:    KindInternal,
				Message: fmt.Sprintf("Stage %s panicked: %v", st.Phase, r),
			})
		}

		if !in.Failed() && !out.Failed() && errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			out = out.WithError(newStageError(st.Phase, KindTimeout,
				fmt.Sprintf("Stage %s timed out after %s", st.Phase, p.stageTimeout), ctx.Err()))
		}

		StageDuration.WithLabelValues(string(st.Phase)).Observe(time.Since(start).Seconds())
		if !in.Failed() && out.Failed() {
			StageErrors.WithLabelValues(string(st.Phase), string(out.Err.Kind)).Inc()
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Message)
		}
		out = out.WithPhase(st.Phase)
	}()

	return st.Run(ctx, in)
}

func (p *Pipeline) report(pr Progress) {
	if p.progress != nil {
		p.progress(pr)
	}
}
