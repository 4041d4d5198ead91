package governance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/apigov/internal/logging"
	"github.com/fyrsmithlabs/apigov/internal/telemetry"
	"github.com/fyrsmithlabs/apigov/internal/vectorstore"
)

const endpointDetection = `{"changed_code_snippet": "@app.route('/users')\ndef users(): ...", ` +
	`"change_summary": "A new endpoint /users was added."}`

func newPipelineFixture(gen TextGenerator, idx SemanticIndex) *Pipeline {
	return New(gen, idx, Config{TopK: 2, ValidationConcurrency: 2, StageTimeout: time.Second})
}

func TestPipeline_Unchanged(t *testing.T) {
	gen := &scriptedGenerator{}
	idx := &mockIndex{}
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("unchanged"))

	out, err := newPipelineFixture(gen, idx).Run(context.Background(), "x=1", "x=1")
	require.NoError(t, err)

	assert.Nil(t, out.Err)
	assert.Empty(t, out.ChangedFragment)
	assert.Equal(t, NoChangesSentinel, out.ChangeSummary)
	assert.Equal(t, NoChangesSentinel, out.Report)
	assert.NotContains(t, out.Report, "## Findings")
	assert.Equal(t, PhaseDone, out.Phase)
	assert.Equal(t, 0, gen.Calls())
	idx.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, before+1, testutil.ToFloat64(RunsTotal.WithLabelValues("unchanged")))
}

func TestPipeline_NewEndpoint(t *testing.T) {
	gen := &scriptedGenerator{
		detect: answer(endpointDetection),
		validate: func(user string) (string, error) {
			if strings.Contains(user, "authentication") {
				return "Non-compliant: the endpoint has no authentication.", nil
			}
			return "Compliant: the path uses a noun.", nil
		},
		report: answer("## Compliant Checks\n- naming\n\n## Non-compliant Issues\n- auth\n\n### Recommendations\n- add auth"),
	}
	idx := &mockIndex{}
	idx.On("Query", mock.Anything, "A new endpoint /users was added.", 2).
		Return(results("Endpoints must require authentication.", "Paths must use nouns."), nil).Once()

	out, err := newPipelineFixture(gen, idx).Run(context.Background(), "", "@app.route('/users')\ndef users(): ...")
	require.NoError(t, err)

	assert.Nil(t, out.Err)
	assert.Contains(t, out.ChangedFragment, "/users")
	assert.Equal(t, []string{"Endpoints must require authentication.", "Paths must use nouns."}, out.RetrievedPolicies)
	assert.Equal(t, []string{
		"Non-compliant: the endpoint has no authentication.",
		"Compliant: the path uses a noun.",
	}, out.Verdicts)
	assert.True(t, strings.HasPrefix(out.Report, "## Compliant Checks"))
	assert.Contains(t, out.Report, "- Non-compliant: the endpoint has no authentication.")
	assert.Equal(t, PhaseDone, out.Phase)
	assert.Equal(t, 4, gen.Calls())
	idx.AssertExpectations(t)
}

func TestPipeline_NoPoliciesFound(t *testing.T) {
	gen := &scriptedGenerator{
		detect: answer(endpointDetection),
		report: answer("## Compliant Checks\nNone.\n\n## Non-compliant Issues\nNone."),
	}
	idx := &mockIndex{}
	idx.On("Query", mock.Anything, mock.Anything, mock.Anything).Return([]vectorstore.Result{}, nil)

	out, err := newPipelineFixture(gen, idx).Run(context.Background(), "", "code")
	require.NoError(t, err)

	assert.Nil(t, out.Err)
	assert.Equal(t, []string{NoDocumentsVerdict}, out.Verdicts)
	assert.Contains(t, out.Report, NoDocumentsVerdict)
	assert.Equal(t, 2, gen.Calls())
}

func TestPipeline_MalformedDetection(t *testing.T) {
	gen := &scriptedGenerator{detect: answer("Sure! Here is the change you asked about.")}
	idx := &mockIndex{}

	out, err := newPipelineFixture(gen, idx).Run(context.Background(), "a", "b")
	require.NoError(t, err)

	require.NotNil(t, out.Err)
	assert.Equal(t, KindParse, out.Err.Kind)
	assert.Equal(t, "Failed to parse change detection response", out.Err.Message)
	assert.Equal(t, PhaseDone, out.Phase)
	assert.Equal(t, NoReportPlaceholder, out.Report)
	assert.Equal(t, 1, gen.Calls())
	idx.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_FirstErrorWins(t *testing.T) {
	gen := &scriptedGenerator{detect: answer(endpointDetection)}
	idx := &mockIndex{}
	idx.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, vectorstore.ErrIndexUnavailable)

	out, err := newPipelineFixture(gen, idx).Run(context.Background(), "a", "b")
	require.NoError(t, err)

	require.NotNil(t, out.Err)
	assert.Equal(t, PhaseRetrieve, out.Err.Stage)
	assert.Equal(t, KindIndexUnavailable, out.Err.Kind)
	assert.Empty(t, out.Verdicts)
	assert.Equal(t, NoReportPlaceholder, out.Report)
	assert.Equal(t, 1, gen.Calls())
}

func TestPipeline_ReportFailure(t *testing.T) {
	gen := &scriptedGenerator{
		detect:   answer(endpointDetection),
		validate: answer("Compliant"),
		report:   fail(errors.New("service unavailable")),
	}
	idx := &mockIndex{}
	idx.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(results("r"), nil)

	out, err := newPipelineFixture(gen, idx).Run(context.Background(), "a", "b")
	require.NoError(t, err)

	require.NotNil(t, out.Err)
	assert.Equal(t, KindGeneration, out.Err.Kind)
	assert.Equal(t, []string{"Compliant"}, out.Verdicts)
	assert.Equal(t, NoReportPlaceholder, out.Report)
}

// blockingGenerator waits for its context to end.
type blockingGenerator struct{}

func (blockingGenerator) Complete(ctx context.Context, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestPipeline_GeneratorTimeout(t *testing.T) {
	p := New(blockingGenerator{}, &mockIndex{}, Config{StageTimeout: 20 * time.Millisecond})

	out, err := p.Run(context.Background(), "a", "b")
	require.NoError(t, err)

	require.NotNil(t, out.Err)
	assert.Equal(t, PhaseDetect, out.Err.Stage)
	assert.Equal(t, KindTimeout, out.Err.Kind)
	assert.Equal(t, PhaseDone, out.Phase)
	assert.Equal(t, NoReportPlaceholder, out.Report)
}

func TestPipeline_StageOverrunsDeadline(t *testing.T) {
	p := newPipelineFixture(&scriptedGenerator{}, &mockIndex{})
	p.stageTimeout = 10 * time.Millisecond
	p.stages = []Stage{{
		Phase: PhaseRetrieve,
		Run: func(ctx context.Context, s State) State {
			<-ctx.Done()
			return s
		},
	}}

	out, err := p.Run(context.Background(), "a", "b")
	require.NoError(t, err)

	require.NotNil(t, out.Err)
	assert.Equal(t, PhaseRetrieve, out.Err.Stage)
	assert.Equal(t, KindTimeout, out.Err.Kind)
	assert.Equal(t, "Stage retrieve timed out after 10ms", out.Err.Message)
}

func TestPipeline_RecoversPanic(t *testing.T) {
	logger := logging.NewTestLogger()
	p := New(&scriptedGenerator{}, &mockIndex{}, Config{Logger: logger.Logger})

	var ran []Phase
	p.stages = []Stage{
		{Phase: PhaseDetect, Run: func(_ context.Context, s State) State {
			ran = append(ran, PhaseDetect)
			panic("nil map")
		}},
		{Phase: PhaseReport, Run: func(_ context.Context, s State) State {
			ran = append(ran, PhaseReport)
			return s
		}},
	}

	out, err := p.Run(context.Background(), "a", "b")
	require.NoError(t, err)

	assert.Equal(t, []Phase{PhaseDetect, PhaseReport}, ran)
	require.NotNil(t, out.Err)
	assert.Equal(t, KindInternal, out.Err.Kind)
	assert.Equal(t, PhaseDetect, out.Err.Stage)
	assert.Contains(t, out.Err.Message, "nil map")
	assert.Equal(t, PhaseDone, out.Phase)
	assert.Len(t, logger.FilterMessage("stage panicked").All(), 1)
}

func TestPipeline_CancelledBeforeStart(t *testing.T) {
	gen := &scriptedGenerator{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := NewState("a", "b")
	out, err := newPipelineFixture(gen, &mockIndex{}).Execute(ctx, in)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, in, out)
	assert.Equal(t, 0, gen.Calls())
}

func TestPipeline_InputUntouchedAndRepeatable(t *testing.T) {
	gen := &scriptedGenerator{
		detect:   answer(endpointDetection),
		validate: answer("Compliant"),
		report:   answer("report"),
	}
	idx := &mockIndex{}
	idx.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(results("r1", "r2"), nil)
	p := newPipelineFixture(gen, idx)

	in := NewState("a", "b")
	in.RunID = "run-1"
	snapshot := in.clone()

	first, err := p.Execute(context.Background(), in)
	require.NoError(t, err)
	second, err := p.Execute(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, snapshot, in)
	assert.Equal(t, first, second)
	assert.Equal(t, "run-1", first.RunID)

	first.Verdicts[0] = "mutated"
	assert.Equal(t, "Compliant", second.Verdicts[0])
}

func TestPipeline_Progress(t *testing.T) {
	gen := &scriptedGenerator{detect: answer("garbage")}
	p := newPipelineFixture(gen, &mockIndex{})

	var updates []Progress
	p.OnProgress(func(pr Progress) { updates = append(updates, pr) })

	in := NewState("a", "b")
	in.RunID = "run-7"
	_, err := p.Execute(context.Background(), in)
	require.NoError(t, err)

	// Start and finish per stage, plus the terminal update.
	require.Len(t, updates, 9)
	assert.Equal(t, Progress{RunID: "run-7", Phase: PhaseDetect, Status: StatusInProgress, Message: "Starting stage: detect", Percentage: 0}, updates[0])
	assert.Equal(t, StatusDegraded, updates[1].Status)
	assert.Equal(t, 25, updates[1].Percentage)
	assert.Equal(t, StatusCompleted, updates[3].Status)

	last := updates[len(updates)-1]
	assert.Equal(t, PhaseDone, last.Phase)
	assert.Equal(t, 100, last.Percentage)
}

func TestPipeline_LogsRunContext(t *testing.T) {
	logger := logging.NewTestLogger()
	p := New(&scriptedGenerator{}, &mockIndex{}, Config{Logger: logger.Logger})

	in := NewState("x", "x")
	in.RunID = "20250101_000000-abcdef12"
	in.Source = "app/api.py"
	_, err := p.Execute(context.Background(), in)
	require.NoError(t, err)

	logger.AssertField(t, "pipeline completed, no changes", "run.id", "20250101_000000-abcdef12")
	logger.AssertField(t, "pipeline completed, no changes", "source", "app/api.py")
}

func TestPipeline_Spans(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	tel.InstallGlobal()

	in := NewState("x", "x")
	in.RunID = "20250101_000000-span0001"
	in.Source = "app/api.py"
	_, err := New(&scriptedGenerator{}, &mockIndex{}, Config{}).Execute(context.Background(), in)
	require.NoError(t, err)

	tel.AssertSpanAttribute(t, "governance.Pipeline", "run.id", "20250101_000000-span0001")
	tel.AssertSpanAttribute(t, "governance.Pipeline", "source", "app/api.py")
	for _, phase := range []Phase{PhaseDetect, PhaseRetrieve, PhaseValidate, PhaseReport} {
		tel.AssertSpanExists(t, "governance."+string(phase))
	}
}
