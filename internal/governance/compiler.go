package governance

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apigov/internal/logging"
)

// findingsHeading introduces the raw verdicts appended to every compiled report.
const findingsHeading = "## Findings"

// Compiler turns verdicts into a markdown report.
type Compiler struct {
	gen    TextGenerator
	logger *logging.Logger
}

// NewCompiler creates a Compiler.
func NewCompiler(gen TextGenerator, logger *logging.Logger) *Compiler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Compiler{gen: gen, logger: logger.Named("compiler")}
}

// Findings formats verdicts as a markdown bullet list.
func Findings(verdicts []string) string {
	lines := make([]string, len(verdicts))
	for i, v := range verdicts {
		lines[i] = "- " + v
	}
	return strings.Join(lines, "\n")
}

// Compile generates the report. The generated text is followed by a findings
// appendix holding each verdict verbatim.
func (c *Compiler) Compile(ctx context.Context, fragment string, verdicts []string) (string, error) {
	if len(verdicts) == 0 {
		return NoValidationReport, nil
	}

	findings := Findings(verdicts)
	prompt, err := reportPrompt(fragment, findings)
	if err != nil {
		return "", err
	}

	report, err := complete(ctx, c.gen, PhaseReport, reportSystemPrompt, prompt)
	if err != nil {
		return "", err
	}

	c.logger.Debug(ctx, "report compiled", zap.Int("verdicts", len(verdicts)), zap.Int("bytes", len(report)))
	return strings.TrimRight(report, "\n") + "\n\n" + findingsHeading + "\n\n" + findings + "\n", nil
}

// Run is the Report stage. When the detector found no change the report is
// NoChangesSentinel without a generator call; when an earlier stage failed the
// stage is a no-op.
func (c *Compiler) Run(ctx context.Context, s State) State {
	if s.Failed() {
		return s
	}
	if s.Unchanged() {
		return s.WithReport(NoChangesSentinel)
	}
	report, err := c.Compile(ctx, s.ChangedFragment, s.Verdicts)
	if err != nil {
		return s.WithError(failedf(PhaseReport, KindGeneration, "Report generation", err))
	}
	return s.WithReport(report)
}
