package governance

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/apigov/internal/logging"
)

// DefaultValidationConcurrency bounds concurrent rule checks.
const DefaultValidationConcurrency = 4

// Validator judges changed code against each retrieved policy.
type Validator struct {
	gen         TextGenerator
	concurrency int
	logger      *logging.Logger
}

// NewValidator creates a Validator running up to concurrency checks at once.
// A concurrency of 1 checks rules strictly in order.
func NewValidator(gen TextGenerator, concurrency int, logger *logging.Logger) *Validator {
	if concurrency <= 0 {
		concurrency = DefaultValidationConcurrency
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Validator{gen: gen, concurrency: concurrency, logger: logger.Named("validator")}
}

// Validate returns one verdict per policy, in policy order. A rule whose check
// fails yields "Validation error: <reason>" in its slot; the other rules are
// unaffected.
func (v *Validator) Validate(ctx context.Context, fragment string, policies []string) []string {
	if len(policies) == 0 {
		return []string{NoDocumentsVerdict}
	}

	verdicts := make([]string, len(policies))
	var g errgroup.Group
	g.SetLimit(v.concurrency)

	for i, rule := range policies {
		g.Go(func() error {
			verdicts[i] = v.check(ctx, i, rule, fragment)
			return nil
		})
	}
	_ = g.Wait() // checks never return errors

	return verdicts
}

func (v *Validator) check(ctx context.Context, i int, rule, fragment string) string {
	prompt, err := validatePrompt(rule, fragment)
	if err == nil {
		var verdict string
		verdict, err = complete(ctx, v.gen, PhaseValidate, validateSystemPrompt, prompt)
		if err == nil {
			VerdictsTotal.WithLabelValues("ok").Inc()
			v.logger.Debug(ctx, "rule checked", zap.Int("rule", i), zap.String("verdict", verdict))
			return verdict
		}
	}

	VerdictsTotal.WithLabelValues("error").Inc()
	v.logger.Warn(ctx, "rule check failed", zap.Int("rule", i), zap.Error(err))
	return fmt.Sprintf("Validation error: %v", err)
}

// Run is the Validate stage. It is a no-op when an earlier stage failed.
func (v *Validator) Run(ctx context.Context, s State) State {
	if s.Failed() {
		return s
	}
	return s.WithVerdicts(v.Validate(ctx, s.ChangedFragment, s.RetrievedPolicies))
}
