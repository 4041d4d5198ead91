package governance

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apigov/internal/logging"
)

// DefaultTopK is the number of policies retrieved per change.
const DefaultTopK = 5

// Retriever fetches policies relevant to a change summary.
type Retriever struct {
	index  SemanticIndex
	k      int
	logger *logging.Logger
}

// NewRetriever creates a Retriever returning up to k policies.
func NewRetriever(index SemanticIndex, k int, logger *logging.Logger) *Retriever {
	if k <= 0 {
		k = DefaultTopK
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Retriever{index: index, k: k, logger: logger.Named("retriever")}
}

// Retrieve returns policy texts in the index's ranking order. An empty summary
// or the no-change sentinel skips the index entirely.
func (r *Retriever) Retrieve(ctx context.Context, summary string) ([]string, error) {
	if summary == "" || summary == NoChangesSentinel {
		r.logger.Debug(ctx, "no change summary, skipping policy retrieval")
		return []string{}, nil
	}

	results, err := r.index.Query(ctx, summary, r.k)
	if err != nil {
		return nil, err
	}

	policies := make([]string, len(results))
	for i, res := range results {
		policies[i] = res.Content
	}
	PoliciesRetrieved.Observe(float64(len(policies)))
	r.logger.Info(ctx, "policies retrieved", zap.Int("count", len(policies)))
	return policies, nil
}

// Run is the Retrieve stage. It is a no-op when an earlier stage failed.
func (r *Retriever) Run(ctx context.Context, s State) State {
	if s.Failed() {
		return s
	}
	policies, err := r.Retrieve(ctx, s.ChangeSummary)
	if err != nil {
		return s.WithError(failedf(PhaseRetrieve, KindIndexUnavailable, "Policy retrieval", err))
	}
	return s.WithPolicies(policies)
}
