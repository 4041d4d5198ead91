package governance

import (
	"context"

	"github.com/fyrsmithlabs/apigov/internal/vectorstore"
)

// TextGenerator produces a completion for a system instruction and user prompt.
// *llm.Client satisfies it.
type TextGenerator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// SemanticIndex ranks stored policies by similarity to a query.
// vectorstore.Index satisfies it.
type SemanticIndex interface {
	Query(ctx context.Context, text string, k int) ([]vectorstore.Result, error)
}

// Redactor masks secrets in code before it leaves the process.
// *secrets.Redactor satisfies it.
type Redactor interface {
	Redact(content string) (string, int)
}
