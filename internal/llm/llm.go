package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/apigov/internal/config"
	"github.com/fyrsmithlabs/apigov/internal/logging"
)

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultMaxTokens      = 4096
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
)

// ErrGeneration is wrapped by every text-generation failure.
var ErrGeneration = errors.New("text generation failed")

// TextGenerator produces a completion for a system instruction and a user prompt.
type TextGenerator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// GenerationError describes a failed completion.
type GenerationError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	return []error{ErrGeneration, e.Err}
}

// backend performs a single completion request against one provider.
type backend interface {
	name() string
	complete(ctx context.Context, system, user string) (string, error)
	retryable(err error) bool
}

// New creates a TextGenerator for the configured provider.
func New(cfg config.LLMConfig, logger *logging.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	var (
		b   backend
		err error
	)
	switch cfg.Provider {
	case config.ProviderAzure, config.ProviderOpenAI:
		b, err = newOpenAIBackend(cfg)
	case config.ProviderAnthropic:
		b, err = newAnthropicBackend(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown llm.provider %q", config.ErrConfiguration, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return newClient(b, cfg, logger), nil
}
