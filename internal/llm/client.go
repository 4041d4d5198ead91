package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/apigov/internal/config"
	"github.com/fyrsmithlabs/apigov/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/apigov/internal/llm"

// Client is a rate-limited, retrying TextGenerator.
type Client struct {
	backend        backend
	limiter        *rate.Limiter
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *logging.Logger
}

var _ TextGenerator = (*Client)(nil)

func newClient(b backend, cfg config.LLMConfig, logger *logging.Logger) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		backend:        b,
		limiter:        rate.NewLimiter(limit, burst),
		maxRetries:     cfg.MaxRetries,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		logger:         logger.Named("llm"),
	}
}

// Provider returns the backend name.
func (c *Client) Provider() string {
	return c.backend.name()
}

// Complete sends one completion request, retrying transient failures.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "llm.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.provider", c.backend.name()))

	attempts := 0
	var out string
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		text, err := c.backend.complete(ctx, system, user)
		if err == nil {
			out = text
			return nil
		}
		if ctx.Err() != nil || !c.backend.retryable(err) {
			return backoff.Permanent(err)
		}
		c.logger.Warn(ctx, "generation attempt failed, retrying",
			zap.Int("attempt", attempts),
			zap.Error(err))
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(c.newBackoff(), ctx))
	span.SetAttributes(attribute.Int("llm.attempts", attempts))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(err, ctxErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &GenerationError{Provider: c.backend.name(), Attempts: attempts, Err: err}
	}

	c.logger.Trace(ctx, "generation completed",
		zap.Int("attempts", attempts),
		zap.String("response", out))
	return out, nil
}

func (c *Client) newBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	bo.MaxInterval = c.maxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()
	return backoff.WithMaxRetries(bo, uint64(c.maxRetries))
}
