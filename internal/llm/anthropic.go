package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fyrsmithlabs/apigov/internal/config"
)

// anthropicBackend talks to Claude through the Anthropic SDK.
type anthropicBackend struct {
	client      anthropic.Client
	model       anthropic.Model
	temperature float64
	maxTokens   int64
}

func newAnthropicBackend(cfg config.LLMConfig) (*anthropicBackend, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey.Value()),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		// Retries are handled by Client.
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &anthropicBackend{
		client:      anthropic.NewClient(opts...),
		model:       anthropic.Model(model),
		temperature: cfg.Temperature,
		maxTokens:   int64(maxTokens),
	}, nil
}

func (b *anthropicBackend) name() string { return config.ProviderAnthropic }

func (b *anthropicBackend) complete(ctx context.Context, system, user string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       b.model,
		MaxTokens:   b.maxTokens,
		Temperature: anthropic.Float(b.temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}

	message, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(message.Content) == 0 {
		return "", errors.New("unexpected response format: no content blocks")
	}
	content := message.Content[0]
	if content.Type != "text" {
		return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
	}
	return content.Text, nil
}

func (b *anthropicBackend) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return false
}
