package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/fyrsmithlabs/apigov/internal/config"
)

// statusPattern extracts the HTTP status from langchaingo client errors.
var statusPattern = regexp.MustCompile(`status code: (\d{3})`)

// openAIBackend talks to Azure OpenAI or OpenAI through langchaingo.
type openAIBackend struct {
	provider    string
	llm         *openai.LLM
	temperature float64
	maxTokens   int
}

func newOpenAIBackend(cfg config.LLMConfig) (*openAIBackend, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey.Value()),
		openai.WithHTTPClient(httpClient),
	}

	switch cfg.Provider {
	case config.ProviderAzure:
		// Azure addresses the deployment through the model slot.
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithBaseURL(cfg.Endpoint),
			openai.WithAPIVersion(cfg.APIVersion),
			openai.WithModel(cfg.Deployment),
			// langchaingo requires an embedding model for Azure even for chat-only use.
			openai.WithEmbeddingModel(cfg.Deployment),
		)
	default:
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		opts = append(opts, openai.WithModel(model))
		if cfg.Endpoint != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Endpoint))
		}
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s client: %v", config.ErrConfiguration, cfg.Provider, err)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &openAIBackend{
		provider:    cfg.Provider,
		llm:         llm,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (b *openAIBackend) name() string { return b.provider }

func (b *openAIBackend) complete(ctx context.Context, system, user string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, user),
	}
	resp, err := b.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(b.temperature),
		llms.WithMaxTokens(b.maxTokens),
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response: no choices")
	}
	return resp.Choices[0].Content, nil
}

// retryable treats rate limits, server errors and transport failures as transient.
func (b *openAIBackend) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return true
	}
	code, _ := strconv.Atoi(m[1])
	return code == http.StatusTooManyRequests || code >= 500
}
