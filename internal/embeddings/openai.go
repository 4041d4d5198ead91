package embeddings

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	// BaseURL defaults to the public OpenAI API when empty.
	BaseURL string
	Model   string
	APIKey  string
}

// OpenAIProvider generates embeddings through langchaingo's OpenAI client.
type OpenAIProvider struct {
	embedder  *embeddings.EmbedderImpl
	dimension int
}

// NewOpenAIProvider creates a remote embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token; self-hosted OpenAI-compatible servers ignore it.
		apiKey = "placeholder"
	}

	opts := []openai.Option{
		// CreateEmbedding sends the client model, so both must name the embedding model.
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	dim, _ := modelDimension(cfg.Model)
	return &OpenAIProvider{embedder: embedder, dimension: dim}, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vector, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vector, nil
}

// Dimension returns the known dimension of the model, or 0.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op for remote providers.
func (p *OpenAIProvider) Close() error {
	return nil
}
