package embeddings

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/apigov/internal/config"
	"github.com/fyrsmithlabs/apigov/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is an embedder that owns resources.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension, or 0 when unknown until first use.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// NewProvider creates the embedding provider named in cfg.
func NewProvider(cfg config.EmbeddingsConfig) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "fastembed", "":
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "openai":
		p, err = NewOpenAIProvider(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey.Value(),
		})
	default:
		return nil, fmt.Errorf("%w: unsupported embeddings provider %q (valid: fastembed, openai)", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return instrument(p, cfg.Model), nil
}
