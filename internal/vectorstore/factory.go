package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/apigov/internal/config"
	"github.com/fyrsmithlabs/apigov/internal/logging"
)

// Backends.
const (
	ProviderChromem = "chromem"
	ProviderQdrant  = "qdrant"
)

// Open creates the configured policy store. readOnly is honored by the chromem
// backend so that a pipeline run never creates an empty index.
func Open(cfg config.VectorStoreConfig, embedder Embedder, readOnly bool, logger *logging.Logger) (Store, error) {
	switch cfg.Provider {
	case ProviderChromem, "":
		return NewChromemIndex(ChromemConfig{
			Path:       cfg.Path,
			Collection: cfg.Collection,
			Compress:   cfg.Compress,
			ReadOnly:   readOnly,
		}, embedder, logger)
	case ProviderQdrant:
		return NewQdrantIndex(QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantKey.Value(),
			Collection: cfg.Collection,
		}, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
