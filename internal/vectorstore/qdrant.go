package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apigov/internal/logging"
)

const backendQdrant = "qdrant"

var qdrantTracer = otel.Tracer("apigov.vectorstore.qdrant")

// QdrantConfig configures the remote Qdrant index.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: qdrant URL is required", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// QdrantIndex implements Store on an existing Qdrant collection via langchaingo.
//
// The collection must be provisioned out of band; QdrantIndex does not implement
// Resetter.
type QdrantIndex struct {
	store      qdrant.Store
	collection string
	logger     *logging.Logger
}

var _ Store = (*QdrantIndex)(nil)

// NewQdrantIndex creates a Qdrant-backed index.
func NewQdrantIndex(config QdrantConfig, embedder Embedder, logger *logging.Logger) (*QdrantIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	u, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing qdrant URL: %v", ErrInvalidConfig, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: qdrant URL must be absolute, got %q", ErrInvalidConfig, config.URL)
	}

	opts := []qdrant.Option{
		qdrant.WithURL(*u),
		qdrant.WithCollectionName(config.Collection),
		qdrant.WithEmbedder(embedder),
	}
	if config.APIKey != "" {
		opts = append(opts, qdrant.WithAPIKey(config.APIKey))
	}

	store, err := qdrant.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating qdrant store: %v", ErrIndexUnavailable, err)
	}

	return &QdrantIndex{
		store:      store,
		collection: config.Collection,
		logger:     logger.Named("qdrant"),
	}, nil
}

// Query performs similarity search in the Qdrant collection.
func (q *QdrantIndex) Query(ctx context.Context, text string, k int) (results []Result, err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Query")
	defer span.End()
	span.SetAttributes(attribute.String("collection", q.collection), attribute.Int("k", k))

	start := time.Now()
	defer func() {
		QueryDuration.WithLabelValues(backendQdrant).Observe(time.Since(start).Seconds())
		if err != nil {
			QueryErrors.WithLabelValues(backendQdrant).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	docs, err := q.store.SimilaritySearch(ctx, text, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	results = make([]Result, len(docs))
	for i, d := range docs {
		results[i] = Result{
			Content:  d.PageContent,
			Score:    d.Score,
			Metadata: stringMetadata(d.Metadata),
		}
		if id, ok := results[i].Metadata["id"]; ok {
			results[i].ID = id
		}
	}
	q.logger.Debug(ctx, "queried policy index", zap.Int("results", len(results)))
	return results, nil
}

// Add embeds and upserts documents into the Qdrant collection.
func (q *QdrantIndex) Add(ctx context.Context, docs []Document) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Add")
	defer span.End()

	if len(docs) == 0 {
		return ErrEmptyDocuments
	}

	schemaDocs := make([]schema.Document, len(docs))
	for i, d := range docs {
		meta := make(map[string]any, len(d.Metadata)+1)
		for k, v := range d.Metadata {
			meta[k] = v
		}
		meta["id"] = d.ID
		schemaDocs[i] = schema.Document{PageContent: d.Content, Metadata: meta}
	}

	if _, err := q.store.AddDocuments(ctx, schemaDocs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: adding documents: %v", ErrIndexUnavailable, err)
	}
	DocumentsAdded.WithLabelValues(backendQdrant).Add(float64(len(docs)))
	return nil
}

// Close is a no-op; the langchaingo client holds no persistent connection.
func (q *QdrantIndex) Close() error {
	return nil
}

func stringMetadata(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
		default:
			out[k] = fmt.Sprintf("%v", t)
		}
	}
	return out
}
