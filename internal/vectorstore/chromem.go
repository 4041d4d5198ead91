package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apigov/internal/logging"
)

const backendChromem = "chromem"

var chromemTracer = otel.Tracer("apigov.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Collection is the policy collection name.
	Collection string

	// Compress enables gzip compression for stored data.
	Compress bool

	// ReadOnly refuses to create the storage directory. Queries against a
	// directory that does not exist fail with ErrIndexUnavailable.
	ReadOnly bool
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemIndex implements Store using chromem-go.
type ChromemIndex struct {
	mu       sync.RWMutex
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *logging.Logger
}

var (
	_ Store    = (*ChromemIndex)(nil)
	_ Resetter = (*ChromemIndex)(nil)
)

// NewChromemIndex opens (or creates) the persistent index at config.Path.
func NewChromemIndex(config ChromemConfig, embedder Embedder, logger *logging.Logger) (*ChromemIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if config.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrIndexUnavailable, path, err)
		}
	} else if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem DB: %v", ErrIndexUnavailable, err)
	}

	logger.Debug(context.Background(), "chromem index opened",
		zap.String("path", path),
		zap.String("collection", config.Collection),
		zap.Bool("read_only", config.ReadOnly),
	)

	return &ChromemIndex{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger.Named("chromem"),
	}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *ChromemIndex) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// Query performs similarity search in the policy collection.
func (s *ChromemIndex) Query(ctx context.Context, text string, k int) (results []Result, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	)

	start := time.Now()
	defer func() {
		QueryDuration.WithLabelValues(backendChromem).Observe(time.Since(start).Seconds())
		if err != nil {
			QueryErrors.WithLabelValues(backendChromem).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if text == "" {
		return nil, errors.New("query cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	collection := s.db.GetCollection(s.config.Collection, s.embeddingFunc())
	if collection == nil {
		return nil, fmt.Errorf("%w: collection %q not found", ErrIndexUnavailable, s.config.Collection)
	}

	// chromem requires nResults <= doc count.
	count := collection.Count()
	if count == 0 {
		return []Result{}, nil
	}
	if k > count {
		k = count
	}

	matches, err := collection.Query(ctx, text, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	results = make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			ID:       m.ID,
			Content:  m.Content,
			Score:    m.Similarity,
			Metadata: m.Metadata,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	s.logger.Debug(ctx, "queried policy index",
		zap.Int("k", k),
		zap.Int("results", len(results)))
	return results, nil
}

// Add embeds and stores documents in the policy collection.
func (s *ChromemIndex) Add(ctx context.Context, docs []Document) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Add")
	defer span.End()
	span.SetAttributes(attribute.Int("document_count", len(docs)))

	if len(docs) == 0 {
		return ErrEmptyDocuments
	}
	if s.config.ReadOnly {
		return fmt.Errorf("%w: index opened read-only", ErrInvalidConfig)
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document at index %d has no ID", i)
		}
		texts[i] = d.Content
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) != len(docs) {
		return fmt.Errorf("%w: got %d embeddings for %d documents", ErrEmbeddingFailed, len(embeddings), len(docs))
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  d.Metadata,
			Embedding: embeddings[i],
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	collection, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		return fmt.Errorf("getting/creating collection %s: %w", s.config.Collection, err)
	}

	// Embeddings are precomputed, so concurrency of 1 suffices.
	if err := collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}

	DocumentsAdded.WithLabelValues(backendChromem).Add(float64(len(docs)))
	s.logger.Debug(ctx, "added documents",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(docs)))
	return nil
}

// Reset drops the policy collection. It is a no-op when the collection does not exist.
func (s *ChromemIndex) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db.GetCollection(s.config.Collection, s.embeddingFunc()) == nil {
		return nil
	}
	if err := s.db.DeleteCollection(s.config.Collection); err != nil {
		return fmt.Errorf("deleting collection %s: %w", s.config.Collection, err)
	}
	s.logger.Info(ctx, "policy collection reset", zap.String("collection", s.config.Collection))
	return nil
}

// Count returns the number of documents in the policy collection.
func (s *ChromemIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.db.GetCollection(s.config.Collection, s.embeddingFunc())
	if c == nil {
		return 0
	}
	return c.Count()
}

// Close releases resources. chromem persists on every write, so there is nothing to flush.
func (s *ChromemIndex) Close() error {
	return nil
}
