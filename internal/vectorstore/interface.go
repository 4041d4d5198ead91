// Package vectorstore provides the semantic policy index.
//
// Two backends are available: an embedded chromem-go database persisted to a
// local directory (default) and an external Qdrant collection reached through
// langchaingo. Both rank by cosine similarity, highest first.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for index operations.
var (
	// ErrIndexUnavailable is returned when the index cannot be opened or queried,
	// including a collection that was never built.
	ErrIndexUnavailable = errors.New("policy index unavailable")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Embedder generates vector embeddings from text.
//
// The method set matches langchaingo's embeddings.Embedder, so any Embedder can
// be handed to langchaingo vector stores directly.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Document is a unit of policy text stored in the index.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Result is a ranked match returned by Query.
type Result struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]string
}

// Index answers similarity queries.
type Index interface {
	// Query returns up to k documents most similar to text, best first.
	Query(ctx context.Context, text string, k int) ([]Result, error)
}

// Writer adds documents to an index.
type Writer interface {
	Add(ctx context.Context, docs []Document) error
}

// Resetter is implemented by stores that can drop and recreate their collection.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Store is an index that can also be written to.
type Store interface {
	Index
	Writer
	Close() error
}
