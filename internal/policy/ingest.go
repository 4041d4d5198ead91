// Package policy builds the governance policy index from a markdown document.
//
// The document is divided into categories by H1 headers. Each category body is
// split into overlapping chunks, and every chunk is stored with its category and
// source file as metadata.
package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apigov/internal/logging"
	"github.com/fyrsmithlabs/apigov/internal/vectorstore"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// ErrNoPolicies is returned when a document yields no chunks.
var ErrNoPolicies = errors.New("no policy sections found")

// Section is one H1 category of the policy document.
type Section struct {
	Category string
	Body     string
}

// Summary reports what an ingestion wrote.
type Summary struct {
	Source     string
	Categories int
	Chunks     int
	Reset      bool
}

// Ingester splits policy documents and writes them to a vector store.
type Ingester struct {
	store    vectorstore.Writer
	splitter textsplitter.TextSplitter
	logger   *logging.Logger
}

// Option configures an Ingester.
type Option func(*ingestOptions)

type ingestOptions struct {
	chunkSize    int
	chunkOverlap int
}

// WithChunking overrides the chunk size and overlap, in characters.
func WithChunking(size, overlap int) Option {
	return func(o *ingestOptions) {
		o.chunkSize = size
		o.chunkOverlap = overlap
	}
}

// NewIngester creates an Ingester writing to store.
func NewIngester(store vectorstore.Writer, logger *logging.Logger, opts ...Option) *Ingester {
	o := ingestOptions{chunkSize: DefaultChunkSize, chunkOverlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ingester{
		store: store,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(o.chunkSize),
			textsplitter.WithChunkOverlap(o.chunkOverlap),
		),
		logger: logger.Named("policy"),
	}
}

// IngestFile reads a markdown policy file and rebuilds the index from it.
func (in *Ingester) IngestFile(ctx context.Context, path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("reading policy file: %w", err)
	}
	return in.Ingest(ctx, path, string(data))
}

// Ingest rebuilds the index from markdown content. The store is reset first when
// it supports it, so repeated runs do not accumulate stale chunks.
func (in *Ingester) Ingest(ctx context.Context, source, content string) (Summary, error) {
	sections := SplitSections(content)
	docs, err := in.chunk(source, sections)
	if err != nil {
		return Summary{}, err
	}
	if len(docs) == 0 {
		return Summary{}, fmt.Errorf("%w in %s", ErrNoPolicies, source)
	}

	summary := Summary{Source: source, Categories: len(sections), Chunks: len(docs)}

	if r, ok := in.store.(vectorstore.Resetter); ok {
		if err := r.Reset(ctx); err != nil {
			return Summary{}, fmt.Errorf("resetting policy index: %w", err)
		}
		summary.Reset = true
	} else {
		in.logger.Warn(ctx, "policy store does not support reset, appending to existing collection")
	}

	if err := in.store.Add(ctx, docs); err != nil {
		return Summary{}, fmt.Errorf("writing policy chunks: %w", err)
	}

	in.logger.Info(ctx, "policies ingested",
		zap.String("source", source),
		zap.Int("categories", summary.Categories),
		zap.Int("chunks", summary.Chunks))
	return summary, nil
}

func (in *Ingester) chunk(source string, sections []Section) ([]vectorstore.Document, error) {
	var docs []vectorstore.Document
	for _, s := range sections {
		chunks, err := in.splitter.SplitText(s.Body)
		if err != nil {
			return nil, fmt.Errorf("splitting category %q: %w", s.Category, err)
		}
		slug := Slug(s.Category)
		for i, c := range chunks {
			if strings.TrimSpace(c) == "" {
				continue
			}
			docs = append(docs, vectorstore.Document{
				ID:      fmt.Sprintf("%s-%d", slug, i),
				Content: c,
				Metadata: map[string]string{
					"category": s.Category,
					"source":   source,
				},
			})
		}
	}
	return docs, nil
}

// SplitSections divides markdown into H1 categories. Text before the first H1
// header is discarded, as are sections with no content.
func SplitSections(content string) []Section {
	parts := strings.Split(content, "\n# ")
	if strings.HasPrefix(parts[0], "# ") {
		parts[0] = parts[0][2:]
	} else {
		parts = parts[1:]
	}

	sections := make([]Section, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		title, body, _ := strings.Cut(p, "\n")
		sections = append(sections, Section{
			Category: strings.TrimSpace(title),
			Body:     strings.TrimSpace(body),
		})
	}
	return sections
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug converts a category title to an ID prefix.
func Slug(category string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(category), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "policy"
	}
	return s
}
