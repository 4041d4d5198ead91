package vectorstore

import (
	"context"
	"errors"
	"strings"
)

// keywordEmbedder maps text to a fixed vocabulary so similarity is predictable.
type keywordEmbedder struct {
	vocab []string
	fail  bool
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{vocab: []string{"get", "post", "auth", "version", "naming", "pagination"}}
}

func (e *keywordEmbedder) embed(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, len(e.vocab)+1)
	vec[len(e.vocab)] = 0.1
	for i, w := range e.vocab {
		vec[i] = float32(strings.Count(lower, w))
	}
	return vec
}

func (e *keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.fail {
		return nil, errors.New("embedder offline")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedder offline")
	}
	return e.embed(text), nil
}
