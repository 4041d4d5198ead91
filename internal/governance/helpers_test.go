package governance

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/fyrsmithlabs/apigov/internal/vectorstore"
)

// scriptedGenerator answers by system prompt so each stage can be scripted
// independently.
type scriptedGenerator struct {
	detect   func(user string) (string, error)
	validate func(user string) (string, error)
	report   func(user string) (string, error)

	calls atomic.Int32
	mu    sync.Mutex
	users []string
}

func (g *scriptedGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.users = append(g.users, user)
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	var fn func(string) (string, error)
	switch system {
	case detectSystemPrompt:
		fn = g.detect
	case validateSystemPrompt:
		fn = g.validate
	case reportSystemPrompt:
		fn = g.report
	}
	if fn == nil {
		return "", nil
	}
	return fn(user)
}

func (g *scriptedGenerator) Calls() int {
	return int(g.calls.Load())
}

func (g *scriptedGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.users...)
}

func answer(s string) func(string) (string, error) {
	return func(string) (string, error) { return s, nil }
}

func fail(err error) func(string) (string, error) {
	return func(string) (string, error) { return "", err }
}

// mockIndex is a testify mock of SemanticIndex.
type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) Query(ctx context.Context, text string, k int) ([]vectorstore.Result, error) {
	args := m.Called(ctx, text, k)
	res, _ := args.Get(0).([]vectorstore.Result)
	return res, args.Error(1)
}

func results(contents ...string) []vectorstore.Result {
	out := make([]vectorstore.Result, len(contents))
	for i, c := range contents {
		out[i] = vectorstore.Result{ID: c, Content: c, Score: 1 - float32(i)/10}
	}
	return out
}

// wordRedactor masks the word "secret".
type wordRedactor struct{}

func (wordRedactor) Redact(content string) (string, int) {
	n := strings.Count(content, "secret")
	return strings.ReplaceAll(content, "secret", "[REDACTED]"), n
}
