package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/apigov/internal/config"
	"github.com/fyrsmithlabs/apigov/internal/governance"
	"github.com/fyrsmithlabs/apigov/internal/logging"
	"github.com/fyrsmithlabs/apigov/internal/revision"
	"github.com/fyrsmithlabs/apigov/internal/runner"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) RunCode(ctx context.Context, source, oldCode, newCode string) (*runner.Result, error) {
	args := m.Called(ctx, source, oldCode, newCode)
	res, _ := args.Get(0).(*runner.Result)
	return res, args.Error(1)
}

func (m *mockRunner) RunGit(ctx context.Context, req runner.GitRequest) (*runner.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*runner.Result)
	return res, args.Error(1)
}

func setupTestServer(t *testing.T, r Runner) *Server {
	t.Helper()
	server, err := NewServer(r, logging.NewNop(), config.ServerConfig{})
	require.NoError(t, err)
	return server
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func stateResult(s governance.State) *runner.Result {
	return &runner.Result{RunID: s.RunID, Files: []runner.FileResult{{Path: s.Source, State: s}}}
}

func TestNewServer(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		server, err := NewServer(&mockRunner{}, logging.NewNop(), config.ServerConfig{})
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9191, server.config.Port)
	})

	t.Run("keeps configured address", func(t *testing.T) {
		server, err := NewServer(&mockRunner{}, logging.NewNop(), config.ServerConfig{Host: "0.0.0.0", Port: 8080})
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", server.config.Host)
		assert.Equal(t, 8080, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&mockRunner{}, nil, config.ServerConfig{})
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("returns error when runner is nil", func(t *testing.T) {
		_, err := NewServer(nil, logging.NewNop(), config.ServerConfig{})
		assert.ErrorContains(t, err, "runner cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, &mockRunner{})

	rec := doJSON(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleMetrics(t *testing.T) {
	server := setupTestServer(t, &mockRunner{})
	_ = doJSON(t, server, http.MethodGet, "/health", "")

	rec := doJSON(t, server, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHandleValidate(t *testing.T) {
	t.Run("returns final state", func(t *testing.T) {
		state := governance.NewState("", "def f(): pass").
			WithDetection(governance.Detection{Fragment: "def f(): pass", Summary: "Added f."}).
			WithVerdicts([]string{governance.NoDocumentsVerdict}).
			WithReport("# Report").
			WithPhase(governance.PhaseDone)
		state.RunID, state.Source = "run-1", "api.py"

		r := &mockRunner{}
		r.On("RunCode", mock.Anything, "api.py", "", "def f(): pass").Return(stateResult(state), nil).Once()
		server := setupTestServer(t, r)

		rec := doJSON(t, server, http.MethodPost, "/api/v1/validate",
			`{"old_code": "", "new_code": "def f(): pass", "source": "api.py"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got governance.State
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, "# Report", got.Report)
		assert.Equal(t, []string{governance.NoDocumentsVerdict}, got.Verdicts)
		assert.Equal(t, governance.PhaseDone, got.Phase)
		assert.Nil(t, got.Err)
		r.AssertExpectations(t)
	})

	t.Run("stage error is reported in the body", func(t *testing.T) {
		state := governance.NewState("a", "b").
			WithError(&governance.StageError{Stage: governance.PhaseDetect, Kind: governance.KindParse, Message: "Failed to parse change detection response"}).
			WithReport(governance.NoReportPlaceholder)

		r := &mockRunner{}
		r.On("RunCode", mock.Anything, "request", "a", "b").Return(stateResult(state), nil)
		server := setupTestServer(t, r)

		rec := doJSON(t, server, http.MethodPost, "/api/v1/validate", `{"old_code": "a", "new_code": "b"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var got map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "ParseError", got["error"].(map[string]any)["kind"])
		assert.Equal(t, governance.NoReportPlaceholder, got["report"])
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"malformed json", `{"old_code":`},
			{"both empty", `{"old_code": "", "new_code": ""}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				r := &mockRunner{}
				rec := doJSON(t, setupTestServer(t, r), http.MethodPost, "/api/v1/validate", tt.body)
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				r.AssertNotCalled(t, "RunCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("rejects oversized body", func(t *testing.T) {
		r := &mockRunner{}
		big := bytes.Repeat([]byte("x"), 5<<20)
		body := fmt.Sprintf(`{"old_code": "", "new_code": %q}`, big)
		rec := doJSON(t, setupTestServer(t, r), http.MethodPost, "/api/v1/validate", body)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestHandleValidateGit(t *testing.T) {
	req := runner.GitRequest{RepoPath: "/srv/repo", Dir: "api", From: "HEAD~1", To: "HEAD"}
	body := `{"repo_path": "/srv/repo", "dir_path": "api", "old_commit": "HEAD~1", "new_commit": "HEAD"}`

	tests := []struct {
		name       string
		result     *runner.Result
		err        error
		wantStatus int
	}{
		{"ok", &runner.Result{RunID: "r", Files: []runner.FileResult{}}, nil, http.StatusOK},
		{"invalid request", nil, fmt.Errorf("%w: old commit is required", runner.ErrInvalidRequest), http.StatusBadRequest},
		{"bad revision", nil, fmt.Errorf("%w: resolving \"HEAD~1\"", revision.ErrRevisionAccess), http.StatusUnprocessableEntity},
		{"cancelled", nil, context.Canceled, http.StatusServiceUnavailable},
		{"unexpected", nil, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockRunner{}
			r.On("RunGit", mock.Anything, req).Return(tt.result, tt.err)

			rec := doJSON(t, setupTestServer(t, r), http.MethodPost, "/api/v1/validate/git", body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			r.AssertExpectations(t)
		})
	}
}

func TestServer_StartShutdown(t *testing.T) {
	server := setupTestServer(t, &mockRunner{})
	server.config.Port = 0

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))
	assert.ErrorIs(t, <-errCh, http.ErrServerClosed)
}
