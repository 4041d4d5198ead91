package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apigov/internal/artifacts"
	"github.com/fyrsmithlabs/apigov/internal/config"
	"github.com/fyrsmithlabs/apigov/internal/embeddings"
	"github.com/fyrsmithlabs/apigov/internal/governance"
	"github.com/fyrsmithlabs/apigov/internal/llm"
	"github.com/fyrsmithlabs/apigov/internal/logging"
	"github.com/fyrsmithlabs/apigov/internal/policy"
	"github.com/fyrsmithlabs/apigov/internal/revision"
	"github.com/fyrsmithlabs/apigov/internal/runner"
	"github.com/fyrsmithlabs/apigov/internal/secrets"
	"github.com/fyrsmithlabs/apigov/internal/vectorstore"
)

// Registry holds the services built from one configuration.
type Registry struct {
	cfg    *config.Config
	logger *logging.Logger

	generator *llm.Client
	embedder  embeddings.Provider
	index     vectorstore.Store
	pipeline  *governance.Pipeline
	runner    *runner.Runner
	ingester  *policy.Ingester
}

// Options overrides services normally built from configuration.
type Options struct {
	// Generator replaces the configured text generator.
	Generator governance.TextGenerator
	// Embedder replaces the configured embedding provider.
	Embedder embeddings.Provider
	// Artifacts replaces the local artifact store.
	Artifacts artifacts.Store
}

// Open builds the validation services.
func Open(cfg *config.Config, logger *logging.Logger, opts Options) (*Registry, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Registry{cfg: cfg, logger: logger}

	gen := opts.Generator
	if gen == nil {
		client, err := llm.New(cfg.LLM, logger)
		if err != nil {
			return nil, err
		}
		r.generator = client
		gen = client
	}

	if err := r.openIndex(opts.Embedder, true); err != nil {
		return nil, err
	}

	var redactor governance.Redactor
	if cfg.Pipeline.RedactSecrets {
		red, err := secrets.NewRedactor()
		if err != nil {
			r.Close()
			return nil, err
		}
		redactor = red
	}

	r.pipeline = governance.New(gen, r.index, governance.Config{
		TopK:                  cfg.Pipeline.TopK,
		ValidationConcurrency: cfg.Pipeline.ValidationConcurrency,
		StageTimeout:          cfg.Pipeline.StageTimeout,
		Redactor:              redactor,
		Logger:                logger,
	})

	store := opts.Artifacts
	if store == nil {
		store = artifacts.NewLocalStore(cfg.Artifacts.Dir)
	}
	r.runner = runner.New(r.pipeline,
		runner.WithArtifacts(store),
		runner.WithHistoryOpener(runner.GitOpener(cfg.Revision.Extensions, revisionOptions(cfg.Revision)...)),
		runner.WithRepoRoot(cfg.Revision.RepoRoot),
		runner.WithLogger(logger),
	)

	logger.Debug(context.Background(), "services ready",
		zap.String("llm.provider", cfg.LLM.Provider),
		zap.String("vectorstore.provider", cfg.VectorStore.Provider),
		zap.Bool("redact_secrets", redactor != nil))
	return r, nil
}

// OpenIngest builds the writable index and the policy ingester.
func OpenIngest(cfg *config.Config, logger *logging.Logger, opts Options) (*Registry, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Registry{cfg: cfg, logger: logger}
	if err := r.openIndex(opts.Embedder, false); err != nil {
		return nil, err
	}
	r.ingester = policy.NewIngester(r.index, logger)
	return r, nil
}

func (r *Registry) openIndex(embedder embeddings.Provider, readOnly bool) error {
	if embedder == nil {
		p, err := embeddings.NewProvider(r.cfg.Embeddings)
		if err != nil {
			return fmt.Errorf("creating embeddings provider: %w", err)
		}
		embedder = p
	}
	r.embedder = embedder

	index, err := vectorstore.Open(r.cfg.VectorStore, embedder, readOnly, r.logger)
	switch {
	case err == nil:
		r.index = index
	case readOnly && errors.Is(err, vectorstore.ErrIndexUnavailable):
		// Runs still complete; retrieval records the failure on each result.
		r.logger.Warn(context.Background(), "policy index unavailable, run `apigov ingest` first", zap.Error(err))
		r.index = vectorstore.Unavailable(err)
	default:
		_ = embedder.Close()
		return fmt.Errorf("opening policy index: %w", err)
	}
	return nil
}

// Config returns the configuration the registry was built from.
func (r *Registry) Config() *config.Config { return r.cfg }

// Pipeline returns the governance pipeline, or nil for an ingest registry.
func (r *Registry) Pipeline() *governance.Pipeline { return r.pipeline }

// Runner returns the runner, or nil for an ingest registry.
func (r *Registry) Runner() *runner.Runner { return r.runner }

// Ingester returns the policy ingester, or nil for a validation registry.
func (r *Registry) Ingester() *policy.Ingester { return r.ingester }

// Index returns the policy index.
func (r *Registry) Index() vectorstore.Store { return r.index }

// Close releases the index and embedder.
func (r *Registry) Close() error {
	var errs []error
	if r.index != nil {
		errs = append(errs, r.index.Close())
	}
	if r.embedder != nil {
		errs = append(errs, r.embedder.Close())
	}
	return errors.Join(errs...)
}

func revisionOptions(cfg config.RevisionConfig) []revision.Option {
	opts := []revision.Option{revision.WithExclude(cfg.Exclude...)}
	if cfg.IgnoreFile != "" {
		opts = append(opts, revision.WithIgnoreFile(cfg.IgnoreFile))
	}
	return opts
}
