package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apigov/internal/logging"
	"github.com/fyrsmithlabs/apigov/internal/runner"
)

// Runner executes validation runs. *runner.Runner satisfies it.
type Runner interface {
	RunCode(ctx context.Context, source, oldCode, newCode string) (*runner.Result, error)
	RunGit(ctx context.Context, req runner.GitRequest) (*runner.Result, error)
}

// Server is an MCP server exposing the governance pipeline.
type Server struct {
	mcp     *mcp.Server
	runner  Runner
	metrics *Metrics
	logger  *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "apigov")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "apigov",
		Version: "1.0.0",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates a new MCP server backed by r.
func NewServer(cfg *Config, r Runner) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if r == nil {
		return nil, fmt.Errorf("runner is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	logger := cfg.Logger.Named("mcp")
	s := &Server{
		mcp:     mcpServer,
		runner:  r,
		metrics: NewMetrics(logger.Underlying()),
		logger:  logger,
	}
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying SDK server, for connecting custom transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

func (s *Server) logToolError(ctx context.Context, tool string, err error) {
	s.logger.Warn(ctx, "tool call failed", zap.String("tool", tool), zap.Error(err))
}
