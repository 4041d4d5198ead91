// Package config provides configuration loading for apigov.
//
// Configuration is assembled from hardcoded defaults, an optional YAML file and
// APIGOV_* environment variables. Credentials for the text-generation backend are
// validated eagerly: a missing endpoint, key, deployment or API version is a fatal
// ErrConfiguration returned before any pipeline runs.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConfiguration indicates a required setting is missing or invalid.
var ErrConfiguration = errors.New("configuration error")

// LLM providers.
const (
	ProviderAzure     = "azure"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds the complete apigov configuration.
type Config struct {
	LLM         LLMConfig         `koanf:"llm"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	Revision    RevisionConfig    `koanf:"revision"`
	Artifacts   ArtifactsConfig   `koanf:"artifacts"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// LLMConfig configures the text-generation backend.
type LLMConfig struct {
	Provider    string        `koanf:"provider"`
	Endpoint    string        `koanf:"endpoint"`
	APIKey      Secret        `koanf:"api_key"`
	Deployment  string        `koanf:"deployment"`
	APIVersion  string        `koanf:"api_version"`
	Model       string        `koanf:"model"`
	Temperature float64       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxRetries  int           `koanf:"max_retries"`
	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
}

// EmbeddingsConfig configures the embedder used to query the policy index.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"` // fastembed or openai
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
}

// VectorStoreConfig configures the policy index.
type VectorStoreConfig struct {
	Provider   string `koanf:"provider"` // chromem or qdrant
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
	QdrantURL  string `koanf:"qdrant_url"`
	QdrantKey  Secret `koanf:"qdrant_api_key"`
}

// PipelineConfig tunes the validation pipeline.
type PipelineConfig struct {
	TopK                  int           `koanf:"top_k"`
	ValidationConcurrency int           `koanf:"validation_concurrency"`
	StageTimeout          time.Duration `koanf:"stage_timeout"`
	RedactSecrets         bool          `koanf:"redact_secrets"`
}

// RevisionConfig filters which changed files a git batch run analyzes.
type RevisionConfig struct {
	Extensions []string `koanf:"extensions"`
	// Exclude holds gitignore-style patterns for files never analyzed.
	Exclude []string `koanf:"exclude"`
	// IgnoreFile is read from the new revision's tree; empty uses .apigovignore.
	IgnoreFile string `koanf:"ignore_file"`
	// RepoRoot, when set, confines git runs to repositories beneath it.
	RepoRoot string `koanf:"repo_root"`
}

// ArtifactsConfig sets where run artifacts are written.
type ArtifactsConfig struct {
	Dir string `koanf:"dir"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
	Endpoint    string `koanf:"endpoint"`
	Insecure    bool   `koanf:"insecure"`

	// SampleRate is the trace sampling ratio in (0, 1].
	SampleRate     float64       `koanf:"sample_rate"`
	MetricInterval time.Duration `koanf:"metric_interval"`
}

// Validate checks the configuration.
//
// All errors wrap ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if c.Pipeline.TopK <= 0 {
		return fmt.Errorf("%w: pipeline.top_k must be positive, got %d", ErrConfiguration, c.Pipeline.TopK)
	}
	if c.Pipeline.ValidationConcurrency <= 0 {
		return fmt.Errorf("%w: pipeline.validation_concurrency must be positive, got %d", ErrConfiguration, c.Pipeline.ValidationConcurrency)
	}
	if c.Pipeline.StageTimeout <= 0 {
		return fmt.Errorf("%w: pipeline.stage_timeout must be positive", ErrConfiguration)
	}
	switch c.VectorStore.Provider {
	case "chromem":
		if c.VectorStore.Path == "" {
			return fmt.Errorf("%w: vectorstore.path required for chromem", ErrConfiguration)
		}
	case "qdrant":
		if c.VectorStore.QdrantURL == "" {
			return fmt.Errorf("%w: vectorstore.qdrant_url required for qdrant", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown vectorstore.provider %q", ErrConfiguration, c.VectorStore.Provider)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port: %d (must be 1-65535)", ErrConfiguration, c.Server.Port)
	}
	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return fmt.Errorf("%w: service name required when telemetry is enabled", ErrConfiguration)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("%w: telemetry sample rate must be between 0 and 1, got %v", ErrConfiguration, c.Telemetry.SampleRate)
	}
	return nil
}

// Validate checks that the credentials for the selected provider are present.
func (c LLMConfig) Validate() error {
	var missing []string
	switch c.Provider {
	case ProviderAzure:
		if c.Endpoint == "" {
			missing = append(missing, "llm.endpoint")
		}
		if !c.APIKey.IsSet() {
			missing = append(missing, "llm.api_key")
		}
		if c.Deployment == "" {
			missing = append(missing, "llm.deployment")
		}
		if c.APIVersion == "" {
			missing = append(missing, "llm.api_version")
		}
	case ProviderOpenAI, ProviderAnthropic:
		if !c.APIKey.IsSet() {
			missing = append(missing, "llm.api_key")
		}
	default:
		return fmt.Errorf("%w: unknown llm.provider %q", ErrConfiguration, c.Provider)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s not set", ErrConfiguration, strings.Join(missing, ", "))
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: llm.timeout must be positive", ErrConfiguration)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: llm.max_retries cannot be negative", ErrConfiguration)
	}
	return nil
}
