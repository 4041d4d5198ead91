package config

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "APIGOV_"
)

// legacyEnv maps environment variables understood by earlier releases onto config keys.
// They only apply when the corresponding APIGOV_* value is unset.
var legacyEnv = map[string]string{
	"OPENAI_API_KEY":             "llm.api_key",
	"API_AZURE_ENDPOINT":         "llm.endpoint",
	"API_AZURE_MODEL_DEPLOYMENT": "llm.deployment",
	"API_ENDPOINT_VERSION":       "llm.api_version",
}

// Load loads configuration from an optional YAML file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. APIGOV_* environment variables
//  2. Legacy variables (OPENAI_API_KEY, API_AZURE_ENDPOINT, ...)
//  3. YAML config file at configPath (skipped when configPath is empty)
//  4. Hardcoded defaults
//
// Environment variables map onto keys by splitting on the first underscore after the prefix:
//
//	APIGOV_LLM_API_KEY         -> llm.api_key
//	APIGOV_PIPELINE_TOP_K      -> pipeline.top_k
//	APIGOV_VECTORSTORE_PATH    -> vectorstore.path
//
// The returned config has been validated; every validation failure wraps ErrConfiguration.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Boolean defaults that should be on; zero values can't express them.
	if err := k.Set("pipeline.redact_secrets", true); err != nil {
		return nil, fmt.Errorf("setting defaults: %w", err)
	}

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: failed to load config file %s: %v", ErrConfiguration, configPath, err)
		}
	}

	for name, key := range legacyEnv {
		if v := os.Getenv(name); v != "" && !k.Exists(key) {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("applying %s: %w", name, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", ErrConfiguration, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey maps APIGOV_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile opens the file once and validates it through the open descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, err
	}

	return io.ReadAll(f)
}

// validateConfigFileProperties checks file permissions and size.
// The file may carry an API key, so group or world access is rejected.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm&0077 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderAzure
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 1
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.Burst == 0 {
		cfg.LLM.Burst = 5
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		if cfg.Embeddings.Provider == "openai" {
			cfg.Embeddings.Model = "text-embedding-3-small"
		} else {
			cfg.Embeddings.Model = "sentence-transformers/all-MiniLM-L6-v2"
		}
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "db"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "governance_policies"
	}

	if cfg.Pipeline.TopK == 0 {
		cfg.Pipeline.TopK = 5
	}
	if cfg.Pipeline.ValidationConcurrency == 0 {
		cfg.Pipeline.ValidationConcurrency = 4
	}
	if cfg.Pipeline.StageTimeout == 0 {
		cfg.Pipeline.StageTimeout = 5 * time.Minute
	}

	if len(cfg.Revision.Extensions) == 0 {
		cfg.Revision.Extensions = []string{".py"}
	}

	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = "output"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "apigov"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.MetricInterval == 0 {
		cfg.Telemetry.MetricInterval = 15 * time.Second
	}
}
