package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the optional YAML file read from the config dir.
const ConfigFileName = "webresearcher.yaml"

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load .env into the process environment (missing file is fine)
//  2. Start from built-in defaults
//  3. Merge webresearcher.yaml from configDir if present
//  4. Apply environment variable overrides
//  5. Validate
func Initialize(configDir string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg := defaults()

	if configDir != "" {
		if err := mergeYAMLFile(cfg, filepath.Join(configDir, ConfigFileName)); err != nil {
			return nil, fmt.Errorf("failed to load configuration file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	slog.Info("Configuration initialized",
		"model", cfg.LLM.Model,
		"base_url", cfg.LLM.BaseURL,
		"max_llm_calls", cfg.Agent.MaxLLMCallsPerRun,
		"history_file", cfg.History.FilePath)

	return cfg, nil
}

func mergeYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	// File values override defaults; env is applied on top afterwards.
	if err := mergo.Merge(cfg, &fileCfg, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge configuration: %w", err)
	}
	return nil
}

// applyEnv overrides config fields from environment variables. Empty or
// unparsable values leave the current value in place.
func applyEnv(cfg *Config) {
	setString(&cfg.LLM.APIKey, "LLM_API_KEY")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.Model, "LLM_MODEL_NAME")
	setString(&cfg.LLM.SummaryModel, "SUMMARY_MODEL_NAME")
	setSeconds(&cfg.LLM.Timeout, "LLM_TIMEOUT")
	setInt(&cfg.LLM.MaxInputTokens, "MAX_INPUT_TOKENS")

	setString(&cfg.Tools.SerperAPIKey, "SERPER_API_KEY")
	setString(&cfg.Tools.JinaAPIKey, "JINA_API_KEY")
	setString(&cfg.Tools.FileDir, "FILE_DIR")
	setSeconds(&cfg.Tools.VisitTimeout, "VISIT_SERVER_TIMEOUT")
	setInt(&cfg.Tools.WebContentMaxLength, "WEBCONTENT_MAXLENGTH")
	if v := os.Getenv("SANDBOX_FUSION_ENDPOINTS"); v != "" {
		cfg.Tools.SandboxEndpoints = splitCSV(v)
	}

	setInt(&cfg.Agent.MaxLLMCallsPerRun, "MAX_LLM_CALL_PER_RUN")
	setSeconds(&cfg.Agent.Timeout, "AGENT_TIMEOUT")

	setString(&cfg.Server.Host, "HOST")
	setInt(&cfg.Server.Port, "PORT")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitCSV(v)
	}

	setString(&cfg.History.FilePath, "HISTORY_FILE")
}

func (c *Config) validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("%w: LLM_MODEL_NAME", ErrMissingRequiredField)
	}
	if c.Agent.MaxLLMCallsPerRun < 1 {
		return fmt.Errorf("%w: max_llm_calls_per_run must be >= 1", ErrInvalidValue)
	}
	if c.LLM.MaxInputTokens < 1 {
		return fmt.Errorf("%w: max_input_tokens must be >= 1", ErrInvalidValue)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidValue, c.Server.Port)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring unparsable integer environment variable", "key", key, "value", v)
		return
	}
	*dst = n
}

// setSeconds parses a bare number of seconds, matching how the limits are
// conventionally exported (AGENT_TIMEOUT=1800).
func setSeconds(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Ignoring unparsable duration environment variable", "key", key, "value", v)
		return
	}
	*dst = time.Duration(n * float64(time.Second))
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
