// Package config loads runtime configuration for the research agent server.
//
// Sources, lowest priority first: built-in defaults, an optional YAML file
// (webresearcher.yaml in the config dir), then environment variables. A .env
// file is loaded into the environment before reading, so local development
// works without exporting anything.
package config

import (
	"time"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Tools   ToolsConfig   `yaml:"tools"`
	Agent   AgentConfig   `yaml:"agent"`
	Server  ServerConfig  `yaml:"server"`
	History HistoryConfig `yaml:"history"`
}

// LLMConfig configures the chat-completion client.
type LLMConfig struct {
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	SummaryModel    string        `yaml:"summary_model"`
	Temperature     float32       `yaml:"temperature"`
	TopP            float32       `yaml:"top_p"`
	PresencePenalty float32       `yaml:"presence_penalty"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxInputTokens  int           `yaml:"max_input_tokens"`
}

// ToolsConfig configures the built-in tool implementations.
type ToolsConfig struct {
	SerperAPIKey        string        `yaml:"serper_api_key"`
	JinaAPIKey          string        `yaml:"jina_api_key"`
	SandboxEndpoints    []string      `yaml:"sandbox_endpoints"`
	FileDir             string        `yaml:"file_dir"`
	VisitTimeout        time.Duration `yaml:"visit_timeout"`
	WebContentMaxLength int           `yaml:"web_content_max_length"`
}

// AgentConfig bounds a single agent-loop invocation.
type AgentConfig struct {
	MaxLLMCallsPerRun int           `yaml:"max_llm_calls_per_run"`
	Timeout           time.Duration `yaml:"timeout"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// HistoryConfig configures session persistence.
type HistoryConfig struct {
	FilePath string `yaml:"file_path"`
}

func defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			SummaryModel:    "gpt-4o-mini",
			Temperature:     0.6,
			TopP:            0.95,
			PresencePenalty: 1.1,
			Timeout:         300 * time.Second,
			MaxInputTokens:  32000,
		},
		Tools: ToolsConfig{
			FileDir:             "./files",
			VisitTimeout:        200 * time.Second,
			WebContentMaxLength: 150000,
		},
		Agent: AgentConfig{
			MaxLLMCallsPerRun: 100,
			Timeout:           1800 * time.Second,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			AllowedOrigins: []string{"*"},
		},
		History: HistoryConfig{
			FilePath: "./data/history.jsonl",
		},
	}
}
