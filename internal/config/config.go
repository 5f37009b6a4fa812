package config

import (
	"fmt"
	"time"
)

// Config holds all recall configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Memory   MemoryConfig   `toml:"memory"`
	LLM      LLMConfig      `toml:"llm"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// MemoryConfig controls retention, promotion, and context assembly.
// Passed explicitly into memory.NewManager so tests can vary thresholds
// without touching process-wide state.
type MemoryConfig struct {
	ShortTermRetention time.Duration `toml:"short_term_retention"` // short_term items expire after this
	EpisodicRetention  time.Duration `toml:"episodic_retention"`   // episodic items expire after this
	PromotionThreshold float64       `toml:"promotion_threshold"`  // min importance for promotion
	ShortTermLimit     int           `toml:"short_term_limit"`     // max short_term items per owner
	FlowLimit          int           `toml:"flow_limit"`           // max conversation_flow entries
	MinContentLength   int           `toml:"min_content_length"`   // below this, importance is 0
	SweepInterval      time.Duration `toml:"sweep_interval"`       // background sweep cadence
}

type LLMConfig struct {
	Provider       string `toml:"provider"` // "anthropic", "ollama", or "" for none
	Model          string `toml:"model"`
	OllamaURL      string `toml:"ollama_url"`
	OllamaModel    string `toml:"ollama_model"`    // e.g. "llama3.2"
	EmbeddingModel string `toml:"embedding_model"` // e.g. "nomic-embed-text"
	AnthropicKey   string `toml:"anthropic_key"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Memory: DefaultMemory(),
		LLM: LLMConfig{
			Provider: "",
			Model:    "claude-haiku-4-5-20251001",
		},
	}
}

// DefaultMemory returns the default memory policy knobs.
func DefaultMemory() MemoryConfig {
	return MemoryConfig{
		ShortTermRetention: 24 * time.Hour,
		EpisodicRetention:  168 * time.Hour,
		PromotionThreshold: 0.7,
		ShortTermLimit:     20,
		FlowLimit:          20,
		MinContentLength:   10,
		SweepInterval:      time.Hour,
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
