// Package config loads tendermatch configuration from an optional YAML
// file with environment-variable overrides for secrets and the database
// URL. Defaults are sensible enough to run against a local Postgres with
// only DATABASE_URL and the provider keys set.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tendermatch configuration.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	LogLevel    string `yaml:"log_level"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Sources   []SourceConfig  `yaml:"sources"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Matching  MatchingConfig  `yaml:"matching"`
	Review    ReviewConfig    `yaml:"review"`
}

// EmbeddingConfig configures the embedding provider client.
type EmbeddingConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// LLMConfig configures the Tier-2 chat provider client.
type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// SourceConfig describes one OCDS release-package source.
type SourceConfig struct {
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	Epoch   string        `yaml:"epoch"` // watermark when no prior successful run, YYYY-MM-DD
	Timeout time.Duration `yaml:"timeout"`
}

// IngestionConfig tunes change detection and the renewal scan.
type IngestionConfig struct {
	ValueChangeThreshold float64 `yaml:"value_change_threshold"` // fraction, e.g. 0.10
	RenewalHorizonMonths int     `yaml:"renewal_horizon_months"`
	MaxAttempts          int     `yaml:"max_attempts"` // per-page fetch retries
}

// MatchingConfig tunes the recalculation fan-out.
type MatchingConfig struct {
	Workers int `yaml:"workers"` // parallel profiles
}

// ReviewConfig tunes the Tier-2 reviewer.
type ReviewConfig struct {
	TopK int `yaml:"top_k"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DatabaseURL: "postgres://localhost:5432/tendermatch?sslmode=disable",
		LogLevel:    "info",
		Embedding: EmbeddingConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "text-embedding-3-small",
			Timeout:     30 * time.Second,
			MaxAttempts: 6,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Timeout:     120 * time.Second,
			MaxAttempts: 3,
		},
		Sources: []SourceConfig{
			{
				Name:    "FTS",
				BaseURL: "https://www.find-tender.service.gov.uk/api/1.0/ocdsReleasePackages",
				Epoch:   "2023-01-01",
				Timeout: 30 * time.Second,
			},
		},
		Ingestion: IngestionConfig{
			ValueChangeThreshold: 0.10,
			RenewalHorizonMonths: 12,
			MaxAttempts:          3,
		},
		Matching: MatchingConfig{Workers: 4},
		Review:   ReviewConfig{TopK: 10},
	}
}

// Load reads the YAML file at path (a missing file is fine: defaults
// apply) and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv maps the documented environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embedding.APIKey = v
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = v
		}
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("VALUE_CHANGE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Ingestion.ValueChangeThreshold = f
		}
	}
}

// SourceEpoch parses a source's epoch date, falling back to 2023-01-01.
func (s SourceConfig) SourceEpoch() time.Time {
	if t, err := time.Parse("2006-01-02", s.Epoch); err == nil {
		return t.UTC()
	}
	return time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
}
