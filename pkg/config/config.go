// Package config loads engine configuration from file and environment via
// viper. Invalid settings fail at Load time; nothing downstream revalidates.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/oculairmedia/graphiti-sub006/pkg/dedup"
	"github.com/oculairmedia/graphiti-sub006/pkg/driver"
	"github.com/oculairmedia/graphiti-sub006/pkg/merge"
	"github.com/oculairmedia/graphiti-sub006/pkg/types"
	"github.com/oculairmedia/graphiti-sub006/pkg/utils"
)

// Config holds all configuration for the resolution engine.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NLP        NLPConfig        `mapstructure:"nlp"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Resolution ResolutionConfig `mapstructure:"resolution"`
	Merge      MergeConfig      `mapstructure:"merge"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds graph backend configuration.
type DatabaseConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// NLPConfig holds the judgment backend configuration.
type NLPConfig struct {
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// EmbeddingConfig holds the embedding backend configuration.
type EmbeddingConfig struct {
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

// ResolutionConfig holds matching thresholds and concurrency limits.
type ResolutionConfig struct {
	NameThreshold       float64 `mapstructure:"name_threshold"`
	EmbeddingThreshold  float64 `mapstructure:"embedding_threshold"`
	BulkNameThreshold   float64 `mapstructure:"bulk_name_threshold"`
	CandidateLimit      int     `mapstructure:"candidate_limit"`
	MaxConcurrency      int     `mapstructure:"max_concurrency"`
	JudgeTimeoutSeconds int     `mapstructure:"judge_timeout_seconds"`
	EmbedTimeoutSeconds int     `mapstructure:"embed_timeout_seconds"`
}

// MergeConfig holds merge execution policy.
type MergeConfig struct {
	CanonicalPolicy string `mapstructure:"canonical_policy"` // earliest-created, prefer-attributes
	RetireMode      string `mapstructure:"retire_mode"`      // soft, hard
}

// ReconcileConfig holds maintenance sweep configuration.
type ReconcileConfig struct {
	CheckpointPath string `mapstructure:"checkpoint_path"`
	ReportPath     string `mapstructure:"report_path"`
	BatchSize      int    `mapstructure:"batch_size"`
}

// Load reads configuration from viper's sources, applies environment
// overrides, and validates. Invalid settings are fatal here, never
// per-item downstream.
func Load() (*Config, error) {
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("database.uri", "bolt://localhost:7687")
	viper.SetDefault("database.username", "neo4j")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.database", "neo4j")

	viper.SetDefault("nlp.model", "gpt-4.1-mini")
	viper.SetDefault("nlp.temperature", 0.0)
	viper.SetDefault("nlp.max_tokens", 1024)

	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 1536)

	viper.SetDefault("resolution.name_threshold", dedup.DefaultNameThreshold)
	viper.SetDefault("resolution.embedding_threshold", dedup.DefaultEmbeddingThreshold)
	viper.SetDefault("resolution.bulk_name_threshold", dedup.BulkNameThreshold)
	viper.SetDefault("resolution.candidate_limit", dedup.DefaultCandidateLimit)
	viper.SetDefault("resolution.max_concurrency", utils.GetSemaphoreLimit())
	viper.SetDefault("resolution.judge_timeout_seconds", 30)
	viper.SetDefault("resolution.embed_timeout_seconds", 15)

	viper.SetDefault("merge.canonical_policy", string(merge.PolicyEarliestCreated))
	viper.SetDefault("merge.retire_mode", string(driver.RetireModeSoft))

	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("reconcile.checkpoint_path", home+"/.resolver/checkpoints")
		viper.SetDefault("reconcile.report_path", home+"/.resolver/reports")
	}
	viper.SetDefault("reconcile.batch_size", 100)
}

// overrideWithEnv overrides config with environment variables.
func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if config.NLP.APIKey == "" {
			config.NLP.APIKey = apiKey
		}
		if config.Embedding.APIKey == "" {
			config.Embedding.APIKey = apiKey
		}
	}
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}
}

// Validate rejects settings no run could operate under.
func (c *Config) Validate() error {
	if err := validThreshold("resolution.name_threshold", c.Resolution.NameThreshold); err != nil {
		return err
	}
	if err := validThreshold("resolution.embedding_threshold", c.Resolution.EmbeddingThreshold); err != nil {
		return err
	}
	if err := validThreshold("resolution.bulk_name_threshold", c.Resolution.BulkNameThreshold); err != nil {
		return err
	}
	if c.Resolution.CandidateLimit <= 0 {
		return &types.ConfigurationError{Field: "resolution.candidate_limit", Message: "must be positive"}
	}
	if c.Reconcile.BatchSize <= 0 {
		return &types.ConfigurationError{Field: "reconcile.batch_size", Message: "must be positive"}
	}

	switch merge.CanonicalPolicy(c.Merge.CanonicalPolicy) {
	case merge.PolicyEarliestCreated, merge.PolicyPreferAttributes:
	default:
		return &types.ConfigurationError{Field: "merge.canonical_policy", Message: fmt.Sprintf("unknown policy %q", c.Merge.CanonicalPolicy)}
	}
	switch driver.RetireMode(c.Merge.RetireMode) {
	case driver.RetireModeSoft, driver.RetireModeHard:
	default:
		return &types.ConfigurationError{Field: "merge.retire_mode", Message: fmt.Sprintf("unknown mode %q", c.Merge.RetireMode)}
	}
	return nil
}

func validThreshold(field string, value float64) error {
	if value <= 0 || value > 1 {
		return &types.ConfigurationError{Field: field, Message: "must be in (0, 1]"}
	}
	return nil
}
