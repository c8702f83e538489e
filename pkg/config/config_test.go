package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.95, cfg.Resolution.NameThreshold)
	assert.Equal(t, 0.92, cfg.Resolution.EmbeddingThreshold)
	assert.Equal(t, 0.8, cfg.Resolution.BulkNameThreshold)
	assert.Equal(t, 50, cfg.Resolution.CandidateLimit)
	assert.Equal(t, "earliest-created", cfg.Merge.CanonicalPolicy)
	assert.Equal(t, "soft", cfg.Merge.RetireMode)
	assert.Equal(t, 100, cfg.Reconcile.BatchSize)
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	resetViper(t)
	viper.Set("resolution.name_threshold", 1.5)

	_, err := Load()
	assert.ErrorIs(t, err, &types.ConfigurationError{})
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	resetViper(t)
	viper.Set("merge.canonical_policy", "largest-degree")

	_, err := Load()
	assert.ErrorIs(t, err, &types.ConfigurationError{})
}

func TestLoadRejectsUnknownRetireMode(t *testing.T) {
	resetViper(t)
	viper.Set("merge.retire_mode", "archive")

	_, err := Load()
	assert.ErrorIs(t, err, &types.ConfigurationError{})
}

func TestEnvOverridesDatabase(t *testing.T) {
	resetViper(t)
	t.Setenv("NEO4J_URI", "bolt://graph:7687")
	t.Setenv("NEO4J_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "bolt://graph:7687", cfg.Database.URI)
	assert.Equal(t, "secret", cfg.Database.Password)
}
