package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvDBPath, "")
	t.Setenv(EnvLogFile, "")
	t.Setenv(EnvBatchSize, "")
	t.Setenv(EnvSimilarityThreshold, "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.DBPath)
	assert.Equal(t, DefaultBatchSize, cfg.EmbedBatchSize)
	assert.Equal(t, DefaultSimilarityThreshold, cfg.SimilarityThreshold)
}

func TestLoadExplicitValues(t *testing.T) {
	t.Setenv(EnvDBPath, "/var/lib/cognicore/test.db")
	t.Setenv(EnvBatchSize, "50")
	t.Setenv(EnvSimilarityThreshold, "0.75")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/cognicore/test.db", cfg.DBPath)
	assert.Equal(t, 50, cfg.EmbedBatchSize)
	assert.Equal(t, 0.75, cfg.SimilarityThreshold)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric batch size", EnvBatchSize, "many"},
		{"zero batch size", EnvBatchSize, "0"},
		{"negative batch size", EnvBatchSize, "-3"},
		{"non-numeric threshold", EnvSimilarityThreshold, "high"},
		{"threshold above one", EnvSimilarityThreshold, "1.5"},
		{"threshold below minus one", EnvSimilarityThreshold, "-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvDBPath, "/tmp/cognicore-test.db")
			t.Setenv(EnvBatchSize, "")
			t.Setenv(EnvSimilarityThreshold, "")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
