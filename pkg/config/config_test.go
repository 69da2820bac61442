package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "campus_documents", cfg.Milvus.CollectionName)
	assert.Equal(t, 5, cfg.Pipeline.TopK)
	assert.Equal(t, 7, cfg.Pipeline.RelevanceThreshold)
	assert.Equal(t, 2, cfg.Pipeline.NoiseFloor)
	assert.Equal(t, 3, cfg.Pipeline.FallbackChunks)
	assert.True(t, cfg.Pipeline.Deep)
	assert.Contains(t, cfg.Campus.Batches, "2023-2027")
	assert.Contains(t, cfg.Campus.DocumentTypes, "FeesNotice")
	assert.Len(t, cfg.Campus.Semesters, 8)
}
