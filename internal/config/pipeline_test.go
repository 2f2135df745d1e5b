package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPipelineSettingsMissingFileUsesDefaults(t *testing.T) {
	settings, err := LoadPipelineSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPipelineSettings(), settings)
}

func TestLoadPipelineSettingsOverridesPartially(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	body := "summarizer:\n  max_input_tokens: 8000\nretrieval:\n  top_n: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	settings, err := LoadPipelineSettings(path)
	require.NoError(t, err)

	assert.Equal(t, 8000, settings.Summarizer.MaxInputTokens)
	assert.Equal(t, 100, settings.Summarizer.WordsPerChunkSummary)
	assert.Equal(t, 3, settings.Retrieval.TopN)
	assert.Equal(t, 10, settings.Retrieval.TopK)
	assert.Equal(t, 1000, settings.Chunking.ChunkSize)
}

func TestLoadPipelineSettingsRejectsBadOverlap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking:\n  chunk_size: 100\n  chunk_overlap: 100\n"), 0o600))

	_, err := LoadPipelineSettings(path)
	assert.Error(t, err)
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("GENERATION_SERVICE_URL", "http://localhost:8002")
	t.Setenv("PIPELINE_CONFIG", "")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("GENERATION_SERVICE_URL", "http://localhost:8002")
	t.Setenv("GENERATION_TIMEOUT", "45s")
	t.Setenv("WORKER_CONCURRENCY", "4")
	t.Setenv("PIPELINE_CONFIG", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8002", cfg.GenerationServiceURL)
	assert.Equal(t, 45.0, cfg.GenerationTimeout.Seconds())
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 30000, cfg.Pipeline.Summarizer.MaxInputTokens)
}
