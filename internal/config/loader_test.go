package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, 1536, cfg.VectorStore.VectorSize)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.35, cfg.Retrieval.ScoreThreshold, 1e-9)
	assert.Equal(t, 10, cfg.Quota.DefaultOrg.MaxMembers)
	assert.Equal(t, 500, cfg.Quota.DefaultOrg.MaxQueriesOrgDaily)
	assert.Equal(t, "plain", cfg.Customization.Defaults.ResponseFormat)
	assert.NotEmpty(t, cfg.Customization.Defaults.SystemPrompt)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8088
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
    port: 7443
    use_tls: true
retrieval:
  top_k: 8
  score_threshold: 0.5
  cache_ttl: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 7443, cfg.VectorStore.Qdrant.Port)
	assert.True(t, cfg.VectorStore.Qdrant.UseTLS)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.5, cfg.Retrieval.ScoreThreshold, 1e-9)
	assert.Equal(t, 2*time.Minute, cfg.Retrieval.CacheTTL)
	// untouched sections keep defaults
	assert.Equal(t, "localhost", cfg.Server.Host)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("KNOWLEDGED_SERVER__PORT", "7001")
	t.Setenv("KNOWLEDGED_LOG__LEVEL", "debug")
	t.Setenv("KNOWLEDGED_VECTORSTORE__VECTOR_SIZE", "768")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 768, cfg.VectorStore.VectorSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: "unsupported database driver",
		},
		{
			name:    "bad vector provider",
			mutate:  func(c *Config) { c.VectorStore.Provider = "pinecone" },
			wantErr: "unsupported vector store provider",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "unsupported log format",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Retrieval.ScoreThreshold = 1.5 },
			wantErr: "score threshold",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.Customization.Defaults.Temperature = 3 },
			wantErr: "temperature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
