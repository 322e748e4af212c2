package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/opshistory/internal/codec"
	"github.com/rcliao/opshistory/internal/history"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, history.DefaultCountLimit, cfg.History.CountLimit)
	assert.EqualValues(t, history.DefaultMemoryBudgetMB, cfg.History.MemoryBudgetMB)
	assert.True(t, cfg.History.AutoCleanup)
	assert.Equal(t, codec.Native, cfg.History.Codec)
	assert.False(t, cfg.History.EmbedPayloads)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, history.DefaultCountLimit, cfg.History.CountLimit)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opshistory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
history:
  count_limit: 25
  memory_budget_mb: 0.5
  codec: deflate
  embed_payloads: true
  entity_collections: [rooms]
archive:
  db_path: /tmp/archive.db
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.History.CountLimit)
	assert.Equal(t, 0.5, cfg.History.MemoryBudgetMB)
	assert.Equal(t, codec.Deflate, cfg.History.Codec)
	assert.True(t, cfg.History.EmbedPayloads)
	assert.True(t, cfg.History.AutoCleanup)
	assert.Equal(t, []string{"rooms"}, cfg.History.EntityCollections)
	assert.Equal(t, "/tmp/archive.db", cfg.Archive.DBPath)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opshistory.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"history": {"count_limit": 7, "codec": "none"}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.History.CountLimit)
	assert.Equal(t, codec.None, cfg.History.Codec)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opshistory.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history:\n  count_limit: 25\n"), 0o644))
	t.Setenv("OPSHISTORY_COUNT_LIMIT", "40")
	t.Setenv("OPSHISTORY_AUTO_CLEANUP", "false")
	t.Setenv("OPSHISTORY_CODEC", "none")
	t.Setenv("OPSHISTORY_DB", "/var/lib/ops.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.History.CountLimit)
	assert.False(t, cfg.History.AutoCleanup)
	assert.Equal(t, codec.None, cfg.History.Codec)
	assert.Equal(t, "/var/lib/ops.db", cfg.Archive.DBPath)
}

func TestLoadEnvBools(t *testing.T) {
	t.Setenv("OPSHISTORY_AUTO_CLEANUP", "TRUE")
	t.Setenv("OPSHISTORY_EMBED_PAYLOADS", "1")
	t.Setenv("OPSHISTORY_DEBUG_LOG", "T")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.History.AutoCleanup)
	assert.True(t, cfg.History.EmbedPayloads)
	assert.True(t, cfg.History.DebugLog)

	t.Setenv("OPSHISTORY_AUTO_CLEANUP", "False")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.False(t, cfg.History.AutoCleanup)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad number", map[string]string{"OPSHISTORY_COUNT_LIMIT": "many"}},
		{"zero limit", map[string]string{"OPSHISTORY_COUNT_LIMIT": "0"}},
		{"negative budget", map[string]string{"OPSHISTORY_MEMORY_BUDGET_MB": "-1"}},
		{"unknown codec", map[string]string{"OPSHISTORY_CODEC": "zstd"}},
		{"bad level", map[string]string{"OPSHISTORY_LOG_LEVEL": "loud"}},
		{"bad format", map[string]string{"OPSHISTORY_LOG_FORMAT": "xml"}},
		{"bad bool", map[string]string{"OPSHISTORY_AUTO_CLEANUP": "yes please"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
