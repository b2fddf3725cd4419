package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amandocs/internal/config"
)

func TestProjectConfigTemplate_IsValidYAML(t *testing.T) {
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(ProjectConfigTemplate), &doc))

	for _, section := range []string{"paths", "search", "embeddings", "store", "performance", "server"} {
		assert.Contains(t, doc, section)
	}
}

func TestProjectConfigTemplate_MatchesDefaults(t *testing.T) {
	// Given: a project whose config is the unmodified template
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amandocs.yaml"), []byte(ProjectConfigTemplate), 0o644))

	// When: loading it
	cfg, err := config.Load(dir)

	// Then: it loads cleanly and agrees with the built-in defaults
	require.NoError(t, err)
	defaults := config.NewConfig()
	assert.Equal(t, defaults.Paths.DataDir, cfg.Paths.DataDir)
	assert.Equal(t, defaults.Search, cfg.Search)
	assert.Equal(t, defaults.Embeddings.Provider, cfg.Embeddings.Provider)
	assert.Equal(t, defaults.Embeddings.Dimensions, cfg.Embeddings.Dimensions)
	assert.Equal(t, defaults.Store, cfg.Store)
	assert.Equal(t, defaults.Performance.WatchDebounce, cfg.Performance.WatchDebounce)
	assert.Equal(t, defaults.Server.LogLevel, cfg.Server.LogLevel)
}
