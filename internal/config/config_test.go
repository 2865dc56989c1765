package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultSuggestionLimit, cfg.Spotlight.SuggestionLimit)
	assert.True(t, cfg.Accounts.ThreadsEnabled)
	assert.Equal(t, "keep", cfg.Accounts.ErasureMode)
}

func TestLoad_OverlaysFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[server]
addr = ":9090"

[spotlight]
suggestion_limit = 12
use_real_name = true

[postgres]
database = "parlor_test"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 12, cfg.Spotlight.SuggestionLimit)
	assert.True(t, cfg.Spotlight.UseRealName)
	assert.Equal(t, "parlor_test", cfg.Postgres.Database)
	// Untouched sections keep defaults.
	assert.Equal(t, DefaultPGHost, cfg.Postgres.Host)
}
