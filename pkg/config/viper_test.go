package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewViperReadsExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fetcher:\n  mode: colly\n"), 0o600))

	v, used, err := NewViper(path)
	require.NoError(t, err)
	require.Equal(t, path, used)
	require.Equal(t, "colly", v.GetString("fetcher.mode"))
}

func TestNewViperEnvOverrides(t *testing.T) {
	t.Setenv("SCRAPER_FETCHER_MODE", "headless")
	path := filepath.Join(t.TempDir(), "scraper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fetcher:\n  mode: colly\n"), 0o600))

	v, _, err := NewViper(path)
	require.NoError(t, err)
	require.Equal(t, "headless", v.GetString("fetcher.mode"))
}

func TestNewViperMissingExplicitFileFails(t *testing.T) {
	_, _, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestNewViperWithoutFileUsesEnvOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SCRAPER_PIPELINE_WORKERS", "7")

	v, used, err := NewViper("")
	require.NoError(t, err)
	require.Empty(t, used)
	require.Equal(t, 7, v.GetInt("pipeline.workers"))
}
