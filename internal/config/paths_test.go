package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPaths(t *testing.T) {
	base := t.TempDir()

	t.Run("relative directories resolve against base", func(t *testing.T) {
		paths, err := GetPaths(PathsConfig{DataDir: "data", LogsDir: "logs"}, base)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(base, "data"), paths.DataDir)
		assert.Equal(t, filepath.Join(base, "data", "raw"), paths.RawDir)
		assert.Equal(t, filepath.Join(base, "data", "interim"), paths.InterimDir)
		assert.Equal(t, filepath.Join(base, "data", "processed"), paths.ProcessedDir)
		assert.Equal(t, filepath.Join(base, "data", "cache"), paths.CacheDir)
		assert.Equal(t, filepath.Join(base, "logs"), paths.LogsDir)
		assert.Equal(t, filepath.Join(base, "x.csv"), paths.Resolve("x.csv"))
	})

	t.Run("absolute directories are kept", func(t *testing.T) {
		abs := filepath.Join(base, "elsewhere")
		paths, err := GetPaths(PathsConfig{DataDir: abs, LogsDir: "logs"}, base)
		require.NoError(t, err)
		assert.Equal(t, abs, paths.DataDir)
	})

	t.Run("empty base uses working directory", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)
		paths, err := GetPaths(PathsConfig{DataDir: "data", LogsDir: "logs"}, "")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(wd, "data"), paths.DataDir)
	})
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	paths, err := GetPaths(PathsConfig{DataDir: "data", LogsDir: "logs"}, base)
	require.NoError(t, err)

	require.NoError(t, paths.EnsureDirectories())
	for _, dir := range []string{paths.RawDir, paths.InterimDir, paths.ProcessedDir, paths.CacheDir, paths.LogsDir} {
		assert.True(t, FileExists(dir), dir)
	}

	paths.LogPathResolution(nil)
}
