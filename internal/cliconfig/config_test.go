package cliconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_ReturnsDefaultsWhenNoConfigFilesExist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, sources, err := Load(dir, "", Config{}, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
	require.Empty(t, sources.Global)
	require.Empty(t, sources.Project)
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeJSONC(t, filepath.Join(dir, ConfigFileName), `{
		// a comment hujson must tolerate
		"dir": "custom-dir",
		"max_size": 1048576,
	}`)

	cfg, sources, err := Load(dir, "", Config{}, nil)
	require.NoError(t, err)
	require.Equal(t, "custom-dir", cfg.Dir)
	require.Equal(t, int64(1048576), cfg.MaxSize)
	require.Equal(t, DefaultConfig().ValueCount, cfg.ValueCount)
	require.Equal(t, filepath.Join(dir, ConfigFileName), sources.Project)
}

func TestLoad_ExplicitOverrideWinsOverProjectConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeJSONC(t, filepath.Join(dir, ConfigFileName), `{"dir": "from-file"}`)

	override := Config{Dir: "from-flag"}
	setFields := map[string]bool{"dir": true}

	cfg, _, err := Load(dir, "", override, setFields)
	require.NoError(t, err)
	require.Equal(t, "from-flag", cfg.Dir)
}

func TestLoad_ExplicitConfigPathMustExist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, _, err := Load(dir, filepath.Join(dir, "missing.json"), Config{}, nil)
	require.Error(t, err)
}

func TestFormat_ProducesIndentedJSON(t *testing.T) {
	t.Parallel()

	out, err := Format(DefaultConfig())
	require.NoError(t, err)
	require.Contains(t, out, "\"dir\"")
	require.Contains(t, out, ".disklru-cache")
}

func writeJSONC(t *testing.T, path, contents string) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}
