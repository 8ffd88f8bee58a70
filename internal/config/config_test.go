package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"filemonitor/internal/logging"
	"filemonitor/internal/monitor"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func noEnv(string) (string, bool) {
	return "", false
}

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "filemonitor.toml", `
log_level = "debug"
log_format = "json"
settle = "150ms"
listen = "127.0.0.1:9000"
journal = "/var/lib/filemonitor/events.db"

[[watch]]
path = "/srv/data"
recursive = true
flags = ["watch_moves"]
ignore = ["*.swp", ".git"]

[[watch]]
path = "/etc/hosts"
`)

	cfg, err := LoadWithEnv(path, noEnv)
	require.NoError(t, err)
	require.Equal(t, logging.LevelDebug, cfg.Level())
	require.Equal(t, logging.FormatJSON, cfg.Format())
	require.Equal(t, 150*time.Millisecond, cfg.Settle)
	require.Equal(t, "127.0.0.1:9000", cfg.Listen)
	require.Equal(t, DefaultMaxWatches, cfg.MaxWatches)
	require.Len(t, cfg.Watches, 2)
	require.True(t, cfg.Watches[0].Recursive)
	require.Equal(t, []string{"*.swp", ".git"}, cfg.Watches[0].Ignore)
	require.Equal(t, SourceFile, cfg.Sources["listen"])
	require.Equal(t, SourceDefault, cfg.Sources["max_watches"])

	flags, err := cfg.Watches[0].MonitorFlags()
	require.NoError(t, err)
	require.Equal(t, monitor.FlagWatchMoves, flags)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "filemonitor.yaml", `
log_level: warn
settle: 1s
watch:
  - path: /srv/data
    recursive: true
    flags: [send_moved]
`)

	cfg, err := LoadWithEnv(path, noEnv)
	require.NoError(t, err)
	require.Equal(t, logging.LevelWarning, cfg.Level())
	require.Equal(t, time.Second, cfg.Settle)
	require.Equal(t, DefaultListen, cfg.Listen)
	require.Equal(t, "/srv/data", cfg.Watches[0].Path)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "filemonitor.toml", `
log_levle = "debug"

[[watch]]
path = "/srv"
`)
	_, err := LoadWithEnv(path, noEnv)
	require.ErrorContains(t, err, "log_levle")

	yamlPath := writeFile(t, "filemonitor.yml", "watch:\n  - path: /srv\n    recursiv: true\n")
	_, err = LoadWithEnv(yamlPath, noEnv)
	require.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "filemonitor.toml", `
log_level = "debug"

[[watch]]
path = "/srv"
`)
	cfg, err := LoadWithEnv(path, envMap(map[string]string{
		"FILEMONITOR_LOG_LEVEL":   "error",
		"FILEMONITOR_SETTLE":      "2s",
		"FILEMONITOR_LISTEN":      " :9999 ",
		"FILEMONITOR_MAX_WATCHES": "10",
		"FILEMONITOR_JOURNAL":     "",
	}))
	require.NoError(t, err)
	require.Equal(t, "error", cfg.LogLevel)
	require.Equal(t, 2*time.Second, cfg.Settle)
	require.Equal(t, ":9999", cfg.Listen)
	require.Equal(t, 10, cfg.MaxWatches)
	require.Equal(t, "", cfg.Journal)
	require.Equal(t, SourceEnv, cfg.Sources["log_level"])
	require.Equal(t, SourceDefault, cfg.Sources["journal"])
}

func TestLoadRejectsBadEnv(t *testing.T) {
	path := writeFile(t, "filemonitor.toml", "[[watch]]\npath = \"/srv\"\n")
	_, err := LoadWithEnv(path, envMap(map[string]string{"FILEMONITOR_SETTLE": "soon"}))
	require.ErrorContains(t, err, "FILEMONITOR_SETTLE")
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"
	cfg.Watches = []Watch{
		{Path: ""},
		{Path: "/srv", Flags: []string{"follow_symlinks"}},
		{Path: "/srv", Ignore: []string{"[bad"}},
	}

	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, "invalid log_level")
	require.ErrorContains(t, err, "watch[0]: path is required")
	require.ErrorIs(t, err, monitor.ErrUnsupportedFlag)
	require.ErrorContains(t, err, "duplicate path")
	require.ErrorContains(t, err, "[bad")
}

func TestValidateRequiresWatches(t *testing.T) {
	require.ErrorIs(t, Default().Validate(), ErrNoWatches)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "filemonitor.ini", "")
	_, err := LoadWithEnv(path, noEnv)
	require.ErrorContains(t, err, "unsupported config format")
}
