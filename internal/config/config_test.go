package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "txiso.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "pgx", cfg.Store.Driver)
	assert.Equal(t, "", cfg.Store.DSN)
	assert.Equal(t, 0, cfg.Store.MaxOpenConns)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "", cfg.Metrics.File)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: sqlite3
  dsn: /tmp/txiso.db
  max_open_conns: 40
logging:
  level: debug
  format: json
metrics:
  file: /tmp/txiso.prom
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, "/tmp/txiso.db", cfg.Store.DSN)
	assert.Equal(t, 40, cfg.Store.StoreOptions().MaxOpenConns)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/tmp/txiso.prom", cfg.Metrics.File)

	level, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: sqlite3\n  dsn: file.db\n")
	t.Setenv("TXISO_STORE_DSN", "postgres://env/txiso")
	t.Setenv("TXISO_STORE_DRIVER", "postgres")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://env/txiso", cfg.Store.DSN)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("TXISO_STORE_DSN", "postgres://env/txiso")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("driver", "", "")
	flags.String("dsn", "", "")
	flags.String("metrics-file", "", "")
	require.NoError(t, flags.Parse([]string{"--driver", "memory", "--dsn", "ignored"}))

	cfg, err := Load(writeConfig(t, ""), flags)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "ignored", cfg.Store.DSN)
	// Unset flag does not clobber the default.
	assert.Equal(t, "", cfg.Metrics.File)
}

func TestLoad_UnsetFlagKeepsDefault(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("driver", "", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(writeConfig(t, ""), flags)
	require.NoError(t, err)
	assert.Equal(t, "pgx", cfg.Store.Driver)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.ErrorContains(t, err, "error reading config")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"driver", "store:\n  driver: oracle\n", "unknown driver"},
		{"level", "logging:\n  level: loud\n", "logging.level"},
		{"format", "logging:\n  format: xml\n", "logging.format"},
		{"conns", "store:\n  max_open_conns: -1\n", "max_open_conns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), nil)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
