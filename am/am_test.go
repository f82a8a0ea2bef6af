package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/flowstate/codec"
	"github.com/teranos/flowstate/executor"
)

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

// isolate points HOME at an empty directory and clears cached config.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	Reset()
	t.Cleanup(Reset)
	return home
}

func writeTOML(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "flowstate.db", cfg.Database.Path)
	assert.Equal(t, "gzip", cfg.Store.Encoding)
	assert.Equal(t, executor.DefaultChunkSize, cfg.Store.LogChunkSize)
	assert.Equal(t, 30, cfg.Retention.LogDays)
	assert.Equal(t, 3600, cfg.Retention.SweepIntervalSeconds)
	assert.Equal(t, 30, cfg.Heartbeat.IntervalSeconds)
	assert.Equal(t, 3, cfg.Heartbeat.MaxRetries)
	assert.Equal(t, 2.0, cfg.Heartbeat.RetriesPerSecond)

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, cfg, DefaultConfig())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	writeTOML(t, path, `
[database]
driver = "mysql"
dsn = "flow:secret@tcp(db:3306)/flowstate"

[store]
encoding = "zstd"
log_chunk_size = 4096
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "flow:secret@tcp(db:3306)/flowstate", cfg.Database.DataSource())
	assert.Equal(t, 4096, cfg.Store.LogChunkSize)
	// Untouched sections keep their defaults
	assert.Equal(t, 30, cfg.Retention.LogDays)

	opts, err := cfg.StoreOptions()
	require.NoError(t, err)
	assert.Equal(t, codec.Zstd, opts.Encoding)
	assert.Equal(t, 4096, opts.ChunkSize)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_Precedence(t *testing.T) {
	home := isolate(t)
	writeTOML(t, filepath.Join(home, ".flowstate", "am.toml"), `
[store]
encoding = "plain"
log_chunk_size = 2048

[retention]
log_days = 14
`)

	project := t.TempDir()
	nested := filepath.Join(project, "jobs", "daily")
	require.NoError(t, os.MkdirAll(nested, 0755))
	writeTOML(t, filepath.Join(project, "am.toml"), `
[store]
log_chunk_size = 8192
`)
	chdir(t, nested)
	t.Setenv("FLOWSTATE_RETENTION_LOG_DAYS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "plain", cfg.Store.Encoding, "user file applies")
	assert.Equal(t, 8192, cfg.Store.LogChunkSize, "project file beats user file")
	assert.Equal(t, 3, cfg.Retention.LogDays, "environment beats files")

	assert.Equal(t, SourceUser, ConfigSources["store.encoding"].Source)
	assert.Equal(t, SourceProject, ConfigSources["store.log_chunk_size"].Source)
	assert.Len(t, LoadedFiles(), 2)

	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, cfg, again, "Load caches until Reset")
}

func TestLoad_EnvDSN(t *testing.T) {
	isolate(t)
	chdir(t, t.TempDir())
	t.Setenv("FLOWSTATE_DATABASE_DRIVER", "mysql")
	t.Setenv("FLOWSTATE_DATABASE_DSN", "u:p@tcp(localhost:3306)/fs")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "u:p@tcp(localhost:3306)/fs", cfg.Database.DataSource())
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"mysql without dsn", func(c *Config) { c.Database.Driver = "mysql" }, "database.dsn"},
		{"negative max conns", func(c *Config) { c.Database.MaxOpenConns = -1 }, "max_open_conns"},
		{"bad encoding", func(c *Config) { c.Store.Encoding = "brotli" }, "store.encoding"},
		{"zero chunk", func(c *Config) { c.Store.LogChunkSize = 0 }, "log_chunk_size"},
		{"huge chunk", func(c *Config) { c.Store.LogChunkSize = MaxLogChunkSize + 1 }, "log_chunk_size"},
		{"max chunk", func(c *Config) { c.Store.LogChunkSize = MaxLogChunkSize }, ""},
		{"retention disabled", func(c *Config) { c.Retention.LogDays = 0 }, ""},
		{"negative retention", func(c *Config) { c.Retention.LogDays = -1 }, "retention.log_days"},
		{"negative sweep", func(c *Config) { c.Retention.SweepIntervalSeconds = -5 }, "sweep_interval_seconds"},
		{"negative heartbeat", func(c *Config) { c.Heartbeat.IntervalSeconds = -1 }, "heartbeat.interval_seconds"},
		{"negative retries", func(c *Config) { c.Heartbeat.MaxRetries = -1 }, "max_retries"},
		{"negative rate", func(c *Config) { c.Heartbeat.RetriesPerSecond = -0.5 }, "retries_per_second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.LogRetention())
	assert.Equal(t, time.Hour, cfg.Retention.SweepInterval())
	assert.Equal(t, 30*time.Second, cfg.Heartbeat.Interval())
}

func TestStoreOptions_BadEncoding(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Encoding = "lz4"
	_, err := cfg.StoreOptions()
	assert.Error(t, err)
}
