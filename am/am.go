// Package am loads the flowstate configuration ("am" as in "I am configured as").
//
// Sources are merged lowest to highest: built-in defaults, /etc/flowstate/am.toml,
// ~/.flowstate/am.toml, the nearest am.toml walking up from the working
// directory, then FLOWSTATE_* environment variables.
package am

import (
	"time"

	"github.com/teranos/flowstate/codec"
	"github.com/teranos/flowstate/db"
	"github.com/teranos/flowstate/executor"
)

// Config is the complete flowstate configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	Store     StoreConfig     `mapstructure:"store" toml:"store" json:"store" yaml:"store"`
	Retention RetentionConfig `mapstructure:"retention" toml:"retention" json:"retention" yaml:"retention"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat" toml:"heartbeat" json:"heartbeat" yaml:"heartbeat"`
}

// DatabaseConfig selects the backing store.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" toml:"driver" json:"driver" yaml:"driver"`
	Path         string `mapstructure:"path" toml:"path" json:"path" yaml:"path"` // sqlite3 only
	DSN          string `mapstructure:"dsn" toml:"dsn" json:"dsn" yaml:"dsn"`     // mysql only
	MaxOpenConns int    `mapstructure:"max_open_conns" toml:"max_open_conns" json:"max_open_conns" yaml:"max_open_conns"`
}

// StoreConfig controls how blobs and logs are written.
type StoreConfig struct {
	Encoding     string `mapstructure:"encoding" toml:"encoding" json:"encoding" yaml:"encoding"`
	LogChunkSize int    `mapstructure:"log_chunk_size" toml:"log_chunk_size" json:"log_chunk_size" yaml:"log_chunk_size"`
}

// RetentionConfig controls the log sweeper. LogDays 0 disables sweeping.
type RetentionConfig struct {
	LogDays              int `mapstructure:"log_days" toml:"log_days" json:"log_days" yaml:"log_days"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds" toml:"sweep_interval_seconds" json:"sweep_interval_seconds" yaml:"sweep_interval_seconds"`
}

// HeartbeatConfig controls active-execution heartbeats.
type HeartbeatConfig struct {
	IntervalSeconds  int     `mapstructure:"interval_seconds" toml:"interval_seconds" json:"interval_seconds" yaml:"interval_seconds"`
	MaxRetries       int     `mapstructure:"max_retries" toml:"max_retries" json:"max_retries" yaml:"max_retries"`
	RetriesPerSecond float64 `mapstructure:"retries_per_second" toml:"retries_per_second" json:"retries_per_second" yaml:"retries_per_second"`
}

// MaxLogChunkSize bounds store.log_chunk_size.
const MaxLogChunkSize = 16 << 20

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// DataSource returns the driver-specific DSN: the file path for sqlite3,
// the go-sql-driver DSN for mysql.
func (d DatabaseConfig) DataSource() string {
	if d.Driver == db.DriverMySQL {
		return d.DSN
	}
	return d.Path
}

// StoreOptions converts the store section to executor options. The encoding
// must already have passed Validate.
func (c *Config) StoreOptions() (executor.Options, error) {
	enc, err := codec.ParseEncodingType(c.Store.Encoding)
	if err != nil {
		return executor.Options{}, err
	}
	return executor.Options{Encoding: enc, ChunkSize: c.Store.LogChunkSize}, nil
}

// LogRetention is the age after which log chunks are swept; zero disables sweeping.
func (r RetentionConfig) LogRetention() time.Duration {
	return time.Duration(r.LogDays) * 24 * time.Hour
}

// SweepInterval is the period between retention sweeps.
func (r RetentionConfig) SweepInterval() time.Duration {
	return time.Duration(r.SweepIntervalSeconds) * time.Second
}

// Interval is the period between heartbeats.
func (h HeartbeatConfig) Interval() time.Duration {
	return time.Duration(h.IntervalSeconds) * time.Second
}
