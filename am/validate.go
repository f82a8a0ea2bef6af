package am

import (
	"github.com/teranos/flowstate/codec"
	"github.com/teranos/flowstate/db"
	"github.com/teranos/flowstate/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case db.DriverSQLite:
		// Empty path is rejected by the driver with a clearer message than ours
	case db.DriverMySQL:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required when database.driver is mysql")
		}
	default:
		return errors.Newf("database.driver must be %q or %q, got %q", db.DriverSQLite, db.DriverMySQL, c.Database.Driver)
	}
	if c.Database.MaxOpenConns < 0 {
		return errors.Newf("database.max_open_conns must be >= 0, got %d", c.Database.MaxOpenConns)
	}

	if _, err := codec.ParseEncodingType(c.Store.Encoding); err != nil {
		return errors.Wrap(err, "store.encoding")
	}
	if c.Store.LogChunkSize <= 0 || c.Store.LogChunkSize > MaxLogChunkSize {
		return errors.Newf("store.log_chunk_size must be in (0, %d], got %d", MaxLogChunkSize, c.Store.LogChunkSize)
	}

	// Retention: 0 days disables sweeping
	if c.Retention.LogDays < 0 {
		return errors.Newf("retention.log_days must be >= 0, got %d", c.Retention.LogDays)
	}
	if c.Retention.SweepIntervalSeconds < 0 {
		return errors.Newf("retention.sweep_interval_seconds must be >= 0, got %d", c.Retention.SweepIntervalSeconds)
	}

	if c.Heartbeat.IntervalSeconds < 0 {
		return errors.Newf("heartbeat.interval_seconds must be >= 0, got %d", c.Heartbeat.IntervalSeconds)
	}
	if c.Heartbeat.MaxRetries < 0 {
		return errors.Newf("heartbeat.max_retries must be >= 0, got %d", c.Heartbeat.MaxRetries)
	}
	if c.Heartbeat.RetriesPerSecond < 0 {
		return errors.Newf("heartbeat.retries_per_second must be >= 0, got %f", c.Heartbeat.RetriesPerSecond)
	}

	return nil
}
