package am

import (
	"github.com/spf13/viper"

	"github.com/teranos/flowstate/db"
	"github.com/teranos/flowstate/executor"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", db.DriverSQLite)
	v.SetDefault("database.path", "flowstate.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 0) // 0 = database/sql default

	// Store defaults
	v.SetDefault("store.encoding", "gzip")
	v.SetDefault("store.log_chunk_size", executor.DefaultChunkSize)

	// Retention defaults
	v.SetDefault("retention.log_days", 30)
	v.SetDefault("retention.sweep_interval_seconds", 3600)

	// Heartbeat defaults
	v.SetDefault("heartbeat.interval_seconds", 30)
	v.SetDefault("heartbeat.max_retries", 3)
	v.SetDefault("heartbeat.retries_per_second", 2.0)
}

// BindSensitiveEnvVars binds the DSN explicitly so it is picked up even when
// no config file mentions the database section.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.dsn", "FLOWSTATE_DATABASE_DSN")
}
