package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/flowstate/am"
	"github.com/teranos/flowstate/db"
	"github.com/teranos/flowstate/errors"
	"github.com/teranos/flowstate/executor"
	"github.com/teranos/flowstate/logger"
)

// ConfigPath, when set by --config, replaces the layered config search.
var ConfigPath string

// loadConfig loads and validates the configuration.
func loadConfig() (*am.Config, error) {
	var (
		cfg *am.Config
		err error
	)
	if ConfigPath != "" {
		cfg, err = am.LoadFromFile(ConfigPath)
	} else {
		cfg, err = am.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// openDatabase opens and migrates the configured database.
func openDatabase(cfg *am.Config) (*sql.DB, error) {
	database, err := db.OpenWithMigrations(cfg.Database.Driver, cfg.Database.DataSource(), logger.ComponentLogger("db"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", cfg.Database.Driver)
	}
	if cfg.Database.MaxOpenConns > 0 {
		database.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	return database, nil
}

// openLoader opens the database and builds every store from the config.
// The returned close function releases the database.
func openLoader() (*executor.Loader, *am.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	opts, err := cfg.StoreOptions()
	if err != nil {
		return nil, nil, nil, err
	}
	opts.Logger = logger.ComponentLogger("executor")

	database, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return executor.NewLoader(database, opts), cfg, func() { database.Close() }, nil
}

// writeFormatted renders v as json, yaml or toml.
func writeFormatted(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(v), "failed to marshal JSON")
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "failed to marshal YAML")
		}
		_, err = w.Write(data)
		return err
	case "toml":
		data, err := toml.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "failed to marshal TOML")
		}
		_, err = w.Write(data)
		return err
	}
	return errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", format)
}

// parseExecID parses a positional execution id.
func parseExecID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequestError("invalid execution id %q", s)
	}
	return id, nil
}

// parseTimeFlag accepts RFC 3339 or a bare date; empty means unset.
func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.NewInvalidRequestError("--%s: %q is neither RFC 3339 nor YYYY-MM-DD", name, value)
}

// formatTime renders unset times as "-".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
