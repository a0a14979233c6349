package commands

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/mailyhq/maily-migrate/internal/config"
	"github.com/mailyhq/maily-migrate/internal/dburl"
	"github.com/mailyhq/maily-migrate/internal/logging"
	"github.com/mailyhq/maily-migrate/migrate"
)

// runtime bundles everything a database-touching command needs.
type runtime struct {
	cfg    *config.Config
	info   *dburl.Info
	db     *sql.DB
	engine *migrate.Engine
}

// loadConfig resolves configuration and applies flag overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.Environment)
	if err != nil {
		return nil, err
	}
	if flags.DatabaseURL != "" {
		cfg.DatabaseURL = flags.DatabaseURL
	}
	if flags.Dir != "" {
		cfg.MigrationsDir = flags.Dir
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = flags.LogLevel
	}
	if flags.LogFile != "" {
		cfg.LogFile = flags.LogFile
	}

	// Re-run logger setup now that config file values are merged in.
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty && !flags.NoColor,
		File:   cfg.LogFile,
	})

	return cfg, nil
}

// openRuntime loads config, connects to the database and builds the engine.
func openRuntime(flags *globalFlags) (*runtime, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("no database URL: set DATABASE_URL, use --url, or add it to .env.%s", orDefault(cfg.Environment, "<environment>"))
	}

	info, err := dburl.Parse(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(info.Driver, info.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", info.Redacted(), err)
	}

	engine, err := migrate.NewEngine(migrate.Options{
		DB:            db,
		Provider:      info.Provider,
		Fs:            afero.NewOsFs(),
		Dir:           cfg.MigrationsDir,
		SeedsDir:      cfg.SeedsDir,
		LedgerTable:   cfg.LedgerTable,
		LockTimeout:   cfg.LockTimeout,
		Logger:        log.Logger,
		Environment:   cfg.Environment,
		DatabaseLabel: info.Redacted(),
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, info: info, db: db, engine: engine}, nil
}

// Close releases the database connection.
func (r *runtime) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
