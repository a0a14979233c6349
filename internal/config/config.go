// Package config loads maily-migrate configuration from config files,
// environment files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem used for config discovery. Tests swap in a memory fs.
var AppFs = afero.NewOsFs()

// Config holds the resolved application configuration.
type Config struct {
	Environment   string
	DatabaseURL   string
	MigrationsDir string
	SeedsDir      string
	LedgerTable   string
	LockTimeout   time.Duration

	LogLevel  string
	LogPretty bool
	LogFile   string
}

// Load resolves configuration for the given environment. Precedence, lowest
// to highest: built-in defaults, .maily-migrate.yaml, .env files, process
// environment, MAILY_-prefixed variables.
func Load(environment string) (*Config, error) {
	v := viper.New()

	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}

	v.SetConfigName(".maily-migrate")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, ".config", "maily-migrate"))

	v.SetEnvPrefix("MAILY")
	v.AutomaticEnv()

	v.SetDefault("migrations_dir", "migrations")
	v.SetDefault("seeds_dir", "seeds")
	v.SetDefault("ledger_table", "migration_history")
	v.SetDefault("lock_timeout", "30s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", true)

	// Missing config file is fine, defaults and env cover everything.
	_ = v.ReadInConfig()

	if err := LoadEnvFiles(environment); err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:   environment,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MigrationsDir: v.GetString("migrations_dir"),
		SeedsDir:      v.GetString("seeds_dir"),
		LedgerTable:   v.GetString("ledger_table"),
		LockTimeout:   v.GetDuration("lock_timeout"),
		LogLevel:      v.GetString("log_level"),
		LogPretty:     v.GetBool("log_pretty"),
		LogFile:       v.GetString("log_file"),
	}
	if url := v.GetString("database_url"); cfg.DatabaseURL == "" && url != "" {
		cfg.DatabaseURL = url
	}

	return cfg, nil
}

// LoadEnvFiles layers .env files into the process environment. Later files
// override earlier ones: .env, then .env.<environment>, then .env.local.
func LoadEnvFiles(environment string) error {
	if exists(".env") {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	if environment != "" {
		name := ".env." + environment
		if !exists(name) {
			return fmt.Errorf("environment file %s not found", name)
		}
		if err := godotenv.Overload(name); err != nil {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	if exists(".env.local") {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("failed to load .env.local: %w", err)
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := AppFs.Stat(path)
	return err == nil
}
