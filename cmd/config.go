package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding the configuration file.
const (
	EnvLedger      = "KAPYTAL_LEDGER"
	EnvBackups     = "KAPYTAL_BACKUPS"
	EnvKeepBackups = "KAPYTAL_KEEP_BACKUPS"
	EnvLogLevel    = "KAPYTAL_LOG_LEVEL"
)

// Config is the CLI configuration.
type Config struct {
	// Ledger is the path of the ledger document.
	Ledger string `yaml:"ledger"`
	// Backups configures the snapshots saved before every change.
	Backups BackupConfig `yaml:"backups"`
	// LogLevel is a zerolog level name.
	LogLevel string `yaml:"log_level"`
}

// BackupConfig configures the backup store.
type BackupConfig struct {
	// Path of the bbolt file, no backups when empty.
	Path string `yaml:"path"`
	// Keep is the maximum number of snapshots, zero keeps them all.
	Keep int `yaml:"keep"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Ledger:   "ledger.json",
		Backups:  BackupConfig{Path: ".kapytal.db", Keep: 20},
		LogLevel: "warn",
	}
}

// LoadConfig reads the configuration file at path, if it exists, then applies
// the environment variables, loading envFile first when it exists.
func LoadConfig(path, envFile string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %q: %w", path, err)
		}
	}

	if envFile != "" {
		// Variables already set in the environment take precedence.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load %q: %w", envFile, err)
		}
	}
	if v := os.Getenv(EnvLedger); v != "" {
		cfg.Ledger = v
	}
	if v, ok := os.LookupEnv(EnvBackups); ok {
		cfg.Backups.Path = v
	}
	if v := os.Getenv(EnvKeepBackups); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", EnvKeepBackups, err)
		}
		cfg.Backups.Keep = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.Ledger == "" {
		return errors.New("missing ledger path")
	}
	if c.Backups.Keep < 0 {
		return fmt.Errorf("invalid backups keep %d", c.Backups.Keep)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}
