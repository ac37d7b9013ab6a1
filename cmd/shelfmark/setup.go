package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/shelfmark"
)

// runID tags every log line and report of one invocation.
var runID string

func setup(c *cli.Context) error {
	if err := setupLogger(c); err != nil {
		return err
	}
	return loadEnv(c.String("env-file"))
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	runID = uuid.NewString()
	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	})).With("run", runID)
	slog.SetDefault(logger)

	return nil
}

// loadEnv loads path into the process environment. A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	slog.Debug("loaded environment file", "path", path)
	return nil
}

// loadConfig builds the configuration from the config file, the environment
// and the global flags, in that order.
func loadConfig(c *cli.Context) (*shelfmark.Config, error) {
	cfg := shelfmark.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := shelfmark.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(os.LookupEnv)

	if db := c.String("db"); db != "" {
		cfg.Storage.Path = db
	}
	if backend := c.String("backend"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openCatalog opens the catalog. Writable commands hold the store lock so
// only one of them runs against a store at a time.
func openCatalog(c *cli.Context, cfg *shelfmark.Config, writable bool) (*shelfmark.Catalog, error) {
	opts := []shelfmark.Option{shelfmark.WithLogger(slog.Default())}
	if writable {
		opts = append(opts, shelfmark.WithExclusiveLock())
	}
	catalog, err := shelfmark.Open(c.Context, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return catalog, nil
}
