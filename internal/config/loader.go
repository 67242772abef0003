package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "MIRROR"

// Load reads configuration from an optional .env file, MIRROR_* environment
// variables and command-line args, in increasing order of precedence. It
// validates the result and ensures the output and ledger directories exist.
// For -h it prints usage to stderr and returns flag.ErrHelp.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := parseFlags(&cfg, args, os.Stderr); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := createDirs(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &cfg, nil
}

// parseFlags applies command-line overrides. Usage is written to out for
// -h and for parse errors. For -h the returned error is flag.ErrHelp.
func parseFlags(cfg *Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("index-mirror", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVar(&cfg.CollectionURL, "u", cfg.CollectionURL, "index page URL")
	fs.StringVar(&cfg.CollectionURL, "collection_url", cfg.CollectionURL, "index page URL")
	fs.StringVar(&cfg.OutDir, "o", cfg.OutDir, "output directory")
	fs.StringVar(&cfg.OutDir, "out_dir", cfg.OutDir, "output directory")
	fs.StringVar(&cfg.DBDir, "d", cfg.DBDir, "ledger directory")
	fs.StringVar(&cfg.DBDir, "db_dir", cfg.DBDir, "ledger directory")
	fs.IntVar(&cfg.Workers, "t", cfg.Workers, "number of download workers")
	fs.IntVar(&cfg.Workers, "threads", cfg.Workers, "number of download workers")
	fs.IntVar(&cfg.Skip, "s", cfg.Skip, "leading table rows to skip")
	fs.IntVar(&cfg.Skip, "skip", cfg.Skip, "leading table rows to skip")
	fs.StringVar(&cfg.StatusAddr, "status_addr", cfg.StatusAddr, "listen address of the status server")

	noProgress := fs.Bool("no_progress", !cfg.ShowProgress, "disable the terminal progress bar")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	cfg.ShowProgress = !*noProgress

	return nil
}

func createDirs(cfg *Config) error {
	dirs := []string{
		cfg.OutDir,
		cfg.DBDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("directory created or verified", "path", dir)
	}
	return nil
}

// SetupLogger configures the global slog logger based on configuration.
// Supports "json" or "text" formats and log levels: debug, info, warn, error.
// Logs go to stderr so they do not interleave with the progress bar.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
