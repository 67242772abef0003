package config

import (
	"fmt"
	"time"

	errpkg "github.com/veranemoloko/index-mirror/internal/errors"
	"github.com/veranemoloko/index-mirror/internal/validation"
)

// Config holds all application configuration settings.
type Config struct {
	CollectionURL string `envconfig:"COLLECTION_URL"`

	OutDir string `envconfig:"OUT_DIR" default:"./output"`
	DBDir  string `envconfig:"DB_DIR" default:"./.db"`

	Workers         int           `envconfig:"THREADS" default:"1"`
	Skip            int           `envconfig:"SKIP" default:"1"`
	DownloadTimeout time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"30m"`

	StatusAddr      string        `envconfig:"STATUS_ADDR"`
	ShowProgress    bool          `envconfig:"SHOW_PROGRESS" default:"true"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if err := validation.ValidateCollectionURL(c.CollectionURL); err != nil {
		return fmt.Errorf("%w: collection url %q: %v", errpkg.ErrConfigInvalid, c.CollectionURL, err)
	}

	if c.Workers <= 0 {
		return fmt.Errorf("%w: threads must be positive: %d", errpkg.ErrConfigInvalid, c.Workers)
	}

	if c.Skip < 0 {
		return fmt.Errorf("%w: skip cannot be negative: %d", errpkg.ErrConfigInvalid, c.Skip)
	}

	if c.OutDir == "" {
		return fmt.Errorf("%w: output directory cannot be empty", errpkg.ErrConfigInvalid)
	}
	if c.DBDir == "" {
		return fmt.Errorf("%w: ledger directory cannot be empty", errpkg.ErrConfigInvalid)
	}

	if c.DownloadTimeout <= 0 {
		return fmt.Errorf("%w: download timeout must be positive: %s", errpkg.ErrConfigInvalid, c.DownloadTimeout)
	}

	return nil
}
