// Package config loads runtime configuration from an optional YAML file and
// SANCHAY_* environment variables, with working defaults for everything but
// the cloud identifiers.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Extractor selection values.
const (
	ExtractorPattern = "pattern"
	ExtractorGemini  = "gemini"
)

// Store selection values.
const (
	StoreMemory   = "memory"
	StoreBigQuery = "bigquery"
)

// Config is the full runtime configuration.
type Config struct {
	// Currency is the user's reporting currency code.
	Currency string `mapstructure:"currency"`

	// DaysBack bounds the mail search window for a sync batch.
	DaysBack int `mapstructure:"days_back"`

	// Extractor picks the extraction backend: pattern or gemini.
	Extractor string `mapstructure:"extractor"`

	// Model is the Gemini model name. Empty selects the default.
	Model string `mapstructure:"model"`

	// Store picks the persistence backend: memory or bigquery.
	Store string `mapstructure:"store"`

	ProjectID string `mapstructure:"project_id"`
	DatasetID string `mapstructure:"dataset_id"`

	// ArchiveBucket enables raw-email archival to GCS when non-empty.
	ArchiveBucket string `mapstructure:"archive_bucket"`

	// Reconciliation heuristics. Zero values select the engine defaults.
	JaccardThreshold   float64 `mapstructure:"jaccard_threshold"`
	ReversalWindowDays int     `mapstructure:"reversal_window_days"`
	ReversalLookback   int     `mapstructure:"reversal_lookback"`
}

// Load reads configuration from path (optional, may be "") and the
// environment. Environment variables use the SANCHAY_ prefix with
// underscores, e.g. SANCHAY_DAYS_BACK=14.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("currency", "INR")
	v.SetDefault("days_back", 30)
	v.SetDefault("extractor", ExtractorPattern)
	v.SetDefault("store", StoreMemory)
	v.SetDefault("dataset_id", "sanchay")

	// Register the remaining keys so AutomaticEnv can see them.
	v.SetDefault("model", "")
	v.SetDefault("project_id", "")
	v.SetDefault("archive_bucket", "")
	v.SetDefault("jaccard_threshold", 0.0)
	v.SetDefault("reversal_window_days", 0)
	v.SetDefault("reversal_lookback", 0)

	v.SetEnvPrefix("SANCHAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config.Load: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate checks the backend selections and bounds. Load runs it; callers
// that mutate the config afterwards should run it again.
func (c *Config) Validate() error {
	switch c.Extractor {
	case ExtractorPattern, ExtractorGemini:
	default:
		return fmt.Errorf("unknown extractor %q", c.Extractor)
	}

	switch c.Store {
	case StoreMemory:
	case StoreBigQuery:
		if c.ProjectID == "" {
			return fmt.Errorf("bigquery store requires project_id")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	if c.DaysBack <= 0 {
		return fmt.Errorf("days_back must be positive, got %d", c.DaysBack)
	}
	return nil
}
