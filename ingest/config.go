// Package ingest plans and drives ingestion jobs: it fans out
// (symbol, trading-day) work units over a bounded worker pool,
// enforces idempotency via checkpoints, and couples the downstream
// stages through the domain-event bus.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/marketpipe/marketpipe/ohlcv"
)

// ErrConfig marks invalid or unsupported configuration input.
var ErrConfig = errors.New("configuration error")

// SupportedConfigVersion is the only config_version this build accepts.
const SupportedConfigVersion = "1"

var validCodecs = map[string]bool{"snappy": true, "zstd": true, "lz4": true, "gzip": true}

// Config is the ingestion job configuration record, normally loaded
// from a YAML file supplied by the CLI layer.
type Config struct {
	ConfigVersion string   `yaml:"config_version"`
	Provider      string   `yaml:"provider"`
	Symbols       []string `yaml:"symbols"`
	Start         string   `yaml:"start"`
	End           string   `yaml:"end"`
	BatchSize     int      `yaml:"batch_size"`
	Workers       int      `yaml:"workers"`
	OutputPath    string   `yaml:"output_path"`
	Compression   string   `yaml:"compression"`
	FeedType      string   `yaml:"feed_type"`

	// BaseURL overrides the provider's default endpoint; required for
	// the fake vendor, useful for sandboxes.
	BaseURL string `yaml:"base_url"`
	// ReportsPath roots the validation CSV audits.
	ReportsPath string `yaml:"reports_path"`
	// CheckpointDB is the sqlite path for checkpoints and job records.
	CheckpointDB string `yaml:"checkpoint_db"`

	// RateLimit admits at most RateLimit requests per RateWindowSeconds
	// against the vendor. Zero disables client-side limiting.
	RateLimit         int `yaml:"rate_limit"`
	RateWindowSeconds int `yaml:"rate_window_seconds"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxRetries     int `yaml:"max_retries"`

	// MaxRowErrorFrac bounds the fraction of a unit's rows that may be
	// dropped for domain violations before the whole unit fails.
	MaxRowErrorFrac float64 `yaml:"max_row_error_frac"`

	symbols []ohlcv.Symbol
	window  ohlcv.TimeRange
}

const (
	defaultBatchSize       = 1000
	defaultWorkers         = 3
	defaultMaxRowErrorFrac = 0.1
)

// LoadConfig reads and validates a YAML job configuration.
func LoadConfig(path string) (*Config, error) {
	var raw, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes defaults and rejects out-of-range values.
func (c *Config) Validate() error {
	switch c.ConfigVersion {
	case SupportedConfigVersion:
	case "":
		log.Warn("config_version missing; assuming version 1")
		c.ConfigVersion = SupportedConfigVersion
	default:
		return fmt.Errorf("unsupported config_version %q (supported: %s): %w",
			c.ConfigVersion, SupportedConfigVersion, ErrConfig)
	}

	if c.Provider == "" {
		return fmt.Errorf("provider is required: %w", ErrConfig)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required: %w", ErrConfig)
	}
	c.symbols = c.symbols[:0]
	for _, raw := range c.Symbols {
		var symbol, err = ohlcv.NewSymbol(raw)
		if err != nil {
			return fmt.Errorf("%v: %w", err, ErrConfig)
		}
		c.symbols = append(c.symbols, symbol)
	}

	start, err := time.Parse("2006-01-02", c.Start)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", c.Start, ErrConfig)
	}
	end, err := time.Parse("2006-01-02", c.End)
	if err != nil {
		return fmt.Errorf("parsing end date %q: %w", c.End, ErrConfig)
	}
	// The end date is inclusive; the window is half-open past it.
	window, err := ohlcv.NewTimeRange(
		ohlcv.NewTimestamp(start),
		ohlcv.NewTimestamp(end.Add(24*time.Hour)),
	)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrConfig)
	}
	c.window = window

	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BatchSize < 1 || c.BatchSize > 10_000 {
		return fmt.Errorf("batch_size %d out of range [1, 10000]: %w", c.BatchSize, ErrConfig)
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.Workers < 1 || c.Workers > 32 {
		return fmt.Errorf("workers %d out of range [1, 32]: %w", c.Workers, ErrConfig)
	}
	if c.Compression == "" {
		c.Compression = "snappy"
	}
	if !validCodecs[c.Compression] {
		return fmt.Errorf("unsupported compression %q: %w", c.Compression, ErrConfig)
	}
	if c.OutputPath == "" {
		return fmt.Errorf("output_path is required: %w", ErrConfig)
	}
	if c.MaxRowErrorFrac == 0 {
		c.MaxRowErrorFrac = defaultMaxRowErrorFrac
	}
	if c.MaxRowErrorFrac < 0 || c.MaxRowErrorFrac > 1 {
		return fmt.Errorf("max_row_error_frac %v out of range [0, 1]: %w", c.MaxRowErrorFrac, ErrConfig)
	}
	return nil
}

// ParsedSymbols returns the validated, uppercased symbols.
func (c *Config) ParsedSymbols() []ohlcv.Symbol { return c.symbols }

// Window returns the job's half-open time range.
func (c *Config) Window() ohlcv.TimeRange { return c.window }

// JobID derives the human-readable job identifier: <symbol>_<date> for
// a single symbol-day job, otherwise a config-derived id.
func (c *Config) JobID() string {
	var days = c.window.Days()
	if len(c.symbols) == 1 && len(days) == 1 {
		return fmt.Sprintf("%s_%s", c.symbols[0], days[0].TradingDate())
	}
	return fmt.Sprintf("%s_%s_%s", c.Provider, c.Start, c.End)
}
