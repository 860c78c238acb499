package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marketpipe/marketpipe/ohlcv"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	var path = filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	var path = writeConfigFile(t, `
config_version: "1"
provider: fake
symbols: [aapl, MSFT]
start: "2024-01-15"
end: "2024-01-16"
output_path: /tmp/data
feed_type: iex
`)
	var cfg, err = LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, []ohlcv.Symbol{"AAPL", "MSFT"}, cfg.ParsedSymbols())
	require.Equal(t, defaultBatchSize, cfg.BatchSize)
	require.Equal(t, defaultWorkers, cfg.Workers)
	require.Equal(t, "snappy", cfg.Compression)
	require.Equal(t, defaultMaxRowErrorFrac, cfg.MaxRowErrorFrac)

	// The end date is inclusive: two trading dates in the window.
	require.Len(t, cfg.Window().Days(), 2)
	require.Equal(t, "fake_2024-01-15_2024-01-16", cfg.JobID())
}

func TestConfigVersionHandling(t *testing.T) {
	// Missing version: warn and assume version 1.
	var cfg, err = LoadConfig(writeConfigFile(t, `
provider: fake
symbols: [AAPL]
start: "2024-01-15"
end: "2024-01-15"
output_path: /tmp/data
`))
	require.NoError(t, err)
	require.Equal(t, SupportedConfigVersion, cfg.ConfigVersion)

	// Any other version is rejected.
	_, err = LoadConfig(writeConfigFile(t, `
config_version: "2"
provider: fake
symbols: [AAPL]
start: "2024-01-15"
end: "2024-01-15"
output_path: /tmp/data
`))
	require.ErrorIs(t, err, ErrConfig)
}

func TestConfigValidation(t *testing.T) {
	var base = func() *Config {
		return &Config{
			ConfigVersion: "1",
			Provider:      "fake",
			Symbols:       []string{"AAPL"},
			Start:         "2024-01-15",
			End:           "2024-01-15",
			OutputPath:    "/tmp/data",
		}
	}

	var cases = []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing provider", func(c *Config) { c.Provider = "" }},
		{"no symbols", func(c *Config) { c.Symbols = nil }},
		{"invalid symbol", func(c *Config) { c.Symbols = []string{"BRK.B"} }},
		{"bad start date", func(c *Config) { c.Start = "Jan 15" }},
		{"end before start", func(c *Config) { c.Start = "2024-01-16"; c.End = "2024-01-15" }},
		{"batch size too large", func(c *Config) { c.BatchSize = 10_001 }},
		{"too many workers", func(c *Config) { c.Workers = 33 }},
		{"unknown codec", func(c *Config) { c.Compression = "brotli" }},
		{"missing output path", func(c *Config) { c.OutputPath = "" }},
		{"error fraction out of range", func(c *Config) { c.MaxRowErrorFrac = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cfg = base()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestSingleUnitJobID(t *testing.T) {
	var cfg = &Config{
		ConfigVersion: "1",
		Provider:      "fake",
		Symbols:       []string{"AAPL"},
		Start:         "2024-01-15",
		End:           "2024-01-15",
		OutputPath:    "/tmp/data",
	}
	require.NoError(t, cfg.Validate())
	require.Equal(t, "AAPL_2024-01-15", cfg.JobID())
}
