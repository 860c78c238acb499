package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/marketpipe/marketpipe/checkpoints"
	"github.com/marketpipe/marketpipe/events"
	"github.com/marketpipe/marketpipe/ingest"
	"github.com/marketpipe/marketpipe/metricsrv"
	"github.com/marketpipe/marketpipe/ohlcv"
	"github.com/marketpipe/marketpipe/ratelimit"
	"github.com/marketpipe/marketpipe/rollup"
	"github.com/marketpipe/marketpipe/storage"
	"github.com/marketpipe/marketpipe/validate"
	"github.com/marketpipe/marketpipe/vendors"
)

type cmdIngest struct {
	Config      string `long:"config" short:"c" required:"true" description:"Path of the YAML job configuration"`
	MetricsPort int    `long:"metrics.port" env:"METRICS_PORT" default:"0" description:"Serve /metrics on this port for the job's duration (0 disables)"`
}

func (cmd *cmdIngest) Execute(_ []string) error {
	initLogging()

	var cfg, err = ingest.LoadConfig(cmd.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ingest.ExitTotalFailure)
	}

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.MetricsPort > 0 {
		var server = &metricsrv.Server{Port: cmd.MetricsPort}
		go func() {
			if err := server.Start(ctx); err != nil {
				log.WithField("error", err).Warn("metrics server failed")
			}
		}()
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := buildClient(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ingest.ExitTotalFailure)
	}

	writer, err := storage.NewWriter(cfg.OutputPath, cfg.Compression)
	if err != nil {
		return err
	}
	reader, err := storage.NewReader(cfg.OutputPath)
	if err != nil {
		return err
	}

	var bus = events.Default()
	var validator = &validate.Engine{
		Reader:      reader,
		ReportsRoot: reportsRoot(cfg),
		Provider:    cfg.Provider,
		Feed:        cfg.FeedType,
		Bus:         bus,
	}
	validator.Subscribe(bus)
	var aggregator = &rollup.Engine{Reader: reader, Writer: writer, Bus: bus}
	aggregator.Subscribe(bus)

	var coordinator = &ingest.Coordinator{
		Config:      cfg,
		Client:      client,
		Writer:      writer,
		Checkpoints: store,
		Bus:         bus,
	}

	result, err := coordinator.Run(ctx)
	if err != nil && result == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ingest.ExitTotalFailure)
	}
	printSummary(result)
	os.Exit(result.ExitCode())
	return nil
}

// buildClient assembles the vendor client from config and environment
// credentials.
func buildClient(cfg *ingest.Config) (*vendors.Client, error) {
	var limiter *ratelimit.Limiter
	if cfg.RateLimit > 0 {
		var window = time.Duration(cfg.RateWindowSeconds) * time.Second
		if window <= 0 {
			window = time.Minute
		}
		var err error
		if limiter, err = ratelimit.NewLimiter(cfg.RateLimit, window); err != nil {
			return nil, err
		}
	}
	return vendors.New(cfg.Provider, vendors.Settings{
		BaseURL:     cfg.BaseURL,
		Credentials: credentialsFromEnv(cfg.Provider),
		Provider:    cfg.Provider,
		Feed:        cfg.FeedType,
		BatchSize:   cfg.BatchSize,
		MaxRetries:  cfg.MaxRetries,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		Limiter:     limiter,
	})
}

// credentialsFromEnv reads MP_<PROVIDER>_KEY / _SECRET / _TOKEN.
func credentialsFromEnv(provider string) vendors.Credentials {
	var prefix = "MP_" + strings.ToUpper(provider) + "_"
	return vendors.Credentials{
		Key:    os.Getenv(prefix + "KEY"),
		Secret: os.Getenv(prefix + "SECRET"),
		Token:  os.Getenv(prefix + "TOKEN"),
	}
}

func openStore(cfg *ingest.Config) (*checkpoints.Store, error) {
	var path = cfg.CheckpointDB
	if path == "" {
		path = filepath.Join(cfg.OutputPath, "marketpipe.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return checkpoints.Open(path)
}

func reportsRoot(cfg *ingest.Config) string {
	if cfg.ReportsPath != "" {
		return cfg.ReportsPath
	}
	return filepath.Join(cfg.OutputPath, "reports")
}

func printSummary(result *ingest.Result) {
	var green = color.New(color.FgGreen).SprintFunc()
	var red = color.New(color.FgRed).SprintFunc()

	fmt.Printf("job %s: %s (%d succeeded, %d failed, %d rows)\n",
		result.JobID, result.State, result.SuccessCount, result.FailedCount, result.RowsWritten)

	var symbols = make([]string, 0, len(result.BarCounts))
	for symbol := range result.BarCounts {
		symbols = append(symbols, symbol.String())
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		fmt.Printf("  %s %s: %d bars\n", green("OK"), symbol, result.BarCounts[ohlcv.Symbol(symbol)])
	}
	for _, line := range result.Errors {
		fmt.Printf("  %s %s\n", red("FAILED"), line)
	}
}
