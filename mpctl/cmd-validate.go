package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/marketpipe/marketpipe/ohlcv"
	"github.com/marketpipe/marketpipe/storage"
	"github.com/marketpipe/marketpipe/validate"
)

type cmdValidate struct {
	Data     string   `long:"data" required:"true" description:"Root of the partitioned dataset"`
	Reports  string   `long:"reports" description:"Root for CSV audit reports (default <data>/reports)"`
	JobID    string   `long:"job-id" required:"true" description:"Job whose 1m partitions to audit"`
	Symbols  []string `long:"symbol" description:"Audit this symbol even if the job wrote no partitions for it (repeatable)"`
	Provider string   `long:"provider" default:"unknown" description:"Provider label for validation metrics"`
	Feed     string   `long:"feed" default:"unknown" description:"Feed label for validation metrics"`
}

func (cmd *cmdValidate) Execute(_ []string) error {
	initLogging()

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reader, err = storage.NewReader(cmd.Data)
	if err != nil {
		return err
	}
	var reports = cmd.Reports
	if reports == "" {
		reports = cmd.Data + "/reports"
	}

	var symbols = make([]ohlcv.Symbol, 0, len(cmd.Symbols))
	for _, raw := range cmd.Symbols {
		symbol, err := ohlcv.NewSymbol(raw)
		if err != nil {
			return err
		}
		symbols = append(symbols, symbol)
	}

	var engine = &validate.Engine{
		Reader:      reader,
		ReportsRoot: reports,
		Provider:    cmd.Provider,
		Feed:        cmd.Feed,
	}
	results, err := engine.ValidateJob(ctx, cmd.JobID, symbols)
	if err != nil {
		return err
	}

	var green = color.New(color.FgGreen).SprintFunc()
	var red = color.New(color.FgRed).SprintFunc()
	var dirty int
	for _, result := range results {
		if result.IsValid() {
			fmt.Printf("  %s %s: %d bars clean (%s)\n",
				green("OK"), result.Symbol, result.TotalBars, result.ReportPath)
			continue
		}
		dirty++
		fmt.Printf("  %s %s: %d errors in %d bars (%s)\n",
			red("DIRTY"), result.Symbol, len(result.Errors), result.TotalBars, result.ReportPath)
	}
	if dirty > 0 {
		os.Exit(1)
	}
	return nil
}
