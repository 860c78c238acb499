// mpctl is the MarketPipe command-line tool: it runs ingestion jobs,
// re-runs validation and aggregation for stored jobs, prunes aged
// data, and serves the metrics endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	// Registered vendor adapters.
	_ "github.com/marketpipe/marketpipe/vendors/alpaca"
	_ "github.com/marketpipe/marketpipe/vendors/fake"
	_ "github.com/marketpipe/marketpipe/vendors/iex"
)

var globalOpts struct {
	LogLevel  string `long:"log.level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Logging level"`
	LogFormat string `long:"log.format" env:"LOG_FORMAT" default:"text" choice:"text" choice:"json" description:"Logging output format"`
}

func main() {
	var parser = flags.NewParser(&globalOpts, flags.HelpFlag|flags.PassDoubleDash)

	addCmd(parser, "ingest", "Run an ingestion job", `
Run an ingestion job described by a YAML configuration: fetch minute
bars from the configured vendor, validate them, write 1m partitions,
and derive the roll-up frames. Exits 0 on full success, 1 on partial
failure, 2 on total failure or invalid input.
`, &cmdIngest{})

	addCmd(parser, "validate", "Re-run validation for a stored job", `
Load the 1m partitions written under a job id and re-run the OHLCV
audit, writing per-symbol CSV reports.
`, &cmdValidate{})

	addCmd(parser, "aggregate", "Re-run aggregation for a stored job", `
Re-derive the 5m/15m/1h/1d frames from a job's 1m partitions. Reruns
over identical input produce byte-identical files.
`, &cmdAggregate{})

	prune, err := parser.Command.AddCommand("prune", "Remove aged data", "", &struct{}{})
	must(err, "failed to add prune command")

	addCmd(prune, "files", "Prune aged partition files", `
Walk the partitioned dataset and remove files whose trading date is
older than the retention expression (<n>d, <n>m or <n>y).
`, &cmdPruneFiles{})

	addCmd(prune, "db", "Prune aged checkpoint and job rows", `
Remove checkpoint and job records not updated within the retention
expression (<n>d, <n>m or <n>y).
`, &cmdPruneDB{})

	addCmd(parser, "metrics", "Serve the Prometheus metrics endpoint", `
Serve the text-format scrape body at /metrics until signalled.
`, &cmdMetrics{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func addCmd(to interface {
	AddCommand(string, string, string, interface{}) (*flags.Command, error)
}, a, b, c string, iface interface{}) *flags.Command {
	var cmd, err = to.AddCommand(a, b, c, iface)
	must(err, "failed to add flags parser command")
	return cmd
}

func must(err error, message string) {
	if err != nil {
		log.WithField("error", err).Fatal(message)
	}
}

// initLogging applies the global logging options; every command calls
// it first.
func initLogging() {
	var level, err = log.ParseLevel(globalOpts.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if globalOpts.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}
