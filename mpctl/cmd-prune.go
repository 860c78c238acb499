package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marketpipe/marketpipe/checkpoints"
	"github.com/marketpipe/marketpipe/retention"
)

type cmdPruneFiles struct {
	Data      string `long:"data" required:"true" description:"Root of the partitioned dataset"`
	OlderThan string `long:"older-than" required:"true" description:"Retention expression: <n>d, <n>m or <n>y"`
	DryRun    bool   `long:"dry-run" description:"List removal candidates without deleting"`
}

func (cmd *cmdPruneFiles) Execute(_ []string) error {
	initLogging()

	var olderThan, err = retention.ParseOlderThan(cmd.OlderThan)
	if err != nil {
		return err
	}
	victims, err := retention.PruneFiles(cmd.Data, olderThan, cmd.DryRun)
	if err != nil {
		return err
	}
	for _, path := range victims {
		fmt.Println(path)
	}
	var verb = "removed"
	if cmd.DryRun {
		verb = "would remove"
	}
	fmt.Printf("%s %d files\n", verb, len(victims))
	return nil
}

type cmdPruneDB struct {
	DB        string `long:"db" required:"true" description:"Path of the checkpoint database"`
	OlderThan string `long:"older-than" required:"true" description:"Retention expression: <n>d, <n>m or <n>y"`
	DryRun    bool   `long:"dry-run" description:"Count removal candidates without deleting"`
}

func (cmd *cmdPruneDB) Execute(_ []string) error {
	initLogging()

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var olderThan, err = retention.ParseOlderThan(cmd.OlderThan)
	if err != nil {
		return err
	}
	store, err := checkpoints.Open(cmd.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := retention.PruneDatabase(ctx, store, olderThan, cmd.DryRun)
	if err != nil {
		return err
	}
	var verb = "removed"
	if cmd.DryRun {
		verb = "would remove"
	}
	fmt.Printf("%s %d rows\n", verb, n)
	return nil
}
