package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/marketpipe/marketpipe/rollup"
	"github.com/marketpipe/marketpipe/storage"
)

type cmdAggregate struct {
	Data        string `long:"data" required:"true" description:"Root of the partitioned dataset"`
	JobID       string `long:"job-id" required:"true" description:"Job whose 1m partitions to roll up"`
	Compression string `long:"compression" default:"snappy" choice:"snappy" choice:"zstd" choice:"lz4" choice:"gzip" description:"Codec for the derived frames"`
}

func (cmd *cmdAggregate) Execute(_ []string) error {
	initLogging()

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reader, err = storage.NewReader(cmd.Data)
	if err != nil {
		return err
	}
	writer, err := storage.NewWriter(cmd.Data, cmd.Compression)
	if err != nil {
		return err
	}

	var engine = &rollup.Engine{Reader: reader, Writer: writer}
	if err := engine.AggregateJob(ctx, cmd.JobID); err != nil {
		return err
	}
	log.WithField("job", cmd.JobID).Info("aggregation complete")
	return nil
}
