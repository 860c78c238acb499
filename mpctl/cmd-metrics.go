package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/marketpipe/marketpipe/metricsrv"
)

type cmdMetrics struct {
	Port int `long:"port" env:"METRICS_PORT" default:"8000" description:"Port for the /metrics endpoint"`
}

func (cmd *cmdMetrics) Execute(_ []string) error {
	initLogging()

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var server = &metricsrv.Server{Port: cmd.Port}
	return server.Start(ctx)
}
