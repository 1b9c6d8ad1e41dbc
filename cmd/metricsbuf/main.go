package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"metricsbuf/internal/config"
	"metricsbuf/internal/logger"
	"metricsbuf/internal/shipper"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Process()
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet("metricsbuf", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flagSet.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "address of the ingest HTTP server")
	flagSet.StringVar(&cfg.Sink, "sink", cfg.Sink, "sink backend (influx, clickhouse, postgres, kafka)")
	flagSet.StringVar(&cfg.Aggregator, "aggregator", cfg.Aggregator, "aggregator (passthrough, avg, sum, max, min, last)")
	flagSet.IntVar(&cfg.PushIntervalSec, "push-interval", cfg.PushIntervalSec, "flush period in seconds")
	flagSet.IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize, "capacity of the sample buffer")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintf(os.Stderr, "Usage: metricsbuf [flags]\n\nEvery flag defaults to its METRICSBUF_* environment variable.\n\n")
		flagSet.PrintDefaults()
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return shipper.New(cfg).Run(ctx)
}
