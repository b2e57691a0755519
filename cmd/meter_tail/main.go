// Meter tail prints every snapshot pushed by a running exporter as one JSON line.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/NotCoffee418/smartmeter_exporter/pkg/interpreter"
	"github.com/NotCoffee418/smartmeter_exporter/pkg/logging"
	"github.com/NotCoffee418/smartmeter_exporter/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var host string
	var debug bool
	var readTimeout time.Duration

	// Fall back to env var SMARTMETER_EXPORTER_HOST, then the usual Pi hostname
	defaultHost := os.Getenv("SMARTMETER_EXPORTER_HOST")
	if defaultHost == "" {
		defaultHost = "raspberrypi.local:9039"
	}

	flagSet := pflag.NewFlagSet("meter_tail", pflag.ContinueOnError)
	flagSet.StringVar(&host, "host", defaultHost, "exporter host:port")
	flagSet.DurationVar(&readTimeout, "read-timeout", interpreter.DefaultReadTimeout, "reconnect after this long without any frame from the exporter")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.Component(logging.New(debug), "interpreter")
	return interpreter.StartListener(ctx, host, readTimeout, logger, handleMeterReading)
}

func handleMeterReading(reading *metrics.Reading) {
	fmt.Println(string(reading.ToJsonBytes()))
}
