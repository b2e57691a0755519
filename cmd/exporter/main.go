// Exporter reads the P1 port and serves the latest meter values as Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/NotCoffee418/smartmeter_exporter/pkg/config"
	"github.com/NotCoffee418/smartmeter_exporter/pkg/exporter"
	"github.com/NotCoffee418/smartmeter_exporter/pkg/logging"
	"github.com/NotCoffee418/smartmeter_exporter/pkg/metrics"
	"github.com/NotCoffee418/smartmeter_exporter/pkg/pathing"
	"github.com/NotCoffee418/smartmeter_exporter/pkg/port_reader"
	"github.com/NotCoffee418/smartmeter_exporter/pkg/solarinverter"
	"github.com/NotCoffee418/smartmeter_exporter/pkg/telegram"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var debug bool

	flagSet := pflag.NewFlagSet("exporter", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", pathing.GetExporterConfigPath(), "path to the TOML config file (created with defaults if missing)")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadExporterConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load exporter config: %w", err)
	}

	logger := logging.New(cfg.Debug || debug)
	slog.SetDefault(logger)
	logger.Info("smartmeter exporter starting", "hostname", cfg.Hostname, "config", configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshot := metrics.NewSnapshot()
	ingester := telegram.NewIngester(snapshot, logging.Component(logger, "telegram"))

	reader, err := port_reader.NewP1Reader(port_reader.Options{
		Device:   cfg.SerialDevice,
		Baudrate: cfg.Baudrate,
		DataBits: cfg.DataBits,
		Parity:   cfg.Parity,
		StopBits: cfg.StopBits,
	}, ingester, logging.Component(logger, "port_reader"))
	if err != nil {
		return err
	}

	var solar exporter.SolarReader
	if addr := cfg.SolarInverterAddr(); addr != "" {
		solar = solarinverter.New(addr, logging.Component(logger, "solarinverter"))
	}

	server := exporter.NewServer(exporter.Options{
		Hostname:          cfg.Hostname,
		BroadcastInterval: cfg.BroadcastInterval(),
	}, snapshot, ingester, solar, logging.Component(logger, "exporter"))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go reader.StartReading(ctx)
	go server.RunBroadcast(ctx)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
