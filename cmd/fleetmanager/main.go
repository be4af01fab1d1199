package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"fleetmanager/internal/bootstrap"
	"fleetmanager/internal/logging"
	"fleetmanager/internal/manifest"
	"fleetmanager/internal/pricing"
	"fleetmanager/internal/supervisor"
	"fleetmanager/pkg/cli"
	"fleetmanager/pkg/concurrency"
	"fleetmanager/pkg/dashboard"
	"fleetmanager/pkg/marketplace"
	"fleetmanager/pkg/telemetry"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/fleetmanager.yaml", "Path to configuration file")
	dashboardAddr := flag.String("dashboard-addr", "", "Status dashboard listen address (overrides config)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fleetmanager version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap application: %v\n", err)
		os.Exit(1)
	}

	if *dashboardAddr != "" {
		app.Cfg.DashboardAddr = *dashboardAddr
	}

	app.Logger.Info("starting fleetmanager", "version", version, "node_address", app.Cfg.NodeAddress)

	logger, err := logging.NewLoggerFromString(app.Cfg.LogLevel, os.Stdout)
	if err != nil {
		logger = logging.NewLogger(logging.InfoLevel, os.Stdout)
	}

	tel, err := telemetry.Setup("fleetmanager")
	if err != nil {
		app.Logger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tel.Shutdown(shutdownCtx)
	}()

	if err := telemetry.GetGlobalMetrics().InitMetrics(telemetry.GetMeter("fleetmanager")); err != nil {
		app.Logger.Warn("failed to initialize metrics instruments", "error", err)
	}

	keyFile, err := bootstrap.KeyFilePath(app.Cfg)
	if err != nil {
		app.Logger.Error("failed to locate ethereum key file", "error", err)
		os.Exit(1)
	}

	signer, err := marketplace.NewEthKeySigner(keyFile, string(app.Cfg.Ethereum.Password))
	if err != nil {
		app.Logger.Error("failed to load ethereum signer", "error", err)
		os.Exit(1)
	}

	transport := marketplace.NewHTTPTransport(app.Cfg.NodeAddress, app.Cfg.Timeout(), signer)
	client := marketplace.NewClient(transport, logger)

	oracle := pricing.NewOracle(client, logger)
	manifests := manifest.NewTemplateBuilder(app.Cfg.TemplateDirOrDefault())
	capturer := cli.NewTaskLogCapturer(app.Cfg.CLIBinaryPathOrDefault(), 1000)

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "FleetNodePool",
		MaxWorkers:  200,
		MaxCapacity: 2000,
		NonBlocking: true,
	}, logger)

	dash := dashboard.New(app.Cfg.DashboardAddrOrDefault(), 5, 10, logger)

	sup := supervisor.New(*configPath, client, oracle, manifests, capturer, pool, dash, logger)

	if err := app.Run(sup, dash); err != nil {
		app.Logger.Error("fleetmanager stopped with error", "error", err)
		os.Exit(1)
	}
}
