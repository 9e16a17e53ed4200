package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/config"
	"NetFlowMeter/internal/logging"
	"NetFlowMeter/internal/sink"
	"NetFlowMeter/internal/stream"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger := logging.New(cfg.Logging)
	logger.Info("starting nfm-engine")

	// 2. Build the enabled writers
	writers, err := sink.BuildWriters(cfg.Engine, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build writers")
	}

	// 3. Start the collector, which owns the worker pool and flushers
	collector := stream.NewCollector(cfg.Engine, writers, logger)
	if err := collector.Start(); err != nil {
		logger.WithError(err).Fatal("failed to start collector")
	}

	// 4. Wait for a shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping collector")
	collector.Stop()
	logger.Info("shutdown complete")
}
