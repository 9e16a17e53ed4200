package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/archive"
	"NetFlowMeter/internal/capture"
	"NetFlowMeter/internal/config"
	"NetFlowMeter/internal/engine/extractor"
	"NetFlowMeter/internal/logging"
	"NetFlowMeter/internal/metrics"
	"NetFlowMeter/internal/publish"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	iface := flag.String("iface", "", "Capture interface, overrides the config value.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if *iface != "" {
		cfg.Probe.Interface = *iface
	}
	if cfg.Probe.Interface == "" {
		logrus.Fatal("no capture interface configured, set probe.interface or pass -iface")
	}

	logger := logging.New(cfg.Logging)
	logger.WithField("interface", cfg.Probe.Interface).Info("starting nfm-probe")

	// Metrics endpoint, if enabled.
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.ListenAddr, logger)
		metricsServer.Start()
	}

	// At least one publisher must be up before we touch the wire.
	publisher := publish.NewMultiPublisher(logger)
	if cfg.Publishers.Kafka.Enabled {
		kp, err := publish.NewKafkaPublisher(cfg.Publishers.Kafka, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to create kafka publisher")
		}
		publisher.Add("kafka", kp)
	}
	if cfg.Publishers.NATS.Enabled {
		np, err := publish.NewNATSPublisher(cfg.Publishers.NATS, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to create nats publisher")
		}
		publisher.Add("nats", np)
	}
	if publisher.Len() == 0 {
		logger.Fatal("no publishers enabled, records would be dropped")
	}

	var archiveWorker *archive.Worker
	if cfg.Archive.Enabled {
		archiveWorker, err = archive.NewWorker(cfg.Archive, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to start archive worker")
		}
	}

	flowTimeout, err := time.ParseDuration(cfg.Extractor.FlowTimeout)
	if err != nil {
		logger.WithError(err).Fatal("invalid extractor flow_timeout")
	}
	ext := extractor.New(extractor.Config{
		FlowTimeout: flowTimeout,
		MaxFlows:    cfg.Extractor.MaxFlows,
		NumShards:   cfg.Extractor.NumShards,
	}, logger)

	source, err := capture.NewLiveSource(cfg.Probe, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open capture source")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runPipeline(cfg, source, ext, publisher, archiveWorker, logger)
	}()

	<-sigChan
	logger.Info("shutdown signal received, cleaning up")

	source.Close()
	<-done

	if archiveWorker != nil {
		archiveWorker.Stop()
	}
	ext.Close()
	if err := publisher.Close(); err != nil {
		logger.WithError(err).Error("publisher close failed")
	}
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Stop(ctx)
	}
	logger.Info("shutdown complete")
}

// runPipeline drives packets from the capture source through the extractor
// and out to the publishers until the source closes.
func runPipeline(cfg *config.Config, source *capture.Source, ext *extractor.Extractor, publisher *publish.MultiPublisher, archiveWorker *archive.Worker, logger *logrus.Logger) {
	reportInterval := uint64(cfg.Probe.ReportInterval)
	if reportInterval == 0 {
		reportInterval = 1000
	}
	iface := source.Interface()

	var processed, lastEvicted uint64
	for pkt := range source.Packets() {
		processed++
		metrics.PacketsCapturedTotal.WithLabelValues(iface).Inc()

		if archiveWorker != nil {
			archiveWorker.Enqueue(pkt)
		}

		rec, err := ext.Extract(pkt)
		if err != nil {
			metrics.PacketsSkippedTotal.WithLabelValues(iface).Inc()
			continue
		}

		if err := publisher.Publish(context.Background(), rec); err != nil {
			logger.WithError(err).Warn("failed to publish record")
		}

		if processed%reportInterval == 0 {
			analyzed, skipped, evicted := ext.Counters()
			flows := ext.FlowCount()
			metrics.ActiveFlows.Set(float64(flows))
			if delta := evicted - lastEvicted; delta > 0 {
				metrics.FlowsEvictedTotal.Add(float64(delta))
				lastEvicted = evicted
			}
			logger.WithFields(logrus.Fields{
				"captured": processed,
				"analyzed": analyzed,
				"skipped":  skipped,
				"evicted":  evicted,
				"flows":    flows,
			}).Info("probe progress")
		}
	}
}
