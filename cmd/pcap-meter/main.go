package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/config"
	"NetFlowMeter/internal/engine/extractor"
	"NetFlowMeter/internal/logging"
	"NetFlowMeter/internal/model"
	"NetFlowMeter/internal/publish"
	"NetFlowMeter/pkg/pcap"
)

func main() {
	// 1. Parse arguments. Records go to stdout as NDJSON unless -publish
	// routes them to the configured publishers.
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	publishRecords := flag.Bool("publish", false, "Send records to the configured publishers instead of stdout.")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pcap-meter [-config path] [-publish] <path_to_pcap_file>")
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	// 2. Load configuration; logs go to stderr so stdout stays parseable
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger := logging.New(cfg.Logging)

	// 3. Build the extractor
	flowTimeout, err := time.ParseDuration(cfg.Extractor.FlowTimeout)
	if err != nil {
		logger.WithError(err).Fatal("invalid extractor flow_timeout")
	}
	ext := extractor.New(extractor.Config{
		FlowTimeout: flowTimeout,
		MaxFlows:    cfg.Extractor.MaxFlows,
		NumShards:   cfg.Extractor.NumShards,
	}, logger)

	// 4. Open the capture file
	reader, err := pcap.NewReader(pcapFilePath)
	if err != nil {
		logger.WithError(err).Fatal("failed to open pcap file")
	}
	defer reader.Close()
	logger.WithField("file", pcapFilePath).Info("reading packets")

	// 5. Pick the record sink
	var publisher *publish.MultiPublisher
	var encoder *json.Encoder
	if *publishRecords {
		publisher = publish.NewMultiPublisher(logger)
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
			logger.Fatal("-publish set but no publishers enabled in config")
		}
	} else {
		encoder = json.NewEncoder(os.Stdout)
	}

	// 6. Run every packet through the extraction pipeline
	packets := make(chan *model.RawPacket, 1024)
	go reader.ReadPackets(packets)

	var read uint64
	for pkt := range packets {
		read++
		rec, err := ext.Extract(pkt)
		if err != nil {
			continue
		}
		if publisher != nil {
			if err := publisher.Publish(context.Background(), rec); err != nil {
				logger.WithError(err).Warn("failed to publish record")
			}
		} else {
			encoder.Encode(rec)
		}
	}
	if err := reader.Err(); err != nil {
		logger.WithError(err).Warn("capture file ended early")
	}

	// 7. Summary and shutdown
	analyzed, skipped, evicted := ext.Counters()
	logger.WithFields(logrus.Fields{
		"read":     read,
		"analyzed": analyzed,
		"skipped":  skipped,
		"evicted":  evicted,
		"flows":    ext.FlowCount(),
	}).Info("finished reading pcap file")

	ext.Close()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.WithError(err).Error("publisher close failed")
		}
	}
}
