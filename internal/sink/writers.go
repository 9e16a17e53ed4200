package sink

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/config"
	"NetFlowMeter/internal/model"
)

// BuildWriters constructs every enabled writer from the engine config.
func BuildWriters(cfg config.EngineConfig, logger *logrus.Logger) ([]model.Writer, error) {
	var writers []model.Writer

	for _, def := range cfg.Writers {
		if !def.Enabled {
			continue
		}

		interval, err := time.ParseDuration(def.FlushInterval)
		if err != nil {
			return nil, fmt.Errorf("sink: invalid flush_interval %q for writer %q: %w", def.FlushInterval, def.Type, err)
		}

		var writer model.Writer
		switch def.Type {
		case "clickhouse":
			writer, err = NewClickHouseWriter(def.ClickHouse, interval, logger)
		case "ndjson":
			writer, err = NewNDJSONWriter(def.NDJSON, interval, logger)
		default:
			return nil, fmt.Errorf("sink: unknown writer type %q", def.Type)
		}
		if err != nil {
			return nil, err
		}
		writers = append(writers, writer)
	}

	if len(writers) == 0 {
		return nil, fmt.Errorf("sink: no writers enabled")
	}
	return writers, nil
}
