package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/config"
	"NetFlowMeter/internal/model"
)

// NDJSONWriter appends feature records to a file, one JSON object per line.
// Records sit in a buffered writer until the next flush.
type NDJSONWriter struct {
	file     *os.File
	writer   *bufio.Writer
	encoder  *json.Encoder
	interval time.Duration
	log      *logrus.Entry

	mu       sync.Mutex
	appended uint64
}

// NewNDJSONWriter opens (or creates) the output file in append mode.
func NewNDJSONWriter(cfg config.NDJSONConfig, interval time.Duration, logger *logrus.Logger) (*NDJSONWriter, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sink: ndjson path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("sink: create ndjson directory: %w", err)
		}
	}

	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("sink: open ndjson file: %w", err)
	}

	writer := bufio.NewWriter(file)
	log := logger.WithField("component", "ndjson-writer")
	log.WithField("file", cfg.Path).Info("ndjson writer opened")

	return &NDJSONWriter{
		file:     file,
		writer:   writer,
		encoder:  json.NewEncoder(writer),
		interval: interval,
		log:      log,
	}, nil
}

// Append encodes one record into the write buffer.
func (w *NDJSONWriter) Append(rec *model.FeatureRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.encoder.Encode(rec); err != nil {
		return fmt.Errorf("sink: encode record: %w", err)
	}
	w.appended++
	return nil
}

// Flush pushes buffered lines to the file.
func (w *NDJSONWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("sink: flush ndjson: %w", err)
	}
	return nil
}

// GetInterval returns the configured flush interval.
func (w *NDJSONWriter) GetInterval() time.Duration {
	return w.interval
}

// Appended returns the number of records written so far.
func (w *NDJSONWriter) Appended() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appended
}

// Close flushes the buffer and closes the file.
func (w *NDJSONWriter) Close() error {
	if err := w.Flush(); err != nil {
		w.log.WithError(err).Error("flush on close failed")
	}
	w.log.WithField("records", w.Appended()).Info("ndjson writer closed")
	return w.file.Close()
}
