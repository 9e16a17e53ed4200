package model

import "time"

// Writer defines a generic interface for persisting feature records.
// Append buffers a record; Flush persists everything buffered so far.
type Writer interface {
	Append(record *FeatureRecord) error

	Flush() error

	// GetInterval returns the configured flush interval for this writer.
	GetInterval() time.Duration

	Close() error
}
