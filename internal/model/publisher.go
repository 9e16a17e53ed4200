package model

import "context"

// Publisher delivers feature records to a downstream sink (message bus,
// file, collector). Implementations own their delivery and retry semantics;
// Close flushes anything still buffered.
type Publisher interface {
	Publish(ctx context.Context, record *FeatureRecord) error

	Close() error
}
