package publish

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/metrics"
	"NetFlowMeter/internal/model"
)

type namedPublisher struct {
	name string
	pub  model.Publisher
}

// MultiPublisher fans a record out to every registered sink. A failing sink
// is logged and counted but never prevents delivery to the others.
type MultiPublisher struct {
	sinks []namedPublisher
	log   *logrus.Entry
}

// NewMultiPublisher creates an empty fan-out.
func NewMultiPublisher(logger *logrus.Logger) *MultiPublisher {
	return &MultiPublisher{log: logger.WithField("component", "publisher")}
}

// Add registers a sink under a stable name used in logs and metrics.
func (m *MultiPublisher) Add(name string, pub model.Publisher) {
	m.sinks = append(m.sinks, namedPublisher{name: name, pub: pub})
}

// Len returns the number of registered sinks.
func (m *MultiPublisher) Len() int {
	return len(m.sinks)
}

// Publish delivers the record to every sink and returns the joined errors,
// if any. All sinks are attempted regardless of individual failures.
func (m *MultiPublisher) Publish(ctx context.Context, record *model.FeatureRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.pub.Publish(ctx, record); err != nil {
			metrics.PublishErrorsTotal.WithLabelValues(s.name).Inc()
			m.log.WithField("sink", s.name).WithError(err).Warn("publish failed")
			errs = append(errs, err)
			continue
		}
		metrics.RecordsPublishedTotal.WithLabelValues(s.name).Inc()
	}
	return errors.Join(errs...)
}

// Close closes every sink, attempting all of them.
func (m *MultiPublisher) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.pub.Close(); err != nil {
			m.log.WithField("sink", s.name).WithError(err).Warn("close failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
