// Package stream implements the engine side of the pipeline: a NATS
// collector feeding a worker pool that fans feature records out to the
// configured writers.
package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/config"
	"NetFlowMeter/internal/model"
)

// Service owns the record channel, the worker pool and one flusher
// goroutine per writer.
type Service struct {
	writers []model.Writer

	recordChannel chan *model.FeatureRecord
	numWorkers    int
	workerWg      sync.WaitGroup

	done      chan struct{}
	flusherWg sync.WaitGroup

	log      *logrus.Entry
	appended atomic.Uint64
}

// NewService creates a Service fanning out to the given writers.
func NewService(cfg config.EngineConfig, writers []model.Writer, logger *logrus.Logger) *Service {
	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	buffer := cfg.RecordBuffer
	if buffer <= 0 {
		buffer = 4096
	}

	return &Service{
		writers:       writers,
		recordChannel: make(chan *model.FeatureRecord, buffer),
		numWorkers:    numWorkers,
		done:          make(chan struct{}),
		log:           logger.WithField("component", "stream"),
	}
}

// Start launches the flusher goroutines and the worker pool.
func (s *Service) Start() {
	for _, writer := range s.writers {
		s.flusherWg.Add(1)
		go s.runFlusher(writer)
		s.log.WithField("interval", writer.GetInterval()).Info("started writer flusher")
	}

	s.workerWg.Add(s.numWorkers)
	for i := 0; i < s.numWorkers; i++ {
		go s.worker()
	}
	s.log.WithField("workers", s.numWorkers).Info("service started")
}

// runFlusher flushes a single writer on its own interval and once more on
// shutdown so buffered records always reach the backend.
func (s *Service) runFlusher(writer model.Writer) {
	defer s.flusherWg.Done()

	interval := writer.GetInterval()
	if interval <= 0 {
		<-s.done
		s.finalFlush(writer)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := writer.Flush(); err != nil {
				s.log.WithError(err).Error("writer flush failed")
			}
		case <-s.done:
			s.finalFlush(writer)
			return
		}
	}
}

func (s *Service) finalFlush(writer model.Writer) {
	if err := writer.Flush(); err != nil {
		s.log.WithError(err).Error("final flush failed")
	}
}

func (s *Service) worker() {
	defer s.workerWg.Done()
	for rec := range s.recordChannel {
		for _, writer := range s.writers {
			if err := writer.Append(rec); err != nil {
				s.log.WithError(err).Error("writer append failed")
			}
		}
		s.appended.Add(1)
	}
}

// InputChannel exposes the record channel for producers.
func (s *Service) InputChannel() chan<- *model.FeatureRecord {
	return s.recordChannel
}

// Appended returns the number of records processed by the worker pool.
func (s *Service) Appended() uint64 {
	return s.appended.Load()
}

// Stop drains the pipeline in order: stop accepting records, wait for the
// workers, run the final flushes, then close the writers.
func (s *Service) Stop() {
	s.log.Info("service stopping")

	close(s.recordChannel)
	s.workerWg.Wait()

	close(s.done)
	s.flusherWg.Wait()

	for _, writer := range s.writers {
		if err := writer.Close(); err != nil {
			s.log.WithError(err).Error("writer close failed")
		}
	}

	s.log.WithField("records", s.appended.Load()).Info("service stopped")
}
