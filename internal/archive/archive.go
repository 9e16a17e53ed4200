// Package archive persists raw captured packets to disk for offline replay.
package archive

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/config"
	"NetFlowMeter/internal/model"
)

const defaultBufferSize = 10000

// Worker manages a pool of goroutines writing captured packets to a
// timestamped file. Enqueue never blocks the capture path: when the channel
// is full the packet is dropped and counted.
type Worker struct {
	packetChan chan *model.RawPacket
	wg         sync.WaitGroup
	file       *os.File
	log        *logrus.Entry

	// Serializes access to the shared encoder when more than one worker
	// drains the channel.
	writeMu sync.Mutex

	dropped atomic.Uint64
	written atomic.Uint64
}

// NewWorker creates the output file and starts the worker pool.
func NewWorker(cfg config.ArchiveConfig, logger *logrus.Logger) (*Worker, error) {
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("archive: create directory: %w", err)
	}

	bufferSize := cfg.ChannelBufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	w := &Worker{
		packetChan: make(chan *model.RawPacket, bufferSize),
		log:        logger.WithField("component", "archive"),
	}

	if err := w.start(cfg); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Worker) start(cfg config.ArchiveConfig) error {
	file, err := w.createOutputFile(cfg)
	if err != nil {
		return fmt.Errorf("archive: create output file: %w", err)
	}
	w.file = file

	// One encoder per file, shared by all workers.
	var workerFunc func()
	switch cfg.Encoding {
	case "gob":
		encoder := gob.NewEncoder(file)
		workerFunc = func() { w.runGobWorker(encoder) }
	case "text":
		writer := bufio.NewWriter(file)
		workerFunc = func() { w.runTextWorker(writer) }
	case "pcap":
		// The capture source hands us Ethernet frames, so the file header
		// assumes that link type.
		pcapWriter := pcapgo.NewWriter(file)
		if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
			file.Close()
			return fmt.Errorf("archive: write pcap header: %w", err)
		}
		workerFunc = func() { w.runPcapWorker(pcapWriter) }
	default:
		file.Close()
		return fmt.Errorf("archive: unknown encoding %q", cfg.Encoding)
	}

	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1 // single-threaded keeps pcap records in capture order
	}

	w.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer w.wg.Done()
			workerFunc()
		}()
	}

	w.log.WithFields(logrus.Fields{
		"workers":  numWorkers,
		"encoding": cfg.Encoding,
		"file":     file.Name(),
	}).Info("archive worker started")
	return nil
}

func (w *Worker) createOutputFile(cfg config.ArchiveConfig) (*os.File, error) {
	ext := ".log"
	switch cfg.Encoding {
	case "gob":
		ext = ".gob"
	case "pcap":
		ext = ".pcap"
	}
	fileName := fmt.Sprintf("%s%s", time.Now().Format("2006-01-02_15-04-05"), ext)
	filePath := filepath.Join(cfg.Path, fileName)
	return os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY, 0644)
}

func (w *Worker) runGobWorker(encoder *gob.Encoder) {
	for pkt := range w.packetChan {
		w.writeMu.Lock()
		err := encoder.Encode(pkt)
		w.writeMu.Unlock()
		if err != nil {
			w.log.WithError(err).Error("gob encode failed")
			continue
		}
		w.written.Add(1)
	}
}

func (w *Worker) runTextWorker(writer *bufio.Writer) {
	for pkt := range w.packetChan {
		line := fmt.Sprintf("%s iface=%d len=%d\n",
			pkt.Timestamp.Format("2006-01-02 15:04:05.000000"),
			pkt.Port,
			pkt.Length,
		)
		w.writeMu.Lock()
		_, err := writer.WriteString(line)
		w.writeMu.Unlock()
		if err != nil {
			w.log.WithError(err).Error("text write failed")
			continue
		}
		w.written.Add(1)
	}

	w.writeMu.Lock()
	writer.Flush()
	w.writeMu.Unlock()
}

func (w *Worker) runPcapWorker(pcapWriter *pcapgo.Writer) {
	for pkt := range w.packetChan {
		ci := gopacket.CaptureInfo{
			Timestamp:      pkt.Timestamp,
			CaptureLength:  len(pkt.Data),
			Length:         pkt.Length,
			InterfaceIndex: pkt.Port,
		}
		w.writeMu.Lock()
		err := pcapWriter.WritePacket(ci, pkt.Data)
		w.writeMu.Unlock()
		if err != nil {
			w.log.WithError(err).Error("pcap write failed")
			continue
		}
		w.written.Add(1)
	}
}

// Enqueue hands a packet to the workers, dropping it when the buffer is full.
func (w *Worker) Enqueue(pkt *model.RawPacket) {
	select {
	case w.packetChan <- pkt:
	default:
		w.dropped.Add(1)
	}
}

// Written returns the number of packets persisted so far.
func (w *Worker) Written() uint64 {
	return w.written.Load()
}

// Dropped returns the number of packets discarded because the buffer was full.
func (w *Worker) Dropped() uint64 {
	return w.dropped.Load()
}

// Stop shuts the pool down, draining buffered packets before closing the
// file. It blocks until the file is closed; do not Enqueue afterwards.
func (w *Worker) Stop() {
	close(w.packetChan)
	w.wg.Wait()
	if err := w.file.Close(); err != nil {
		w.log.WithError(err).Error("failed to close archive file")
	}
	w.log.WithFields(logrus.Fields{
		"written": w.written.Load(),
		"dropped": w.dropped.Load(),
	}).Info("archive worker stopped")
}
