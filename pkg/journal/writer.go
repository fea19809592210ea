// Package journal is an append-only log of propagation steps. Entries are
// msgpack encoded with a 4-byte big-endian length prefix and written in
// batches to rotating files named journal-<ulid>.log, so file name order
// is creation order.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/victoralfred/kube_provisioner/pkg/logger"
)

const filePrefix = "journal-"

// WriterConfig holds configuration for the journal writer
type WriterConfig struct {
	BasePath      string        // directory holding journal files
	BatchSize     int           // entries buffered before a synchronous flush
	FlushInterval time.Duration // maximum time an entry stays buffered
	MaxFileSize   int64         // size at which the next write rotates
}

// Writer buffers entries and flushes them in batches
type Writer struct {
	basePath      string
	batchSize     int
	flushInterval time.Duration
	maxFileSize   int64
	logger        *logger.Logger

	buffer   []*Entry
	bufferMu sync.Mutex

	// fileMu serializes flushes so entries reach disk in buffer order
	fileMu      sync.Mutex
	currentFile *os.File
	currentSize int64
	written     uint64
	// mustRotate is set after a failed write, which may have left a partial
	// frame at the end of the current file
	mustRotate bool

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWriter creates a writer and starts its background flusher
func NewWriter(config WriterConfig, log *logger.Logger) (*Writer, error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("journal base path is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = 64 * 1024 * 1024
	}

	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	w := &Writer{
		basePath:      config.BasePath,
		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,
		maxFileSize:   config.MaxFileSize,
		logger:        log,
		buffer:        make([]*Entry, 0, config.BatchSize),
		stopCh:        make(chan struct{}),
	}

	if err := w.rotateFile(); err != nil {
		return nil, fmt.Errorf("failed to create initial journal file: %w", err)
	}

	w.wg.Add(1)
	go w.flushLoop()

	return w, nil
}

// Write buffers entry, assigning an id and timestamp when missing
func (w *Writer) Write(entry *Entry) error {
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	w.bufferMu.Lock()
	w.buffer = append(w.buffer, entry)
	shouldFlush := len(w.buffer) >= w.batchSize
	w.bufferMu.Unlock()

	if shouldFlush {
		return w.Flush()
	}
	return nil
}

// Flush writes every buffered entry and syncs the file. Entries that could
// not be written go back to the front of the buffer for the next flush.
func (w *Writer) Flush() error {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()

	w.bufferMu.Lock()
	if len(w.buffer) == 0 {
		w.bufferMu.Unlock()
		return nil
	}
	toWrite := w.buffer
	w.buffer = make([]*Entry, 0, w.batchSize)
	w.bufferMu.Unlock()

	for i, entry := range toWrite {
		if err := w.writeEntry(entry); err != nil {
			w.requeue(toWrite[i:])
			return fmt.Errorf("failed to write journal entry: %w", err)
		}
	}

	if err := w.currentFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal file: %w", err)
	}
	return nil
}

// requeue puts entries back ahead of anything buffered since they were taken
func (w *Writer) requeue(entries []*Entry) {
	w.bufferMu.Lock()
	defer w.bufferMu.Unlock()

	buffer := make([]*Entry, 0, len(entries)+len(w.buffer))
	buffer = append(buffer, entries...)
	w.buffer = append(buffer, w.buffer...)
}

// writeEntry must be called with fileMu held
func (w *Writer) writeEntry(entry *Entry) error {
	if w.mustRotate || w.currentSize >= w.maxFileSize {
		if err := w.rotateFile(); err != nil {
			return err
		}
	}

	data, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)

	if _, err := w.currentFile.Write(frame); err != nil {
		w.mustRotate = true
		return err
	}
	w.currentSize += int64(len(frame))
	w.written++
	return nil
}

// rotateFile must be called with fileMu held, or before the flusher starts
func (w *Writer) rotateFile() error {
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			return fmt.Errorf("failed to close journal file: %w", err)
		}
	}

	filename := filepath.Join(w.basePath, filePrefix+NewID()+".log")
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create journal file: %w", err)
	}

	w.currentFile = file
	w.currentSize = 0
	w.mustRotate = false
	return nil
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				w.logger.Error("failed to flush journal", err)
			}
		case <-w.stopCh:
			if err := w.Flush(); err != nil {
				w.logger.Error("failed to flush journal on close", err)
			}
			return
		}
	}
}

// Close flushes pending entries and closes the current file
func (w *Writer) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopCh)
		w.wg.Wait()

		w.fileMu.Lock()
		defer w.fileMu.Unlock()
		err = w.currentFile.Close()
	})
	return err
}

// WriterStats holds statistics about the writer
type WriterStats struct {
	BufferedEntries int
	WrittenEntries  uint64
	CurrentFileSize int64
}

// Stats returns statistics about the writer
func (w *Writer) Stats() WriterStats {
	w.bufferMu.Lock()
	buffered := len(w.buffer)
	w.bufferMu.Unlock()

	w.fileMu.Lock()
	defer w.fileMu.Unlock()

	return WriterStats{
		BufferedEntries: buffered,
		WrittenEntries:  w.written,
		CurrentFileSize: w.currentSize,
	}
}
