// Package audit records routed requests in the ledger without adding
// latency to the request path. Records are queued on a buffered channel
// and written by a pool of background workers.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/llmfallback/llmfallback/models"
	"github.com/llmfallback/llmfallback/repositories"
	"go.uber.org/zap"
)

// Recorder handles asynchronous ledger writes
type Recorder struct {
	repo        repositories.RequestRepository
	logger      *zap.Logger
	recordChan  chan *models.RequestRecord
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	mu          sync.Mutex
}

// Config holds configuration for the Recorder
type Config struct {
	BufferSize  int // Size of the record buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 5,
	}
}

// NewRecorder creates a new Recorder. A nil repository is allowed: records
// are then emitted to the structured log only, so the gateway runs without
// a database.
func NewRecorder(repo repositories.RequestRepository, logger *zap.Logger, config Config) *Recorder {
	ctx, cancel := context.WithCancel(context.Background())

	return &Recorder{
		repo:        repo,
		logger:      logger,
		recordChan:  make(chan *models.RequestRecord, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
		started:     false,
	}
}

// Start starts the background workers
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("recorder already started")
	}

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.started = true
	r.logger.Info("started request recorder",
		zap.Int("worker_count", r.workerCount),
		zap.Int("buffer_size", r.bufferSize),
		zap.Bool("persistent", r.repo != nil))

	return nil
}

// Stop gracefully stops the recorder.
// Waits for all pending records to be written.
func (r *Recorder) Stop(timeout time.Duration) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return fmt.Errorf("recorder not started")
	}
	r.mu.Unlock()

	r.logger.Info("stopping request recorder", zap.Int("pending_records", len(r.recordChan)))

	// Close the channel (no more records will be accepted)
	close(r.recordChan)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("request recorder stopped gracefully")
		r.cancel()
		return nil
	case <-time.After(timeout):
		r.cancel()
		return fmt.Errorf("recorder stop timeout after %v", timeout)
	}
}

// Record queues a ledger record without blocking.
// Returns immediately, the record is written in the background.
func (r *Recorder) Record(record *models.RequestRecord) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return fmt.Errorf("recorder not started")
	}
	r.mu.Unlock()

	select {
	case r.recordChan <- record:
		return nil
	default:
		// Channel is full, log warning and drop record
		r.logger.Warn("record buffer full, dropping record",
			zap.String("request_id", record.RequestID),
			zap.String("status", string(record.Status)))
		return fmt.Errorf("record buffer full")
	}
}

// RecordBlocking queues a ledger record, waiting until there is room
// or the context is cancelled
func (r *Recorder) RecordBlocking(ctx context.Context, record *models.RequestRecord) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return fmt.Errorf("recorder not started")
	}
	r.mu.Unlock()

	select {
	case r.recordChan <- record:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return fmt.Errorf("recorder stopped")
	}
}

// worker writes records from the channel
func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("recorder worker started", zap.Int("worker_id", id))

	for record := range r.recordChan {
		if err := r.write(record); err != nil {
			r.logger.Error("failed to write request record",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("request_id", record.RequestID))
		}
	}

	r.logger.Debug("recorder worker stopped", zap.Int("worker_id", id))
}

// write persists a single record, or logs it when no repository is configured
func (r *Recorder) write(record *models.RequestRecord) error {
	if r.repo == nil {
		r.logger.Info("request",
			zap.String("request_id", record.RequestID),
			zap.String("status", string(record.Status)),
			zap.String("requested_model", record.RequestedModel),
			zap.String("provider", record.Provider),
			zap.String("model", record.Model),
			zap.Int("attempts", record.Attempts),
			zap.Int("total_tokens", record.TotalTokens),
			zap.Int64("latency_ms", record.LatencyMs))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.repo.Insert(ctx, record); err != nil {
		return fmt.Errorf("failed to insert request record: %w", err)
	}

	return nil
}

// GetStats returns statistics about the recorder
func (r *Recorder) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		BufferSize:     r.bufferSize,
		PendingRecords: len(r.recordChan),
		WorkerCount:    r.workerCount,
		Started:        r.started,
	}
}

// Stats represents recorder statistics
type Stats struct {
	BufferSize     int  `json:"buffer_size"`
	PendingRecords int  `json:"pending_records"`
	WorkerCount    int  `json:"worker_count"`
	Started        bool `json:"started"`
}
