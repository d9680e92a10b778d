package scoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/configs"
	"github.com/enterprise/upi-fraud-engine/internal/metrics"
	"github.com/enterprise/upi-fraud-engine/internal/models"
	"github.com/enterprise/upi-fraud-engine/internal/queue"
)

// Stream outcomes reported to metrics
const (
	streamScored       = "scored"
	streamDeadLettered = "dead_lettered"
)

// Worker scores requests read from the Redis request stream. Failed
// requests are dead-lettered, never retried.
type Worker struct {
	id           string
	engine       *Engine
	streamClient *queue.StreamClient
	config       configs.WorkerConfig
	wg           sync.WaitGroup
	stopCh       chan struct{}
	stopOnce     sync.Once
	mu           sync.RWMutex
	stats        WorkerStats
}

// WorkerStats tracks worker performance
type WorkerStats struct {
	ProcessedCount    int64
	FailedCount       int64
	TotalProcessingMs int64
	LastProcessedAt   time.Time
}

// NewWorker creates a new scoring worker
func NewWorker(id string, engine *Engine, streamClient *queue.StreamClient, config configs.WorkerConfig) *Worker {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.BatchSize < 1 {
		config.BatchSize = 1
	}
	return &Worker{
		id:           id,
		engine:       engine,
		streamClient: streamClient,
		config:       config,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the consumer goroutines and blocks until ctx is done or
// Stop is called.
func (w *Worker) Start(ctx context.Context) {
	log.Info().
		Str("worker_id", w.id).
		Int("concurrency", w.config.Concurrency).
		Msg("Starting scoring worker")

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.processLoop(ctx, fmt.Sprintf("%s-%d", w.id, i))
	}

	select {
	case <-ctx.Done():
	case <-w.stopCh:
	}
	w.wg.Wait()
	log.Info().Str("worker_id", w.id).Msg("Worker stopped")
}

// Stop signals the consumer goroutines to exit
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		log.Info().Str("worker_id", w.id).Msg("Stopping worker...")
		close(w.stopCh)
	})
}

func (w *Worker) processLoop(ctx context.Context, consumerName string) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			w.processBatch(ctx, consumerName)
		}
	}
}

// processBatch reads one batch, scores it and acknowledges every message
func (w *Worker) processBatch(ctx context.Context, consumerName string) int {
	messages, err := w.streamClient.Consume(ctx, consumerName, int64(w.config.BatchSize), w.config.PollInterval)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Str("consumer", consumerName).Msg("Failed to consume messages")
			time.Sleep(time.Second)
		}
		return 0
	}
	if len(messages) == 0 {
		return 0
	}

	ackIDs := make([]string, 0, len(messages))
	for _, msg := range messages {
		if err := w.processMessage(ctx, msg); err != nil {
			log.Error().
				Err(err).
				Str("message_id", msg.ID).
				Msg("Failed to process message")

			if dlqErr := w.streamClient.SendToDeadLetter(ctx, msg, err); dlqErr != nil {
				log.Error().Err(dlqErr).Msg("Failed to send to dead letter stream")
			}
			metrics.ObserveStreamMessage(streamDeadLettered)

			w.mu.Lock()
			w.stats.FailedCount++
			w.mu.Unlock()
		}
		ackIDs = append(ackIDs, msg.ID)
	}

	if err := w.streamClient.AcknowledgeBatch(ctx, ackIDs); err != nil {
		log.Error().Err(err).Msg("Failed to acknowledge messages")
	}
	return len(messages)
}

func (w *Worker) processMessage(ctx context.Context, msg queue.StreamMessage) error {
	if msg.ParseErr != nil {
		return msg.ParseErr
	}

	start := time.Now()
	result, err := w.engine.Predict(ctx, &msg.Request.Transaction)
	if err != nil {
		return fmt.Errorf("scoring failed: %w", err)
	}

	resp := &models.ScoringResponse{
		RequestID: msg.Request.RequestID,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
	if _, err := w.streamClient.PublishResult(ctx, resp); err != nil {
		return err
	}
	metrics.ObserveStreamMessage(streamScored)

	w.mu.Lock()
	w.stats.ProcessedCount++
	w.stats.TotalProcessingMs += time.Since(start).Milliseconds()
	w.stats.LastProcessedAt = time.Now()
	w.mu.Unlock()

	return nil
}

// Stats returns a snapshot of the worker counters
func (w *Worker) Stats() WorkerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}
