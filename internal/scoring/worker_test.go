package scoring

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/upi-fraud-engine/configs"
	"github.com/enterprise/upi-fraud-engine/internal/models"
	"github.com/enterprise/upi-fraud-engine/internal/queue"
)

func newTestWorker(t *testing.T) (*Worker, *queue.StreamClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := configs.RedisConfig{
		StreamName:       "upi-transactions",
		ConsumerGroup:    "fraud-scorers",
		ResultStream:     "upi-predictions",
		DeadLetterStream: "upi-transactions-dlq",
	}
	sc, err := queue.NewStreamClientWith(context.Background(), client, cfg)
	require.NoError(t, err)

	engine, _ := defaultEngine(t)
	w := NewWorker("test", engine, sc, configs.WorkerConfig{Concurrency: 1, BatchSize: 10, PollInterval: -1})
	return w, sc, mr
}

func TestWorkerScoresAndPublishesResults(t *testing.T) {
	w, sc, mr := newTestWorker(t)
	ctx := context.Background()

	_, err := sc.Publish(ctx, &models.ScoringRequest{RequestID: "req-1", Transaction: *scenarioOneRecord()})
	require.NoError(t, err)
	_, err = sc.Publish(ctx, &models.ScoringRequest{RequestID: "req-2", Transaction: *scenarioTwoRecord()})
	require.NoError(t, err)

	assert.Equal(t, 2, w.processBatch(ctx, "test-0"))

	results, err := mr.Stream("upi-predictions")
	require.NoError(t, err)
	require.Len(t, results, 2)

	var resp models.ScoringResponse
	require.NoError(t, json.Unmarshal([]byte(results[0].Values[3]), &resp))
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, models.DecisionBlock, resp.Result.Decision)

	stats := w.Stats()
	assert.Equal(t, int64(2), stats.ProcessedCount)
	assert.Zero(t, stats.FailedCount)

	pending, err := sc.Client().XPending(ctx, "upi-transactions", "fraud-scorers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestWorkerDeadLettersFailures(t *testing.T) {
	w, sc, mr := newTestWorker(t)
	ctx := context.Background()

	invalid := scenarioTwoRecord()
	invalid.Amount = 0
	_, err := sc.Publish(ctx, &models.ScoringRequest{RequestID: "bad", Transaction: *invalid})
	require.NoError(t, err)
	_, err = mr.XAdd("upi-transactions", "*", []string{"data", "garbage"})
	require.NoError(t, err)

	assert.Equal(t, 2, w.processBatch(ctx, "test-0"))

	dead, err := mr.Stream("upi-transactions-dlq")
	require.NoError(t, err)
	assert.Len(t, dead, 2)

	results, err := mr.Stream("upi-predictions")
	if err == nil {
		assert.Empty(t, results)
	}
	assert.Equal(t, int64(2), w.Stats().FailedCount)
}

func TestWorkerStop(t *testing.T) {
	w, _, _ := newTestWorker(t)
	w.config.PollInterval = 10 * time.Millisecond

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()

	w.Stop()
	w.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
