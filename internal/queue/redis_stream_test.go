package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/upi-fraud-engine/configs"
	"github.com/enterprise/upi-fraud-engine/internal/models"
)

const noBlock = -1

func testConfig() configs.RedisConfig {
	return configs.RedisConfig{
		StreamName:       "upi-transactions",
		ConsumerGroup:    "fraud-scorers",
		ResultStream:     "upi-predictions",
		DeadLetterStream: "upi-transactions-dlq",
	}
}

func newTestStream(t *testing.T) (*StreamClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sc, err := NewStreamClientWith(context.Background(), client, testConfig())
	require.NoError(t, err)
	return sc, mr
}

func request(id string, amount float64) *models.ScoringRequest {
	return &models.ScoringRequest{
		RequestID:   id,
		Transaction: models.TransactionRecord{Amount: amount, TimeSlot: models.TimeSlotMorning, BeneficiaryTrustScore: 0.8},
		Timestamp:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestConsumerGroupCreationIsIdempotent(t *testing.T) {
	sc, _ := newTestStream(t)

	_, err := NewStreamClientWith(context.Background(), sc.Client(), testConfig())
	assert.NoError(t, err)
}

func TestPublishAndConsume(t *testing.T) {
	sc, _ := newTestStream(t)
	ctx := context.Background()

	id, err := sc.Publish(ctx, request("req-1", 500))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	ids, err := sc.PublishBatch(ctx, []*models.ScoringRequest{request("req-2", 10), request("req-3", 20)})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	msgs, err := sc.Consume(ctx, "c-1", 10, noBlock)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "req-1", msgs[0].Request.RequestID)
	assert.Equal(t, 500.0, msgs[0].Request.Transaction.Amount)
	assert.Equal(t, "req-3", msgs[2].Request.RequestID)

	// delivered messages are not handed out again
	again, err := sc.Consume(ctx, "c-2", 10, noBlock)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, sc.AcknowledgeBatch(ctx, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID}))
}

func TestConsumeMalformedMessage(t *testing.T) {
	sc, mr := newTestStream(t)
	ctx := context.Background()

	_, err := mr.XAdd("upi-transactions", "*", []string{"data", "{not json"})
	require.NoError(t, err)

	msgs, err := sc.Consume(ctx, "c-1", 10, noBlock)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].Request)
	assert.Error(t, msgs[0].ParseErr)
	assert.Equal(t, "{not json", msgs[0].Raw)
}

func TestPublishResult(t *testing.T) {
	sc, mr := newTestStream(t)

	_, err := sc.PublishResult(context.Background(), &models.ScoringResponse{
		RequestID: "req-1",
		Result:    &models.PredictionResult{FraudProbability: 0.94, RiskLevel: models.RiskLevelHigh},
	})
	require.NoError(t, err)

	entries, err := mr.Stream("upi-predictions")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "request_id", entries[0].Values[0])
	assert.Equal(t, "req-1", entries[0].Values[1])
}

func TestSendToDeadLetter(t *testing.T) {
	sc, mr := newTestStream(t)

	msg := StreamMessage{ID: "1-0", Raw: `{"request_id":"req-9"}`}
	require.NoError(t, sc.SendToDeadLetter(context.Background(), msg, errors.New("invalid transaction")))

	entries, err := mr.Stream("upi-transactions-dlq")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{
		"message_id", "1-0",
		"data", `{"request_id":"req-9"}`,
		"error", "invalid transaction",
	}, entries[0].Values)
}

func TestPublishConnectionError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	sc := &StreamClient{client: client, streamName: "upi-transactions"}

	_, err := sc.Publish(context.Background(), request("req-1", 1))
	assert.Error(t, err)
}
