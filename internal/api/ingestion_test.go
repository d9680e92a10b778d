package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/upi-fraud-engine/configs"
	"github.com/enterprise/upi-fraud-engine/internal/ingestion"
	"github.com/enterprise/upi-fraud-engine/internal/models"
	"github.com/enterprise/upi-fraud-engine/internal/queue"
)

type downPublisher struct{}

func (downPublisher) Publish(context.Context, *models.ScoringRequest) (string, error) {
	return "", errors.New("connection refused")
}

func newIngestionEnv(t *testing.T) (*testEnv, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stream, err := queue.NewStreamClientWith(context.Background(), client, configs.RedisConfig{
		StreamName:       "upi-transactions",
		ConsumerGroup:    "fraud-scorers",
		ResultStream:     "upi-predictions",
		DeadLetterStream: "upi-transactions-dlq",
	})
	require.NoError(t, err)

	env := newTestEnv(t, configs.ServerConfig{MaxBatchSize: 2}, false)
	env.server.SetIngestion(ingestion.NewService(stream, client, time.Hour))
	env.router = env.server.Router()
	return env, mr
}

func TestSubmitHandler(t *testing.T) {
	env, mr := newIngestionEnv(t)
	body := map[string]any{"idempotency_key": "pay-1", "transaction": lowRiskRecord()}

	w := env.do(t, http.MethodPost, "/api/v1/predict/async", body, "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var first ingestion.SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, ingestion.StatusQueued, first.Status)

	w = env.do(t, http.MethodPost, "/api/v1/predict/async", body, "")
	require.Equal(t, http.StatusOK, w.Code)
	var second ingestion.SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, ingestion.StatusDuplicate, second.Status)
	assert.Equal(t, first.RequestID, second.RequestID)

	entries, err := mr.Stream("upi-transactions")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSubmitHandler_Errors(t *testing.T) {
	env, _ := newIngestionEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/predict/async", map[string]any{
		"transaction": map[string]any{"amount": -1},
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.server.SetIngestion(ingestion.NewService(downPublisher{}, nil, time.Hour))
	env.router = env.server.Router()
	w = env.do(t, http.MethodPost, "/api/v1/predict/async", map[string]any{"transaction": lowRiskRecord()}, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSubmitBatchHandler(t *testing.T) {
	env, _ := newIngestionEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/predict/async/batch", map[string]any{
		"submissions": []map[string]any{
			{"request_id": "a", "transaction": lowRiskRecord()},
			{"request_id": "b", "transaction": map[string]any{"amount": 0}},
		},
	}, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp ingestion.BatchSubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Successful)
	assert.Equal(t, 1, resp.Failed)

	w = env.do(t, http.MethodPost, "/api/v1/predict/async/batch", map[string]any{
		"submissions": []map[string]any{
			{"transaction": lowRiskRecord()},
			{"transaction": lowRiskRecord()},
			{"transaction": lowRiskRecord()},
		},
	}, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAsyncRoutes_DisabledWithoutService(t *testing.T) {
	env := newTestEnv(t, configs.ServerConfig{MaxBatchSize: 10}, false)

	w := env.do(t, http.MethodPost, "/api/v1/predict/async", map[string]any{"transaction": lowRiskRecord()}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
