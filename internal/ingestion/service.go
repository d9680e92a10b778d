// Package ingestion queues transactions for asynchronous scoring.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// Submission statuses
const (
	StatusQueued    = "queued"
	StatusDuplicate = "duplicate"
	StatusRejected  = "rejected"
)

const idempotencyPrefix = "upi:idempotency:"

// Publisher enqueues scoring requests, e.g. queue.StreamClient
type Publisher interface {
	Publish(ctx context.Context, req *models.ScoringRequest) (string, error)
}

// SubmitRequest is a transaction submitted for asynchronous scoring
type SubmitRequest struct {
	RequestID      string                   `json:"request_id" binding:"omitempty,max=128"`
	IdempotencyKey string                   `json:"idempotency_key" binding:"omitempty,max=128"`
	Transaction    models.TransactionRecord `json:"transaction"`
}

// BatchSubmitRequest is a batch of submissions
type BatchSubmitRequest struct {
	Submissions []SubmitRequest `json:"submissions" binding:"required,min=1"`
}

// SubmitResponse acknowledges a queued submission
type SubmitResponse struct {
	RequestID      string    `json:"request_id"`
	MessageID      string    `json:"message_id,omitempty"`
	Status         string    `json:"status"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	QueuedAt       time.Time `json:"queued_at"`
	Message        string    `json:"message,omitempty"`
}

// BatchSubmitResponse reports the outcome of each submission in order
type BatchSubmitResponse struct {
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Results    []SubmitResponse `json:"results"`
}

// Service validates transactions and queues them on the scoring stream
type Service struct {
	publisher Publisher
	redis     redis.UniversalClient
	keyTTL    time.Duration
	now       func() time.Time
}

// NewService creates an ingestion service. A nil redis client disables
// idempotency keys.
func NewService(publisher Publisher, client redis.UniversalClient, keyTTL time.Duration) *Service {
	return &Service{
		publisher: publisher,
		redis:     client,
		keyTTL:    keyTTL,
		now:       time.Now,
	}
}

// Submit validates and queues a single transaction. Resubmitting an
// idempotency key returns the original request id without queueing again.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if err := req.Transaction.Validate(); err != nil {
		return nil, err
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	queuedAt := s.now().UTC()

	if req.IdempotencyKey != "" && s.redis != nil {
		key := idempotencyPrefix + req.IdempotencyKey
		claimed, err := s.redis.SetNX(ctx, key, requestID, s.keyTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if !claimed {
			existing, err := s.redis.Get(ctx, key).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to read idempotency key: %w", err)
			}
			log.Debug().
				Str("idempotency_key", req.IdempotencyKey).
				Str("request_id", existing).
				Msg("Duplicate submission detected")
			return &SubmitResponse{
				RequestID:      existing,
				Status:         StatusDuplicate,
				IdempotencyKey: req.IdempotencyKey,
				QueuedAt:       queuedAt,
				Message:        "Transaction already queued (idempotent)",
			}, nil
		}
	}

	msgID, err := s.publisher.Publish(ctx, &models.ScoringRequest{
		RequestID:   requestID,
		Transaction: req.Transaction,
		Timestamp:   queuedAt,
	})
	if err != nil {
		if req.IdempotencyKey != "" && s.redis != nil {
			// release the key so the client can retry
			s.redis.Del(ctx, idempotencyPrefix+req.IdempotencyKey)
		}
		return nil, err
	}

	log.Info().
		Str("request_id", requestID).
		Str("message_id", msgID).
		Float64("amount", req.Transaction.Amount).
		Msg("Transaction queued for scoring")

	return &SubmitResponse{
		RequestID:      requestID,
		MessageID:      msgID,
		Status:         StatusQueued,
		IdempotencyKey: req.IdempotencyKey,
		QueuedAt:       queuedAt,
	}, nil
}

// SubmitBatch queues each submission independently
func (s *Service) SubmitBatch(ctx context.Context, req *BatchSubmitRequest) *BatchSubmitResponse {
	resp := &BatchSubmitResponse{Results: make([]SubmitResponse, 0, len(req.Submissions))}

	for i := range req.Submissions {
		sub := &req.Submissions[i]
		result, err := s.Submit(ctx, sub)
		if err != nil {
			resp.Failed++
			resp.Results = append(resp.Results, SubmitResponse{
				RequestID:      sub.RequestID,
				Status:         StatusRejected,
				IdempotencyKey: sub.IdempotencyKey,
				Message:        err.Error(),
			})
			continue
		}
		resp.Successful++
		resp.Results = append(resp.Results, *result)
	}

	log.Info().
		Int("successful", resp.Successful).
		Int("failed", resp.Failed).
		Msg("Batch queued for scoring")
	return resp
}
