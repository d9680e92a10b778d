package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/configs"
	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// pendingMinIdle is how long a delivered message may stay unacknowledged
// before another consumer claims it
const pendingMinIdle = 30 * time.Second

// StreamClient handles Redis Streams operations for scoring requests
type StreamClient struct {
	client           redis.UniversalClient
	streamName       string
	consumerGroup    string
	resultStream     string
	deadLetterStream string
}

// NewStreamClient connects to Redis and prepares the consumer group
func NewStreamClient(cfg configs.RedisConfig) (*StreamClient, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	sc, err := NewStreamClientWith(ctx, client, cfg)
	if err != nil {
		return nil, err
	}

	log.Info().Str("stream", cfg.StreamName).Str("group", cfg.ConsumerGroup).Msg("Redis Stream client initialized")
	return sc, nil
}

// NewStreamClientWith wraps an existing Redis client
func NewStreamClientWith(ctx context.Context, client redis.UniversalClient, cfg configs.RedisConfig) (*StreamClient, error) {
	sc := &StreamClient{
		client:           client,
		streamName:       cfg.StreamName,
		consumerGroup:    cfg.ConsumerGroup,
		resultStream:     cfg.ResultStream,
		deadLetterStream: cfg.DeadLetterStream,
	}
	if err := sc.createConsumerGroup(ctx); err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return sc, nil
}

// createConsumerGroup creates the stream and consumer group if missing
func (r *StreamClient) createConsumerGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.streamName, r.consumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Client returns the underlying Redis client
func (r *StreamClient) Client() redis.UniversalClient {
	return r.client
}

// Publish adds a scoring request to the stream
func (r *StreamClient) Publish(ctx context.Context, req *models.ScoringRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	msgID, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.streamName,
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish request: %w", err)
	}

	log.Debug().
		Str("message_id", msgID).
		Str("request_id", req.RequestID).
		Msg("Scoring request published to stream")

	return msgID, nil
}

// PublishBatch adds several scoring requests in one pipeline
func (r *StreamClient) PublishBatch(ctx context.Context, reqs []*models.ScoringRequest) ([]string, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(reqs))

	for i, req := range reqs {
		data, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request %d: %w", i, err)
		}
		cmds[i] = pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: r.streamName,
			Values: map[string]interface{}{"data": string(data)},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	msgIDs := make([]string, len(reqs))
	for i, cmd := range cmds {
		msgIDs[i] = cmd.Val()
	}
	return msgIDs, nil
}

// Consume reads scoring requests for a consumer, reclaiming abandoned
// deliveries first. Messages that cannot be decoded are returned with a
// nil Request and a ParseErr so the caller can dead-letter them.
func (r *StreamClient) Consume(ctx context.Context, consumerName string, count int64, block time.Duration) ([]StreamMessage, error) {
	pending, err := r.claimPendingMessages(ctx, consumerName, count)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to claim pending messages")
	}
	if len(pending) > 0 {
		return pending, nil
	}

	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.consumerGroup,
		Consumer: consumerName,
		Streams:  []string{r.streamName, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []StreamMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			messages = append(messages, r.toStreamMessage(msg))
		}
	}
	return messages, nil
}

func (r *StreamClient) claimPendingMessages(ctx context.Context, consumerName string, count int64) ([]StreamMessage, error) {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.streamName,
		Group:  r.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, p := range pending {
		if p.Idle >= pendingMinIdle {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	claimed, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.streamName,
		Group:    r.consumerGroup,
		Consumer: consumerName,
		MinIdle:  pendingMinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]StreamMessage, 0, len(claimed))
	for _, msg := range claimed {
		messages = append(messages, r.toStreamMessage(msg))
	}
	return messages, nil
}

func (r *StreamClient) toStreamMessage(msg redis.XMessage) StreamMessage {
	data, _ := msg.Values["data"].(string)
	req, err := parseRequest(data)
	if err != nil {
		log.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to parse message")
	}
	return StreamMessage{ID: msg.ID, Raw: data, Request: req, ParseErr: err}
}

func parseRequest(data string) (*models.ScoringRequest, error) {
	if data == "" {
		return nil, fmt.Errorf("invalid message format")
	}
	var req models.ScoringRequest
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	return &req, nil
}

// AcknowledgeBatch acknowledges processed messages
func (r *StreamClient) AcknowledgeBatch(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := r.client.XAck(ctx, r.streamName, r.consumerGroup, messageIDs...).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge messages: %w", err)
	}
	log.Debug().Int("count", len(messageIDs)).Msg("Messages acknowledged")
	return nil
}

// PublishResult writes a scoring response to the result stream
func (r *StreamClient) PublishResult(ctx context.Context, resp *models.ScoringResponse) (string, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal response: %w", err)
	}

	msgID, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.resultStream,
		Values: []interface{}{"request_id", resp.RequestID, "data", string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish result: %w", err)
	}
	return msgID, nil
}

// SendToDeadLetter moves a message that could not be scored to the dead letter stream
func (r *StreamClient) SendToDeadLetter(ctx context.Context, msg StreamMessage, cause error) error {
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.deadLetterStream,
		Values: []interface{}{"message_id", msg.ID, "data", msg.Raw, "error", cause.Error()},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to send to dead letter: %w", err)
	}

	log.Warn().
		Str("message_id", msg.ID).
		Err(cause).
		Msg("Message sent to dead letter stream")
	return nil
}

// GetStreamInfo returns information about the request stream
func (r *StreamClient) GetStreamInfo(ctx context.Context) (*StreamInfo, error) {
	info, err := r.client.XInfoStream(ctx, r.streamName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	groups, err := r.client.XInfoGroups(ctx, r.streamName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get groups info: %w", err)
	}

	var pendingCount int64
	for _, g := range groups {
		if g.Name == r.consumerGroup {
			pendingCount = g.Pending
			break
		}
	}

	return &StreamInfo{
		Length:       info.Length,
		PendingCount: pendingCount,
		Groups:       len(groups),
	}, nil
}

// Close closes the Redis client
func (r *StreamClient) Close() error {
	return r.client.Close()
}

// StreamMessage is a message read from the request stream
type StreamMessage struct {
	ID       string
	Raw      string
	Request  *models.ScoringRequest
	ParseErr error
}

// StreamInfo contains stream statistics
type StreamInfo struct {
	Length       int64
	PendingCount int64
	Groups       int
}
