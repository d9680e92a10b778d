package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// DefaultKey is the Redis list holding the shared history window
const DefaultKey = "upi:history"

// RedisStore shares the history window between engine replicas using a
// Redis list. The head of the list is the most recent entry.
type RedisStore struct {
	client   redis.UniversalClient
	key      string
	capacity int
}

// NewRedisStore creates a Redis-backed store trimming the list to capacity
func NewRedisStore(client redis.UniversalClient, key string, capacity int) (*RedisStore, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{client: client, key: key, capacity: capacity}, nil
}

// Append pushes the entry and trims the list in a single MULTI/EXEC
func (s *RedisStore) Append(ctx context.Context, entry models.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.key, data)
		pipe.LTrim(ctx, s.key, 0, int64(s.capacity-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// Recent returns up to k entries, most recent first. Entries that cannot
// be decoded are skipped.
func (s *RedisStore) Recent(ctx context.Context, k int) ([]models.HistoryEntry, error) {
	if k <= 0 {
		return []models.HistoryEntry{}, nil
	}
	if k > s.capacity {
		k = s.capacity
	}

	raw, err := s.client.LRange(ctx, s.key, 0, int64(k-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	entries := make([]models.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var entry models.HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			log.Warn().Err(err).Str("key", s.key).Msg("Skipping malformed history entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Len returns the number of retained entries
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read history length: %w", err)
	}
	return int(n), nil
}
