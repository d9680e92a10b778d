// Package history keeps the bounded window of recently scored transactions
// used by the stateful pattern detectors.
package history

import (
	"context"
	"errors"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// DefaultCapacity is the number of entries retained when no capacity is configured
const DefaultCapacity = 100

// ErrInvalidCapacity is returned for non-positive capacities
var ErrInvalidCapacity = errors.New("history capacity must be positive")

// Store is a bounded, ordered window of history entries.
// Recent returns entries most-recent-first.
type Store interface {
	Append(ctx context.Context, entry models.HistoryEntry) error
	Recent(ctx context.Context, k int) ([]models.HistoryEntry, error)
	Len(ctx context.Context) (int, error)
}
