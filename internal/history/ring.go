package history

import (
	"context"
	"sync"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// RingBuffer is a process-local Store backed by a fixed-size circular buffer.
// When full, appending evicts the oldest entry.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []models.HistoryEntry
	next    int
	size    int
}

// NewRingBuffer creates a ring buffer holding at most capacity entries
func NewRingBuffer(capacity int) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &RingBuffer{entries: make([]models.HistoryEntry, capacity)}, nil
}

// Capacity returns the maximum number of retained entries
func (r *RingBuffer) Capacity() int {
	return len(r.entries)
}

// Append adds an entry, overwriting the oldest one when the buffer is full
func (r *RingBuffer) Append(_ context.Context, entry models.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = entry
	r.next = (r.next + 1) % len(r.entries)
	if r.size < len(r.entries) {
		r.size++
	}
	return nil
}

// Recent returns up to k entries, most recent first
func (r *RingBuffer) Recent(_ context.Context, k int) ([]models.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if k > r.size {
		k = r.size
	}
	if k <= 0 {
		return []models.HistoryEntry{}, nil
	}

	out := make([]models.HistoryEntry, k)
	idx := r.next
	for i := 0; i < k; i++ {
		idx--
		if idx < 0 {
			idx = len(r.entries) - 1
		}
		out[i] = r.entries[idx]
	}
	return out, nil
}

// Len returns the number of retained entries
func (r *RingBuffer) Len(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size, nil
}
