package audit

import (
	"context"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// RecordStore persists audit records, e.g. repositories.AuditRepository
type RecordStore interface {
	Create(ctx context.Context, rec *models.AuditRecord) error
}

// PostgresSink writes audit records through a RecordStore
type PostgresSink struct {
	store RecordStore
}

// NewPostgresSink creates a sink backed by store
func NewPostgresSink(store RecordStore) *PostgresSink {
	return &PostgresSink{store: store}
}

func (s *PostgresSink) Write(ctx context.Context, rec *models.AuditRecord) error {
	if err := s.store.Create(ctx, rec); err != nil {
		return &LoggingError{Sink: "postgres", Err: err}
	}
	return nil
}

// Close is a no-op; the connection pool is owned by the caller
func (s *PostgresSink) Close() error { return nil }
