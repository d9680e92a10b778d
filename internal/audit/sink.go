// Package audit writes the best-effort audit trail of scored transactions.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// Sink receives one audit record per prediction
type Sink interface {
	Write(ctx context.Context, rec *models.AuditRecord) error
	Close() error
}

// LoggingError reports a failed audit write. It is never fatal to a
// prediction.
type LoggingError struct {
	Sink string
	Err  error
}

func (e *LoggingError) Error() string {
	return fmt.Sprintf("audit sink %s: %v", e.Sink, e.Err)
}

func (e *LoggingError) Unwrap() error {
	return e.Err
}

// NewRecord builds the audit record for a scored transaction
func NewRecord(tx *models.NormalizedTransaction, result *models.PredictionResult) *models.AuditRecord {
	id := result.PredictionID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &models.AuditRecord{
		ID:        id,
		Timestamp: result.ScoredAt,
		Input: models.AuditInput{
			Amount:           tx.Amount,
			TimeSlot:         tx.TimeSlot,
			IsNewDevice:      tx.IsNewDevice,
			IsNewBeneficiary: tx.IsNewBeneficiary,
			LocationChange:   tx.LocationChange,
			DeviceID:         tx.DeviceID,
		},
		Output: models.AuditOutput{
			FraudProbability: result.FraudProbability,
			RiskLevel:        result.RiskLevel,
			Decision:         result.Decision,
			FraudType:        result.FraudType,
		},
	}
}

// MultiSink fans a record out to several sinks. Every sink is attempted;
// failures are joined.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink writing to all non-nil sinks
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of wrapped sinks
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

func (m *MultiSink) Write(ctx context.Context, rec *models.AuditRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every record
type Discard struct{}

func (Discard) Write(context.Context, *models.AuditRecord) error { return nil }
func (Discard) Close() error                                     { return nil }
