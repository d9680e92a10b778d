package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

const predictionAuditSchema = `
CREATE TABLE IF NOT EXISTS prediction_audit (
	prediction_id     UUID PRIMARY KEY,
	created_at        TIMESTAMPTZ NOT NULL,
	amount            NUMERIC(14, 2) NOT NULL,
	time_slot         SMALLINT NOT NULL,
	device_id         TEXT NOT NULL,
	fraud_probability DOUBLE PRECISION NOT NULL,
	risk_level        TEXT NOT NULL,
	decision          TEXT NOT NULL,
	fraud_type        TEXT NOT NULL,
	payload           JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prediction_audit_created_at ON prediction_audit (created_at DESC);
`

const insertPredictionAudit = `
	INSERT INTO prediction_audit (
		prediction_id, created_at, amount, time_slot, device_id,
		fraud_probability, risk_level, decision, fraud_type, payload
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (prediction_id) DO NOTHING
`

// AuditRepository persists prediction audit records
type AuditRepository struct {
	db DBTX
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a single audit record
func (r *AuditRepository) Create(ctx context.Context, rec *models.AuditRecord) error {
	args, err := auditArgs(rec)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, insertPredictionAudit, args...); err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// CreateBatch inserts multiple audit records in one round trip
func (r *AuditRepository) CreateBatch(ctx context.Context, recs []*models.AuditRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		args, err := auditArgs(rec)
		if err != nil {
			return err
		}
		batch.Queue(insertPredictionAudit, args...)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for range recs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert audit batch: %w", err)
		}
	}
	return nil
}

// GetRecent returns the most recent audit records
func (r *AuditRepository) GetRecent(ctx context.Context, limit int) ([]*models.AuditRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT payload FROM prediction_audit
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.AuditRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec := &models.AuditRecord{}
		if err := json.Unmarshal(payload, rec); err != nil {
			return nil, fmt.Errorf("failed to decode audit payload: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// AuditBreakdown is one (risk level, decision, fraud type) group of
// audited predictions
type AuditBreakdown struct {
	RiskLevel      models.RiskLevel
	Decision       models.Decision
	FraudType      models.FraudType
	Count          int
	ProbabilitySum float64
	AmountSum      float64
}

// GetBreakdown groups the predictions audited since the given time
func (r *AuditRepository) GetBreakdown(ctx context.Context, since time.Time) ([]AuditBreakdown, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			risk_level,
			decision,
			fraud_type,
			COUNT(*),
			COALESCE(SUM(fraud_probability), 0),
			COALESCE(SUM(amount), 0)::float8
		FROM prediction_audit
		WHERE created_at >= $1
		GROUP BY risk_level, decision, fraud_type
		ORDER BY risk_level, decision, fraud_type
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit breakdown: %w", err)
	}
	defer rows.Close()

	var groups []AuditBreakdown
	for rows.Next() {
		var level, decision, fraudType string
		var g AuditBreakdown
		if err := rows.Scan(&level, &decision, &fraudType, &g.Count, &g.ProbabilitySum, &g.AmountSum); err != nil {
			return nil, err
		}
		g.RiskLevel = models.RiskLevel(level)
		g.Decision = models.Decision(decision)
		g.FraudType = models.FraudType(fraudType)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GetHourlyVolume returns prediction volume by hour of day in [start, end)
func (r *AuditRepository) GetHourlyVolume(ctx context.Context, start, end time.Time) ([]models.HourlyVolume, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			EXTRACT(HOUR FROM created_at)::int AS hour,
			COUNT(*),
			COUNT(*) FILTER (WHERE decision = 'BLOCK'),
			COALESCE(SUM(amount), 0)::float8
		FROM prediction_audit
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY hour
		ORDER BY hour
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly volume: %w", err)
	}
	defer rows.Close()

	var volumes []models.HourlyVolume
	for rows.Next() {
		var hv models.HourlyVolume
		if err := rows.Scan(&hv.Hour, &hv.Count, &hv.Blocked, &hv.TotalAmount); err != nil {
			return nil, err
		}
		volumes = append(volumes, hv)
	}
	return volumes, rows.Err()
}

func auditArgs(rec *models.AuditRecord) ([]any, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit record: %w", err)
	}
	return []any{
		rec.ID,
		rec.Timestamp,
		rec.Input.Amount,
		rec.Input.TimeSlot,
		rec.Input.DeviceID,
		rec.Output.FraudProbability,
		string(rec.Output.RiskLevel),
		string(rec.Output.Decision),
		string(rec.Output.FraudType),
		payload,
	}, nil
}
