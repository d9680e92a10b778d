package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	calls   []execCall
	execErr error
	batch   *pgx.Batch
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batch = b
	return &fakeBatchResults{err: f.execErr}
}

type fakeBatchResults struct {
	err error
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}
func (r *fakeBatchResults) Query() (pgx.Rows, error) { return nil, r.err }
func (r *fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (r *fakeBatchResults) Close() error             { return nil }

func testRecord() *models.AuditRecord {
	return &models.AuditRecord{
		ID:        uuid.New(),
		Timestamp: time.Date(2024, 3, 1, 22, 15, 0, 0, time.UTC),
		Input: models.AuditInput{
			Amount:      45000,
			TimeSlot:    3,
			IsNewDevice: true,
			DeviceID:    "DEV1",
		},
		Output: models.AuditOutput{
			FraudProbability: 0.94,
			RiskLevel:        models.RiskLevelHigh,
			Decision:         models.DecisionBlock,
			FraudType:        models.FraudTypeHighAmount,
		},
	}
}

func TestAuditRepository_Create(t *testing.T) {
	db := &fakeDB{}
	repo := NewAuditRepository(db)
	rec := testRecord()

	require.NoError(t, repo.Create(context.Background(), rec))
	require.Len(t, db.calls, 1)

	args := db.calls[0].args
	require.Len(t, args, 10)
	assert.Equal(t, rec.ID, args[0])
	assert.Equal(t, "DEV1", args[4])
	assert.Equal(t, "HIGH", args[6])
	assert.Equal(t, "BLOCK", args[7])

	var payload models.AuditRecord
	require.NoError(t, json.Unmarshal(args[9].([]byte), &payload))
	assert.Equal(t, rec.ID, payload.ID)
	assert.Equal(t, models.FraudTypeHighAmount, payload.Output.FraudType)
}

func TestAuditRepository_CreateError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection reset")}
	err := NewAuditRepository(db).Create(context.Background(), testRecord())
	assert.ErrorContains(t, err, "connection reset")
}

func TestAuditRepository_CreateBatch(t *testing.T) {
	db := &fakeDB{}
	repo := NewAuditRepository(db)

	require.NoError(t, repo.CreateBatch(context.Background(), nil))
	assert.Nil(t, db.batch)

	require.NoError(t, repo.CreateBatch(context.Background(), []*models.AuditRecord{testRecord(), testRecord()}))
	require.NotNil(t, db.batch)
	assert.Equal(t, 2, db.batch.Len())
}

func TestAuditRepository_QueryErrors(t *testing.T) {
	repo := NewAuditRepository(&fakeDB{})
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.GetBreakdown(context.Background(), since)
	assert.ErrorContains(t, err, "audit breakdown")

	_, err = repo.GetHourlyVolume(context.Background(), since, since.Add(24*time.Hour))
	assert.ErrorContains(t, err, "hourly volume")
}
