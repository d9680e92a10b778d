package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/upi-fraud-engine/internal/models"
	"github.com/enterprise/upi-fraud-engine/internal/repositories"
)

type fakeAudit struct {
	groups     []repositories.AuditBreakdown
	volumes    []models.HourlyVolume
	err        error
	calls      int
	since      time.Time
	start, end time.Time
}

func (f *fakeAudit) GetBreakdown(_ context.Context, since time.Time) ([]repositories.AuditBreakdown, error) {
	f.calls++
	f.since = since
	return f.groups, f.err
}

func (f *fakeAudit) GetHourlyVolume(_ context.Context, start, end time.Time) ([]models.HourlyVolume, error) {
	f.calls++
	f.start, f.end = start, end
	return f.volumes, f.err
}

var fixedNow = time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)

func newService(audit AuditQuerier, cache redis.UniversalClient) *Service {
	s := NewService(audit, cache, 5*time.Minute)
	s.now = func() time.Time { return fixedNow }
	return s
}

func sampleGroups() []repositories.AuditBreakdown {
	return []repositories.AuditBreakdown{
		{RiskLevel: models.RiskLevelHigh, Decision: models.DecisionBlock, FraudType: models.FraudTypeHighAmount, Count: 2, ProbabilitySum: 1.8, AmountSum: 90000},
		{RiskLevel: models.RiskLevelMedium, Decision: models.DecisionWarn, FraudType: models.FraudTypeLegitimate, Count: 3, ProbabilitySum: 1.2, AmountSum: 6000},
		{RiskLevel: models.RiskLevelLow, Decision: models.DecisionAllow, FraudType: models.FraudTypeLegitimate, Count: 5, ProbabilitySum: 0.5, AmountSum: 2500},
	}
}

func TestGetRiskSummary(t *testing.T) {
	audit := &fakeAudit{groups: sampleGroups()}
	summary, err := newService(audit, nil).GetRiskSummary(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, "7 days", summary.Period)
	assert.Equal(t, fixedNow.AddDate(0, 0, -7), audit.since)
	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 2, summary.ByDecision[models.DecisionBlock])
	assert.Equal(t, 8, summary.ByFraudType[models.FraudTypeLegitimate])
	assert.Equal(t, 5, summary.ByRiskLevel[models.RiskLevelLow])
	assert.InDelta(t, 0.35, summary.AvgFraudProbability, 1e-9)
	assert.InDelta(t, 0.2, summary.BlockRate, 1e-9)
	assert.InDelta(t, 98500, summary.TotalAmount, 1e-9)
	assert.InDelta(t, 90000, summary.BlockedAmount, 1e-9)
}

func TestGetRiskSummary_Empty(t *testing.T) {
	summary, err := newService(&fakeAudit{}, nil).GetRiskSummary(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.BlockRate)
}

func TestGetRiskSummary_InvalidDays(t *testing.T) {
	s := newService(&fakeAudit{}, nil)
	for _, days := range []int{0, -1, MaxSummaryDays + 1} {
		_, err := s.GetRiskSummary(context.Background(), days)
		assert.Error(t, err, "days=%d", days)
	}
}

func TestGetRiskSummary_QueryError(t *testing.T) {
	_, err := newService(&fakeAudit{err: errors.New("connection refused")}, nil).GetRiskSummary(context.Background(), 7)
	assert.ErrorContains(t, err, "connection refused")
}

func TestGetRiskSummary_Cached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	audit := &fakeAudit{groups: sampleGroups()}
	s := newService(audit, client)

	first, err := s.GetRiskSummary(context.Background(), 7)
	require.NoError(t, err)
	second, err := s.GetRiskSummary(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 1, audit.calls)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.ByDecision, second.ByDecision)
	assert.True(t, mr.Exists("analytics:risk_summary:7"))
	assert.Equal(t, 5*time.Minute, mr.TTL("analytics:risk_summary:7"))

	mr.FastForward(6 * time.Minute)
	_, err = s.GetRiskSummary(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 2, audit.calls)
}

func TestGetHourlyVolume(t *testing.T) {
	audit := &fakeAudit{volumes: []models.HourlyVolume{{Hour: 22, Count: 4, Blocked: 1, TotalAmount: 50000}}}
	date := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)

	volumes, err := newService(audit, nil).GetHourlyVolume(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, volumes, 1)
	assert.Equal(t, 22, volumes[0].Hour)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), audit.start)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), audit.end)

	empty, err := newService(&fakeAudit{}, nil).GetHourlyVolume(context.Background(), date)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
