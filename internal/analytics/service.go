// Package analytics reports on audited predictions.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/internal/models"
	"github.com/enterprise/upi-fraud-engine/internal/repositories"
)

// MaxSummaryDays bounds the summary window
const MaxSummaryDays = 90

// AuditQuerier is the read side of the prediction audit table
type AuditQuerier interface {
	GetBreakdown(ctx context.Context, since time.Time) ([]repositories.AuditBreakdown, error)
	GetHourlyVolume(ctx context.Context, start, end time.Time) ([]models.HourlyVolume, error)
}

// Service provides analytics over audited predictions
type Service struct {
	audit    AuditQuerier
	cache    redis.UniversalClient
	cacheTTL time.Duration
	now      func() time.Time
}

// RiskSummary aggregates the predictions of a period
type RiskSummary struct {
	Period              string                   `json:"period"`
	Since               time.Time                `json:"since"`
	Total               int                      `json:"total"`
	ByRiskLevel         map[models.RiskLevel]int `json:"by_risk_level"`
	ByDecision          map[models.Decision]int  `json:"by_decision"`
	ByFraudType         map[models.FraudType]int `json:"by_fraud_type"`
	AvgFraudProbability float64                  `json:"avg_fraud_probability"`
	BlockRate           float64                  `json:"block_rate"`
	TotalAmount         float64                  `json:"total_amount"`
	BlockedAmount       float64                  `json:"blocked_amount"`
}

// NewService creates an analytics service. cache may be nil.
func NewService(audit AuditQuerier, cache redis.UniversalClient, cacheTTL time.Duration) *Service {
	return &Service{
		audit:    audit,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// GetRiskSummary summarizes predictions over the last days
func (s *Service) GetRiskSummary(ctx context.Context, days int) (*RiskSummary, error) {
	if days < 1 || days > MaxSummaryDays {
		return nil, fmt.Errorf("days must be between 1 and %d", MaxSummaryDays)
	}

	cacheKey := fmt.Sprintf("analytics:risk_summary:%d", days)
	var cached RiskSummary
	if s.getCached(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	since := s.now().UTC().AddDate(0, 0, -days)
	groups, err := s.audit.GetBreakdown(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get risk summary: %w", err)
	}

	summary := summarize(groups)
	summary.Period = fmt.Sprintf("%d days", days)
	summary.Since = since

	s.setCached(ctx, cacheKey, summary)
	return summary, nil
}

func summarize(groups []repositories.AuditBreakdown) *RiskSummary {
	summary := &RiskSummary{
		ByRiskLevel: make(map[models.RiskLevel]int),
		ByDecision:  make(map[models.Decision]int),
		ByFraudType: make(map[models.FraudType]int),
	}

	var probabilitySum float64
	var blocked int
	for _, g := range groups {
		summary.Total += g.Count
		summary.ByRiskLevel[g.RiskLevel] += g.Count
		summary.ByDecision[g.Decision] += g.Count
		summary.ByFraudType[g.FraudType] += g.Count
		summary.TotalAmount += g.AmountSum
		probabilitySum += g.ProbabilitySum
		if g.Decision == models.DecisionBlock {
			blocked += g.Count
			summary.BlockedAmount += g.AmountSum
		}
	}

	if summary.Total > 0 {
		summary.AvgFraudProbability = probabilitySum / float64(summary.Total)
		summary.BlockRate = float64(blocked) / float64(summary.Total)
	}
	return summary
}

// GetHourlyVolume returns the prediction volume per hour for a UTC date
func (s *Service) GetHourlyVolume(ctx context.Context, date time.Time) ([]models.HourlyVolume, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	cacheKey := fmt.Sprintf("analytics:hourly_volume:%s", start.Format("2006-01-02"))
	var cached []models.HourlyVolume
	if s.getCached(ctx, cacheKey, &cached) {
		return cached, nil
	}

	volumes, err := s.audit.GetHourlyVolume(ctx, start, start.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to get hourly volume: %w", err)
	}
	if volumes == nil {
		volumes = []models.HourlyVolume{}
	}

	s.setCached(ctx, cacheKey, volumes)
	return volumes, nil
}

func (s *Service) getCached(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to read analytics cache")
		}
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (s *Service) setCached(ctx context.Context, key string, value any) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache analytics result")
	}
}
