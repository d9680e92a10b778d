package scoring

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// maxDetailedResults caps the per-record results kept in a batch report
const maxDetailedResults = 100

// BatchOptions controls AnalyzeBatch
type BatchOptions struct {
	// DryRun scores records without touching history or the audit log
	DryRun bool `json:"dry_run"`
	// IncludeResults keeps per-record results in the report
	IncludeResults bool `json:"include_results"`
}

// BatchReport summarizes the predictions for a batch of records
type BatchReport struct {
	TotalTransactions    int                      `json:"total_transactions"`
	ProcessedCount       int                      `json:"processed_count"`
	FailedCount          int                      `json:"failed_count"`
	FraudCount           int                      `json:"fraud_count"`
	FraudRate            float64                  `json:"fraud_rate"`
	AverageProbability   float64                  `json:"average_probability"`
	AverageVulnerability float64                  `json:"average_vulnerability"`
	RiskDistribution     map[models.RiskLevel]int `json:"risk_distribution"`
	DecisionCounts       map[models.Decision]int  `json:"decision_counts"`
	FraudTypeCounts      map[models.FraudType]int `json:"fraud_type_counts"`
	TopPatterns          []PatternCount           `json:"top_patterns"`
	ProcessingTimeMs     int64                    `json:"processing_time_ms"`
	Results              []BatchItem              `json:"results,omitempty"`
	DryRun               bool                     `json:"dry_run"`
}

// PatternCount is the number of alerts raised for a pattern
type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// BatchItem is the outcome for one record of a batch
type BatchItem struct {
	Index  int                      `json:"index"`
	Result *models.PredictionResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

// AnalyzeBatch scores records in order and aggregates the outcomes.
// Individual failures are counted, not returned.
func (e *Engine) AnalyzeBatch(ctx context.Context, recs []*models.TransactionRecord, opts BatchOptions) (*BatchReport, error) {
	startTime := time.Now()

	report := &BatchReport{
		TotalTransactions: len(recs),
		RiskDistribution:  make(map[models.RiskLevel]int),
		DecisionCounts:    make(map[models.Decision]int),
		FraudTypeCounts:   make(map[models.FraudType]int),
		TopPatterns:       make([]PatternCount, 0),
		DryRun:            opts.DryRun,
	}

	patterns := make(map[string]int)
	var totalProbability, totalVulnerability float64

	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := e.predict(ctx, rec, !opts.DryRun)
		if err != nil {
			report.FailedCount++
			log.Warn().Err(err).Int("index", i).Msg("Failed to analyze transaction")
			if opts.IncludeResults && len(report.Results) < maxDetailedResults {
				report.Results = append(report.Results, BatchItem{Index: i, Error: err.Error()})
			}
			continue
		}

		report.ProcessedCount++
		totalProbability += result.FraudProbability
		totalVulnerability += float64(result.VulnerabilityScore)
		report.RiskDistribution[result.RiskLevel]++
		report.DecisionCounts[result.Decision]++
		report.FraudTypeCounts[result.FraudType]++
		if result.IsFraud {
			report.FraudCount++
		}
		for _, alert := range result.PatternAlerts {
			patterns[alert.Pattern]++
		}

		if opts.IncludeResults && len(report.Results) < maxDetailedResults {
			report.Results = append(report.Results, BatchItem{Index: i, Result: result})
		}
	}

	if report.ProcessedCount > 0 {
		n := float64(report.ProcessedCount)
		report.AverageProbability = totalProbability / n
		report.AverageVulnerability = totalVulnerability / n
		report.FraudRate = float64(report.FraudCount) / n
	}

	for pattern, count := range patterns {
		report.TopPatterns = append(report.TopPatterns, PatternCount{Pattern: pattern, Count: count})
	}
	sortPatternCounts(report.TopPatterns)

	report.ProcessingTimeMs = time.Since(startTime).Milliseconds()

	log.Info().
		Int("total", report.TotalTransactions).
		Int("processed", report.ProcessedCount).
		Int("fraud", report.FraudCount).
		Float64("avg_probability", report.AverageProbability).
		Bool("dry_run", opts.DryRun).
		Int64("processing_ms", report.ProcessingTimeMs).
		Msg("Batch analysis completed")

	return report, nil
}

// sortPatternCounts orders by count descending, then pattern name
func sortPatternCounts(counts []PatternCount) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Pattern < counts[j].Pattern
	})
}
