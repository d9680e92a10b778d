package scoring

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// ErrExperimentNotFound is returned for unknown experiment ids
var ErrExperimentNotFound = errors.New("experiment not found")

// minSampleSize is the per-group sample size below which significance is not reported
const minSampleSize = 100

// Experiment groups
const (
	GroupControl = "control"
	GroupTest    = "test"
)

// ExperimentManager runs shadow threshold experiments. Devices are split
// into a control group, judged with the engine's active thresholds, and a
// test group judged with candidate thresholds. Returned verdicts are never
// affected; only the per-group outcomes are tracked.
type ExperimentManager struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
	results     map[string]*ExperimentResults
	now         func() time.Time
}

// Experiment compares candidate thresholds against the active ones
type Experiment struct {
	ID           string           `json:"id"`
	Name         string           `json:"name" binding:"required"`
	Description  string           `json:"description"`
	Status       ExperimentStatus `json:"status"`
	Candidate    ThresholdTable   `json:"candidate"`
	TrafficSplit float64          `json:"traffic_split"`
	StartTime    *time.Time       `json:"start_time,omitempty"`
	EndTime      *time.Time       `json:"end_time,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ExperimentStatus represents the status of an experiment
type ExperimentStatus string

const (
	ExperimentStatusDraft     ExperimentStatus = "draft"
	ExperimentStatusRunning   ExperimentStatus = "running"
	ExperimentStatusCompleted ExperimentStatus = "completed"
)

// ExperimentResults tracks the outcomes of both groups
type ExperimentResults struct {
	ExperimentID string     `json:"experiment_id"`
	Control      GroupStats `json:"control"`
	Test         GroupStats `json:"test"`
	LastUpdated  time.Time  `json:"last_updated"`
}

// GroupStats holds the outcomes observed for one group
type GroupStats struct {
	TotalTransactions int                      `json:"total_transactions"`
	AvgProbability    float64                  `json:"avg_probability"`
	RiskDistribution  map[models.RiskLevel]int `json:"risk_distribution"`
	BlockedCount      int                      `json:"blocked_count"`
	WarnedCount       int                      `json:"warned_count"`
	probabilitySum    float64
}

// SignificanceResult is a two-proportion z-test on the block rates
type SignificanceResult struct {
	IsSignificant       bool    `json:"is_significant"`
	ConfidenceLevel     float64 `json:"confidence_level"`
	PValue              float64 `json:"p_value"`
	BlockRateControl    float64 `json:"block_rate_control"`
	BlockRateTest       float64 `json:"block_rate_test"`
	BlockRateDifference float64 `json:"block_rate_difference"`
	SampleSizeControl   int     `json:"sample_size_control"`
	SampleSizeTest      int     `json:"sample_size_test"`
	Recommendation      string  `json:"recommendation"`
}

// NewExperimentManager creates an empty experiment manager
func NewExperimentManager() *ExperimentManager {
	return &ExperimentManager{
		experiments: make(map[string]*Experiment),
		results:     make(map[string]*ExperimentResults),
		now:         time.Now,
	}
}

func newGroupStats() GroupStats {
	return GroupStats{RiskDistribution: make(map[models.RiskLevel]int)}
}

// CreateExperiment registers a draft experiment
func (m *ExperimentManager) CreateExperiment(exp *Experiment) error {
	if exp.TrafficSplit <= 0 || exp.TrafficSplit >= 1 {
		return fmt.Errorf("traffic_split must be between 0.0 and 1.0 exclusive")
	}
	if err := exp.Candidate.Validate(); err != nil {
		return fmt.Errorf("candidate thresholds: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if exp.ID == "" {
		exp.ID = uuid.New().String()
	}
	if _, exists := m.experiments[exp.ID]; exists {
		return fmt.Errorf("experiment already exists: %s", exp.ID)
	}
	exp.Status = ExperimentStatusDraft
	exp.CreatedAt = m.now()

	m.experiments[exp.ID] = exp
	m.results[exp.ID] = &ExperimentResults{
		ExperimentID: exp.ID,
		Control:      newGroupStats(),
		Test:         newGroupStats(),
	}

	log.Info().
		Str("experiment_id", exp.ID).
		Str("name", exp.Name).
		Float64("traffic_split", exp.TrafficSplit).
		Msg("Threshold experiment created")
	return nil
}

// StartExperiment begins collecting outcomes
func (m *ExperimentManager) StartExperiment(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.experiments[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrExperimentNotFound, id)
	}
	if exp.Status != ExperimentStatusDraft {
		return fmt.Errorf("experiment is %s, only drafts can be started", exp.Status)
	}
	now := m.now()
	exp.Status = ExperimentStatusRunning
	exp.StartTime = &now

	log.Info().Str("experiment_id", id).Msg("Threshold experiment started")
	return nil
}

// StopExperiment completes a running experiment
func (m *ExperimentManager) StopExperiment(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.experiments[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrExperimentNotFound, id)
	}
	if exp.Status != ExperimentStatusRunning {
		return fmt.Errorf("experiment is not running")
	}
	now := m.now()
	exp.Status = ExperimentStatusCompleted
	exp.EndTime = &now

	log.Info().Str("experiment_id", id).Msg("Threshold experiment stopped")
	return nil
}

// DeleteExperiment removes an experiment and its results
func (m *ExperimentManager) DeleteExperiment(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.experiments[id]; !ok {
		return fmt.Errorf("%w: %s", ErrExperimentNotFound, id)
	}
	delete(m.experiments, id)
	delete(m.results, id)
	return nil
}

// GetExperiment returns a copy of an experiment
func (m *ExperimentManager) GetExperiment(id string) (*Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, ok := m.experiments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExperimentNotFound, id)
	}
	cp := *exp
	return &cp, nil
}

// ListExperiments returns copies of all experiments, oldest first
func (m *ExperimentManager) ListExperiments() []*Experiment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*Experiment, 0, len(m.experiments))
	for _, exp := range m.experiments {
		cp := *exp
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list
}

// assignGroup hashes the device so it always lands in the same group
func assignGroup(experimentID, deviceID string, split float64) string {
	sum := sha256.Sum256([]byte(experimentID + ":" + deviceID))
	if float64(binary.BigEndian.Uint64(sum[:8]))/math.MaxUint64 < split {
		return GroupTest
	}
	return GroupControl
}

// AssignGroup reports the group a device belongs to in an experiment
func (m *ExperimentManager) AssignGroup(id, deviceID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, ok := m.experiments[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrExperimentNotFound, id)
	}
	return assignGroup(exp.ID, deviceID, exp.TrafficSplit), nil
}

// Observe records a scored transaction in every running experiment
func (m *ExperimentManager) Observe(active ThresholdTable, deviceID string, probability float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, exp := range m.experiments {
		if exp.Status != ExperimentStatusRunning {
			continue
		}
		results := m.results[id]

		stats, thresholds := &results.Control, active
		if assignGroup(id, deviceID, exp.TrafficSplit) == GroupTest {
			stats, thresholds = &results.Test, exp.Candidate
		}

		level := thresholds.RiskLevel(probability)
		stats.TotalTransactions++
		stats.probabilitySum += probability
		stats.AvgProbability = stats.probabilitySum / float64(stats.TotalTransactions)
		stats.RiskDistribution[level]++
		switch DecisionFor(level) {
		case models.DecisionBlock:
			stats.BlockedCount++
		case models.DecisionWarn:
			stats.WarnedCount++
		}
		results.LastUpdated = m.now()
	}
}

// GetResults returns a copy of an experiment's results
func (m *ExperimentManager) GetResults(id string) (*ExperimentResults, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results, ok := m.results[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExperimentNotFound, id)
	}
	cp := *results
	cp.Control = results.Control.clone()
	cp.Test = results.Test.clone()
	return &cp, nil
}

func (g GroupStats) clone() GroupStats {
	dist := make(map[models.RiskLevel]int, len(g.RiskDistribution))
	for k, v := range g.RiskDistribution {
		dist[k] = v
	}
	g.RiskDistribution = dist
	return g
}

// GetStatisticalSignificance tests whether the block rates differ
func (m *ExperimentManager) GetStatisticalSignificance(id string) (*SignificanceResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results, ok := m.results[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExperimentNotFound, id)
	}
	return calculateSignificance(results), nil
}

func calculateSignificance(results *ExperimentResults) *SignificanceResult {
	nc, nt := results.Control.TotalTransactions, results.Test.TotalTransactions
	sig := &SignificanceResult{
		SampleSizeControl: nc,
		SampleSizeTest:    nt,
		ConfidenceLevel:   0.95,
	}

	if nc < minSampleSize || nt < minSampleSize {
		sig.Recommendation = fmt.Sprintf("Need at least %d samples in each group. Control: %d, Test: %d",
			minSampleSize, nc, nt)
		return sig
	}

	sig.BlockRateControl = float64(results.Control.BlockedCount) / float64(nc)
	sig.BlockRateTest = float64(results.Test.BlockedCount) / float64(nt)
	sig.BlockRateDifference = sig.BlockRateTest - sig.BlockRateControl

	pooled := float64(results.Control.BlockedCount+results.Test.BlockedCount) / float64(nc+nt)
	if pooled > 0 && pooled < 1 {
		se := math.Sqrt(pooled * (1 - pooled) * (1/float64(nc) + 1/float64(nt)))
		z := math.Abs(sig.BlockRateDifference) / se
		sig.PValue = 2 * (1 - normalCDF(z))
		sig.IsSignificant = sig.PValue < 1-sig.ConfidenceLevel
	} else {
		sig.PValue = 1
	}

	switch {
	case !sig.IsSignificant:
		sig.Recommendation = "Block rates are not significantly different. Continue running the experiment."
	case sig.BlockRateDifference > 0:
		sig.Recommendation = fmt.Sprintf("Candidate thresholds block %.1f points more traffic. Review false positive cost.", sig.BlockRateDifference*100)
	default:
		sig.Recommendation = fmt.Sprintf("Candidate thresholds block %.1f points less traffic. Evaluate false negative risk.", -sig.BlockRateDifference*100)
	}
	return sig
}

func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
