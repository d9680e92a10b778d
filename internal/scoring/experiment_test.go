package scoring

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

func runningExperiment(t *testing.T, m *ExperimentManager, split float64) string {
	t.Helper()
	exp := &Experiment{Name: "legacy-vs-canonical", Candidate: LegacyThresholds, TrafficSplit: split}
	require.NoError(t, m.CreateExperiment(exp))
	require.NoError(t, m.StartExperiment(exp.ID))
	return exp.ID
}

func TestCreateExperiment_Validation(t *testing.T) {
	tests := []struct {
		name string
		exp  Experiment
	}{
		{"zero split", Experiment{Name: "a", Candidate: LegacyThresholds, TrafficSplit: 0}},
		{"full split", Experiment{Name: "b", Candidate: LegacyThresholds, TrafficSplit: 1}},
		{"inverted thresholds", Experiment{Name: "c", Candidate: ThresholdTable{High: 0.3, Medium: 0.6}, TrafficSplit: 0.5}},
	}
	m := NewExperimentManager()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := tt.exp
			assert.Error(t, m.CreateExperiment(&exp))
		})
	}
	assert.Empty(t, m.ListExperiments())
}

func TestExperimentLifecycle(t *testing.T) {
	m := NewExperimentManager()
	exp := &Experiment{ID: "exp-1", Name: "legacy", Candidate: LegacyThresholds, TrafficSplit: 0.5}
	require.NoError(t, m.CreateExperiment(exp))
	assert.Error(t, m.CreateExperiment(&Experiment{ID: "exp-1", Name: "dup", Candidate: LegacyThresholds, TrafficSplit: 0.5}))

	assert.Error(t, m.StopExperiment("exp-1"))
	require.NoError(t, m.StartExperiment("exp-1"))
	assert.Error(t, m.StartExperiment("exp-1"))

	got, err := m.GetExperiment("exp-1")
	require.NoError(t, err)
	assert.Equal(t, ExperimentStatusRunning, got.Status)
	assert.NotNil(t, got.StartTime)

	require.NoError(t, m.StopExperiment("exp-1"))
	got, err = m.GetExperiment("exp-1")
	require.NoError(t, err)
	assert.Equal(t, ExperimentStatusCompleted, got.Status)
	assert.NotNil(t, got.EndTime)

	require.NoError(t, m.DeleteExperiment("exp-1"))
	_, err = m.GetExperiment("exp-1")
	assert.Error(t, err)
	_, err = m.GetResults("exp-1")
	assert.Error(t, err)
	assert.Error(t, m.DeleteExperiment("exp-1"))
}

func TestAssignGroup_Deterministic(t *testing.T) {
	m := NewExperimentManager()
	id := runningExperiment(t, m, 0.5)

	test := 0
	for i := 0; i < 1000; i++ {
		device := fmt.Sprintf("device-%d", i)
		first, err := m.AssignGroup(id, device)
		require.NoError(t, err)
		second, err := m.AssignGroup(id, device)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		if first == GroupTest {
			test++
		}
	}
	assert.InDelta(t, 500, test, 100)

	_, err := m.AssignGroup("missing", "device-1")
	assert.Error(t, err)
}

func TestObserve_TracksGroupsSeparately(t *testing.T) {
	m := NewExperimentManager()
	id := runningExperiment(t, m, 0.5)

	// 0.6 is HIGH under the canonical table and MEDIUM under the legacy one
	for i := 0; i < 600; i++ {
		m.Observe(CanonicalThresholds, fmt.Sprintf("device-%d", i), 0.6)
	}

	results, err := m.GetResults(id)
	require.NoError(t, err)
	assert.Equal(t, 600, results.Control.TotalTransactions+results.Test.TotalTransactions)
	assert.Equal(t, results.Control.TotalTransactions, results.Control.BlockedCount)
	assert.Equal(t, results.Control.TotalTransactions, results.Control.RiskDistribution[models.RiskLevelHigh])
	assert.Equal(t, results.Test.TotalTransactions, results.Test.WarnedCount)
	assert.Zero(t, results.Test.BlockedCount)
	assert.InDelta(t, 0.6, results.Control.AvgProbability, 1e-9)

	sig, err := m.GetStatisticalSignificance(id)
	require.NoError(t, err)
	assert.True(t, sig.IsSignificant)
	assert.InDelta(t, 1.0, sig.BlockRateControl, 1e-9)
	assert.InDelta(t, -1.0, sig.BlockRateDifference, 1e-9)
	assert.Contains(t, sig.Recommendation, "less traffic")
}

func TestObserve_IgnoresStoppedExperiments(t *testing.T) {
	m := NewExperimentManager()
	draft := &Experiment{Name: "draft", Candidate: LegacyThresholds, TrafficSplit: 0.5}
	require.NoError(t, m.CreateExperiment(draft))

	m.Observe(CanonicalThresholds, "device-1", 0.9)

	results, err := m.GetResults(draft.ID)
	require.NoError(t, err)
	assert.Zero(t, results.Control.TotalTransactions+results.Test.TotalTransactions)
}

func TestSignificance_NeedsSamples(t *testing.T) {
	m := NewExperimentManager()
	id := runningExperiment(t, m, 0.5)
	m.Observe(CanonicalThresholds, "device-1", 0.9)

	sig, err := m.GetStatisticalSignificance(id)
	require.NoError(t, err)
	assert.False(t, sig.IsSignificant)
	assert.Contains(t, sig.Recommendation, "Need at least")
}

func TestSignificance_IdenticalRates(t *testing.T) {
	results := &ExperimentResults{
		Control: GroupStats{TotalTransactions: 200, BlockedCount: 20},
		Test:    GroupStats{TotalTransactions: 200, BlockedCount: 20},
	}
	sig := calculateSignificance(results)
	assert.False(t, sig.IsSignificant)
	assert.InDelta(t, 1.0, sig.PValue, 1e-9)
}

func TestEngine_ObservesExperiments(t *testing.T) {
	m := NewExperimentManager()
	id := runningExperiment(t, m, 0.5)
	engine, _ := defaultEngine(t, WithExperiments(m))
	assert.Same(t, m, engine.Experiments())

	result, err := engine.Predict(context.Background(), scenarioOneRecord())
	require.NoError(t, err)
	assert.Equal(t, models.DecisionBlock, result.Decision)

	results, err := m.GetResults(id)
	require.NoError(t, err)
	assert.Equal(t, 1, results.Control.TotalTransactions+results.Test.TotalTransactions)
}
