package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/upi-fraud-engine/configs"
	"github.com/enterprise/upi-fraud-engine/internal/models"
)

func testConfig(t *testing.T) *configs.Config {
	t.Helper()
	cfg := configs.Load()
	cfg.Audit.FilePath = filepath.Join(t.TempDir(), "audit", "predictions.jsonl")
	cfg.Audit.Postgres = false
	cfg.Audit.Kafka = false
	cfg.History.Backend = configs.HistoryBackendMemory
	return cfg
}

func record() *models.TransactionRecord {
	return &models.TransactionRecord{
		Amount:                500,
		TimeSlot:              models.TimeSlotAfternoon,
		TransactionFrequency:  2,
		AmountDeviation:       0.1,
		BeneficiaryTrustScore: 0.95,
		DeviceAgeDays:         500,
		AccountAgeDays:        1000,
	}
}

func TestBuild_MemoryHistoryAndFileAudit(t *testing.T) {
	cfg := testConfig(t)

	comp, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer comp.Close()

	assert.Nil(t, comp.Redis)
	assert.Nil(t, comp.DB)

	result, err := comp.Engine.Predict(context.Background(), record())
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAllow, result.Decision)

	data, err := os.ReadFile(cfg.Audit.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), result.PredictionID.String())
}

func TestBuild_Experiments(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.Experiments = true

	comp, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer comp.Close()
	assert.NotNil(t, comp.Engine.Experiments())

	cfg = testConfig(t)
	comp2, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer comp2.Close()
	assert.Nil(t, comp2.Engine.Experiments())
}

func TestBuild_RedisHistory(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.History.Backend = configs.HistoryBackendRedis
	cfg.Redis.URL = "redis://" + mr.Addr()

	comp, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer comp.Close()

	require.NotNil(t, comp.Redis)
	_, err = comp.Engine.Predict(context.Background(), record())
	require.NoError(t, err)

	n, err := comp.Engine.History().Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, mr.Exists(cfg.History.Key))
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*configs.Config)
	}{
		{"unknown threshold profile", func(c *configs.Config) { c.Model.ThresholdProfile = "strict" }},
		{"unknown history backend", func(c *configs.Config) { c.History.Backend = "memcached" }},
		{"invalid capacity", func(c *configs.Config) { c.History.Capacity = 0 }},
		{"missing model artifact", func(c *configs.Config) { c.Model.ArtifactPath = "/nonexistent/model.json" }},
		{"invalid defaults", func(c *configs.Config) { c.Defaults.DeviceID = "" }},
		{"unreachable redis", func(c *configs.Config) {
			c.History.Backend = configs.HistoryBackendRedis
			c.Redis.URL = "redis://127.0.0.1:1"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)

			comp, err := Build(context.Background(), cfg)
			assert.Error(t, err)
			assert.Nil(t, comp)
		})
	}
}

func TestFeatureDefaults(t *testing.T) {
	d := FeatureDefaults(configs.DefaultsConfig{
		BeneficiaryChangeVelocity: 3,
		DeviceID:                  "D-1",
		PayeeBalanceBefore:        2500,
	})
	assert.Equal(t, 3, d.BeneficiaryChangeVelocity)
	assert.Equal(t, "D-1", d.DeviceID)
	assert.Equal(t, 2500.0, d.PayeeBalanceBefore)
}
