// Package app assembles the scoring engine and its backing services from
// configuration. Both the API server and the stream worker start here.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/configs"
	"github.com/enterprise/upi-fraud-engine/internal/audit"
	"github.com/enterprise/upi-fraud-engine/internal/classifier"
	"github.com/enterprise/upi-fraud-engine/internal/features"
	"github.com/enterprise/upi-fraud-engine/internal/history"
	"github.com/enterprise/upi-fraud-engine/internal/metrics"
	"github.com/enterprise/upi-fraud-engine/internal/repositories"
	"github.com/enterprise/upi-fraud-engine/internal/scoring"
)

// Components is a fully wired engine plus the connections it owns
type Components struct {
	Engine *scoring.Engine
	Redis  redis.UniversalClient
	DB     *repositories.Database

	closers []func() error
}

// Close releases every connection in reverse order of creation
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to close component")
		}
	}
	c.closers = nil
}

// Build creates the engine described by cfg. On error, anything already
// opened is closed.
func Build(ctx context.Context, cfg *configs.Config) (_ *Components, err error) {
	comp := &Components{}
	defer func() {
		if err != nil {
			comp.Close()
		}
	}()

	clf, err := loadClassifier(cfg.Model)
	if err != nil {
		return nil, err
	}

	normalizer, err := features.NewNormalizer(FeatureDefaults(cfg.Defaults))
	if err != nil {
		return nil, err
	}

	thresholds, err := scoring.ThresholdsForProfile(cfg.Model.ThresholdProfile)
	if err != nil {
		return nil, err
	}

	store, err := comp.historyStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sink, err := comp.auditSink(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []scoring.Option{
		scoring.WithThresholds(thresholds),
		scoring.WithAuditSink(sink),
		scoring.WithRecorder(metrics.NewRecorder()),
		scoring.WithModelTimeout(cfg.Model.Timeout),
	}
	if cfg.Model.Experiments {
		opts = append(opts, scoring.WithExperiments(scoring.NewExperimentManager()))
	}
	comp.Engine, err = scoring.NewEngine(normalizer, clf, store, opts...)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("model_version", clf.Version()).
		Str("threshold_profile", cfg.Model.ThresholdProfile).
		Str("history_backend", cfg.History.Backend).
		Int("audit_sinks", sink.Len()).
		Msg("Scoring engine ready")

	return comp, nil
}

// FeatureDefaults maps configured defaults onto the normalizer's default set
func FeatureDefaults(d configs.DefaultsConfig) features.Defaults {
	defaults := features.DefaultDefaults()
	defaults.BeneficiaryChangeVelocity = d.BeneficiaryChangeVelocity
	defaults.Location = d.Location
	defaults.DeviceID = d.DeviceID
	defaults.PayeeBalanceBefore = d.PayeeBalanceBefore
	defaults.BeneficiaryBalanceBefore = d.BeneficiaryBalanceBefore
	return defaults
}

func loadClassifier(cfg configs.ModelConfig) (classifier.Classifier, error) {
	if cfg.ArtifactPath == "" {
		return classifier.Default()
	}
	return classifier.Load(cfg.ArtifactPath)
}

func (c *Components) historyStore(ctx context.Context, cfg *configs.Config) (history.Store, error) {
	switch cfg.History.Backend {
	case configs.HistoryBackendMemory, "":
		return history.NewRingBuffer(cfg.History.Capacity)
	case configs.HistoryBackendRedis:
		client, err := c.redisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return history.NewRedisStore(client, cfg.History.Key, cfg.History.Capacity)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

func (c *Components) auditSink(ctx context.Context, cfg *configs.Config) (*audit.MultiSink, error) {
	var sinks []audit.Sink

	if cfg.Audit.FilePath != "" {
		fileSink, err := audit.OpenFileSink(cfg.Audit.FilePath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileSink)
		c.closers = append(c.closers, fileSink.Close)
	}

	if cfg.Audit.Postgres {
		db, err := c.database(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, audit.NewPostgresSink(repositories.NewAuditRepository(db.Pool)))
	}

	if cfg.Audit.Kafka {
		kafkaSink, err := audit.DialKafkaSink(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, kafkaSink)
		c.closers = append(c.closers, kafkaSink.Close)
	}

	return audit.NewMultiSink(sinks...), nil
}

// RedisClient returns the shared Redis client, connecting on first use
func (c *Components) RedisClient(ctx context.Context, cfg configs.RedisConfig) (redis.UniversalClient, error) {
	return c.redisClient(ctx, cfg)
}

func (c *Components) redisClient(ctx context.Context, cfg configs.RedisConfig) (redis.UniversalClient, error) {
	if c.Redis != nil {
		return c.Redis, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.Redis = client
	c.closers = append(c.closers, client.Close)
	return client, nil
}

func (c *Components) database(ctx context.Context, cfg configs.DatabaseConfig) (*repositories.Database, error) {
	if c.DB != nil {
		return c.DB, nil
	}

	db, err := repositories.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	c.DB = db
	c.closers = append(c.closers, func() error { db.Close(); return nil })
	return db, nil
}
