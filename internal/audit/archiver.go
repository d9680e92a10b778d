package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/configs"
	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// BatchStore persists audit records in bulk
type BatchStore interface {
	CreateBatch(ctx context.Context, recs []*models.AuditRecord) error
}

// Archiver drains the audit topic into a BatchStore. It implements
// sarama.ConsumerGroupHandler; offsets are marked only after a batch is
// stored, so a failed flush is redelivered to the next session.
type Archiver struct {
	store         BatchStore
	batchSize     int
	flushInterval time.Duration

	archived atomic.Int64
	skipped  atomic.Int64
}

// NewArchiver creates an archiver flushing every batchSize records or flushInterval
func NewArchiver(store BatchStore, batchSize int, flushInterval time.Duration) *Archiver {
	if batchSize < 1 {
		batchSize = 1
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Archiver{store: store, batchSize: batchSize, flushInterval: flushInterval}
}

// NewConsumerConfig returns the consumer group configuration for the archiver
func NewConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true
	return config
}

// DialConsumerGroup joins the archiver consumer group
func DialConsumerGroup(cfg configs.KafkaConfig) (sarama.ConsumerGroup, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, NewConsumerConfig())
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return group, nil
}

// Archived returns the number of records stored so far
func (a *Archiver) Archived() int64 { return a.archived.Load() }

// Skipped returns the number of undecodable messages dropped
func (a *Archiver) Skipped() int64 { return a.skipped.Load() }

func (a *Archiver) Setup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Audit archiver session started")
	return nil
}

func (a *Archiver) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info().Int64("archived", a.Archived()).Int64("skipped", a.Skipped()).Msg("Audit archiver session ended")
	return nil
}

func (a *Archiver) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	batch := make([]*models.AuditRecord, 0, a.batchSize)
	var last *sarama.ConsumerMessage

	flush := func() error {
		if last == nil {
			return nil
		}
		if len(batch) > 0 {
			if err := a.store.CreateBatch(session.Context(), batch); err != nil {
				return fmt.Errorf("store audit batch: %w", err)
			}
			a.archived.Add(int64(len(batch)))
			log.Debug().Int("count", len(batch)).Int32("partition", claim.Partition()).Msg("Audit batch archived")
		}
		session.MarkMessage(last, "")
		batch = batch[:0]
		last = nil
		return nil
	}

	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return flush()
			}
			last = message
			var rec models.AuditRecord
			if err := json.Unmarshal(message.Value, &rec); err != nil {
				a.skipped.Add(1)
				log.Error().Err(err).Int64("offset", message.Offset).Msg("Failed to decode audit record")
			} else {
				batch = append(batch, &rec)
			}
			if len(batch) >= a.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}

		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}

		case <-session.Context().Done():
			return nil
		}
	}
}
