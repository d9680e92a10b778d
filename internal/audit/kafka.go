package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/enterprise/upi-fraud-engine/configs"
	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// KafkaSink publishes audit records to a Kafka topic keyed by device id
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaProducerConfig returns the producer configuration used for audit events
func NewKafkaProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 0
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	return config
}

// DialKafkaSink connects a sync producer to the configured brokers
func DialKafkaSink(cfg configs.KafkaConfig) (*KafkaSink, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewKafkaProducerConfig())
	if err != nil {
		return nil, &LoggingError{Sink: "kafka", Err: fmt.Errorf("create producer: %w", err)}
	}
	return NewKafkaSink(producer, cfg.AuditTopic), nil
}

// NewKafkaSink wraps an existing producer
func NewKafkaSink(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Write(_ context.Context, rec *models.AuditRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return &LoggingError{Sink: "kafka", Err: err}
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(rec.Input.DeviceID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("prediction_id"), Value: []byte(rec.ID.String())},
		},
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return &LoggingError{Sink: "kafka", Err: err}
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
