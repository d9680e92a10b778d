package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/configs"
	"github.com/enterprise/upi-fraud-engine/internal/audit"
	"github.com/enterprise/upi-fraud-engine/internal/repositories"
)

// The archiver drains prediction audit events from Kafka into Postgres.
func main() {
	_ = godotenv.Load()

	cfg := configs.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Server.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare audit schema")
	}

	var group sarama.ConsumerGroup
	for i := 0; i < 30; i++ {
		group, err = audit.DialConsumerGroup(cfg.Kafka)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to connect to Kafka, retrying...")
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka consumer group after retries")
	}
	defer group.Close()

	go func() {
		for err := range group.Errors() {
			log.Error().Err(err).Msg("Consumer group error")
		}
	}()

	archiver := audit.NewArchiver(repositories.NewAuditRepository(db.Pool), cfg.Kafka.ArchiveBatch, 5*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received, stopping audit archiver...")
		cancel()
	}()

	log.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.AuditTopic).
		Str("group_id", cfg.Kafka.GroupID).
		Msg("Audit archiver started")

	for {
		if err := group.Consume(ctx, []string{cfg.Kafka.AuditTopic}, archiver); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			log.Error().Err(err).Msg("Error from consumer")
		}
		if ctx.Err() != nil {
			log.Info().Int64("archived", archiver.Archived()).Msg("Audit archiver stopped")
			return
		}
	}
}
