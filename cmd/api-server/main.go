package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/configs"
	"github.com/enterprise/upi-fraud-engine/internal/analytics"
	"github.com/enterprise/upi-fraud-engine/internal/api"
	"github.com/enterprise/upi-fraud-engine/internal/app"
	"github.com/enterprise/upi-fraud-engine/internal/auth"
	"github.com/enterprise/upi-fraud-engine/internal/ingestion"
	"github.com/enterprise/upi-fraud-engine/internal/queue"
	"github.com/enterprise/upi-fraud-engine/internal/repositories"
	"github.com/enterprise/upi-fraud-engine/internal/services"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := configs.Load()
	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Msg("Starting UPI Fraud Engine API Server")

	ctx := context.Background()
	comp, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build scoring engine")
	}
	defer comp.Close()

	var jwtManager *auth.JWTManager
	var keys *auth.APIKeyStore
	if cfg.JWT.Secret != "" {
		jwtManager = auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.Issuer)
		keys, err = auth.ParseAPIKeys(cfg.JWT.APIKeys)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to parse API keys")
		}
		log.Info().Int("clients", keys.Len()).Msg("JWT authentication enabled")
	} else {
		log.Warn().Msg("JWT_SECRET not set, API is unauthenticated")
	}
	authService := services.NewAuthService(keys, jwtManager)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := api.NewServer(cfg.Server, comp.Engine, authService, jwtManager)
	if cfg.Server.AsyncIngestion {
		client, err := comp.RedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis for async ingestion")
		}
		stream, err := queue.NewStreamClientWith(ctx, client, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize scoring stream")
		}
		server.SetIngestion(ingestion.NewService(stream, client, cfg.Server.IdempotencyTTL))
		log.Info().Str("stream", cfg.Redis.StreamName).Msg("Async ingestion enabled")
	}

	if comp.Redis != nil {
		server.AddHealthCheck("redis", func(ctx context.Context) error { return comp.Redis.Ping(ctx).Err() })
	}
	if comp.DB != nil {
		server.AddHealthCheck("postgres", comp.DB.HealthCheck)
		server.SetAnalytics(analytics.NewService(
			repositories.NewAuditRepository(comp.DB.Pool),
			comp.Redis,
			cfg.Server.AnalyticsCacheTTL,
		))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
