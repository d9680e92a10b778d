// Package api exposes the fraud engine over HTTP.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/enterprise/upi-fraud-engine/configs"
	"github.com/enterprise/upi-fraud-engine/internal/analytics"
	"github.com/enterprise/upi-fraud-engine/internal/auth"
	"github.com/enterprise/upi-fraud-engine/internal/ingestion"
	"github.com/enterprise/upi-fraud-engine/internal/metrics"
	"github.com/enterprise/upi-fraud-engine/internal/scoring"
	"github.com/enterprise/upi-fraud-engine/internal/services"
)

// HealthCheck probes a dependency such as Postgres or Redis
type HealthCheck func(ctx context.Context) error

// Server holds the dependencies of the HTTP handlers
type Server struct {
	engine       *scoring.Engine
	authService  *services.AuthService
	jwtManager   *auth.JWTManager
	limiter      *RateLimiter
	maxBatchSize int
	checks       map[string]HealthCheck
	analytics    *analytics.Service
	ingestion    *ingestion.Service
}

// NewServer creates the HTTP server. A nil jwtManager leaves the API unauthenticated.
func NewServer(cfg configs.ServerConfig, engine *scoring.Engine, authService *services.AuthService, jwtManager *auth.JWTManager) *Server {
	s := &Server{
		engine:       engine,
		authService:  authService,
		jwtManager:   jwtManager,
		maxBatchSize: cfg.MaxBatchSize,
		checks:       make(map[string]HealthCheck),
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, time.Minute)
	}
	return s
}

// AddHealthCheck registers a dependency probe reported by /health
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// SetAnalytics enables the analytics routes
func (s *Server) SetAnalytics(svc *analytics.Service) {
	s.analytics = svc
}

// SetIngestion enables the asynchronous scoring routes
func (s *Server) SetIngestion(svc *ingestion.Service) {
	s.ingestion = svc
}

// Router builds the gin engine with all routes
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())
	router.Use(metrics.Middleware())

	router.GET("/health", s.healthHandler)
	router.GET("/metrics", metrics.Handler())

	v1 := router.Group("/api/v1")
	if s.limiter != nil {
		v1.Use(rateLimitMiddleware(s.limiter))
	}

	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/token", s.issueTokenHandler)
		authRoutes.POST("/refresh", s.refreshTokenHandler)
	}

	protected := v1.Group("")
	if s.jwtManager != nil {
		protected.Use(auth.AuthMiddleware(s.jwtManager))
	}

	scoringRoutes := protected.Group("")
	scoringRoutes.Use(s.requireRole(auth.RoleScorer))
	{
		scoringRoutes.POST("/predict", s.predictHandler)
		scoringRoutes.POST("/predict/batch", s.predictBatchHandler)
		if s.ingestion != nil {
			scoringRoutes.POST("/predict/async", s.submitHandler)
			scoringRoutes.POST("/predict/async/batch", s.submitBatchHandler)
		}
	}

	analystRoutes := protected.Group("")
	analystRoutes.Use(s.requireRole(auth.RoleAnalyst))
	{
		analystRoutes.POST("/analyze/batch", s.analyzeBatchHandler)
		analystRoutes.GET("/history", s.historyHandler)
		if s.analytics != nil {
			analystRoutes.GET("/analytics/summary", s.riskSummaryHandler)
			analystRoutes.GET("/analytics/hourly", s.hourlyVolumeHandler)
		}
	}

	s.registerExperimentRoutes(protected)

	return router
}

func (s *Server) requireRole(roles ...string) gin.HandlerFunc {
	if s.jwtManager == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return auth.RoleMiddleware(roles...)
}
