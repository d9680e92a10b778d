package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/internal/auth"
	"github.com/enterprise/upi-fraud-engine/internal/features"
	"github.com/enterprise/upi-fraud-engine/internal/models"
	"github.com/enterprise/upi-fraud-engine/internal/scoring"
	"github.com/enterprise/upi-fraud-engine/internal/services"
)

const defaultHistoryLimit = scoring.HistoryWindow

// BatchRequest is the body of the batch endpoints
type BatchRequest struct {
	Transactions   []*models.TransactionRecord `json:"transactions" binding:"required,min=1"`
	DryRun         bool                        `json:"dry_run"`
	IncludeResults bool                        `json:"include_results"`
}

// BatchPredictResponse is returned by the batch prediction endpoint
type BatchPredictResponse struct {
	Results        []scoring.BatchItem `json:"results"`
	ProcessedCount int                 `json:"processed_count"`
	FailedCount    int                 `json:"failed_count"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(gin.H, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":        state,
		"model_version": s.engine.ModelVersion(),
		"checks":        checks,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) issueTokenHandler(c *gin.Context) {
	var req services.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.authService.IssueToken(&req)
	if err != nil {
		c.JSON(authErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) refreshTokenHandler(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader(auth.AuthorizationHeader), auth.BearerPrefix)
	if !ok || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	resp, err := s.authService.RefreshToken(token)
	if err != nil {
		c.JSON(authErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func authErrorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrAuthDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) predictHandler(c *gin.Context) {
	var rec models.TransactionRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.engine.Predict(c.Request.Context(), &rec)
	if err != nil {
		s.writePredictionError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) predictBatchHandler(c *gin.Context) {
	req, ok := s.bindBatch(c)
	if !ok {
		return
	}

	results, errs := s.engine.PredictBatch(c.Request.Context(), req.Transactions)

	resp := BatchPredictResponse{Results: make([]scoring.BatchItem, len(results))}
	for i := range results {
		item := scoring.BatchItem{Index: i, Result: results[i]}
		if errs[i] != nil {
			item.Error = errs[i].Error()
			resp.FailedCount++
		} else {
			resp.ProcessedCount++
		}
		resp.Results[i] = item
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) analyzeBatchHandler(c *gin.Context) {
	req, ok := s.bindBatch(c)
	if !ok {
		return
	}

	report, err := s.engine.AnalyzeBatch(c.Request.Context(), req.Transactions, scoring.BatchOptions{
		DryRun:         req.DryRun,
		IncludeResults: req.IncludeResults,
	})
	if err != nil {
		s.writePredictionError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) bindBatch(c *gin.Context) (*BatchRequest, bool) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if s.maxBatchSize > 0 && len(req.Transactions) > s.maxBatchSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("batch of %d exceeds limit of %d", len(req.Transactions), s.maxBatchSize),
		})
		return nil, false
	}
	return &req, true
}

func (s *Server) historyHandler(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = v
	}

	entries, err := s.engine.History().Recent(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read transaction history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// writePredictionError maps engine failures to HTTP statuses
func (s *Server) writePredictionError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var mismatch *features.FeatureMismatchError
	switch {
	case errors.Is(err, models.ErrInvalidTransaction):
		status = http.StatusBadRequest
	case errors.As(err, &mismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", c.GetString(requestIDKey)).Msg("Prediction failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
