package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/internal/ingestion"
	"github.com/enterprise/upi-fraud-engine/internal/models"
)

func (s *Server) submitHandler(c *gin.Context) {
	var req ingestion.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.ingestion.Submit(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransaction) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("Failed to queue transaction")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scoring queue unavailable"})
		return
	}

	status := http.StatusAccepted
	if resp.Status == ingestion.StatusDuplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (s *Server) submitBatchHandler(c *gin.Context) {
	var req ingestion.BatchSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.maxBatchSize > 0 && len(req.Submissions) > s.maxBatchSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("batch of %d exceeds limit of %d", len(req.Submissions), s.maxBatchSize),
		})
		return
	}

	c.JSON(http.StatusAccepted, s.ingestion.SubmitBatch(c.Request.Context(), &req))
}
