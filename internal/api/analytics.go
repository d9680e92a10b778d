package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/internal/analytics"
)

func (s *Server) riskSummaryHandler(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 || days > analytics.MaxSummaryDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("days must be an integer between 1 and %d", analytics.MaxSummaryDays)})
		return
	}

	summary, err := s.analytics.GetRiskSummary(c.Request.Context(), days)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build risk summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analytics unavailable"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) hourlyVolumeHandler(c *gin.Context) {
	date := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be formatted as YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	volumes, err := s.analytics.GetHourlyVolume(c.Request.Context(), date)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build hourly volume")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analytics unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":    date.Format("2006-01-02"),
		"volumes": volumes,
	})
}
