package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/enterprise/upi-fraud-engine/internal/auth"
	"github.com/enterprise/upi-fraud-engine/internal/scoring"
)

// ExperimentReport combines an experiment with its results
type ExperimentReport struct {
	Experiment   *scoring.Experiment         `json:"experiment"`
	Results      *scoring.ExperimentResults  `json:"results"`
	Significance *scoring.SignificanceResult `json:"significance"`
}

func (s *Server) registerExperimentRoutes(group *gin.RouterGroup) {
	if s.engine.Experiments() == nil {
		return
	}
	experiments := group.Group("/experiments")
	experiments.Use(s.requireRole(auth.RoleAdmin))
	{
		experiments.GET("", s.listExperimentsHandler)
		experiments.POST("", s.createExperimentHandler)
		experiments.GET("/:id", s.getExperimentHandler)
		experiments.POST("/:id/start", s.startExperimentHandler)
		experiments.POST("/:id/stop", s.stopExperimentHandler)
		experiments.DELETE("/:id", s.deleteExperimentHandler)
	}
}

func (s *Server) listExperimentsHandler(c *gin.Context) {
	list := s.engine.Experiments().ListExperiments()
	c.JSON(http.StatusOK, gin.H{"experiments": list, "count": len(list)})
}

func (s *Server) createExperimentHandler(c *gin.Context) {
	var exp scoring.Experiment
	if err := c.ShouldBindJSON(&exp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.Experiments().CreateExperiment(&exp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, exp)
}

func (s *Server) getExperimentHandler(c *gin.Context) {
	m := s.engine.Experiments()
	id := c.Param("id")

	exp, err := m.GetExperiment(id)
	if err != nil {
		writeExperimentError(c, err)
		return
	}
	results, err := m.GetResults(id)
	if err != nil {
		writeExperimentError(c, err)
		return
	}
	sig, err := m.GetStatisticalSignificance(id)
	if err != nil {
		writeExperimentError(c, err)
		return
	}
	c.JSON(http.StatusOK, ExperimentReport{Experiment: exp, Results: results, Significance: sig})
}

func (s *Server) startExperimentHandler(c *gin.Context) {
	s.transitionExperiment(c, s.engine.Experiments().StartExperiment)
}

func (s *Server) stopExperimentHandler(c *gin.Context) {
	s.transitionExperiment(c, s.engine.Experiments().StopExperiment)
}

func (s *Server) transitionExperiment(c *gin.Context, transition func(id string) error) {
	id := c.Param("id")
	if err := transition(id); err != nil {
		writeExperimentError(c, err)
		return
	}
	exp, err := s.engine.Experiments().GetExperiment(id)
	if err != nil {
		writeExperimentError(c, err)
		return
	}
	c.JSON(http.StatusOK, exp)
}

func (s *Server) deleteExperimentHandler(c *gin.Context) {
	if err := s.engine.Experiments().DeleteExperiment(c.Param("id")); err != nil {
		writeExperimentError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeExperimentError(c *gin.Context, err error) {
	if errors.Is(err, scoring.ErrExperimentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
}
