package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"traffic-exp/internal/service"
	"traffic-exp/internal/trace"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ExperimentHandler struct {
	runner *service.ExperimentRunner
	db     *gorm.DB
}

// NewExperimentHandler wires the handler. db may be nil, in which case the
// run history endpoints answer 503.
func NewExperimentHandler(runner *service.ExperimentRunner, db *gorm.DB) *ExperimentHandler {
	return &ExperimentHandler{runner: runner, db: db}
}

// RunExperiment schedules one experiment and blocks until it is scored.
func (h *ExperimentHandler) RunExperiment(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "experiment runner not initialized"})
		return
	}

	var req service.ExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// the run outlives a client that disconnects
	result, err := h.runner.Run(context.WithoutCancel(c.Request.Context()), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":      result,
		"result_path": result.ResultPath,
		"report_path": result.ReportPath,
	})
}

// ScoreExperiment scores the logs left by an earlier run.
func (h *ExperimentHandler) ScoreExperiment(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "experiment runner not initialized"})
		return
	}

	var req service.ExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.runner.ScoreOnly(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result": result,
		"report": service.RenderReport(result),
	})
}

func (h *ExperimentHandler) ListRuns(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history is disabled"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	runs, err := service.ListRuns(c.Request.Context(), h.db, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

func (h *ExperimentHandler) GetRun(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history is disabled"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	run, err := service.GetRun(c.Request.Context(), h.db, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run": run})
}

func statusFor(err error) int {
	var mte *trace.MalformedTraceError
	switch {
	case errors.Is(err, service.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidRequest), errors.As(err, &mte):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
