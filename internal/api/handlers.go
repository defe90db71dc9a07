package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/guardianstack/guardian-engine/internal/incidents"
	"github.com/guardianstack/guardian-engine/internal/models"
	"github.com/guardianstack/guardian-engine/internal/recovery"
	"github.com/guardianstack/guardian-engine/internal/store"
)

// Handlers bundles the dependencies the REST surface needs. Synchronous
// recovery goes through the orchestrator; metric-check breaches fire the
// background runner instead so detection latency stays flat.
type Handlers struct {
	store        store.Store
	evaluator    *incidents.Evaluator
	lifecycle    *incidents.Lifecycle
	orchestrator *recovery.Orchestrator
	runner       *recovery.Runner
	logger       *slog.Logger
}

// NewHandlers constructs the REST handler set.
func NewHandlers(st store.Store, evaluator *incidents.Evaluator, lifecycle *incidents.Lifecycle, orchestrator *recovery.Orchestrator, runner *recovery.Runner, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:        st,
		evaluator:    evaluator,
		lifecycle:    lifecycle,
		orchestrator: orchestrator,
		runner:       runner,
		logger:       logger,
	}
}

// Register mounts all routes onto the engine.
func (h *Handlers) Register(r *gin.Engine) {
	r.GET("/health", h.healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/metrics/check", h.checkMetric)
		v1.GET("/incidents", h.listIncidents)
		v1.GET("/incidents/stats/summary", h.incidentStats)
		v1.GET("/incidents/:id", h.getIncident)
		v1.PUT("/incidents/:id", h.updateIncident)
		v1.POST("/recovery/attempt", h.attemptRecovery)
		v1.GET("/recovery/history", h.recoveryHistory)
		v1.GET("/recovery/stats", h.recoveryStats)
	}
}

type metricCheckRequest struct {
	Service string  `json:"service_name" binding:"required"`
	Metric  string  `json:"metric_name" binding:"required"`
	Value   float64 `json:"metric_value"`
}

func (h *Handlers) healthCheck(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "guardian-engine",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// checkMetric evaluates one sample. A breach opens an incident and hands it
// to the background runner; the response never waits for remediation.
func (h *Handlers) checkMetric(c *gin.Context) {
	var req metricCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inc, err := h.evaluator.CheckMetric(c.Request.Context(), req.Service, req.Metric, req.Value)
	if err != nil {
		h.renderError(c, err)
		return
	}

	if inc == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "Metric within normal range",
		})
		return
	}

	// The request context dies as soon as the response is written; recovery
	// must outlive it.
	h.runner.Trigger(context.WithoutCancel(c.Request.Context()), inc.ID)
	c.JSON(http.StatusCreated, gin.H{
		"status":   "incident_created",
		"incident": inc,
		"message":  "Threshold exceeded, incident created",
	})
}

// listIncidents returns incidents newest first. status=open covers both open
// and investigating: an incident under active recovery is still an open
// problem from the operator's point of view.
func (h *Handlers) listIncidents(c *gin.Context) {
	filter := store.ListIncidentsFilter{}

	switch status := c.Query("status"); status {
	case "":
	case "open":
		filter.Statuses = []models.IncidentStatus{models.StatusOpen, models.StatusInvestigating}
	default:
		st := models.IncidentStatus(status)
		if !st.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status filter: " + status})
			return
		}
		filter.Statuses = []models.IncidentStatus{st}
	}

	var limit int
	if err := bindPositiveInt(c.Query("limit"), &limit); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	filter.Limit = limit

	list, err := h.store.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": list, "count": len(list)})
}

func (h *Handlers) getIncident(c *gin.Context) {
	inc, err := h.store.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

type incidentUpdateRequest struct {
	Status         string `json:"status" binding:"required"`
	RecoveryAction string `json:"recovery_action"`
}

func (h *Handlers) updateIncident(c *gin.Context) {
	var req incidentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inc, err := h.lifecycle.ManualUpdate(c.Request.Context(), c.Param("id"), models.IncidentStatus(req.Status), req.RecoveryAction)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

func (h *Handlers) incidentStats(c *gin.Context) {
	stats, err := h.store.IncidentStats(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type recoveryRequest struct {
	IncidentID string `json:"incident_id" binding:"required"`
}

// attemptRecovery runs a full recovery attempt synchronously and returns its
// result. Exhaustion is a normal result, not an error.
func (h *Handlers) attemptRecovery(c *gin.Context) {
	var req recoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.orchestrator.AttemptRecovery(c.Request.Context(), req.IncidentID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) recoveryHistory(c *gin.Context) {
	history, err := h.store.ListActions(c.Request.Context(), c.Query("incident_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history, "count": len(history)})
}

func (h *Handlers) recoveryStats(c *gin.Context) {
	stats, err := h.store.RecoveryStats(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// renderError maps the domain error taxonomy onto HTTP statuses.
func (h *Handlers) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
	case errors.Is(err, models.ErrAlreadyResolved),
		errors.Is(err, models.ErrAlreadyInProgress),
		errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNoStrategy):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrStore):
		h.logger.Error("store failure", slog.Any("error", err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "storage backend unavailable"})
	default:
		h.logger.Error("unhandled error", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func bindPositiveInt(raw string, out *int) error {
	if raw == "" {
		*out = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return errors.New("not a positive integer")
	}
	*out = n
	return nil
}
