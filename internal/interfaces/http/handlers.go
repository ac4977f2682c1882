package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-reconciler/internal/application/workflow"
	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
	domainwf "github.com/garyjia/invoice-reconciler/internal/domain/workflow"
	"github.com/garyjia/invoice-reconciler/pkg/utils"
)

// threadIDKey is the gin context key the access log reads the thread from
const threadIDKey = "thread_id"

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine   workflow.WorkflowEngine
	redactor *Redactor
	logger   Logger
	health   HealthFunc
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine workflow.WorkflowEngine, redactor *Redactor, logger Logger) *Handlers {
	if redactor == nil {
		redactor = NewRedactor(nil)
	}
	return &Handlers{
		engine:   engine,
		redactor: redactor,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// PendingApproval summarizes a thread parked at the approval interrupt
type PendingApproval struct {
	ThreadID       string                      `json:"thread_id"`
	RunID          string                      `json:"run_id"`
	VendorID       string                      `json:"vendor_id,omitempty"`
	Interrupt      *entity.InterruptDescriptor `json:"interrupt"`
	WaitingSince   time.Time                   `json:"waiting_since"`
	WaitingSeconds int64                       `json:"waiting_seconds"`
}

// StartRunRequest is the body of POST /api/runs
type StartRunRequest struct {
	ThreadID string `json:"thread_id"`
	VendorID string `json:"vendor_id"`
}

// ResumeRunRequest is the body of POST /api/runs/resume
type ResumeRunRequest struct {
	ThreadID string `json:"thread_id"`
	Approved *bool  `json:"approved" binding:"required"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if h.health != nil {
		healthy, details := h.health(c.Request.Context())
		resp.Components = details
		if !healthy {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// PendingApprovals handles GET /api/approvals?older_than=1h
func (h *Handlers) PendingApprovals(c *gin.Context) {
	var olderThan time.Duration
	if raw := c.Query("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			h.badRequest(c, "older_than must be a non-negative duration such as 30m or 24h")
			return
		}
		olderThan = d
	}

	threads, err := h.engine.ListInterrupted(c.Request.Context(), olderThan)
	if err != nil {
		h.fail(c, "list approvals", "", err)
		return
	}

	now := time.Now().UTC()
	pending := make([]PendingApproval, 0, len(threads))
	for _, st := range threads {
		pending = append(pending, PendingApproval{
			ThreadID:       st.ThreadID,
			RunID:          st.RunID,
			VendorID:       st.VendorID,
			Interrupt:      st.Interrupt,
			WaitingSince:   st.UpdatedAt,
			WaitingSeconds: int64(now.Sub(st.UpdatedAt).Seconds()),
		})
	}
	h.ok(c, http.StatusOK, pending)
}

// StartRun handles POST /api/runs
func (h *Handlers) StartRun(c *gin.Context) {
	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	if err := utils.ValidateThreadID(req.ThreadID); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if err := utils.ValidateVendorID(req.VendorID); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	c.Set(threadIDKey, req.ThreadID)
	result, err := h.engine.StartRun(c.Request.Context(), req.ThreadID, req.VendorID)
	if err != nil {
		h.fail(c, "start run", req.ThreadID, err)
		return
	}
	h.ok(c, http.StatusOK, result)
}

// ResumeRun handles POST /api/runs/resume
func (h *Handlers) ResumeRun(c *gin.Context) {
	var req ResumeRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "thread_id and approved are required")
		return
	}
	if err := utils.ValidateThreadID(req.ThreadID); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	c.Set(threadIDKey, req.ThreadID)
	result, err := h.engine.ResumeRun(c.Request.Context(), req.ThreadID, *req.Approved)
	if err != nil {
		h.fail(c, "resume run", req.ThreadID, err)
		return
	}
	h.ok(c, http.StatusOK, result)
}

// GetState handles GET /api/runs/state?thread_id=
func (h *Handlers) GetState(c *gin.Context) {
	threadID := c.Query("thread_id")
	if err := utils.ValidateThreadID(threadID); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	c.Set(threadIDKey, threadID)
	snap, err := h.engine.GetState(c.Request.Context(), threadID)
	if err != nil {
		h.fail(c, "get state", threadID, err)
		return
	}
	h.ok(c, http.StatusOK, snap)
}

// History handles GET /api/runs/:thread_id/history
func (h *Handlers) History(c *gin.Context) {
	threadID := c.Param("thread_id")
	if err := utils.ValidateThreadID(threadID); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	c.Set(threadIDKey, threadID)
	history, err := h.engine.History(c.Request.Context(), threadID)
	if err != nil {
		h.fail(c, "history", threadID, err)
		return
	}
	h.ok(c, http.StatusOK, history)
}

// Recover handles POST /api/runs/:thread_id/recover
func (h *Handlers) Recover(c *gin.Context) {
	threadID := c.Param("thread_id")
	if err := utils.ValidateThreadID(threadID); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	c.Set(threadIDKey, threadID)
	result, err := h.engine.Recover(c.Request.Context(), threadID)
	if err != nil {
		h.fail(c, "recover", threadID, err)
		return
	}
	h.ok(c, http.StatusOK, result)
}

// Purge handles DELETE /api/runs/:thread_id
func (h *Handlers) Purge(c *gin.Context) {
	threadID := c.Param("thread_id")
	if err := utils.ValidateThreadID(threadID); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	c.Set(threadIDKey, threadID)
	if err := h.engine.Purge(c.Request.Context(), threadID); err != nil {
		h.fail(c, "purge", threadID, err)
		return
	}
	h.ok(c, http.StatusOK, gin.H{"thread_id": threadID, "purged": true})
}

func (h *Handlers) ok(c *gin.Context, status int, data interface{}) {
	redacted, err := h.redactor.Redact(data)
	if err != nil {
		h.logger.Error("Failed to redact response", "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to encode response"})
		return
	}
	c.JSON(status, Response{Success: true, Data: redacted})
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

func (h *Handlers) fail(c *gin.Context, op, threadID string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "op", op, "thread_id", threadID, "error", err)
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domainwf.ErrUnknownThread):
		return http.StatusNotFound
	case errors.Is(err, domainwf.ErrInvalidState), errors.Is(err, domainwf.ErrInvalidTransition),
		errors.Is(err, domainwf.ErrGuardFailed):
		return http.StatusConflict
	case errors.Is(err, domainwf.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
