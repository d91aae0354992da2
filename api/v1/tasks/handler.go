package tasks

import (
	"encoding/json"
	"net/http"

	"agenthub/internal/coordinator"
	"agenthub/internal/httpx"
	"agenthub/internal/model"
	"agenthub/internal/registry"
	"agenthub/internal/store"

	"github.com/gin-gonic/gin"
)

// Handler serves the task surface of the trusted API
type Handler struct {
	coordinator *coordinator.Coordinator
}

// NewHandler creates a task handler
func NewHandler(c *coordinator.Coordinator) *Handler {
	return &Handler{coordinator: c}
}

// ListRequest represents list tasks query parameters
type ListRequest struct {
	UserID          string `form:"userId"`
	Status          string `form:"status"`
	IncludeArchived bool   `form:"includeArchived"`
	Limit           int    `form:"limit"`
}

// CreateRequest represents create task request body
type CreateRequest struct {
	Goal     string          `json:"goal" binding:"required"`
	WorkerID string          `json:"workerId"`
	Payload  json.RawMessage `json:"payload"`
}

// MessageRequest represents a new turn on an existing task
type MessageRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// List handles GET /tasks
func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid query parameters"))
		return
	}
	if req.Status != "" && !model.TaskStatus(req.Status).Valid() {
		httpx.FailErr(c, httpx.ErrParamInvalid("unknown status filter"))
		return
	}

	views, err := h.coordinator.List(c.Request.Context(), store.TaskFilter{
		UserID:          req.UserID,
		Status:          model.TaskStatus(req.Status),
		IncludeArchived: req.IncludeArchived,
		Limit:           req.Limit,
	})
	if err != nil {
		httpx.FailErr(c, httpx.ErrStoreError("failed to list tasks", err))
		return
	}
	httpx.OKItems(c, views, int64(len(views)))
}

// Get handles GET /tasks/:id
func (h *Handler) Get(c *gin.Context) {
	withEvents := c.Query("withEvents") == "1" || c.Query("withEvents") == "true"
	view, err := h.coordinator.Get(c.Request.Context(), c.Param("id"), coordinator.GetOptions{WithEvents: withEvents})
	if err != nil {
		failTask(c, err)
		return
	}
	httpx.OK(c, view)
}

// Create handles POST /tasks
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("goal is required"))
		return
	}

	userID := c.GetString("username")
	view, err := h.coordinator.Create(c.Request.Context(), coordinator.CreateRequest{
		Goal:     req.Goal,
		WorkerID: req.WorkerID,
		UserID:   userID,
		Payload:  req.Payload,
	})
	if err != nil {
		failTask(c, err)
		return
	}
	httpx.OK(c, view)
}

// SendMessage handles POST /tasks/:id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}
	if err := h.coordinator.SendMessage(c.Request.Context(), c.Param("id"), req.Payload); err != nil {
		failTask(c, err)
		return
	}
	httpx.OKMsg(c, "message dispatched", nil)
}

// Stop handles POST /tasks/:id/stop
func (h *Handler) Stop(c *gin.Context) {
	if err := h.coordinator.Stop(c.Request.Context(), c.Param("id")); err != nil {
		failTask(c, err)
		return
	}
	httpx.OKMsg(c, "task stopped", nil)
}

// Archive handles POST /tasks/:id/archive
func (h *Handler) Archive(c *gin.Context) {
	if err := h.coordinator.Archive(c.Request.Context(), c.Param("id")); err != nil {
		failTask(c, err)
		return
	}
	httpx.OKMsg(c, "task archived", nil)
}

// Restore handles POST /tasks/:id/restore
func (h *Handler) Restore(c *gin.Context) {
	if err := h.coordinator.Restore(c.Request.Context(), c.Param("id")); err != nil {
		failTask(c, err)
		return
	}
	httpx.OKMsg(c, "task restored", nil)
}

// Delete handles DELETE /tasks/:id
func (h *Handler) Delete(c *gin.Context) {
	if err := h.coordinator.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failTask(c, err)
		return
	}
	httpx.OKMsg(c, "task deleted", nil)
}

// Stream handles GET /tasks/:id/stream. The buffered output is replayed
// first, then live chunks follow until the task ends or the client goes
// away.
func (h *Handler) Stream(c *gin.Context) {
	ch, cancel, err := h.coordinator.StreamSubscribe(c.Param("id"))
	if err != nil {
		failTask(c, err)
		return
	}
	defer cancel()

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	clientGone := c.Request.Context().Done()

	for {
		select {
		case chunk, open := <-ch:
			if !open {
				return
			}
			if _, err := c.Writer.Write(chunk); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-clientGone:
			return
		}
	}
}

func failTask(c *gin.Context, err error) {
	switch err {
	case store.ErrNotFound:
		httpx.FailErr(c, httpx.ErrNotFound("task not found"))
	case coordinator.ErrGoalRequired:
		httpx.FailErr(c, httpx.ErrParamMissing("goal is required"))
	case coordinator.ErrNotTerminal:
		httpx.FailErr(c, httpx.ErrStateConflict("task is not in a terminal state"))
	case registry.ErrWorkerNotConnected:
		httpx.FailErr(c, httpx.ErrWorkerUnavailable(""))
	default:
		httpx.FailErr(c, httpx.ErrInternalError("task operation failed", err))
	}
}
