package events

import (
	"strconv"

	"agenthub/internal/eventlog"
	"agenthub/internal/httpx"

	"github.com/gin-gonic/gin"
)

// Handler serves the activity feed
type Handler struct {
	log *eventlog.Log
}

// NewHandler creates an events handler
func NewHandler(log *eventlog.Log) *Handler {
	return &Handler{log: log}
}

// List handles GET /events?since=&limit=
func (h *Handler) List(c *gin.Context) {
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("since must be an integer"))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("limit must be an integer"))
		return
	}

	items := h.log.Query(since, limit)
	httpx.OKItems(c, items, int64(len(items)))
}
