package workers

import (
	"encoding/json"
	"sync"

	"agenthub/internal/httpx"
	"agenthub/internal/protocol"
	"agenthub/internal/registry"
	"agenthub/internal/store"

	"github.com/gin-gonic/gin"
)

// Handler serves the worker surface of the trusted API
type Handler struct {
	registry *registry.Registry
	store    store.Store
}

// NewHandler creates a worker handler
func NewHandler(r *registry.Registry, st store.Store) *Handler {
	return &Handler{registry: r, store: st}
}

// List handles GET /workers. Live connections are merged over the
// durable mirror so disconnected workers still show up, marked offline.
func (h *Handler) List(c *gin.Context) {
	live := h.registry.List()
	connected := make(map[string]bool, len(live))
	views := make([]registry.WorkerView, 0, len(live))
	for _, view := range live {
		connected[view.ID] = true
		views = append(views, view)
	}

	records, err := h.store.ListWorkers(c.Request.Context())
	if err != nil {
		httpx.FailErr(c, httpx.ErrStoreError("failed to list workers", err))
		return
	}
	for _, record := range records {
		if connected[record.ID] {
			continue
		}
		views = append(views, registry.WorkerView{
			ID:           record.ID,
			Name:         record.Name,
			Version:      record.Version,
			Platform:     record.Platform,
			Connected:    false,
			Healthy:      false,
			RegisteredAt: record.RegisteredAt,
			LastSeenAt:   record.LastSeenAt,
		})
	}
	httpx.OKItems(c, views, int64(len(views)))
}

// StatusResponse represents a worker status report
type StatusResponse struct {
	Report protocol.StatusReport `json:"report"`
	Stale  bool                  `json:"stale"`
}

// Status handles GET /workers/:id/status. A worker that does not answer
// in time yields its last heartbeat telemetry, marked stale.
func (h *Handler) Status(c *gin.Context) {
	report, stale, err := h.registry.RequestStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		failWorker(c, err)
		return
	}
	httpx.OK(c, StatusResponse{Report: report, Stale: stale})
}

// Jobs handles GET /workers/:id/jobs
func (h *Handler) Jobs(c *gin.Context) {
	report, err := h.registry.RequestJobs(c.Request.Context(), c.Param("id"))
	if err != nil {
		failWorker(c, err)
		return
	}
	httpx.OKItems(c, report.Jobs, int64(len(report.Jobs)))
}

// WorkerJobs is one worker's slice of the aggregated job listing
type WorkerJobs struct {
	WorkerID string             `json:"worker_id"`
	Jobs     []protocol.JobInfo `json:"jobs"`
	Error    string             `json:"error,omitempty"`
}

// AllJobs handles GET /jobs. Every connected worker is asked for its
// job list in parallel; workers that fail or time out contribute an
// error entry instead of blocking the rest.
func (h *Handler) AllJobs(c *gin.Context) {
	live := h.registry.List()
	results := make([]WorkerJobs, len(live))

	var wg sync.WaitGroup
	for i, view := range live {
		wg.Add(1)
		go func(i int, workerID string) {
			defer wg.Done()
			entry := WorkerJobs{WorkerID: workerID, Jobs: []protocol.JobInfo{}}
			report, err := h.registry.RequestJobs(c.Request.Context(), workerID)
			if err != nil {
				entry.Error = err.Error()
			} else if report.Jobs != nil {
				entry.Jobs = report.Jobs
			}
			results[i] = entry
		}(i, view.ID)
	}
	wg.Wait()

	httpx.OKItems(c, results, int64(len(results)))
}

// PushJobRequest represents an out-of-band job push
type PushJobRequest struct {
	Job json.RawMessage `json:"job" binding:"required"`
}

// PushJob handles POST /workers/:id/jobs
func (h *Handler) PushJob(c *gin.Context) {
	var req PushJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("job payload is required"))
		return
	}

	msg, err := protocol.NewMessage(protocol.TypeJobPush, protocol.JobPush{Job: req.Job})
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to encode job", err))
		return
	}
	if err := h.registry.Send(c.Param("id"), msg); err != nil {
		failWorker(c, err)
		return
	}
	httpx.OKMsg(c, "job pushed", nil)
}

// PushConfigRequest represents a config push
type PushConfigRequest struct {
	Version string          `json:"version"`
	Config  json.RawMessage `json:"config" binding:"required"`
}

// PushConfig handles POST /workers/:id/config
func (h *Handler) PushConfig(c *gin.Context) {
	var req PushConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("config payload is required"))
		return
	}

	msg, err := protocol.NewMessage(protocol.TypeConfigPush, protocol.ConfigPush{
		Version: req.Version,
		Config:  req.Config,
	})
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to encode config", err))
		return
	}
	if err := h.registry.Send(c.Param("id"), msg); err != nil {
		failWorker(c, err)
		return
	}
	httpx.OKMsg(c, "config pushed", nil)
}

// ProvisionSkillRequest represents a skill provisioning request
type ProvisionSkillRequest struct {
	Name   string `json:"name" binding:"required"`
	Source string `json:"source"`
}

// ProvisionSkill handles POST /workers/:id/skills and waits for the
// worker's provisioning result
func (h *Handler) ProvisionSkill(c *gin.Context) {
	var req ProvisionSkillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("skill name is required"))
		return
	}

	result, err := h.registry.ProvisionSkill(c.Request.Context(), c.Param("id"), protocol.SkillProvision{
		Name:   req.Name,
		Source: req.Source,
	})
	if err != nil {
		failWorker(c, err)
		return
	}
	httpx.OK(c, result)
}

func failWorker(c *gin.Context, err error) {
	switch err {
	case registry.ErrWorkerNotConnected:
		httpx.FailErr(c, httpx.ErrWorkerUnavailable(""))
	default:
		httpx.FailErr(c, httpx.ErrInternalError("worker operation failed", err))
	}
}
