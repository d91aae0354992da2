package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"agenthub/internal/config"
	"agenthub/internal/eventlog"
	"agenthub/internal/model"
	"agenthub/internal/protocol"
	"agenthub/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ErrWorkerNotConnected is returned when an operation targets a worker
// with no live connection
var ErrWorkerNotConnected = fmt.Errorf("worker not connected")

// TaskHandler receives worker-originated task callbacks. The coordinator
// implements it; the registry never interprets task semantics.
type TaskHandler interface {
	OnTaskStarted(workerID string, p protocol.TaskStarted)
	OnTaskProgress(workerID string, p protocol.TaskProgress)
	OnTaskStream(workerID string, p protocol.TaskStream)
	OnTaskCompleted(workerID string, p protocol.TaskCompleted)
	OnTaskError(workerID string, p protocol.TaskError)
}

// Worker is a live registry entry. It exists only while connected; the
// durable mirror lives in the store.
type Worker struct {
	ID           string
	Name         string
	Version      string
	Platform     string
	Capabilities []string
	Tools        []string
	Skills       []string
	RegisteredAt time.Time

	conn      Conn
	lastSeen  time.Time
	telemetry protocol.Heartbeat
	stale     bool // heartbeat-miss already reported for this episode
}

// WorkerView is an immutable snapshot for listings and status endpoints
type WorkerView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Version      string    `json:"version,omitempty"`
	Platform     string    `json:"platform,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Tools        []string  `json:"tools,omitempty"`
	Skills       []string  `json:"skills,omitempty"`
	Connected    bool      `json:"connected"`
	Healthy      bool      `json:"healthy"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	CPUPercent   float64   `json:"cpu_percent,omitempty"`
	MemPercent   float64   `json:"mem_percent,omitempty"`
	RunningTasks []string  `json:"running_tasks,omitempty"`
}

// Registry tracks every live worker connection and correlates
// out-of-band request/response exchanges over them.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*Worker

	calls   *callTable
	store   store.Store
	events  *eventlog.Log
	logger  *logrus.Entry
	cfg     config.RegistryConfig
	handler TaskHandler
}

// New creates a Registry backed by the given store and event log
func New(cfg config.RegistryConfig, st store.Store, events *eventlog.Log, logger *logrus.Entry) *Registry {
	return &Registry{
		workers: make(map[string]*Worker),
		calls:   newCallTable(),
		store:   st,
		events:  events,
		logger:  logger.WithField("component", "registry"),
		cfg:     cfg,
	}
}

// SetTaskHandler wires the coordinator in. Must be called before any
// worker connects.
func (r *Registry) SetTaskHandler(h TaskHandler) {
	r.handler = h
}

// Register stores a worker keyed by its self-reported id. A second
// registration under the same id replaces the first: the old connection
// is closed and the event is surfaced, since a stale or duplicate worker
// taking over a live id is worth noticing.
func (r *Registry) Register(conn Conn, hello protocol.Hello) (*Worker, error) {
	if hello.WorkerID == "" {
		return nil, fmt.Errorf("worker id is required")
	}

	now := time.Now()
	worker := &Worker{
		ID:           hello.WorkerID,
		Name:         hello.Name,
		Version:      hello.Version,
		Platform:     hello.Platform,
		Capabilities: hello.Capabilities,
		Tools:        hello.Tools,
		Skills:       hello.Skills,
		RegisteredAt: now,
		conn:         conn,
		lastSeen:     now,
	}

	r.mu.Lock()
	previous, replaced := r.workers[hello.WorkerID]
	r.workers[hello.WorkerID] = worker
	r.mu.Unlock()

	if replaced {
		r.logger.Warnf("Worker %s re-registered, replacing live connection", hello.WorkerID)
		r.events.System("registry", eventlog.SeverityWarn, hello.WorkerID, "worker re-registered, previous connection replaced")
		previous.conn.Close()
	} else {
		r.logger.Infof("Worker %s registered (%s %s on %s)", hello.WorkerID, hello.Name, hello.Version, hello.Platform)
		r.events.System("registry", eventlog.SeverityInfo, hello.WorkerID, "worker connected")
	}

	r.mirrorWorker(worker, now)
	return worker, nil
}

// Unregister removes a worker, but only if conn still owns the entry: a
// replaced connection shutting down must not evict its successor.
func (r *Registry) Unregister(workerID string, conn Conn) {
	r.mu.Lock()
	worker, ok := r.workers[workerID]
	if ok && worker.conn == conn {
		delete(r.workers, workerID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.logger.Infof("Worker %s disconnected", workerID)
	r.events.System("registry", eventlog.SeverityInfo, workerID, "worker disconnected")

	// best-effort mirror; a store failure never blocks the live path
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.MarkWorkerDisconnected(ctx, workerID, time.Now()); err != nil && err != store.ErrNotFound {
		r.logger.Errorf("Failed to mark worker %s disconnected: %v", workerID, err)
	}
}

// Heartbeat updates last-seen time and merges in telemetry
func (r *Registry) Heartbeat(workerID string, hb protocol.Heartbeat) {
	now := time.Now()

	r.mu.Lock()
	worker, ok := r.workers[workerID]
	if ok {
		worker.lastSeen = now
		worker.stale = false
		worker.telemetry = hb
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.TouchWorkerHeartbeat(ctx, workerID, now); err != nil && err != store.ErrNotFound {
		r.logger.Errorf("Failed to touch heartbeat for %s: %v", workerID, err)
	}
}

// Send queues a message onto a worker's connection
func (r *Registry) Send(workerID string, msg protocol.Message) error {
	r.mu.RLock()
	worker, ok := r.workers[workerID]
	r.mu.RUnlock()
	if !ok {
		return ErrWorkerNotConnected
	}
	return worker.conn.Send(msg)
}

// Get returns a snapshot of one live worker
func (r *Registry) Get(workerID string) (WorkerView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	worker, ok := r.workers[workerID]
	if !ok {
		return WorkerView{}, false
	}
	return r.viewLocked(worker), true
}

// List returns snapshots of all live workers
func (r *Registry) List() []WorkerView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	views := make([]WorkerView, 0, len(r.workers))
	for _, worker := range r.workers {
		views = append(views, r.viewLocked(worker))
	}
	return views
}

// PickWorker returns the explicit worker when requested, else the first
// healthy connected worker, else any connected worker.
func (r *Registry) PickWorker(workerID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if workerID != "" {
		if _, ok := r.workers[workerID]; !ok {
			return "", ErrWorkerNotConnected
		}
		return workerID, nil
	}

	fallback := ""
	for id, worker := range r.workers {
		if r.healthyLocked(worker) {
			return id, nil
		}
		if fallback == "" {
			fallback = id
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", ErrWorkerNotConnected
}

// RequestStatus sends a correlated status request. On timeout the last
// heartbeat telemetry is returned instead of an error, marked stale, so
// callers never hang on a wedged worker.
func (r *Registry) RequestStatus(ctx context.Context, workerID string) (protocol.StatusReport, bool, error) {
	r.mu.RLock()
	worker, ok := r.workers[workerID]
	var cached protocol.StatusReport
	if ok {
		cached = protocol.StatusReport{
			Status:       "stale",
			CPUPercent:   worker.telemetry.CPUPercent,
			MemPercent:   worker.telemetry.MemPercent,
			RunningTasks: worker.telemetry.RunningTasks,
			ReportedAt:   worker.lastSeen,
		}
	}
	r.mu.RUnlock()
	if !ok {
		return protocol.StatusReport{}, false, ErrWorkerNotConnected
	}

	correlationID := uuid.New().String()
	replyCh := r.calls.create(correlationID, time.Duration(r.cfg.StatusTimeoutSec)*time.Second)

	msg, err := protocol.NewRequest(protocol.TypeStatusRequest, correlationID, nil)
	if err != nil {
		r.calls.drop(correlationID)
		return protocol.StatusReport{}, false, err
	}
	if err := r.Send(workerID, msg); err != nil {
		r.calls.drop(correlationID)
		return protocol.StatusReport{}, false, err
	}

	select {
	case reply, open := <-replyCh:
		if !open {
			// timed out; fall back to cached telemetry
			return cached, true, nil
		}
		report, err := decodeReply[protocol.StatusReport](reply)
		if err != nil {
			return cached, true, nil
		}
		return report, false, nil
	case <-ctx.Done():
		r.calls.drop(correlationID)
		return cached, true, ctx.Err()
	}
}

// ProvisionSkill asks a worker to install a skill and waits for the
// result. Timeout resolves to an explicit failed result, never a hang.
func (r *Registry) ProvisionSkill(ctx context.Context, workerID string, req protocol.SkillProvision) (protocol.SkillResult, error) {
	correlationID := uuid.New().String()
	replyCh := r.calls.create(correlationID, time.Duration(r.cfg.ProvisionTimeoutSec)*time.Second)

	msg, err := protocol.NewRequest(protocol.TypeSkillProvision, correlationID, req)
	if err != nil {
		r.calls.drop(correlationID)
		return protocol.SkillResult{}, err
	}
	if err := r.Send(workerID, msg); err != nil {
		r.calls.drop(correlationID)
		return protocol.SkillResult{}, err
	}

	select {
	case reply, open := <-replyCh:
		if !open {
			return protocol.SkillResult{Name: req.Name, OK: false, Detail: "provisioning timed out"}, nil
		}
		return decodeReply[protocol.SkillResult](reply)
	case <-ctx.Done():
		r.calls.drop(correlationID)
		return protocol.SkillResult{}, ctx.Err()
	}
}

// RequestJobs asks a worker for its job list. Timeout resolves to an
// empty report.
func (r *Registry) RequestJobs(ctx context.Context, workerID string) (protocol.JobListReport, error) {
	correlationID := uuid.New().String()
	replyCh := r.calls.create(correlationID, time.Duration(r.cfg.StatusTimeoutSec)*time.Second)

	msg, err := protocol.NewRequest(protocol.TypeJobListRequest, correlationID, nil)
	if err != nil {
		r.calls.drop(correlationID)
		return protocol.JobListReport{}, err
	}
	if err := r.Send(workerID, msg); err != nil {
		r.calls.drop(correlationID)
		return protocol.JobListReport{}, err
	}

	select {
	case reply, open := <-replyCh:
		if !open {
			return protocol.JobListReport{}, nil
		}
		return decodeReply[protocol.JobListReport](reply)
	case <-ctx.Done():
		r.calls.drop(correlationID)
		return protocol.JobListReport{}, ctx.Err()
	}
}

// HandleMessage dispatches one inbound worker message. Correlated
// replies resolve their pending call; task callbacks go to the handler;
// malformed payloads are logged and the connection stays alive.
func (r *Registry) HandleMessage(workerID string, msg protocol.Message) {
	if msg.CorrelationID != "" {
		switch msg.Type {
		case protocol.TypeStatusReport, protocol.TypeJobListReport, protocol.TypeSkillResult, protocol.TypeConfigAck:
			if !r.calls.resolve(msg.CorrelationID, msg) {
				r.logger.Debugf("Late reply %s from %s dropped", msg.Type, workerID)
			}
			return
		}
	}

	payload, err := msg.DecodePayload()
	if err != nil {
		r.logger.Warnf("Malformed %s message from %s: %v", msg.Type, workerID, err)
		return
	}

	switch p := payload.(type) {
	case protocol.Heartbeat:
		r.Heartbeat(workerID, p)
	case protocol.TaskStarted:
		r.handler.OnTaskStarted(workerID, p)
	case protocol.TaskProgress:
		r.handler.OnTaskProgress(workerID, p)
	case protocol.TaskStream:
		r.handler.OnTaskStream(workerID, p)
	case protocol.TaskCompleted:
		r.handler.OnTaskCompleted(workerID, p)
	case protocol.TaskError:
		r.handler.OnTaskError(workerID, p)
	case protocol.Hello:
		r.logger.Warnf("Duplicate hello from %s ignored", workerID)
	default:
		r.logger.Warnf("Unhandled %s message from %s", msg.Type, workerID)
	}
}

// PendingCalls reports the number of outstanding correlated requests
func (r *Registry) PendingCalls() int {
	return r.calls.size()
}

func (r *Registry) healthyLocked(w *Worker) bool {
	return time.Since(w.lastSeen) < time.Duration(r.cfg.HealthyHeartbeatSec)*time.Second
}

func (r *Registry) viewLocked(w *Worker) WorkerView {
	return WorkerView{
		ID:           w.ID,
		Name:         w.Name,
		Version:      w.Version,
		Platform:     w.Platform,
		Capabilities: w.Capabilities,
		Tools:        w.Tools,
		Skills:       w.Skills,
		Connected:    true,
		Healthy:      r.healthyLocked(w),
		RegisteredAt: w.RegisteredAt,
		LastSeenAt:   w.lastSeen,
		CPUPercent:   w.telemetry.CPUPercent,
		MemPercent:   w.telemetry.MemPercent,
		RunningTasks: w.telemetry.RunningTasks,
	}
}

func (r *Registry) mirrorWorker(w *Worker, now time.Time) {
	caps, err := capabilitiesJSON(w.Capabilities)
	if err != nil {
		r.logger.Errorf("Failed to encode capabilities for %s: %v", w.ID, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	record := &model.Worker{
		ID:           w.ID,
		Name:         w.Name,
		Version:      w.Version,
		Platform:     w.Platform,
		Capabilities: caps,
		Connected:    true,
		RegisteredAt: w.RegisteredAt,
		LastSeenAt:   now,
	}
	if err := r.store.UpsertWorker(ctx, record); err != nil {
		r.logger.Errorf("Failed to mirror worker %s: %v", w.ID, err)
	}
}

func capabilitiesJSON(caps []string) (datatypes.JSON, error) {
	if len(caps) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(caps)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func decodeReply[T any](msg protocol.Message) (T, error) {
	payload, err := msg.DecodePayload()
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected reply payload %T", payload)
	}
	return typed, nil
}
