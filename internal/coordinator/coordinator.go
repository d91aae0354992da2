package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"agenthub/internal/eventlog"
	"agenthub/internal/model"
	"agenthub/internal/protocol"
	"agenthub/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrGoalRequired rejects task creation with an empty goal
	ErrGoalRequired = errors.New("coordinator: goal is required")

	// ErrNotTerminal rejects archiving a task that is still in flight
	ErrNotTerminal = errors.New("coordinator: task is not in a terminal state")
)

// Dispatcher is the slice of the connection registry the coordinator
// needs: worker selection and message delivery.
type Dispatcher interface {
	PickWorker(workerID string) (string, error)
	Send(workerID string, msg protocol.Message) error
}

// CreateRequest describes a new task
type CreateRequest struct {
	Goal     string          `json:"goal"`
	WorkerID string          `json:"worker_id,omitempty"`
	UserID   string          `json:"user_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// GetOptions narrows what a task view carries
type GetOptions struct {
	WithEvents bool
}

// TaskView is the merged live-over-durable read model of a task
type TaskView struct {
	ID            string                   `json:"id"`
	UserID        string                   `json:"user_id,omitempty"`
	Goal          string                   `json:"goal"`
	WorkerID      string                   `json:"worker_id,omitempty"`
	Status        model.TaskStatus         `json:"status"`
	PartialText   string                   `json:"partial_text,omitempty"`
	Result        string                   `json:"result,omitempty"`
	LastError     string                   `json:"last_error,omitempty"`
	Live          bool                     `json:"live"`
	EventCount    int                      `json:"event_count"`
	BufferedBytes int                      `json:"buffered_bytes"`
	CreatedAt     time.Time                `json:"created_at"`
	CompletedAt   *time.Time               `json:"completed_at,omitempty"`
	ArchivedAt    *time.Time               `json:"archived_at,omitempty"`
	Events        []protocol.ProgressEvent `json:"events,omitempty"`
}

// Coordinator owns the task lifecycle: creation and dispatch, live
// runtime buffers, stream fan-out, and the durable mirror in the store.
type Coordinator struct {
	mu    sync.Mutex
	tasks map[string]*taskRuntime

	dispatcher Dispatcher
	store      store.Store
	events     *eventlog.Log
	logger     *logrus.Entry
}

// New creates a Coordinator
func New(dispatcher Dispatcher, st store.Store, events *eventlog.Log, logger *logrus.Entry) *Coordinator {
	return &Coordinator{
		tasks:      make(map[string]*taskRuntime),
		dispatcher: dispatcher,
		store:      st,
		events:     events,
		logger:     logger.WithField("component", "coordinator"),
	}
}

// Create validates the request, selects a worker, writes the durable
// record, sets up live runtime state and dispatches the task. A store
// failure is logged but does not block the live path.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (TaskView, error) {
	if req.Goal == "" {
		return TaskView{}, ErrGoalRequired
	}

	workerID, err := c.dispatcher.PickWorker(req.WorkerID)
	if err != nil {
		return TaskView{}, err
	}

	taskID := uuid.New().String()
	record := &model.Task{
		ID:       taskID,
		UserID:   req.UserID,
		Goal:     req.Goal,
		WorkerID: workerID,
		Status:   model.TaskStatusPending,
	}
	if err := c.store.CreateTask(ctx, record); err != nil {
		c.logger.Errorf("Failed to persist task %s: %v", taskID, err)
	}

	rt := newRuntime(taskID, req.Goal, workerID)
	c.mu.Lock()
	c.tasks[taskID] = rt
	c.mu.Unlock()

	msg, err := protocol.NewMessage(protocol.TypeTaskCreate, protocol.TaskCreate{
		TaskID:  taskID,
		Goal:    req.Goal,
		Payload: req.Payload,
	})
	if err == nil {
		err = c.dispatcher.Send(workerID, msg)
	}
	if err != nil {
		c.logger.Errorf("Failed to dispatch task %s to %s: %v", taskID, workerID, err)
		c.mu.Lock()
		rt.status = model.TaskStatusError
		rt.lastError = err.Error()
		view := c.viewLocked(rt, GetOptions{})
		c.mu.Unlock()
		c.persist(taskID, store.TaskUpdate{Status: statusPtr(model.TaskStatusError), LastError: &view.LastError})
		return view, err
	}

	c.events.Task("coordinator", taskID, "task created, dispatched to "+workerID)
	c.logger.Infof("Task %s created on worker %s", taskID, workerID)

	c.mu.Lock()
	view := c.viewLocked(rt, GetOptions{})
	c.mu.Unlock()
	return view, nil
}

// Get returns one task, preferring live runtime state over the durable
// record when both exist.
func (c *Coordinator) Get(ctx context.Context, taskID string, opts GetOptions) (TaskView, error) {
	c.mu.Lock()
	rt, live := c.tasks[taskID]
	var view TaskView
	if live {
		view = c.viewLocked(rt, opts)
	}
	c.mu.Unlock()

	record, err := c.store.GetTask(ctx, taskID)
	if !live {
		if err != nil {
			return TaskView{}, err
		}
		return viewFromRecord(record), nil
	}
	if err == nil {
		view.UserID = record.UserID
		view.ArchivedAt = record.ArchivedAt
	}
	return view, nil
}

// List merges durable records with live runtime state, preferring live
// data for matching ids
func (c *Coordinator) List(ctx context.Context, filter store.TaskFilter) ([]TaskView, error) {
	records, err := c.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(records))
	views := make([]TaskView, 0, len(records))
	for i := range records {
		record := &records[i]
		seen[record.ID] = true
		if rt, ok := c.tasks[record.ID]; ok {
			v := c.viewLocked(rt, GetOptions{})
			v.UserID = record.UserID
			v.ArchivedAt = record.ArchivedAt
			views = append(views, v)
		} else {
			views = append(views, viewFromRecord(record))
		}
	}

	// live-only tasks show up even when the durable write was lost
	for id, rt := range c.tasks {
		if seen[id] {
			continue
		}
		if filter.Status != "" && rt.status != filter.Status {
			continue
		}
		views = append(views, c.viewLocked(rt, GetOptions{}))
	}
	return views, nil
}

// SendMessage starts a new turn on an existing task: all runtime buffers
// are cleared, existing subscribers are closed so no stream interleaves
// two turns, status returns to pending and the message is re-dispatched.
func (c *Coordinator) SendMessage(ctx context.Context, taskID string, payload json.RawMessage) error {
	c.mu.Lock()
	rt, ok := c.tasks[taskID]
	c.mu.Unlock()

	if !ok {
		record, err := c.store.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		rt = newRuntime(record.ID, record.Goal, record.WorkerID)
		c.mu.Lock()
		c.tasks[taskID] = rt
		c.mu.Unlock()
	}

	c.mu.Lock()
	lastWorker := rt.workerID
	c.mu.Unlock()

	workerID, err := c.dispatcher.PickWorker(lastWorker)
	if err != nil {
		// original worker gone, any available one may continue the task
		workerID, err = c.dispatcher.PickWorker("")
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	rt.resetTurn()
	rt.workerID = workerID
	c.mu.Unlock()

	c.persist(taskID, store.TaskUpdate{Status: statusPtr(model.TaskStatusPending), WorkerID: &workerID})

	msg, err := protocol.NewMessage(protocol.TypeTaskMessage, protocol.TaskMessage{TaskID: taskID, Payload: payload})
	if err != nil {
		return err
	}
	if err := c.dispatcher.Send(workerID, msg); err != nil {
		return err
	}

	c.events.Task("coordinator", taskID, "new turn dispatched to "+workerID)
	return nil
}

// Stop requests the worker abort and marks the task stopped regardless
// of whether the forward succeeded. Stopping a terminal task is a no-op.
func (c *Coordinator) Stop(ctx context.Context, taskID string) error {
	c.mu.Lock()
	rt, ok := c.tasks[taskID]
	if ok && rt.status.Terminal() {
		c.mu.Unlock()
		return nil
	}
	var workerID string
	if ok {
		workerID = rt.workerID
	}
	c.mu.Unlock()

	if !ok {
		record, err := c.store.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if record.Status.Terminal() {
			return nil
		}
		workerID = record.WorkerID
	}

	if msg, err := protocol.NewMessage(protocol.TypeTaskStop, protocol.TaskStop{TaskID: taskID}); err == nil {
		if err := c.dispatcher.Send(workerID, msg); err != nil {
			c.logger.Warnf("Stop forward for task %s failed: %v", taskID, err)
		}
	}

	now := time.Now()
	if ok {
		c.mu.Lock()
		rt.status = model.TaskStatusStopped
		rt.completedAt = &now
		rt.closeSubscribers()
		c.mu.Unlock()
	}
	c.persist(taskID, store.TaskUpdate{Status: statusPtr(model.TaskStatusStopped), CompletedAt: &now})
	c.events.Task("coordinator", taskID, "task stopped")
	c.logger.Infof("Task %s stopped", taskID)
	return nil
}

// Archive moves a terminal task out of default listings
func (c *Coordinator) Archive(ctx context.Context, taskID string) error {
	c.mu.Lock()
	if rt, ok := c.tasks[taskID]; ok && !rt.status.Terminal() {
		c.mu.Unlock()
		return ErrNotTerminal
	}
	c.mu.Unlock()
	return c.store.ArchiveTask(ctx, taskID)
}

// Restore brings an archived task back into default listings
func (c *Coordinator) Restore(ctx context.Context, taskID string) error {
	return c.store.RestoreTask(ctx, taskID)
}

// Delete removes the durable record and drops live state, closing any
// remaining subscribers
func (c *Coordinator) Delete(ctx context.Context, taskID string) error {
	c.mu.Lock()
	rt, live := c.tasks[taskID]
	if live {
		rt.closeSubscribers()
		delete(c.tasks, taskID)
	}
	c.mu.Unlock()

	err := c.store.DeleteTask(ctx, taskID)
	if err == store.ErrNotFound && live {
		return nil
	}
	return err
}

// StreamSubscribe attaches to a task's output stream. The buffered chunk
// ring is replayed first, then live chunks follow until the task reaches
// a terminal state; a task already terminal gets replay and immediate
// end. The returned cancel detaches early and is safe to call twice.
func (c *Coordinator) StreamSubscribe(taskID string) (<-chan []byte, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rt, ok := c.tasks[taskID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}

	replay := rt.ring.snapshot()
	ch := make(chan []byte, len(replay)+subscriberBuffer)
	for _, chunk := range replay {
		ch <- chunk
	}

	if rt.status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	subID := rt.nextSubID
	rt.nextSubID++
	rt.subscribers[subID] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := rt.subscribers[subID]; ok {
			delete(rt.subscribers, subID)
			close(cur)
		}
	}
	return ch, cancel, nil
}

// OnTaskStarted transitions the task to running
func (c *Coordinator) OnTaskStarted(workerID string, p protocol.TaskStarted) {
	c.mu.Lock()
	rt, ok := c.tasks[p.TaskID]
	if ok && !rt.status.Terminal() {
		rt.status = model.TaskStatusRunning
		rt.conversationID = p.ConversationID
	}
	c.mu.Unlock()
	if !ok {
		c.logger.Warnf("Started callback for unknown task %s from %s", p.TaskID, workerID)
		return
	}

	c.persist(p.TaskID, store.TaskUpdate{Status: statusPtr(model.TaskStatusRunning), WorkerID: &workerID})
	c.events.Task("coordinator", p.TaskID, "task running on "+workerID)
}

// OnTaskProgress normalizes and buffers a progress event; text deltas
// accumulate into the partial-text buffer
func (c *Coordinator) OnTaskProgress(workerID string, p protocol.TaskProgress) {
	event, err := normalizeProgress(p.TaskID, p.Event)
	if err != nil {
		c.logger.Warnf("Malformed progress for task %s from %s: %v", p.TaskID, workerID, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	rt, ok := c.tasks[p.TaskID]
	if !ok || rt.status.Terminal() {
		return
	}
	if event.ConversationID == "" {
		event.ConversationID = rt.conversationID
	}
	rt.appendEvent(event)
	if event.Event.Type == protocol.EventTextDelta {
		rt.partialText = appendText(rt.partialText, event.Event.Text)
	}
}

// OnTaskStream buffers a raw output chunk and fans it out to live
// subscribers
func (c *Coordinator) OnTaskStream(workerID string, p protocol.TaskStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rt, ok := c.tasks[p.TaskID]
	if !ok || rt.status.Terminal() {
		return
	}
	rt.ring.push(p.Data)
	rt.broadcast(p.Data)
}

// OnTaskCompleted finalizes a successful task
func (c *Coordinator) OnTaskCompleted(workerID string, p protocol.TaskCompleted) {
	now := time.Now()
	c.mu.Lock()
	rt, ok := c.tasks[p.TaskID]
	if ok && !rt.status.Terminal() {
		rt.status = model.TaskStatusCompleted
		rt.result = p.Result
		rt.completedAt = &now
		rt.appendEvent(protocol.ProgressEvent{
			ID:        uuid.New().String(),
			TaskID:    p.TaskID,
			CreatedAt: now,
			Event:     protocol.InnerEvent{Type: protocol.EventStatus, Text: "completed"},
		})
		rt.closeSubscribers()
	} else {
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	c.persist(p.TaskID, store.TaskUpdate{Status: statusPtr(model.TaskStatusCompleted), CompletedAt: &now})
	c.events.Task("coordinator", p.TaskID, "task completed")
	c.logger.Infof("Task %s completed", p.TaskID)
}

// OnTaskError finalizes a failed task; partial output stays intact
func (c *Coordinator) OnTaskError(workerID string, p protocol.TaskError) {
	now := time.Now()
	c.mu.Lock()
	rt, ok := c.tasks[p.TaskID]
	if ok && !rt.status.Terminal() {
		rt.status = model.TaskStatusError
		rt.lastError = p.Error
		rt.completedAt = &now
		rt.appendEvent(protocol.ProgressEvent{
			ID:        uuid.New().String(),
			TaskID:    p.TaskID,
			CreatedAt: now,
			Event:     protocol.InnerEvent{Type: protocol.EventError, Text: p.Error},
		})
		rt.closeSubscribers()
	} else {
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	c.persist(p.TaskID, store.TaskUpdate{Status: statusPtr(model.TaskStatusError), LastError: &p.Error, CompletedAt: &now})
	c.events.Task("coordinator", p.TaskID, "task failed: "+p.Error)
	c.logger.Warnf("Task %s failed: %s", p.TaskID, p.Error)
}

// persist mirrors a lifecycle transition into the store. Failures are
// logged and never roll back the live transition.
func (c *Coordinator) persist(taskID string, update store.TaskUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.UpdateTask(ctx, taskID, update); err != nil && err != store.ErrNotFound {
		c.logger.Errorf("Failed to persist task %s update: %v", taskID, err)
	}
}

func (c *Coordinator) viewLocked(rt *taskRuntime, opts GetOptions) TaskView {
	view := TaskView{
		ID:            rt.id,
		Goal:          rt.goal,
		WorkerID:      rt.workerID,
		Status:        rt.status,
		PartialText:   rt.partialText,
		Result:        rt.result,
		LastError:     rt.lastError,
		Live:          true,
		EventCount:    len(rt.events),
		BufferedBytes: rt.ring.bytes,
		CreatedAt:     rt.createdAt,
		CompletedAt:   rt.completedAt,
	}
	if opts.WithEvents {
		view.Events = append([]protocol.ProgressEvent(nil), rt.events...)
	}
	return view
}

func viewFromRecord(record *model.Task) TaskView {
	return TaskView{
		ID:          record.ID,
		UserID:      record.UserID,
		Goal:        record.Goal,
		WorkerID:    record.WorkerID,
		Status:      record.Status,
		LastError:   record.LastError,
		CreatedAt:   record.CreatedAt,
		CompletedAt: record.CompletedAt,
		ArchivedAt:  record.ArchivedAt,
	}
}

func statusPtr(s model.TaskStatus) *model.TaskStatus {
	return &s
}
