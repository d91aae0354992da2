package tasks

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"agenthub/internal/coordinator"
	"agenthub/internal/eventlog"
	"agenthub/internal/httpx"
	"agenthub/internal/protocol"
	"agenthub/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubDispatcher struct {
	workers []string
}

func (d *stubDispatcher) PickWorker(workerID string) (string, error) {
	if len(d.workers) == 0 {
		return "", errors.New("worker not connected")
	}
	if workerID != "" {
		return workerID, nil
	}
	return d.workers[0], nil
}

func (d *stubDispatcher) Send(workerID string, msg protocol.Message) error {
	return nil
}

func testRouter(t *testing.T) (*gin.Engine, *coordinator.Coordinator) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	coord := coordinator.New(&stubDispatcher{workers: []string{"worker-a"}}, store.NewMemoryStore(), eventlog.New(0), logrus.NewEntry(logger))

	handler := NewHandler(coord)
	r := gin.New()
	r.GET("/tasks", handler.List)
	r.POST("/tasks", handler.Create)
	r.GET("/tasks/:id", handler.Get)
	r.GET("/tasks/:id/stream", handler.Stream)
	r.POST("/tasks/:id/stop", handler.Stop)
	r.DELETE("/tasks/:id", handler.Delete)
	return r, coord
}

func doRequest(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetTask(t *testing.T) {
	r, _ := testRouter(t)

	w := doRequest(r, http.MethodPost, "/tasks", gin.H{"goal": "review logs"})
	if w.Code != http.StatusOK {
		t.Fatalf("Create returned %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Code int                  `json:"code"`
		Data coordinator.TaskView `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Bad response: %v", err)
	}
	if resp.Data.ID == "" || resp.Data.Goal != "review logs" {
		t.Fatalf("Unexpected view: %+v", resp.Data)
	}

	w = doRequest(r, http.MethodGet, "/tasks/"+resp.Data.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Get returned %d", w.Code)
	}
}

func TestCreateWithoutGoal(t *testing.T) {
	r, _ := testRouter(t)
	w := doRequest(r, http.MethodPost, "/tasks", gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestGetUnknownTask(t *testing.T) {
	r, _ := testRouter(t)
	w := doRequest(r, http.MethodGet, "/tasks/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
	var resp httpx.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != httpx.CodeNotFound {
		t.Errorf("Expected business code %d, got %d", httpx.CodeNotFound, resp.Code)
	}
}

func TestStreamEndpointReplaysBufferedOutput(t *testing.T) {
	r, coord := testRouter(t)

	w := doRequest(r, http.MethodPost, "/tasks", gin.H{"goal": "stream"})
	var resp struct {
		Data coordinator.TaskView `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	taskID := resp.Data.ID

	coord.OnTaskStream("worker-a", protocol.TaskStream{TaskID: taskID, Data: []byte("hello ")})
	coord.OnTaskStream("worker-a", protocol.TaskStream{TaskID: taskID, Data: []byte("world")})
	coord.OnTaskCompleted("worker-a", protocol.TaskCompleted{TaskID: taskID})

	// task is terminal, so the endpoint replays and returns
	w = doRequest(r, http.MethodGet, "/tasks/"+taskID+"/stream", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Stream returned %d", w.Code)
	}
	if w.Body.String() != "hello world" {
		t.Errorf("Expected replayed bytes %q, got %q", "hello world", w.Body.String())
	}
}

func TestStopAndDelete(t *testing.T) {
	r, _ := testRouter(t)

	w := doRequest(r, http.MethodPost, "/tasks", gin.H{"goal": "short lived"})
	var resp struct {
		Data coordinator.TaskView `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	taskID := resp.Data.ID

	w = doRequest(r, http.MethodPost, "/tasks/"+taskID+"/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Stop returned %d", w.Code)
	}

	w = doRequest(r, http.MethodDelete, "/tasks/"+taskID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Delete returned %d", w.Code)
	}

	w = doRequest(r, http.MethodGet, "/tasks/"+taskID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Deleted task should 404, got %d", w.Code)
	}
}
