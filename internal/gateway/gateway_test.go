package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"agenthub/internal/config"
	"agenthub/internal/coordinator"
	"agenthub/internal/eventlog"
	"agenthub/internal/httpx"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTasks struct {
	mu       sync.Mutex
	created  []coordinator.CreateRequest
	messages []string
	err      error
}

func (f *fakeTasks) Create(ctx context.Context, req coordinator.CreateRequest) (coordinator.TaskView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return coordinator.TaskView{}, f.err
	}
	f.created = append(f.created, req)
	return coordinator.TaskView{ID: "task-1", Goal: req.Goal}, nil
}

func (f *fakeTasks) SendMessage(ctx context.Context, taskID string, payload json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, taskID)
	return nil
}

func (f *fakeTasks) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func testGateway(t *testing.T, cfg config.GatewayConfig) (*Gateway, *fakeTasks) {
	t.Helper()
	if cfg.PairLimitPerMin == 0 {
		cfg.PairLimitPerMin = 10
	}
	if cfg.HookLimitPerMin == 0 {
		cfg.HookLimitPerMin = 60
	}
	if cfg.PairFailLockout == 0 {
		cfg.PairFailLockout = 5
	}
	if cfg.LockoutSec == 0 {
		cfg.LockoutSec = 300
	}
	if cfg.IdempotencyTTLSec == 0 {
		cfg.IdempotencyTTLSec = 300
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	tasks := &fakeTasks{}
	g := New(cfg, tasks, NewMemoryTokenStore(), eventlog.New(0), logrus.NewEntry(logger))
	return g, tasks
}

func doJSON(g *Gateway, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) httpx.Response {
	t.Helper()
	var resp httpx.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return resp
}

func pairToken(t *testing.T, g *Gateway) string {
	t.Helper()
	code, err := g.NewPairingCode(context.Background())
	if err != nil {
		t.Fatalf("NewPairingCode() failed: %v", err)
	}
	w := doJSON(g, http.MethodPost, "/gateway/pair", gin.H{"code": code}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Pairing failed with status %d: %s", w.Code, w.Body.String())
	}
	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]any)
	token, _ := data["token"].(string)
	if token == "" {
		t.Fatal("Pairing returned no token")
	}
	return token
}

func TestPairingCodeSingleUse(t *testing.T) {
	g, _ := testGateway(t, config.GatewayConfig{})

	code, err := g.NewPairingCode(context.Background())
	if err != nil {
		t.Fatalf("NewPairingCode() failed: %v", err)
	}

	w := doJSON(g, http.MethodPost, "/gateway/pair", gin.H{"code": code}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("First redemption should succeed, got %d", w.Code)
	}

	w = doJSON(g, http.MethodPost, "/gateway/pair", gin.H{"code": code}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Second redemption should fail with 401, got %d", w.Code)
	}
}

func TestPairingLockout(t *testing.T) {
	g, _ := testGateway(t, config.GatewayConfig{PairFailLockout: 5})

	for i := 0; i < 4; i++ {
		w := doJSON(g, http.MethodPost, "/gateway/pair", gin.H{"code": "wrong"}, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("Attempt %d expected 401, got %d", i+1, w.Code)
		}
	}

	// fifth failure trips the lockout
	w := doJSON(g, http.MethodPost, "/gateway/pair", gin.H{"code": "wrong"}, nil)
	if w.Code != http.StatusLocked {
		t.Fatalf("Fifth failure should lock out, got %d", w.Code)
	}

	// even a valid code is refused while locked
	code, _ := g.NewPairingCode(context.Background())
	w = doJSON(g, http.MethodPost, "/gateway/pair", gin.H{"code": code}, nil)
	if w.Code != http.StatusLocked {
		t.Errorf("Locked caller should stay locked, got %d", w.Code)
	}
}

func TestPairingRateLimit(t *testing.T) {
	g, _ := testGateway(t, config.GatewayConfig{PairLimitPerMin: 2})

	doJSON(g, http.MethodPost, "/gateway/pair", gin.H{"code": "a"}, nil)
	doJSON(g, http.MethodPost, "/gateway/pair", gin.H{"code": "b"}, nil)

	w := doJSON(g, http.MethodPost, "/gateway/pair", gin.H{"code": "c"}, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}
	resp := decodeResponse(t, w)
	if resp.Code != httpx.CodeRateLimited {
		t.Errorf("Expected business code %d, got %d", httpx.CodeRateLimited, resp.Code)
	}
}

func TestWebhookRequiresBearerToken(t *testing.T) {
	g, tasks := testGateway(t, config.GatewayConfig{})

	w := doJSON(g, http.MethodPost, "/gateway/webhook", gin.H{"goal": "x"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without token, got %d", w.Code)
	}

	w = doJSON(g, http.MethodPost, "/gateway/webhook", gin.H{"goal": "x"}, map[string]string{
		"Authorization": "Bearer made-up",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for unknown token, got %d", w.Code)
	}
	if tasks.createdCount() != 0 {
		t.Error("No task should be created before auth passes")
	}
}

func TestWebhookCreatesTask(t *testing.T) {
	g, tasks := testGateway(t, config.GatewayConfig{})
	token := pairToken(t, g)

	w := doJSON(g, http.MethodPost, "/gateway/webhook", gin.H{"goal": "summarize inbox"}, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if tasks.createdCount() != 1 {
		t.Fatalf("Expected one created task, got %d", tasks.createdCount())
	}
	if tasks.created[0].Goal != "summarize inbox" {
		t.Errorf("Goal not forwarded: %+v", tasks.created[0])
	}
}

func TestWebhookSendsMessageToExistingTask(t *testing.T) {
	g, tasks := testGateway(t, config.GatewayConfig{})
	token := pairToken(t, g)

	w := doJSON(g, http.MethodPost, "/gateway/webhook", gin.H{"task_id": "task-9", "payload": gin.H{"text": "more"}}, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(tasks.messages) != 1 || tasks.messages[0] != "task-9" {
		t.Errorf("Message not forwarded: %v", tasks.messages)
	}
}

func TestWebhookIdempotency(t *testing.T) {
	g, tasks := testGateway(t, config.GatewayConfig{})
	token := pairToken(t, g)
	headers := map[string]string{
		"Authorization":   "Bearer " + token,
		"Idempotency-Key": "req-123",
	}

	w := doJSON(g, http.MethodPost, "/gateway/webhook", gin.H{"goal": "once"}, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("First call failed: %d", w.Code)
	}

	w = doJSON(g, http.MethodPost, "/gateway/webhook", gin.H{"goal": "once"}, headers)
	resp := decodeResponse(t, w)
	if resp.Code != httpx.CodeDuplicate {
		t.Fatalf("Expected duplicate code %d, got %d", httpx.CodeDuplicate, resp.Code)
	}

	// the side effect ran at most once
	if tasks.createdCount() != 1 {
		t.Errorf("Expected one created task, got %d", tasks.createdCount())
	}
}

func TestWebhookSecretCheckedFirst(t *testing.T) {
	g, tasks := testGateway(t, config.GatewayConfig{WebhookSecret: "s3cret"})
	token := pairToken(t, g)

	w := doJSON(g, http.MethodPost, "/gateway/webhook", gin.H{"goal": "x"}, map[string]string{
		"Authorization":    "Bearer " + token,
		"X-Webhook-Secret": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Wrong secret should 401, got %d", w.Code)
	}
	if tasks.createdCount() != 0 {
		t.Error("Business logic must not run on a failed secret check")
	}

	w = doJSON(g, http.MethodPost, "/gateway/webhook", gin.H{"goal": "x"}, map[string]string{
		"Authorization":    "Bearer " + token,
		"X-Webhook-Secret": "s3cret",
	})
	if w.Code != http.StatusOK {
		t.Errorf("Correct secret should pass, got %d", w.Code)
	}
}

func TestGatewayHealth(t *testing.T) {
	g, _ := testGateway(t, config.GatewayConfig{})
	w := doJSON(g, http.MethodGet, "/gateway/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]any)
	if data["status"] != "ok" {
		t.Errorf("Unexpected health payload: %v", data)
	}
}

func TestValidateBindAddr(t *testing.T) {
	cases := []struct {
		addr        string
		allowPublic bool
		wantErr     bool
	}{
		{"127.0.0.1:9190", false, false},
		{"localhost:9190", false, false},
		{"[::1]:9190", false, false},
		{"0.0.0.0:9190", false, true},
		{"192.168.1.5:9190", false, true},
		{":9190", false, true},
		{"0.0.0.0:9190", true, false},
		{"not-an-addr", false, true},
	}
	for _, tc := range cases {
		err := ValidateBindAddr(tc.addr, tc.allowPublic)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateBindAddr(%q, %v) = %v, wantErr %v", tc.addr, tc.allowPublic, err, tc.wantErr)
		}
	}
}

func TestMemoryTokenStore(t *testing.T) {
	st := NewMemoryTokenStore()
	ctx := context.Background()

	code, err := st.CreatePairingCode(ctx, pairingCodeTTL)
	if err != nil {
		t.Fatalf("CreatePairingCode() failed: %v", err)
	}

	ok, err := st.ConsumePairingCode(ctx, code)
	if err != nil || !ok {
		t.Fatalf("First consume should succeed: ok=%v err=%v", ok, err)
	}
	ok, _ = st.ConsumePairingCode(ctx, code)
	if ok {
		t.Error("Code must redeem at most once")
	}

	if err := st.SaveToken(ctx, "tok-1"); err != nil {
		t.Fatalf("SaveToken() failed: %v", err)
	}
	if valid, _ := st.ValidToken(ctx, "tok-1"); !valid {
		t.Error("Saved token should validate")
	}
	if valid, _ := st.ValidToken(ctx, "tok-2"); valid {
		t.Error("Unknown token should not validate")
	}
	if err := st.RevokeToken(ctx, "tok-1"); err != nil {
		t.Fatalf("RevokeToken() failed: %v", err)
	}
	if valid, _ := st.ValidToken(ctx, "tok-1"); valid {
		t.Error("Revoked token should not validate")
	}
}
