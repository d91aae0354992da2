package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"agenthub/internal/config"
	"agenthub/internal/coordinator"
	"agenthub/internal/eventlog"
	"agenthub/internal/httpx"
	"agenthub/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// pairingCodeTTL bounds how long a displayed code stays redeemable
const pairingCodeTTL = 10 * time.Minute

// TaskService is the slice of the coordinator the gateway forwards into
type TaskService interface {
	Create(ctx context.Context, req coordinator.CreateRequest) (coordinator.TaskView, error)
	SendMessage(ctx context.Context, taskID string, payload json.RawMessage) error
}

// Gateway is the external, untrusted HTTP boundary: pairing exchange and
// authenticated webhook ingestion, rate limited and idempotent. It runs
// its own engine on its own listen address, separate from the trusted
// API.
type Gateway struct {
	cfg         config.GatewayConfig
	tasks       TaskService
	tokens      TokenStore
	pairLimiter *slidingWindow
	hookLimiter *slidingWindow
	lockouts    *lockoutTracker
	idempotency *idempotencyTable
	events      *eventlog.Log
	logger      *logrus.Entry
	engine      *gin.Engine
	startedAt   time.Time

	pairSuccess    atomic.Int64
	pairFailure    atomic.Int64
	rateLimited    atomic.Int64
	hooksAccepted  atomic.Int64
	hooksDuplicate atomic.Int64
}

// New creates a Gateway
func New(cfg config.GatewayConfig, tasks TaskService, tokens TokenStore, events *eventlog.Log, logger *logrus.Entry) *Gateway {
	g := &Gateway{
		cfg:         cfg,
		tasks:       tasks,
		tokens:      tokens,
		pairLimiter: newSlidingWindow(cfg.PairLimitPerMin, time.Minute),
		hookLimiter: newSlidingWindow(cfg.HookLimitPerMin, time.Minute),
		lockouts:    newLockoutTracker(cfg.PairFailLockout, time.Duration(cfg.LockoutSec)*time.Second),
		idempotency: newIdempotencyTable(time.Duration(cfg.IdempotencyTTLSec) * time.Second),
		events:      events,
		logger:      logger.WithField("component", "gateway"),
		startedAt:   time.Now(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/gateway/health", g.handleHealth)
	engine.POST("/gateway/pair", g.handlePair)
	engine.POST("/gateway/webhook", g.handleWebhook)
	g.engine = engine
	return g
}

// Handler exposes the gateway's HTTP handler for the server in main
func (g *Gateway) Handler() *gin.Engine {
	return g.engine
}

// NewPairingCode mints a fresh one-time code for out-of-band display.
// Called from the trusted API, never from the gateway surface itself.
func (g *Gateway) NewPairingCode(ctx context.Context) (string, error) {
	code, err := g.tokens.CreatePairingCode(ctx, pairingCodeTTL)
	if err != nil {
		return "", err
	}
	g.events.System("gateway", eventlog.SeverityInfo, "", "pairing code issued")
	return code, nil
}

// ValidateBindAddr refuses binding to a non-loopback address unless the
// configuration explicitly allows public exposure
func ValidateBindAddr(addr string, allowPublic bool) error {
	if allowPublic {
		return nil
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid gateway address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("gateway address %q is not loopback; set GATEWAY_ALLOW_PUBLIC_BIND=true to expose it", addr)
	}
	return nil
}

type pairRequest struct {
	Code string `json:"code"`
}

func (g *Gateway) handlePair(c *gin.Context) {
	key := c.ClientIP()

	if ok, retryAfter := g.pairLimiter.Allow(key); !ok {
		g.rateLimited.Add(1)
		httpx.FailErr(c, httpx.ErrRateLimited(int(retryAfter.Seconds())+1))
		return
	}

	if locked, remaining := g.lockouts.Locked(key); locked {
		httpx.FailErr(c, httpx.ErrLockedOut("", int(remaining.Seconds())+1))
		return
	}

	var req pairRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		req.Code = c.GetHeader("X-Pairing-Code")
	}
	if req.Code == "" {
		httpx.FailErr(c, httpx.ErrParamMissing("pairing code is required"))
		return
	}

	ok, err := g.tokens.ConsumePairingCode(c.Request.Context(), req.Code)
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("pairing failed", err))
		return
	}
	if !ok {
		g.pairFailure.Add(1)
		if g.lockouts.RecordFailure(key) {
			g.logger.Warnf("Caller %s locked out after repeated pairing failures", key)
			g.events.System("gateway", eventlog.SeverityWarn, "", "pairing lockout triggered for "+key)
			httpx.FailErr(c, httpx.ErrLockedOut("", g.cfg.LockoutSec))
			return
		}
		httpx.FailErr(c, httpx.ErrUnauthorized("invalid pairing code"))
		return
	}

	token, err := generateBearerToken()
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("pairing failed", err))
		return
	}
	if err := g.tokens.SaveToken(c.Request.Context(), token); err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("pairing failed", err))
		return
	}

	g.lockouts.Reset(key)
	g.pairSuccess.Add(1)
	g.events.System("gateway", eventlog.SeverityInfo, "", "pairing completed for "+key)
	httpx.OK(c, gin.H{"token": token})
}

type webhookRequest struct {
	Goal    string          `json:"goal"`
	TaskID  string          `json:"task_id"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

func (g *Gateway) handleWebhook(c *gin.Context) {
	key := c.ClientIP()

	if ok, retryAfter := g.hookLimiter.Allow(key); !ok {
		g.rateLimited.Add(1)
		httpx.FailErr(c, httpx.ErrRateLimited(int(retryAfter.Seconds())+1))
		return
	}

	// the shared secret gate runs before auth, idempotency and any
	// business logic
	if g.cfg.WebhookSecret != "" {
		provided := c.GetHeader("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(g.cfg.WebhookSecret)) != 1 {
			httpx.FailErr(c, httpx.ErrUnauthorized("invalid webhook secret"))
			return
		}
	}

	token := bearerToken(c)
	if token == "" {
		httpx.FailErr(c, httpx.ErrUnauthorized("bearer token required"))
		return
	}
	valid, err := g.tokens.ValidToken(c.Request.Context(), token)
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("auth check failed", err))
		return
	}
	if !valid {
		httpx.FailErr(c, httpx.ErrInvalidToken(""))
		return
	}

	if idemKey := c.GetHeader("Idempotency-Key"); idemKey != "" {
		if !g.idempotency.Check(idemKey) {
			g.hooksDuplicate.Add(1)
			httpx.Fail(c, http.StatusOK, httpx.CodeDuplicate, "duplicate, already processed")
			return
		}
	}

	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid webhook body"))
		return
	}

	if req.TaskID != "" {
		if err := g.tasks.SendMessage(c.Request.Context(), req.TaskID, req.Payload); err != nil {
			g.failTask(c, err)
			return
		}
		g.hooksAccepted.Add(1)
		httpx.OK(c, gin.H{"task_id": req.TaskID})
		return
	}

	view, err := g.tasks.Create(c.Request.Context(), coordinator.CreateRequest{
		Goal:    req.Goal,
		UserID:  req.UserID,
		Payload: req.Payload,
	})
	if err != nil {
		g.failTask(c, err)
		return
	}
	g.hooksAccepted.Add(1)
	httpx.OK(c, gin.H{"task_id": view.ID})
}

func (g *Gateway) failTask(c *gin.Context, err error) {
	switch err {
	case coordinator.ErrGoalRequired:
		httpx.FailErr(c, httpx.ErrParamMissing("goal is required"))
	case store.ErrNotFound:
		httpx.FailErr(c, httpx.ErrNotFound("task not found"))
	default:
		httpx.FailErr(c, httpx.ErrWorkerUnavailable(err.Error()))
	}
}

func (g *Gateway) handleHealth(c *gin.Context) {
	httpx.OK(c, gin.H{
		"status":          "ok",
		"uptime_sec":      int(time.Since(g.startedAt).Seconds()),
		"pair_success":    g.pairSuccess.Load(),
		"pair_failure":    g.pairFailure.Load(),
		"rate_limited":    g.rateLimited.Load(),
		"hooks_accepted":  g.hooksAccepted.Load(),
		"hooks_duplicate": g.hooksDuplicate.Load(),
		"idempotent_keys": g.idempotency.size(),
	})
}

func bearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	header := c.GetHeader("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
