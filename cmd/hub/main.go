package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agenthub/internal/auth"
	"agenthub/internal/cache"
	"agenthub/internal/config"
	"agenthub/internal/coordinator"
	"agenthub/internal/db"
	"agenthub/internal/eventlog"
	"agenthub/internal/gateway"
	"agenthub/internal/registry"
	"agenthub/internal/routes"
	"agenthub/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logrus.Info("Configuration loaded")

	auth.InitJWT(cfg.JWT.Secret)

	// the memory store keeps tasks and workers off disk, but console
	// users still need a relational home
	dbCfg := cfg.Store
	if dbCfg.Backend == config.StoreMemory {
		dbCfg.Backend = config.StoreSQLite
		dbCfg.SQLitePath = ":memory:"
	}
	if err := db.Open(dbCfg); err != nil {
		logrus.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if cfg.Store.Migrate {
		if err := db.Migrate(db.GetDB()); err != nil {
			logrus.Fatalf("Failed to migrate database: %v", err)
		}
	}
	if err := db.EnsureAdminUser(db.GetDB(), os.Getenv("ADMIN_USERNAME"), os.Getenv("ADMIN_PASSWORD")); err != nil {
		logrus.Fatalf("Failed to seed admin user: %v", err)
	}

	var st store.Store
	if cfg.Store.Backend == config.StoreMemory {
		st = store.NewMemoryStore()
	} else {
		st = store.NewGormStore(db.GetDB())
	}
	logrus.Infof("Store backend: %s", cfg.Store.Backend)

	var tokens gateway.TokenStore
	if cfg.Gateway.TokenBackend == config.TokensRedis {
		if err := cache.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			logrus.Fatalf("Failed to initialize Redis: %v", err)
		}
		defer cache.Close()
		tokens = gateway.NewRedisTokenStore(cache.Client)
	} else {
		tokens = gateway.NewMemoryTokenStore()
	}
	logrus.Infof("Gateway token backend: %s", cfg.Gateway.TokenBackend)

	if err := gateway.ValidateBindAddr(cfg.Gateway.Addr, cfg.Gateway.AllowPublicBind); err != nil {
		logrus.Fatalf("Refusing to start: %v", err)
	}

	logger := logrus.NewEntry(logrus.StandardLogger())
	events := eventlog.New(eventlog.DefaultCapacity)

	reg := registry.New(cfg.Registry, st, events, logger)
	coord := coordinator.New(reg, st, events, logger)
	reg.SetTaskHandler(coord)

	gw := gateway.New(cfg.Gateway, coord, tokens, events, logger)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	routes.RegisterRoutes(engine, routes.Deps{
		DB:          db.GetDB(),
		Config:      cfg,
		Store:       st,
		Registry:    reg,
		Coordinator: coord,
		Gateway:     gw,
		Events:      events,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.RunSweeper(ctx)

	apiServer := &http.Server{Addr: cfg.HTTPAddr, Handler: engine}
	gatewayServer := &http.Server{Addr: cfg.Gateway.Addr, Handler: gw.Handler()}

	go func() {
		logrus.Infof("Trusted API listening on %s", cfg.HTTPAddr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("API server failed: %v", err)
		}
	}()
	go func() {
		logrus.Infof("Gateway listening on %s", cfg.Gateway.Addr)
		if err := gatewayServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Gateway server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("API server shutdown: %v", err)
	}
	if err := gatewayServer.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Gateway server shutdown: %v", err)
	}
	logrus.Info("Stopped")
}
