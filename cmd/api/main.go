package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shelter-platform/internal/audit"
	"shelter-platform/internal/auth"
	"shelter-platform/internal/calls"
	"shelter-platform/internal/callsync"
	"shelter-platform/internal/config"
	"shelter-platform/internal/httpapi"
	"shelter-platform/internal/rbac"
	"shelter-platform/internal/reporting"
	"shelter-platform/internal/telephony"
	"shelter-platform/pkg/logger"
	"shelter-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Redis is optional; without it overlapping sync runs are not prevented.
	guard := callsync.RunGuard(callsync.NoopGuard{})
	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		guard = callsync.NewRedisGuard(rdb, cfg.Sync.RunTTL)
	} else {
		log.Warn("redis not configured, sync run guard disabled")
	}

	store := calls.NewPostgresStore(db)
	conns := telephony.NewPostgresConnections(db)
	resolver := rbac.NewResolver(rbac.NewPostgresRepository(db))

	deps := routeDeps{
		db:       db,
		auth:     authManager,
		resolver: resolver,
		webhook:  telephony.WebhookHandler{Ingestor: telephony.NewIngestor(conns, store)},
		trigger: callsync.TriggerHandler{
			Runner: callsync.NewJob(
				telephony.NewClient(telephony.ClientConfigFrom(cfg.Telephony), log),
				store,
				conns,
				callsync.Options{Guard: guard, Logger: log},
			),
			Secret:     cfg.Sync.Secret,
			Tokens:     authManager,
			Authorizer: resolver,
		},
		api: httpapi.Handlers{
			Connections: conns,
			Calls:       store,
			Reports:     reporting.NewService(reporting.NewPostgresRepo(db)),
			Audit:       audit.NewService(audit.NewPostgresRepo(db)),
		},
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A tenant-wide sync triggered over HTTP can take minutes at 600ms per page.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
