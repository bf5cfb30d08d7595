package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"shelter-platform/internal/calls"
	"shelter-platform/internal/callsync"
	"shelter-platform/internal/config"
	"shelter-platform/internal/telephony"
	"shelter-platform/pkg/logger"
	"shelter-platform/pkg/utils"
)

// callsync runs one pull sync and exits. Schedulers (cron, CronJob) invoke it every few minutes.
func main() {
	tenantID := flag.String("tenant", "", "sync only this tenant")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxConns: 4})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	guard := callsync.RunGuard(callsync.NoopGuard{})
	if cfg.RedisEnabled() {
		var rdb *redis.Client
		rdb, err = utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		guard = callsync.NewRedisGuard(rdb, cfg.Sync.RunTTL)
	}

	job := callsync.NewJob(
		telephony.NewClient(telephony.ClientConfigFrom(cfg.Telephony), log),
		calls.NewPostgresStore(db),
		telephony.NewPostgresConnections(db),
		callsync.Options{Guard: guard, Logger: log},
	)

	var res callsync.RunResult
	if *tenantID != "" {
		res, err = job.RunTenant(ctx, *tenantID)
	} else {
		res, err = job.Run(ctx)
	}
	if err != nil {
		if errors.Is(err, callsync.ErrRunInProgress) {
			log.Warn("call sync skipped, a run is already in progress")
			return
		}
		log.Error("call sync failed", "err", err)
		os.Exit(1)
	}

	log.Info("call sync complete", "synced", res.Synced, "connections", len(res.Connections), "failed", res.Failed())
	if res.Failed() > 0 {
		os.Exit(3)
	}
}
