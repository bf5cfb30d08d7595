package main

import (
	"errors"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"shelter-platform/internal/config"
	"shelter-platform/migrations"
	"shelter-platform/pkg/logger"
)

const usage = "usage: migrate up | down [n] | version"

func main() {
	if len(os.Args) < 2 {
		slog.Error(usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env)

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		log.Error("migration source failed", "err", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.PostgresURL())
	if err != nil {
		log.Error("migrator init failed", "err", err)
		os.Exit(1)
	}
	defer m.Close()

	switch os.Args[1] {
	case "up":
		err = m.Up()
	case "down":
		steps := 1
		if len(os.Args) > 2 {
			steps, err = strconv.Atoi(os.Args[2])
			if err != nil || steps <= 0 {
				log.Error("down expects a positive step count", "arg", os.Args[2])
				os.Exit(2)
			}
		}
		err = m.Steps(-steps)
	case "version":
	default:
		log.Error(usage)
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Error("version lookup failed", "err", err)
		os.Exit(1)
	}
	log.Info("migration complete", "version", version, "dirty", dirty)
}
