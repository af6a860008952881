package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zapcore"

	"github.com/carewell/recordstore/config"
	"github.com/carewell/recordstore/db"
	"github.com/carewell/recordstore/docstore"
	"github.com/carewell/recordstore/pkg/logger"
)

func main() {
	logger.SetDefault(logger.MustProduction())
	defer logger.SyncDefault()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}
	if logger.ParseLevel(cfg.LogLevel) == zapcore.DebugLevel {
		logger.SetDefault(logger.MustDevelopment())
	}

	engine, err := db.Open(cfg.DataDir,
		db.WithSyncWrites(cfg.SyncWrites),
		db.WithLogger(logger.Default()),
	)
	if err != nil {
		logger.Fatal("failed to open storage engine", "error", err)
	}
	defer engine.Close()

	store, err := docstore.Open(engine,
		docstore.WithLogger(logger.Default()),
		docstore.WithMetrics(docstore.NewMetrics(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		logger.Fatal("failed to open document store", "error", err)
	}
	defer store.Close()

	if err := store.Initialize(ctx); err != nil {
		logger.Fatal("failed to initialize document store", "error", err)
	}

	if cutoff := cfg.RetentionCutoff(time.Now()); cutoff != "" {
		for _, typ := range []docstore.Type{docstore.TypeDailyRecord, docstore.TypeAttendance} {
			if _, err := store.PruneOlderThan(ctx, typ, cutoff); err != nil {
				logger.Default().Warn("retention prune failed",
					"type", string(typ), "error", err)
			}
		}
	}

	logger.Default().Info("record store ready",
		"app", config.APP_NAME,
		"version", config.APP_VERSION,
		"data_dir", cfg.DataDir,
	)

	<-ctx.Done()
	logger.Default().Info("shutting down")
}
