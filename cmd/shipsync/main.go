package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/metscube/shipsync/internal/alert"
	"github.com/metscube/shipsync/internal/archive"
	"github.com/metscube/shipsync/internal/checkpoint"
	"github.com/metscube/shipsync/internal/config"
	"github.com/metscube/shipsync/internal/exporter"
	"github.com/metscube/shipsync/internal/lock"
	"github.com/metscube/shipsync/internal/logging"
	"github.com/metscube/shipsync/internal/logstore"
	"github.com/metscube/shipsync/internal/metrics"
	"github.com/metscube/shipsync/internal/refdata"
	"github.com/metscube/shipsync/internal/sheet"
	"github.com/metscube/shipsync/internal/shipstation"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

const runLockKey = "shipsync:run:lock"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		mode       = flag.String("mode", "normal", "run mode: normal | backfill")
		fromStr    = flag.String("from", "", "backfill range start (YYYY-MM-DD)")
		toStr      = flag.String("to", "", "backfill range end (YYYY-MM-DD, exclusive)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		slog.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	// Postgres carries the reference tables and the durable log mirror.
	var pool *pgxpool.Pool
	var mirror logging.Mirror
	if cfg.Postgres.DSN != "" {
		pool, err = pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
			return 1
		}
		defer pool.Close()

		logStore, err := logstore.New(ctx, pool, Version)
		if err != nil {
			fmt.Fprintf(os.Stderr, "init log store: %v\n", err)
			return 1
		}
		mirror = logStore
	}

	logging.Setup(logging.Config(cfg.Logging), mirror)
	slog.Info("shipsync starting", "version", Version, "git_sha", GitSHA, "mode", *mode)

	if cfg.Metrics.Enabled {
		metrics.Init("shipsync")
		go func() {
			if err := metrics.StartServer(metrics.Config(cfg.Metrics)); err != nil {
				slog.Error("metrics server exited", "error", err)
			}
		}()
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	store, err := sheet.NewStore(sheet.Config{
		Backend:   cfg.Sheet.Backend,
		LocalPath: cfg.Sheet.LocalPath,
		BucketURL: cfg.Sheet.BucketURL,
		ObjectKey: cfg.Sheet.ObjectKey,
	})
	if err != nil {
		slog.Error("open sheet store", "error", err)
		return 1
	}
	defer store.Close()

	archiver, err := archive.New(ctx, cfg.Archive, Version)
	if err != nil {
		slog.Error("open archive", "error", err)
		return 1
	}
	defer archiver.Close()

	deps := exporter.Deps{
		API:       shipstation.New(cfg.API),
		RefSource: refdata.NewSource(pool),
		Sheet:     store,
		Checkpoint: checkpoint.NewManager(checkpoint.Config{
			Enabled: *mode == "backfill",
			TTL:     7 * 24 * time.Hour,
		}, rdb),
		Redis:    rdb,
		Archiver: archiver,
		Notifier: alert.New(cfg.Alert.WebhookURL),
	}
	if rdb != nil {
		deps.Locker = lock.NewLocker(rdb, runLockKey, cfg.Run.MaxExecution)
		deps.Props = refdata.NewProperties(rdb)
	}

	e := exporter.New(cfg, deps)

	var summary exporter.Summary
	switch *mode {
	case "normal":
		summary = e.RunNormal(ctx)
	case "backfill":
		from, to, err := parseRange(*fromStr, *toStr)
		if err != nil {
			slog.Error("invalid backfill range", "error", err)
			return 1
		}
		summary = e.RunBackfill(ctx, from, to)
	default:
		slog.Error("unknown mode", "mode", *mode)
		return 1
	}

	switch summary.State {
	case exporter.StateFailed:
		return 1
	case exporter.StatePaused:
		slog.Info("run paused, reinvoke to continue")
	}
	return 0
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("-from and -to are required for backfill")
	}
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse -from: %w", err)
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse -to: %w", err)
	}
	return from.UTC(), to.UTC(), nil
}
