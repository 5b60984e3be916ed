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

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/conorfennell/benkyo/internal/api"
	"github.com/conorfennell/benkyo/internal/cacheconn"
	"github.com/conorfennell/benkyo/internal/config"
	"github.com/conorfennell/benkyo/internal/scheduler"
	"github.com/conorfennell/benkyo/internal/session"
	"github.com/conorfennell/benkyo/internal/sessioncache"
	"github.com/conorfennell/benkyo/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load .env (if present), flags, and the merged configuration.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}

	fs := flag.NewFlagSet("benkyo", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	fs.String("server.addr", "", "HTTP listen address")
	fs.String("database.url", "", "Postgres connection URL")
	fs.String("cache.url", "", "Redis connection URL")
	fs.Int("study.limit", 0, "Maximum items per study session")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the durable store.
	store, err := storage.Open(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("database ready")

	// 3. Wire the cache, the scheduler, and the orchestrator.
	cacheMgr := cacheconn.NewManager(cfg.Cache.URL, logger)
	defer cacheMgr.Release()

	svc := session.NewService(store, sessioncache.New(cacheMgr), scheduler.NewEngine(), logger)
	if cfg.Study.Limit > 0 {
		svc.StudyLimit = cfg.Study.Limit
	}

	// 4. Serve until interrupted, then drain.
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewServer(svc, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
