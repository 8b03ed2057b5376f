package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/catalog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/deadline"
	"github.com/stemsi/exstem-engine/internal/execution"
	"github.com/stemsi/exstem-engine/internal/handler"
	"github.com/stemsi/exstem-engine/internal/judge"
	"github.com/stemsi/exstem-engine/internal/logger"
	"github.com/stemsi/exstem-engine/internal/repository"
	"github.com/stemsi/exstem-engine/internal/router"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/validator"
	"github.com/stemsi/exstem-engine/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreBackend).
		Str("judge", cfg.JudgeTransport).
		Bool("reporting", cfg.ReportingEnabled).
		Msg("Starting ExStem exam engine")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	mode, err := scoring.ParseMode(cfg.ScoringMode)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid SCORING_MODE")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Backing Services ───────────────────────────────────
	conns := connect(ctx, cfg, log)
	defer conns.close()

	// ─── Storage ───────────────────────────────────────────────────────
	var kv repository.KV
	switch cfg.StoreBackend {
	case config.StoreRedis:
		kv = repository.NewRedisKV(conns.rdb)
	case config.StorePostgres:
		kv = repository.NewPostgresKV(conns.pool)
	case config.StoreMemory:
		kv = repository.NewMemoryKV()
		log.Warn().Msg("Using in-memory store, attempt history is lost on restart")
	default:
		log.Fatal().Str("store", cfg.StoreBackend).Msg("Unknown STORE_BACKEND")
	}

	history, err := repository.NewAttemptRepository(kv, cfg.UserID, cfg.StoreCompress)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create attempt repository")
	}

	// ─── Catalog & Judge ───────────────────────────────────────────────
	var source catalog.Source = catalog.NewHTTPSource(cfg.CatalogURL, cfg.CatalogTimeout)
	if cfg.CatalogFile != "" {
		source = catalog.NewFileSource(cfg.CatalogFile)
	}
	source = catalog.NewCachedSource(source, kv, log)

	var judgeClient execution.Judge
	switch cfg.JudgeTransport {
	case config.JudgeNATS:
		judgeClient = judge.NewNATSClient(conns.nc, cfg.JudgeSubject)
	case config.JudgeHTTP:
		judgeClient = judge.NewHTTPClient(cfg.JudgeURL, cfg.JudgeTimeout)
	default:
		log.Fatal().Str("judge", cfg.JudgeTransport).Msg("Unknown JUDGE_TRANSPORT")
	}

	// ─── Reporting Workers ─────────────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	var (
		reporter service.Reporter
		queues   handler.QueueStats
	)
	if cfg.ReportingEnabled {
		queue := worker.NewQueue(conns.rdb)
		reporter, queues = queue, queue

		violationWorker := worker.NewViolationWorker(conns.pool, conns.rdb, log)
		resultWorker := worker.NewResultWorker(conns.pool, conns.rdb, log)
		workers.Add(2)
		go func() { defer workers.Done(); violationWorker.Start(workerCtx) }()
		go func() { defer workers.Done(); resultWorker.Start(workerCtx) }()
	}

	// ─── Session Store ─────────────────────────────────────────────────
	store := service.NewSessionStore(service.StoreDeps{
		Catalog:      source,
		History:      history,
		Judge:        judgeClient,
		JudgeTimeout: cfg.JudgeTimeout,
		Scoring:      scoring.NewEngine(mode),
		Reporter:     reporter,
		Clock:        deadline.SystemClock{},
		UserID:       cfg.UserID,
		WarnAt:       cfg.WarningThreshold,
		Log:          log,
	})

	// Load the catalog and history BEFORE accepting traffic.
	if err := store.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize session store")
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Health:  handler.NewHealthHandler(store, queues, log),
		Exam:    handler.NewExamHandler(store, log),
		Attempt: handler.NewAttemptHandler(store, log),
		Results: handler.NewResultsHandler(store),
		WS:      handler.NewWSHandler(store, log, cfg.AllowedOrigins),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. An attempt still running cannot outlive the process. A submission
	// already finalizing is allowed to finish writing history.
	teardownCtx, teardownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer teardownCancel()
	_ = store.Teardown(teardownCtx)

	// 3. Stop background workers and wait for their final flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
