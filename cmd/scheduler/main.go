package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/clinic-scheduler/internal/application"
	"github.com/example/clinic-scheduler/internal/calendarsync"
	"github.com/example/clinic-scheduler/internal/config"
	httptransport "github.com/example/clinic-scheduler/internal/http"
	"github.com/example/clinic-scheduler/internal/jobs"
	"github.com/example/clinic-scheduler/internal/persistence/sqlite"
	"github.com/example/clinic-scheduler/internal/recurrence"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("scheduler stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	storage, err := sqlite.Open(sqlite.DefaultConfig(cfg.SQLiteDSN))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := storage.Migrate(ctx, logger); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	app := newApp(cfg, storage, time.Now, logger)
	if err := app.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start calendar sync: %w", err)
	}
	if err := app.refresher.Start(ctx); err != nil {
		return fmt.Errorf("start generation refresher: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("scheduler API listening", "addr", server.Addr,
		"months_ahead", cfg.MonthsAhead,
		"generation_cron", cfg.GenerationCron,
	)
	serveErr := server.ListenAndServe()
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := app.shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop background workers", "error", err)
	}
	return serveErr
}

// app holds the wired components that outlive a single request.
type app struct {
	handler    http.Handler
	dispatcher *calendarsync.Dispatcher
	refresher  *jobs.GenerationRefresher
}

func newApp(cfg config.Config, storage *sqlite.Storage, now func() time.Time, logger *slog.Logger) *app {
	idGenerator := uuid.NewString

	var adapter calendarsync.Adapter = calendarsync.NewLogAdapter(logger)
	if cfg.SyncWebhookURL != "" {
		adapter = calendarsync.NewWebhookAdapter(cfg.SyncWebhookURL, nil, now)
	}
	dispatcher := calendarsync.NewDispatcher(adapter, cfg.SyncQueueSize, logger)

	seriesRepo := newSeriesRepositoryAdapter(storage.Series)
	occurrenceRepo := newOccurrenceRepositoryAdapter(storage.Occurrences)
	engine := recurrence.NewEngine(cfg.Policy())

	generator := application.NewGenerationServiceWithLogger(
		seriesRepo,
		occurrenceRepo,
		engine,
		dispatcher,
		application.GenerationSettings{
			MonthsAhead: cfg.MonthsAhead,
			Ceiling:     time.Duration(cfg.HardCeilingDays) * 24 * time.Hour,
		},
		idGenerator,
		now,
		logger,
	)
	seriesService := application.NewSeriesServiceWithLogger(seriesRepo, occurrenceRepo, generator, dispatcher, idGenerator, now, logger)
	ruleService := application.NewRuleService(engine, now, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Series: httptransport.NewSeriesHandler(seriesService, now, logger),
		Rules:  httptransport.NewRuleHandler(ruleService, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Recoverer(logger),
		},
	})

	return &app{
		handler:    router,
		dispatcher: dispatcher,
		refresher:  jobs.NewGenerationRefresher(generator, cfg.GenerationCron, cfg.GenerationTimeout, logger),
	}
}

// shutdown stops the refresher before the dispatcher it publishes into.
func (a *app) shutdown(ctx context.Context) error {
	return errors.Join(
		a.refresher.Stop(ctx),
		a.dispatcher.Close(ctx),
	)
}
