package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"marketnews/internal/adapter/dates"
	"marketnews/internal/adapter/fetcher"
	"marketnews/internal/adapter/parser"
	"marketnews/internal/config"
	"marketnews/internal/domain"
	"marketnews/internal/logger"
	"marketnews/internal/migrations"
	"marketnews/internal/source"
	server "marketnews/internal/transport/http"
	"marketnews/internal/usecase"
	"marketnews/internal/worker"
	"marketnews/storage"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App связывает конфигурацию, хранилище, источники и прогон сбора.
// Без расписания выполняет один прогон; с расписанием работает как
// фоновый процесс с воркером и, при наличии адреса, HTTP API.
type App struct {
	config    *config.Config
	logger    *slog.Logger
	store     storage.Storage
	collector *usecase.Collector
	worker    *worker.Worker
	server    *server.Server
	out       io.Writer
	stopChan  chan os.Signal
}

// New создает приложение по проверенной конфигурации.
// Для postgres подключается к базе и применяет миграции.
func New(cfg *config.Config) (*App, error) {
	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}
	slog.SetDefault(appLogger)
	for _, warning := range cfg.Warnings {
		appLogger.Warn(warning, slog.String("component", "config"))
	}
	store, err := openStore(context.Background(), cfg.Store, appLogger)
	if err != nil {
		return nil, err
	}
	return build(cfg, appLogger, store)
}

// build собирает компоненты поверх открытого хранилища.
func build(cfg *config.Config, log *slog.Logger, store storage.Storage) (*App, error) {
	httpFetcher := fetcher.NewHTTPFetcher(log,
		fetcher.WithTimeout(cfg.Collector.HTTPTimeout),
		fetcher.WithUserAgent(cfg.Collector.UserAgent),
	)
	feedParser := parser.NewFeedParser(log)
	sources := []source.Source{
		source.NewRSS(cfg.Feeds, httpFetcher, feedParser, log),
		source.NewNewsAPI(cfg.NewsAPI.Key, cfg.NewsAPI.Endpoint, httpFetcher, log),
	}
	collector := usecase.NewCollector(sources, store, dates.NewNormalizer(nil), usecase.Options{
		Dedup:           usecase.DedupStrategy(cfg.Collector.DedupStrategy),
		IsolateFailures: cfg.Collector.IsolateFailures,
		StoreTimeout:    cfg.Store.Timeout,
	}, log)
	a := &App{
		config:    cfg,
		logger:    log,
		store:     store,
		collector: collector,
		out:       os.Stdout,
		stopChan:  make(chan os.Signal, 1),
	}
	if cfg.Worker.Schedule == "" {
		return a, nil
	}
	w, err := worker.New(collector, cfg.Worker.Schedule, cfg.Collector.RunTimeout, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.worker = w
	if cfg.Server.Address != "" {
		getter := usecase.NewNewsGetterUseCase(store)
		a.server = server.NewServer(cfg.Server.Address, log, server.NewHandler(log, getter, w))
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (storage.Storage, error) {
	switch cfg.Backend {
	case config.BackendSupabase:
		return storage.NewSupabaseNewsDB(cfg.SupabaseURL, cfg.SupabaseKey, cfg.Timeout, log), nil
	case config.BackendSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return db, nil
	case config.BackendPostgres:
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
		if err := migrations.Apply(ctx, log, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		return storage.NewPostgresNewsDB(pool, log), nil
	default:
		return nil, &domain.ConfigurationError{Field: "STORE_BACKEND", Reason: fmt.Sprintf("has unknown value %q", cfg.Backend)}
	}
}

// Run выполняет один прогон или, если задано расписание, работает до сигнала завершения.
func (a *App) Run() error {
	if a.worker == nil {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		_, err := a.RunOnce(ctx)
		return err
	}
	return a.serve()
}

// RunOnce выполняет один прогон и печатает итог. Итог печатается и при ошибке.
func (a *App) RunOnce(ctx context.Context) (domain.Summary, error) {
	a.logger.Info("Starting collection pass",
		slog.String("component", "app"),
		slog.String("store", a.config.Store.Backend),
		slog.Int("feed_count", len(a.config.Feeds)),
		slog.Bool("newsapi", a.config.NewsAPI.Key != ""),
	)
	if a.config.Collector.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Collector.RunTimeout)
		defer cancel()
	}
	summary, err := a.collector.Run(ctx)
	PrintSummary(a.out, summary, err)
	return summary, err
}

func (a *App) serve() error {
	a.logger.Info("Starting scheduled collector",
		slog.String("component", "app"),
		slog.String("schedule", a.config.Worker.Schedule),
		slog.String("listen", a.config.Server.Address),
	)
	errCh := make(chan error, 1)
	a.worker.Start()
	if a.server != nil {
		a.server.Start(errCh)
	}
	signal.Notify(a.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(a.stopChan)
	var runErr error
	select {
	case sig := <-a.stopChan:
		a.logger.Info("Shutdown signal received",
			slog.String("component", "app"),
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		a.logger.Error("HTTP server failed", slog.String("component", "app"), slog.Any("error", err))
		runErr = fmt.Errorf("http server: %w", err)
	}
	return errors.Join(runErr, a.Shutdown())
}

// Shutdown останавливает воркер и HTTP-сервер.
func (a *App) Shutdown() error {
	a.logger.Info("Starting graceful shutdown", slog.String("component", "app"))
	if a.worker != nil {
		a.worker.Stop()
	}
	if a.server != nil {
		if err := a.server.Shutdown(10 * time.Second); err != nil {
			a.logger.Error("HTTP server shutdown failed", slog.Any("error", err))
			return err
		}
	}
	a.logger.Info("Application stopped gracefully", slog.String("component", "app"))
	return nil
}

// Close освобождает хранилище.
func (a *App) Close() {
	if a.store != nil {
		a.store.Close()
	}
}
