package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iago/reportflow/internal/config"
	"github.com/iago/reportflow/internal/delivery"
	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/exporter"
	httpserver "github.com/iago/reportflow/internal/http"
	"github.com/iago/reportflow/internal/http/handlers"
	"github.com/iago/reportflow/internal/http/middleware"
	"github.com/iago/reportflow/internal/metrics"
	"github.com/iago/reportflow/internal/queue"
	"github.com/iago/reportflow/internal/repository"
	"github.com/iago/reportflow/internal/scheduler"
	"github.com/iago/reportflow/internal/service"
	"github.com/iago/reportflow/internal/storage"
	"github.com/iago/reportflow/internal/worker"
)

const backlogSampleInterval = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "reportflow: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reportflow: build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("reportflow stopped", zap.Error(err))
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	events := service.FanOut(service.NewLogEventSink(logger), m)

	repos := setupRepositories(ctx, cfg, logger)
	defer repos.close()

	jobs := setupQueue(ctx, cfg, logger)
	defer jobs.close()

	store, err := storage.NewLocalStore(cfg.Storage.Dir, cfg.Storage.PublicBaseURL, logger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	reports := service.NewReportService(repos.reports, events)
	templates := service.NewTemplateService(repos.templates, reports, events)
	schedules := service.NewScheduleService(repos.schedules, repos.reports, events)
	exports := service.NewExportService(repos.exports, repos.reports, queue.NewClient(jobs.producer, jobs.cancels), events).
		WithExecutionRecorder(schedules)

	closeRenderers := func() {}
	defer func() { closeRenderers() }()

	var background sync.WaitGroup
	defer background.Wait()
	goBackground := func(fn func()) {
		background.Add(1)
		go func() {
			defer background.Done()
			fn()
		}()
	}

	if cfg.Worker.Enabled {
		var renderers *exporter.Registry
		renderers, closeRenderers = setupRenderers(cfg.Renderer, logger)
		processor := worker.NewProcessor(worker.Dependencies{
			Consumer:  jobs.consumer,
			Exports:   exports,
			Schedules: schedules,
			Reports:   repos.reports,
			Renderer:  renderers,
			Store:     store,
			Deliverer: setupDelivery(cfg.Delivery, logger),
			Metrics:   m,
			Logger:    logger,
		})
		goBackground(func() { processor.Start(ctx) })
		logger.Info("export worker started")
	} else {
		logger.Info("export worker disabled by configuration")
	}

	if cfg.Dispatcher.Enabled {
		dispatcher := scheduler.NewDispatcher(schedules, exports, scheduler.Config{
			Interval:        cfg.Dispatcher.Interval,
			BatchSize:       cfg.Dispatcher.BatchSize,
			RedispatchAfter: cfg.Dispatcher.RedispatchAfter,
			Logger:          logger,
			Metrics:         m,
		})
		goBackground(func() { dispatcher.Start(ctx) })
		logger.Info("schedule dispatcher started", zap.Duration("interval", cfg.Dispatcher.Interval))
	}

	goBackground(func() { m.WatchQueueBacklog(ctx, backlogSampleInterval, jobs.backlog.Backlog) })

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	goBackground(func() { limiter.Run(ctx) })

	checks := map[string]handlers.ReadinessCheck{"queue": jobs.ping}
	if repos.ping != nil {
		checks["database"] = repos.ping
	}
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API: handlers.NewAPI(handlers.Dependencies{
			Reports:         reports,
			Templates:       templates,
			Schedules:       schedules,
			Exports:         exports,
			ReadinessChecks: checks,
			Logger:          logger,
		}),
		Logger:      logger,
		Metrics:     m,
		RateLimiter: limiter,
		AuthToken:   cfg.Auth.Token,
		CORSOrigins: cfg.Server.AllowedOrigins,
		FilesDir:    cfg.Storage.Dir,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", server.Addr))
		errChan <- server.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server: %w", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return serveErr
}

type repositories struct {
	reports   repository.ReportRepository
	templates repository.TemplateRepository
	schedules repository.ScheduledReportRepository
	exports   repository.ExportJobRepository
	ping      handlers.ReadinessCheck
	close     func()
}

func memoryRepositories() repositories {
	return repositories{
		reports:   repository.NewMemoryReportRepository(),
		templates: repository.NewMemoryTemplateRepository(),
		schedules: repository.NewMemoryScheduledReportRepository(),
		exports:   repository.NewMemoryExportJobRepository(),
		close:     func() {},
	}
}

func setupRepositories(ctx context.Context, cfg config.Config, logger *zap.Logger) repositories {
	if cfg.Database.URL == "" {
		logger.Info("database url not configured, using in-memory repositories")
		return memoryRepositories()
	}

	pool, err := repository.NewPostgresPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to initialize postgres, falling back to memory", zap.Error(err))
		return memoryRepositories()
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply schema, falling back to memory", zap.Error(err))
		pool.Close()
		return memoryRepositories()
	}
	logger.Info("postgres repositories initialized")
	return repositories{
		reports:   repository.NewPostgresReportRepository(pool),
		templates: repository.NewPostgresTemplateRepository(pool),
		schedules: repository.NewPostgresScheduledReportRepository(pool),
		exports:   repository.NewPostgresExportJobRepository(pool),
		ping:      pool.Ping,
		close:     pool.Close,
	}
}

type jobQueue struct {
	producer queue.Producer
	consumer queue.Consumer
	cancels  queue.CancelRegistry
	backlog  queue.BacklogReporter
	ping     handlers.ReadinessCheck
	close    func()
}

func setupQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) jobQueue {
	var jobs jobQueue
	if cfg.Redis.Addr != "" {
		streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			Stream:      cfg.Redis.Stream,
			DLQStream:   cfg.Redis.DLQStream,
			CancelSet:   cfg.Redis.CancelSet,
			Group:       cfg.Redis.Group,
			Consumer:    cfg.Redis.Consumer,
			MaxAttempts: cfg.Redis.MaxAttempts,
		}, logger)
		if err == nil {
			logger.Info("redis streams queue initialized", zap.String("stream", cfg.Redis.Stream))
			jobs = jobQueue{
				producer: streams,
				consumer: streams,
				cancels:  streams,
				backlog:  streams,
				ping:     streams.Ping,
				close:    func() { _ = streams.Close() },
			}
		} else {
			logger.Error("failed to initialize redis streams queue, falling back to local", zap.Error(err))
		}
	} else {
		logger.Info("redis address not configured, using local queue")
	}

	if jobs.producer == nil {
		local := queue.NewLocalQueue(cfg.Queue.BufferSize, cfg.Redis.MaxAttempts, logger)
		jobs = jobQueue{
			producer: local,
			consumer: local,
			cancels:  local,
			backlog:  local,
			ping:     func(context.Context) error { return nil },
			close:    func() {},
		}
	}

	if !cfg.Queue.BatchingEnabled {
		return jobs
	}
	batching := queue.NewBatchingProducer(ctx, jobs.producer, queue.BatchingConfig{
		MaxBatchSize:       cfg.Queue.BatchSize,
		FlushInterval:      cfg.Queue.BatchFlushInterval,
		FlushTimeout:       cfg.Queue.BatchFlushTimeout,
		QueueCapacity:      cfg.Queue.BatchQueueCapacity,
		MaxInFlightBatches: cfg.Queue.BatchMaxInFlight,
		Logger:             logger,
	})
	baseClose := jobs.close
	jobs.producer = batching
	jobs.close = func() {
		batching.Close()
		baseClose()
	}
	logger.Info("queue batching enabled",
		zap.Int("batch_size", cfg.Queue.BatchSize),
		zap.Duration("flush_interval", cfg.Queue.BatchFlushInterval),
		zap.Int("queue_capacity", cfg.Queue.BatchQueueCapacity),
		zap.Int("max_in_flight", cfg.Queue.BatchMaxInFlight),
	)
	return jobs
}

func setupRenderers(cfg config.RendererConfig, logger *zap.Logger) (*exporter.Registry, func()) {
	if !cfg.ChromeEnabled {
		logger.Info("chrome renderer disabled; PDF and PNG exports will fail")
		return exporter.NewRegistry(nil), func() {}
	}
	chrome := exporter.NewChromeRenderer(exporter.ChromeConfig{
		Headless: true,
		ExecPath: cfg.ChromePath,
		Timeout:  cfg.Timeout,
	}, logger)
	return exporter.NewRegistry(chrome), chrome.Close
}

func setupDelivery(cfg config.DeliveryConfig, logger *zap.Logger) *delivery.Router {
	router := delivery.NewRouter(logger)
	router.Register(domain.DeliveryMethodWebhook, delivery.NewWebhookSender(delivery.WebhookConfig{
		Timeout:          cfg.WebhookTimeout,
		FailureThreshold: cfg.WebhookThreshold,
	}, logger))
	if cfg.SMTPAddr != "" {
		router.Register(domain.DeliveryMethodEmail, delivery.NewEmailSender(delivery.EmailConfig{
			Addr:     cfg.SMTPAddr,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}))
	} else {
		logger.Info("smtp not configured; email deliveries will fail")
	}
	return router
}
