package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/oziev02/pixelflex/internal/config"
	"github.com/oziev02/pixelflex/internal/encoder"
	"github.com/oziev02/pixelflex/internal/gemini"
	"github.com/oziev02/pixelflex/internal/observability"
	"github.com/oziev02/pixelflex/internal/probe"
	"github.com/oziev02/pixelflex/internal/repo"
	"github.com/oziev02/pixelflex/internal/service"
	httptransport "github.com/oziev02/pixelflex/internal/transport/http"
	kafkatransport "github.com/oziev02/pixelflex/internal/transport/kafka"
	"github.com/oziev02/pixelflex/internal/transport/ws"
	"github.com/oziev02/pixelflex/internal/watcher"
	"github.com/redis/go-redis/v9"
)

const release = "pixelflex@1.0.0"

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      repo.BlobRepository
	redis      redis.UniversalClient
	queue      service.QueueService
	hub        *ws.Hub
	producer   kafkatransport.Producer
	inbox      *watcher.Watcher
	httpServer *httptransport.Server
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return nil, err
	}

	// Initialize storage
	store, redisClient, err := initStorage(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Info("blob storage ready", "backend", cfg.Storage.Backend)

	// Initialize collaborators
	gem := NewGeminiClient(cfg, logger)
	var describer service.Describer
	if gem.Enabled() {
		describer = gem
	} else {
		logger.Info("gemini API key not set, enhancement and descriptions are disabled")
	}

	// Initialize event publishers
	hub := ws.NewHub(logger)
	var producer kafkatransport.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafkatransport.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		logger.Info("publishing events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// Initialize services
	processorSvc := service.NewProcessorService(encoder.New(store), gem, logger)
	queueSvc := service.NewQueueService(
		store,
		probe.New(cfg.Image.MaxFileSize),
		processorSvc,
		describer,
		service.NewMultiPublisher(hub, producer),
		cfg,
		logger,
	)

	// Initialize inbox watcher
	var inbox *watcher.Watcher
	if cfg.Inbox.Dir != "" {
		inbox, err = watcher.New(cfg.Inbox.Dir, cfg.Inbox.Debounce, queueSvc, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize inbox: %w", err)
		}
	}

	// Initialize HTTP server
	handler := httptransport.NewHandler(queueSvc, hub, logger, cfg.Server.MaxUploadSize)
	httpServer := httptransport.NewServer(cfg.Server, handler.Routes())

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		redis:      redisClient,
		queue:      queueSvc,
		hub:        hub,
		producer:   producer,
		inbox:      inbox,
		httpServer: httpServer,
	}, nil
}

func (a *App) Start() error {
	a.logger.Info("starting application", "addr", a.httpServer.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.inbox != nil {
		go func() {
			if err := a.inbox.Run(ctx); err != nil {
				a.logger.Error("inbox watcher error", "error", err)
			}
		}()
	}

	// Start HTTP server
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.httpServer.Start()
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
		a.logger.Info("shutting down application")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("http server error: %w", err)
			a.logger.Error("http server error", "error", err)
		}
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	a.queue.Cancel()
	cancel() // Stop inbox watcher

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("failed to shutdown http server: %w", err))
	}
	_ = a.hub.Close()

	// Session data does not outlive the process
	if err := a.queue.Close(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("failed to release session data: %w", err))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("failed to close kafka producer: %w", err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}

	observability.FlushSentry()
	return runErr
}

func initLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Sentry.DSN == "" {
		return observability.NewLogger(level), nil
	}

	if err := observability.InitSentry(cfg.Sentry.DSN, cfg.Sentry.Environment, release); err != nil {
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return observability.NewReportingLogger(level), nil
}

func initStorage(ctx context.Context, cfg *config.Config) (repo.BlobRepository, redis.UniversalClient, error) {
	switch cfg.Storage.Backend {
	case config.StorageFS:
		return repo.NewFilesystemRepository(cfg.Storage.BasePath), nil, nil
	case config.StorageRedis:
		client, err := repo.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return repo.NewRedisRepository(client, cfg.Redis.Namespace, cfg.Redis.TTL), client, nil
	case config.StorageS3:
		client, err := repo.NewS3Client(ctx, repo.S3Options{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, nil, err
		}
		return repo.NewS3Repository(client, cfg.S3.Bucket, cfg.S3.Prefix), nil, nil
	default:
		return repo.NewMemoryRepository(), nil, nil
	}
}

// NewGeminiClient builds the enhancement and description client from cfg.
func NewGeminiClient(cfg *config.Config, logger *slog.Logger) *gemini.Client {
	return gemini.NewClient(gemini.Config{
		APIKey:        cfg.Gemini.APIKey,
		Endpoint:      cfg.Gemini.Endpoint,
		EnhanceModel:  cfg.Gemini.EnhanceModel,
		DescribeModel: cfg.Gemini.DescribeModel,
		Timeout:       cfg.Gemini.Timeout,
	}, logger)
}
