package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fissura/inspection-be/internal/config"
	"github.com/fissura/inspection-be/internal/events"
	"github.com/fissura/inspection-be/internal/inference"
	"github.com/fissura/inspection-be/internal/notify"
	"github.com/fissura/inspection-be/internal/queue"
	"github.com/fissura/inspection-be/internal/results"
	"github.com/fissura/inspection-be/internal/worker"
	"github.com/fissura/inspection-be/shared/logger"
	"github.com/fissura/inspection-be/shared/postgresql"
	"github.com/fissura/inspection-be/shared/rabbitmq"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger := initLogger(&cfg.Logging)

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Queue store
	var storeOpts []queue.StoreOption
	if cfg.Store.LockRetries > 0 && cfg.Store.LockRetryInterval > 0 {
		storeOpts = append(storeOpts, queue.WithLockBudget(cfg.Store.LockRetries, cfg.Store.LockRetryInterval))
	}
	store := queue.NewStore(cfg.Store.Path, appLogger.Logger, storeOpts...)

	// Inference backends
	primary := inference.NewClient(&inference.Config{
		Name:      "primary",
		BaseURL:   cfg.Backends.Primary.BaseURL,
		SecretKey: cfg.Backends.Primary.SecretKey,
		Timeout:   cfg.Backends.RequestTimeout,
		Logger:    appLogger.Logger,
	})
	secondary := inference.NewClient(&inference.Config{
		Name:      "secondary",
		BaseURL:   cfg.Backends.Secondary.BaseURL,
		SecretKey: cfg.Backends.Secondary.SecretKey,
		Timeout:   cfg.Backends.RequestTimeout,
		Logger:    appLogger.Logger,
	})

	// Notification store (noop when unconfigured)
	notifier := notify.NewNotifier(cfg.Notifications.BaseURL, cfg.Notifications.RequestTimeout)

	// Optional analysis result sink
	var sink results.Sink = results.NoopSink{}
	var dbClient *postgresql.Client
	if cfg.Database.Enabled {
		dbClient, err = postgresql.NewClient(&postgresql.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		sink = results.NewStore(dbClient, appLogger.Logger)

		appLogger.Info("Database connection established")
	}

	// Optional job lifecycle event exchange
	var publisher events.Publisher = events.NoopPublisher{}
	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = rabbitmq.NewClient(&rabbitmq.Config{
			Host:              cfg.RabbitMQ.Host,
			Port:              cfg.RabbitMQ.Port,
			User:              cfg.RabbitMQ.User,
			Password:          cfg.RabbitMQ.Password,
			VHost:             cfg.RabbitMQ.VHost,
			ExchangeName:      cfg.RabbitMQ.Exchange.Name,
			ExchangeType:      cfg.RabbitMQ.Exchange.Type,
			ExchangeDurable:   cfg.RabbitMQ.Exchange.Durable,
			RetryAttempts:     cfg.RabbitMQ.Connection.RetryAttempts,
			RetryInterval:     cfg.RabbitMQ.Connection.RetryInterval,
			Heartbeat:         cfg.RabbitMQ.Connection.Heartbeat,
			ConnectionTimeout: cfg.RabbitMQ.Connection.ConnectionTimeout,
		}, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		publisher = events.NewAMQPPublisher(rabbitClient)

		appLogger.Info("RabbitMQ connection established")
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:       appLogger.Logger,
		Store:        store,
		Primary:      primary,
		Secondary:    secondary,
		Fetcher:      inference.NewFetcher(cfg.Backends.RequestTimeout),
		Notifier:     notifier,
		Results:      sink,
		Events:       publisher,
		PollInterval: cfg.Worker.PollInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop the polling loop
	cancel()

	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) *logger.Logger {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}
