package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fissura/inspection-be/internal/api/handler"
	"github.com/fissura/inspection-be/internal/api/router"
	"github.com/fissura/inspection-be/internal/config"
	"github.com/fissura/inspection-be/internal/events"
	"github.com/fissura/inspection-be/internal/notify"
	"github.com/fissura/inspection-be/internal/queue"
	"github.com/fissura/inspection-be/shared/logger"
	"github.com/fissura/inspection-be/shared/rabbitmq"
	"github.com/gin-gonic/gin"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger := initLogger(&cfg.Logging)

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Queue store and Job API service
	store := newStore(cfg, appLogger.Logger)
	jobs := queue.NewService(store, appLogger.Logger)

	appLogger.Info("Queue store initialized",
		slog.String("path", cfg.Store.Path),
	)

	// Notification store (noop when unconfigured)
	notifier := notify.NewNotifier(cfg.Notifications.BaseURL, cfg.Notifications.RequestTimeout)

	// Optional job lifecycle event exchange
	publisher, rabbitClient, err := initEvents(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:   appLogger.Logger,
		Jobs:     jobs,
		Notifier: notifier,
		Events:   publisher,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if rabbitClient != nil {
		defer rabbitClient.Close()
	}

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
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

// newStore builds the queue store from config
func newStore(cfg *config.Config, log *slog.Logger) *queue.Store {
	var opts []queue.StoreOption
	if cfg.Store.LockRetries > 0 && cfg.Store.LockRetryInterval > 0 {
		opts = append(opts, queue.WithLockBudget(cfg.Store.LockRetries, cfg.Store.LockRetryInterval))
	}
	return queue.NewStore(cfg.Store.Path, log, opts...)
}

// initEvents builds the lifecycle event publisher, or a noop when the
// broker is disabled
func initEvents(cfg *config.Config, log *slog.Logger) (events.Publisher, *rabbitmq.Client, error) {
	if !cfg.RabbitMQ.Enabled {
		return events.NoopPublisher{}, nil, nil
	}

	client, err := rabbitmq.NewClient(&rabbitmq.Config{
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
	}, log)
	if err != nil {
		return nil, nil, err
	}

	return events.NewAMQPPublisher(client), client, nil
}
