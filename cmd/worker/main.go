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
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/grocery-fulfillment/internal/config"
	"github.com/joao-fontenele/grocery-fulfillment/internal/messaging"
	"github.com/joao-fontenele/grocery-fulfillment/internal/telemetry"
	"github.com/joao-fontenele/grocery-fulfillment/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to read .env", "error", err)
	}
	cfg := config.Load(logger)

	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, cfg.ServiceName+"-worker", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, cfg.StatusTopic, cfg.WorkerGroup,
		messaging.WithLogger(logger),
		messaging.WithRetry(3, time.Second),
	)
	defer func() { _ = consumer.Close() }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	if cfg.NotifyURL == "" {
		logger.Warn("NOTIFY_URL not set, notifications are only logged")
	}
	notificationHandler := worker.NewNotificationHandler(cfg.NotifyURL, httpClient, logger)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notification worker", "brokers", cfg.KafkaBrokers, "topic", cfg.StatusTopic)

	if err := consumer.Consume(ctx, notificationHandler.Handle); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
