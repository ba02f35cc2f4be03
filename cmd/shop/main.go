package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/grocery-fulfillment/internal/catalog"
	"github.com/joao-fontenele/grocery-fulfillment/internal/config"
	"github.com/joao-fontenele/grocery-fulfillment/internal/fulfillment"
	"github.com/joao-fontenele/grocery-fulfillment/internal/messaging"
	"github.com/joao-fontenele/grocery-fulfillment/internal/orders"
	"github.com/joao-fontenele/grocery-fulfillment/internal/recipe"
	"github.com/joao-fontenele/grocery-fulfillment/internal/shop"
	"github.com/joao-fontenele/grocery-fulfillment/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to read .env", "error", err)
	}
	cfg := config.Load(logger)

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	var (
		db         *sql.DB
		items      catalog.Store
		orderStore orders.Store
	)
	if cfg.PostgresURL != "" {
		db, err = telemetry.OpenDB(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		catalogRepo := catalog.NewCatalogRepository(db)
		seeded, err := catalogRepo.Seed(ctx, catalog.DefaultItems())
		if err != nil {
			logger.Error("failed to seed catalog", "error", err)
			os.Exit(1)
		}
		if seeded {
			logger.Info("seeded default catalog")
		}
		items = catalogRepo
		orderStore = orders.NewOrderRepository(db)
	} else {
		logger.Warn("POSTGRES_URL not set, orders are kept in memory")
		items = catalog.NewMemoryStore(catalog.DefaultItems())
		orderStore = orders.NewMemoryRepository()
	}

	if cfg.RedisAddr != "" {
		rdb := orders.NewRedisClient(cfg.RedisAddr)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, status cache may miss", "error", err, "addr", cfg.RedisAddr)
		}
		orderStore = orders.NewCachingStore(orderStore, orders.NewStatusCache(rdb, orders.TTLStatusCache), logger)
	}

	var schedOpts []fulfillment.Option
	var svcOpts []shop.ServiceOption
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.StatusTopic)
		defer func() { _ = producer.Close() }()
		schedOpts = append(schedOpts, fulfillment.WithPublisher(producer))
		svcOpts = append(svcOpts, shop.WithPublisher(producer))
	}
	svcOpts = append(svcOpts, shop.WithHistoryLimit(cfg.HistoryLimit))

	scheduler := fulfillment.NewScheduler(orderStore, cfg.FulfillmentStep, logger, schedOpts...)
	if _, err := scheduler.Resume(ctx); err != nil {
		logger.Error("failed to resume in-flight orders", "error", err)
	}

	service := shop.NewService(orderStore, scheduler, logger, svcOpts...)
	sessions := shop.NewSessions(items, recipe.NewResolver(items), service, logger)
	handler := shop.NewHandler(sessions, service, logger)

	expiryCtx, stopExpiry := context.WithCancel(ctx)
	defer stopExpiry()
	go sessions.RunExpiry(expiryCtx, time.Minute, cfg.SessionIdle)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, cfg.ServiceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting shop service", "port", cfg.Port, "fulfillment_step", cfg.FulfillmentStep)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	scheduler.Stop()
}
