package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dkozlov-dev/barberdesk/libs/config"
	"github.com/dkozlov-dev/barberdesk/libs/db"
	"github.com/dkozlov-dev/barberdesk/libs/httpx"
	"github.com/dkozlov-dev/barberdesk/libs/kafkax"
	otelx "github.com/dkozlov-dev/barberdesk/libs/otel"
	"github.com/dkozlov-dev/barberdesk/libs/runtime"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/configcache"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/consumer"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/engine"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/handlers"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/inbox"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/outbox"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "availability-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 2)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	cache := configcache.New(repo)
	eng := engine.New(repo, cache, outbox.NewNotifier(outboxRepo), logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	// Owner tooling publishes shop.config.updated.v1 after editing policies
	// or capacity bands; consuming it keeps the cache fresh without polling.
	if topic := strings.TrimSpace(config.String("KAFKA_CONSUME_TOPIC", "shop.config.updated.v1")); topic != "" {
		inboxRepo := inbox.NewRepository(pool)
		configConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "availability-service"),
			Topic:   topic,
		}, func(ctx context.Context, msg kafka.Message) error {
			var payload struct {
				ShopID string `json:"shop_id"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil || payload.ShopID == "" {
				logger.Error("invalid config event payload", "topic", msg.Topic)
				return nil
			}
			cache.Invalidate(payload.ShopID)
			logger.Info("shop config cache invalidated by event", "shop_id", payload.ShopID)
			return nil
		})
		go configConsumer.Run(ctx)
	}

	availabilityHandler := handlers.NewAvailabilityHandler(eng, logger).
		WithIdempotency(repo).
		WithEvents(outboxRepo)
	adminHandler := handlers.NewAdminHandler(cache, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/availability", availabilityHandler.Query)
	mux.HandleFunc("/api/v1/bookings", availabilityHandler.CreateBooking)
	mux.HandleFunc("/api/v1/bookings/cancel", availabilityHandler.CancelBooking)
	mux.HandleFunc("/api/v1/appointments", availabilityHandler.ListAppointments)
	mux.HandleFunc("/api/v1/admin/config/invalidate", adminHandler.InvalidateConfig)

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, isTruthy(config.String("RATE_LIMIT_FAIL_OPEN", "true")))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,Idempotency-Key")),
			MaxAge:         config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
		rateLimitMW,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}


func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTruthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true
	}
	return false
}
