package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	apporder "github.com/Zhima-Mochi/payflow/internal/application/order"
	apppayment "github.com/Zhima-Mochi/payflow/internal/application/payment"
	"github.com/Zhima-Mochi/payflow/internal/config"
	domexchange "github.com/Zhima-Mochi/payflow/internal/domain/exchange"
	domorder "github.com/Zhima-Mochi/payflow/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/payflow/internal/domain/payment"
	infraexchange "github.com/Zhima-Mochi/payflow/internal/infrastructure/exchange"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/gateway/bitcoin"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/gateway/monero"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/gateway/wallet"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/id"
	infrakafka "github.com/Zhima-Mochi/payflow/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/notify"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/postgres"
	infraredis "github.com/Zhima-Mochi/payflow/internal/infrastructure/redis"
	httppresentation "github.com/Zhima-Mochi/payflow/internal/presentation/http"
	domoutbox "github.com/Zhima-Mochi/payflow/internal/domain/outbox"
	"github.com/Zhima-Mochi/payflow/internal/observability"
)

const gatewayTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	serviceName := getenvDefault("SERVICE_NAME", "payflow")
	env := getenvDefault("ENV", "dev")
	baseLogger := zaplogger.New(
		observability.F("service", serviceName),
		observability.F("env", env),
	)

	counters, histograms := buildMetrics()
	tel := telemetry.New(oteltrace.New(serviceName), baseLogger, counters, histograms)
	sysLog := tel.Logger().With(observability.F("component", "main"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence: in-memory by default, PostgreSQL when DATABASE_URL is set.
	var (
		orderRepo   domorder.Repository
		paymentRepo dompayment.Repository
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			sysLog.Error("postgres_open_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			sysLog.Error("postgres_ping_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		pgOrders := postgres.NewOrderRepository(db)
		pgPayments := postgres.NewPaymentRepository(db)
		if err := pgOrders.Migrate(ctx); err != nil {
			sysLog.Error("postgres_migrate_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		if err := pgPayments.Migrate(ctx); err != nil {
			sysLog.Error("postgres_migrate_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		orderRepo, paymentRepo = pgOrders, pgPayments
		sysLog.Info("storage_ready", observability.F("backend", "postgres"))
	} else {
		orderRepo, paymentRepo = memory.NewOrderRepository(), memory.NewPaymentRepository()
		sysLog.Info("storage_ready", observability.F("backend", "memory"))
	}

	// Exchange rates: HTTP source behind a TTL cache (Redis when configured).
	var rateCache domexchange.Cache = infraexchange.NewMemoryCache()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			sysLog.Error("redis_url_invalid", observability.F("error", err.Error()))
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		rateCache = infraredis.NewRateCache(client, cfg.RateStaleness)
		sysLog.Info("rate_cache_ready", observability.F("backend", "redis"))
	}
	rateSource := infraexchange.NewHTTPSource(cfg.ExchangeBaseURL, cfg.ExchangeAPIKey, gatewayTimeout, tel)
	rates := infraexchange.NewCachedProvider(rateSource, rateCache, cfg.RateTTL, cfg.RateStaleness, tel)

	// Event fanout: in-process bus, mirrored to Kafka when brokers exist.
	bus := outbox.NewBus(tel.Logger())
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	var publisher domoutbox.Publisher = bus
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub := infrakafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, tel.Logger())
		defer kafkaPub.Close()
		publisher = outbox.MultiPublisher{bus, kafkaPub}
		sysLog.Info("kafka_mirror_ready", observability.F("topic", cfg.KafkaTopic))
	}

	adapters := []apppayment.GatewayAdapter{
		wallet.New(wallet.Config{
			BaseURL:       cfg.Wallet.BaseURL,
			APIKey:        cfg.Wallet.APIKey,
			WebhookSecret: cfg.Wallet.WebhookSecret,
			Timeout:       gatewayTimeout,
		}, tel),
		bitcoin.New(bitcoin.Config{
			BaseURL:              cfg.Bitcoin.BaseURL,
			APIKey:               cfg.Bitcoin.APIKey,
			WebhookSecret:        cfg.Bitcoin.WebhookSecret,
			Timeout:              gatewayTimeout,
			ConfirmationOverride: cfg.Bitcoin.ConfirmationOverride,
		}, tel),
		monero.New(monero.Config{
			BaseURL:              cfg.Monero.BaseURL,
			APIKey:               cfg.Monero.APIKey,
			WebhookSecret:        cfg.Monero.WebhookSecret,
			Timeout:              gatewayTimeout,
			ConfirmationOverride: cfg.Monero.ConfirmationOverride,
		}, tel),
	}

	idGenerator := id.NewUUIDGenerator()
	orderService := apporder.NewService(orderRepo, idGenerator, tel)
	paymentService := apppayment.NewService(apppayment.Config{
		PaymentWindow:    cfg.PaymentWindow,
		StatusStaleAfter: cfg.StatusStaleAfter,
	}, orderRepo, paymentRepo, rates, adapters, publisher, idGenerator, tel)

	fulfillment := apppayment.NewWorker(orderRepo, bus, notify.NewLogNotifier(tel.Logger()), tel)
	fulfillment.Start()

	handler := httppresentation.NewHandler(orderService, paymentService, tel.Logger(), tel)
	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: handler.Router(),
	}

	go func() {
		sysLog.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sysLog.Error("http_server_error", observability.F("error", err.Error()))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sysLog.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		sysLog.Info("http_server_stopped")
	}
}

// buildMetrics registers every metric vector once, up front, with its full
// label set. Handlers and services receive the instruments, never the registry.
func buildMetrics() (map[observability.MetricKey]observability.Counter, map[observability.MetricKey]observability.Histogram) {
	reg := prometrics.New("payflow", "")

	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: reg.Counter(string(observability.MUsecaseRequests),
			"Total number of use case invocations.", "use_case", "outcome"),
		observability.MHTTPRequests: reg.Counter(string(observability.MHTTPRequests),
			"Total number of HTTP requests.", "method", "route", "status"),
		observability.MGatewayRequests: reg.Counter(string(observability.MGatewayRequests),
			"Total number of outbound gateway requests.", "gateway", "op", "outcome"),
		observability.MWebhookEvents: reg.Counter(string(observability.MWebhookEvents),
			"Webhook deliveries by processing outcome.", "method", "outcome"),
		observability.MExchangeRateLookups: reg.Counter(string(observability.MExchangeRateLookups),
			"Exchange rate lookups by cache outcome.", "outcome"),
		observability.MPaymentStateTransitions: reg.Counter(string(observability.MPaymentStateTransitions),
			"Payment state machine transitions.", "method", "to"),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: reg.Histogram(string(observability.MUsecaseDuration),
			"Duration of use case execution in seconds.", prometheus.DefBuckets, "use_case"),
		observability.MHTTPRequestDuration: reg.Histogram(string(observability.MHTTPRequestDuration),
			"HTTP request latency in seconds.", prometheus.DefBuckets, "method", "route", "status"),
		observability.MGatewayRequestDuration: reg.Histogram(string(observability.MGatewayRequestDuration),
			"Outbound gateway request latency in seconds.", prometheus.DefBuckets, "gateway", "op"),
	}
	return counters, histograms
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
