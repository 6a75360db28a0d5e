package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/engine"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/identity"
	"github.com/utafrali/storefront/internal/localstore"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/internal/shopapi"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
)

const serviceName = "storefront"

// App wires together all dependencies and runs the storefront.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	kafkaNotifier  *event.KafkaNotifier
	sessions       *session.Registry
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
	done           chan struct{}
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// Redis holds anonymous carts and the price cache.
	redisCfg := database.DefaultRedisConfig()
	redisCfg.Host = cfg.RedisHost
	redisCfg.Port = cfg.RedisPort
	redisCfg.Password = cfg.RedisPassword
	redisCfg.DB = cfg.RedisDB
	rdb, err := database.NewRedisClient(ctx, redisCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("addr", redisCfg.Addr()),
		slog.Int("db", cfg.RedisDB),
	)

	// Shop API behind retries and a circuit breaker.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.ShopAPITimeout
	httpCfg.MaxRetries = cfg.ShopAPIMaxRetries
	cbCfg := httpclient.DefaultCircuitBreakerConfig("shop-api")
	cbCfg.Timeout = cfg.BreakerTimeout
	cbCfg.MinRequests = cfg.BreakerMinReqs
	breaker := httpclient.NewCircuitBreakerClient(httpclient.New(httpCfg), cbCfg, logger).
		WithFallback(httpclient.UnavailableFallback)
	shop := shopapi.New(cfg.ShopAPIURL, breaker, logger)

	cartStore := shopapi.NewCartStore(shop)
	orders := shopapi.NewOrderService(shop)
	prices := catalog.NewCachedPrices(shopapi.NewCatalog(shop), rdb, cfg.PriceTTL, logger)
	local := localstore.New(rdb, cfg.CartTTLDuration())

	var resolver identity.Resolver = identity.NewRemoteResolver(shopapi.NewUsers(shop))
	if cfg.JWTSecret != "" {
		resolver = identity.NewChainResolver(identity.NewJWTResolver(cfg.JWTSecret), identity.NewRemoteResolver(shopapi.NewUsers(shop)))
	}

	// Signals go to the log, Prometheus and, when enabled, Kafka.
	notifiers := event.Fanout{
		event.NewLogNotifier(logger),
		event.NewMetricsNotifier(prometheus.DefaultRegisterer),
	}
	var (
		producer      *pkgkafka.Producer
		kafkaNotifier *event.KafkaNotifier
	)
	if cfg.KafkaEnabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		kafkaNotifier = event.NewKafkaNotifier(producer, logger, cfg.EventQueueSize)
		notifiers = append(notifiers, kafkaNotifier)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	newEngine := func(sessionID string, ids engine.IdentityProvider) *engine.Engine {
		return engine.New(engine.Deps{
			SessionID: sessionID,
			Identity:  ids,
			Remote:    cartStore,
			Orders:    orders,
			Local:     local.ForSession(sessionID),
			Prices:    prices,
			Notifier:  notifiers,
			Logger:    logger,
		})
	}
	sessions := session.NewRegistry(resolver, newEngine, cfg.SessionIdle, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterOptional("shop_api", func(ctx context.Context) error {
		if breaker.State() == gobreaker.StateOpen {
			return errors.New("circuit breaker open")
		}
		return nil
	})
	if producer != nil {
		healthHandler.RegisterOptional("kafka", producer.Ping)
	}

	done := make(chan struct{})
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSOrigins
	router := handler.NewRouter(handler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		CORS:           cors,
		Done:           done,
	}, sessions, healthHandler, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		rdb:            rdb,
		producer:       producer,
		kafkaNotifier:  kafkaNotifier,
		sessions:       sessions,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
		done:           done,
	}, nil
}

// Run starts the HTTP server and the session sweeper and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sessions.Run(sweepCtx, a.cfg.SessionSweep)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}
	close(a.done)

	// Drain queued cart events before the producer goes away.
	if a.kafkaNotifier != nil {
		a.kafkaNotifier.Close()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
