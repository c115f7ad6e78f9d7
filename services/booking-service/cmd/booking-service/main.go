package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/barberslot/libs/auth"
	"github.com/md-rashed-zaman/barberslot/libs/config"
	"github.com/md-rashed-zaman/barberslot/libs/db"
	"github.com/md-rashed-zaman/barberslot/libs/grpcx"
	"github.com/md-rashed-zaman/barberslot/libs/httpx"
	"github.com/md-rashed-zaman/barberslot/libs/kafkax"
	otelx "github.com/md-rashed-zaman/barberslot/libs/otel"
	"github.com/md-rashed-zaman/barberslot/libs/runtime"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, cfg.Otel)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.Pool)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	schedules, err := schedule.LoadFromEnv()
	if err != nil {
		logger.Error("schedule config invalid", "err", err)
		panic(err)
	}
	def := schedules.Default()
	logger.Info("schedule loaded",
		"resource_id", def.ResourceID,
		"timezone", def.Location.String(),
		"open", def.Open.String(),
		"close", def.Close.String(),
	)

	bookingMetrics := metrics.NewBookingMetrics(nil)
	outboxRepo := outbox.NewRepository()
	store := storage.NewStore(pool, outboxRepo)
	svc := booking.NewService(store, schedules, logger,
		booking.WithMetrics(bookingMetrics),
		booking.WithBusinessHours(cfg.EnforceBusinessHours),
	)

	var writer outbox.MessageWriter
	if len(cfg.KafkaBrokers) > 0 {
		kw := kafkax.NewWriter(cfg.KafkaBrokers)
		defer func() { _ = kw.Close() }()
		writer = kw
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox events will not be published")
	}
	publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, bookingMetrics, outbox.PublisherConfig{
		PollEvery: cfg.OutboxPollEvery,
		BatchSize: cfg.OutboxBatchSize,
	})
	go publisher.Run(ctx)

	verifierOpts := []auth.VerifierOption{auth.WithIssuer(cfg.JWTIssuer)}
	if cfg.JWKSURL != "" {
		verifierOpts = append(verifierOpts, auth.WithJWKS(auth.NewJWKSClient(cfg.JWKSURL, cfg.JWKSCacheTTL)))
		logger.Info("rs256 verification enabled", "jwks_url", cfg.JWKSURL)
	}
	verifier, err := auth.NewVerifier(cfg.JWTSecret, verifierOpts...)
	if err != nil {
		panic(err)
	}

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers), Optional: true},
	}

	var rateLimitMW httpx.Middleware
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		rl := httpx.NewRedisRateLimiter(rdb, httpx.RedisRateLimiterConfig{
			Limit:   cfg.RateLimitPerMinute,
			Window:  time.Minute,
			Prefix:  cfg.RateLimitPrefix,
			KeyFunc: auth.UserKey,
		})
		rateLimitMW = rl.Middleware(logger, cfg.RateLimitFailOpen)
		checks = append(checks, runtime.ReadyCheck{
			Name:     "redis",
			Check:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			Optional: cfg.RateLimitFailOpen,
		})
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimitPerMinute, "redis_addr", cfg.RedisAddr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute, auth.UserKey).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimitPerMinute)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.Handler())
	handlers.NewBookingHandler(svc, logger).Register(mux, auth.RequireBearer(verifier), rateLimitMW)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(cfg.CORS),
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.GRPCPort != "" {
		grpcServer := grpcx.NewServer(logger)
		grpcServer.SetServing(true, "barberslot.booking")
		go func() {
			if err := grpcx.Serve(ctx, logger, grpcServer, ":"+cfg.GRPCPort, cfg.ShutdownGrace); err != nil {
				logger.Error("grpc server failed", "err", err)
			}
		}()
	}

	runtime.ServeHTTP(ctx, logger, srv, cfg.ShutdownGrace)
}

type serviceConfig struct {
	Service              string
	Port                 string
	GRPCPort             string
	DatabaseURL          string
	Pool                 db.PoolOptions
	Otel                 otelx.Config
	KafkaBrokers         []string
	OutboxPollEvery      time.Duration
	OutboxBatchSize      int
	JWTSecret            string
	JWTIssuer            string
	JWKSURL              string
	JWKSCacheTTL         time.Duration
	EnforceBusinessHours bool
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	RateLimitPerMinute   int
	RateLimitPrefix      string
	RateLimitFailOpen    bool
	CORS                 httpx.CORSPolicy
	BodyLimitBytes       int64
	RequestTimeout       time.Duration
	ShutdownGrace        time.Duration
}

func loadConfig() (serviceConfig, error) {
	cfg := serviceConfig{
		Service:              config.String("SERVICE_NAME", "booking-service"),
		KafkaBrokers:         kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")),
		JWTSecret:            config.String("JWT_SECRET", ""),
		JWTIssuer:            config.String("JWT_ISSUER", ""),
		JWKSURL:              config.String("JWKS_URL", ""),
		EnforceBusinessHours: config.Bool("ENFORCE_BUSINESS_HOURS", true),
		RedisAddr:            config.String("REDIS_ADDR", ""),
		RedisPassword:        config.String("REDIS_PASSWORD", ""),
		RateLimitPrefix:      config.String("RATE_LIMIT_PREFIX", "rl:booking"),
		RateLimitFailOpen:    config.Bool("RATE_LIMIT_FAIL_OPEN", true),
		CORS: httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
		},
	}

	var err error
	if cfg.Port, err = config.Port("PORT", "8083"); err != nil {
		return cfg, err
	}
	if config.Bool("GRPC_ENABLED", true) {
		if cfg.GRPCPort, err = config.Port("GRPC_PORT", "9093"); err != nil {
			return cfg, err
		}
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return cfg, err
	}
	if cfg.JWTSecret == "" && cfg.JWKSURL == "" {
		return cfg, errors.New("JWT_SECRET or JWKS_URL is required")
	}
	if cfg.JWKSCacheTTL, err = config.Duration("JWKS_CACHE_TTL", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.Otel, err = otelx.ConfigFromEnv(cfg.Service); err != nil {
		return cfg, err
	}
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		return cfg, err
	}
	cfg.Pool.MaxConns = int32(maxConns)
	if cfg.OutboxPollEvery, err = config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second); err != nil {
		return cfg, err
	}
	if cfg.OutboxBatchSize, err = config.Int("OUTBOX_BATCH_SIZE", 50); err != nil {
		return cfg, err
	}
	if cfg.RedisDB, err = config.Int("REDIS_DB", 0); err != nil {
		return cfg, err
	}
	if cfg.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return cfg, err
	}
	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		return cfg, err
	}
	cfg.BodyLimitBytes = int64(bodyLimit)
	if cfg.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.CORS.MaxAge, err = config.Duration("CORS_MAX_AGE", 10*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.ShutdownGrace, err = config.Duration("SHUTDOWN_GRACE", 10*time.Second); err != nil {
		return cfg, err
	}
	return cfg, nil
}
