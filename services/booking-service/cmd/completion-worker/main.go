package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/barberslot/libs/config"
	"github.com/md-rashed-zaman/barberslot/libs/db"
	"github.com/md-rashed-zaman/barberslot/libs/httpx"
	otelx "github.com/md-rashed-zaman/barberslot/libs/otel"
	"github.com/md-rashed-zaman/barberslot/libs/runtime"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/completion"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/barberslot/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "completion-worker")
	port, err := config.Port("PORT", "8093")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelCfg, err := otelx.ConfigFromEnv(service)
	if err != nil {
		panic(err)
	}
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
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
	pool, err := db.Open(ctx, dbURL, db.PoolOptions{MaxConns: 4})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	schedules, err := schedule.LoadFromEnv()
	if err != nil {
		panic(err)
	}

	interval, err := config.Duration("COMPLETION_INTERVAL", time.Minute)
	if err != nil {
		panic(err)
	}
	grace, err := config.Duration("COMPLETION_GRACE", 0)
	if err != nil {
		panic(err)
	}
	batch, err := config.Int("COMPLETION_BATCH_SIZE", 100)
	if err != nil {
		panic(err)
	}

	bookingMetrics := metrics.NewBookingMetrics(nil)
	store := storage.NewStore(pool, outbox.NewRepository())
	svc := booking.NewService(store, schedules, logger, booking.WithMetrics(bookingMetrics))
	worker := completion.NewWorker(svc, logger, completion.WorkerConfig{
		Interval:  interval,
		Grace:     grace,
		BatchSize: batch,
	})
	go worker.Run(ctx)
	logger.Info("completion worker started", "interval", interval.String(), "grace", grace.String())

	mux := runtime.NewBaseMuxWithReady(runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpx.Chain(mux, httpx.WithRequestID, httpx.WithAccessLog(logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)
}
