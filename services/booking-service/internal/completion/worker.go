// Package completion marks confirmed appointments completed once they have ended.
package completion

import (
	"context"
	"log/slog"
	"time"
)

// Completer is implemented by *booking.Service.
type Completer interface {
	CompleteElapsed(ctx context.Context, now time.Time, grace time.Duration, limit int) (int, error)
}

type Worker struct {
	svc       Completer
	logger    *slog.Logger
	interval  time.Duration
	grace     time.Duration
	batchSize int
	now       func() time.Time
}

type WorkerConfig struct {
	Interval time.Duration
	// Grace is how long after its end an appointment stays confirmed.
	Grace     time.Duration
	BatchSize int
}

func NewWorker(svc Completer, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Worker{
		svc:       svc,
		logger:    logger,
		interval:  cfg.Interval,
		grace:     cfg.Grace,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("completion batch failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce completes batches until one comes back short, so a backlog drains within one tick.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := w.svc.CompleteElapsed(ctx, w.now(), w.grace, w.batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < w.batchSize || ctx.Err() != nil {
			if total > 0 {
				w.logger.Info("appointments completed", "count", total)
			}
			return total, nil
		}
	}
}
