package completion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	mu      sync.Mutex
	results []int
	err     error
	calls   int
	grace   time.Duration
	limit   int
}

func (f *fakeCompleter) CompleteElapsed(_ context.Context, _ time.Time, grace time.Duration, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.grace, f.limit = grace, limit
	if f.err != nil {
		return 0, f.err
	}
	if len(f.results) == 0 {
		return 0, nil
	}
	n := f.results[0]
	f.results = f.results[1:]
	return n, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRunOnce_DrainsFullBatches(t *testing.T) {
	fc := &fakeCompleter{results: []int{2, 2, 1}}
	w := NewWorker(fc, discard(), WorkerConfig{BatchSize: 2, Grace: 5 * time.Minute})

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, 3, fc.calls)
	require.Equal(t, 5*time.Minute, fc.grace)
	require.Equal(t, 2, fc.limit)
}

func TestRunOnce_StopsOnError(t *testing.T) {
	boom := errors.New("db down")
	fc := &fakeCompleter{err: boom}
	w := NewWorker(fc, discard(), WorkerConfig{})

	n, err := w.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	require.Zero(t, n)
	require.Equal(t, 1, fc.calls)
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	fc := &fakeCompleter{}
	w := NewWorker(fc, discard(), WorkerConfig{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return fc.callCount() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
