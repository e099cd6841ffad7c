package sink

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReplayInterval = 30 * time.Second
	defaultReplayBatch    = 100
)

// Retry policy after a failed pass, relative to the replay interval: the
// first retry comes after interval/retryDivisor, each further failure
// doubles the wait, and the wait never exceeds retryCeiling × interval.
// With the default 30s interval this is 1s, 2s, 4s ... 60s.
const (
	retryDivisor = 30
	retryCeiling = 2
	retryJitter  = 0.25
)

// Replayer drains the spool into the store. A clean pass waits the regular
// interval; failed passes retry sooner and back off exponentially.
type Replayer struct {
	spool    *Spool
	w        Writer
	interval time.Duration
	batch    int
	jitter   func() float64 // uniform in [0, 1)
}

// NewReplayer returns a Replayer sending at most batch spooled batches every
// interval. Non-positive values select 30s and 100.
func NewReplayer(spool *Spool, w Writer, interval time.Duration, batch int) *Replayer {
	if interval <= 0 {
		interval = defaultReplayInterval
	}
	if batch <= 0 {
		batch = defaultReplayBatch
	}
	return &Replayer{
		spool:    spool,
		w:        w,
		interval: interval,
		batch:    batch,
		jitter:   rand.Float64, //nolint:gosec // not crypto
	}
}

// retryDelay returns the wait after the given number of consecutive failed
// passes (at least 1), with ±25% jitter.
func (r *Replayer) retryDelay(failures int) time.Duration {
	ceiling := retryCeiling * r.interval
	d := r.interval / retryDivisor
	if d < time.Millisecond {
		d = time.Millisecond
	}
	for i := 1; i < failures && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		d = ceiling
	}
	return d + time.Duration(float64(d)*retryJitter*(r.jitter()*2-1))
}

// Run blocks until ctx is cancelled.
func (r *Replayer) Run(ctx context.Context) {
	var failures int
	wait := r.interval

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		n, err := r.Drain(ctx)
		if err != nil {
			failures++
			wait = r.retryDelay(failures)
			zap.L().Warn("sink: replay failed, will retry",
				zap.Int("replayed", n),
				zap.Int("failures", failures),
				zap.Error(err),
				zap.Duration("retry_in", wait))
			continue
		}
		if failures > 0 {
			zap.L().Info("sink: store accepts writes again", zap.Int("failed_passes", failures))
		}
		failures = 0
		wait = r.interval
		if n > 0 {
			zap.L().Info("sink: replayed spooled batches", zap.Int("batches", n))
		}
	}
}

// Drain sends pending batches oldest first and deletes each one the store
// accepts. It stops at the first rejection so ordering is preserved.
func (r *Replayer) Drain(ctx context.Context) (int, error) {
	pending, err := r.spool.Pending(r.batch)
	if err != nil {
		return 0, err
	}

	var sent int
	for _, b := range pending {
		if err := r.w.WritePoints(ctx, b.Points); err != nil {
			return sent, err
		}
		if err := r.spool.Delete(b.Key); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
