package analysis

import (
	"time"

	"go.uber.org/zap"

	"github.com/obsidianstack/ctrlperf/agent/internal/compute"
)

// Kind classifies why a cycle failed.
type Kind string

const (
	KindConnectivity     Kind = "connectivity"
	KindInsufficientData Kind = "insufficient_data"
	KindDataFormat       Kind = "data_format"
	KindEmptyInput       Kind = "empty_input"
	KindSinkWrite        Kind = "sink_write"
	KindInternal         Kind = "internal"
)

// CycleError is the typed failure of one cycle.
type CycleError struct {
	Kind Kind
	Err  error
}

func (e *CycleError) Error() string { return string(e.Kind) + ": " + e.Err.Error() }

func (e *CycleError) Unwrap() error { return e.Err }

// Report describes one cycle. Result is set whenever metrics were computed,
// including cycles whose writes failed.
type Report struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration_ns"`
	Result    *compute.Result `json:"result,omitempty"`

	// Counts is the number of raw samples fetched per signal (A, B, C, D).
	Counts [4]int `json:"counts"`

	IndexWriteErr string `json:"index_write_error,omitempty"`
	StatsWriteErr string `json:"stats_write_error,omitempty"`
	Spooled       bool   `json:"spooled,omitempty"`

	Err  string `json:"error,omitempty"`
	Kind Kind   `json:"kind,omitempty"`
}

// OK reports whether the cycle computed and wrote its result.
func (r *Report) OK() bool { return r.Kind == "" }

// Outcome is "ok" or the failure kind.
func (r *Report) Outcome() string {
	if r.OK() {
		return "ok"
	}
	return string(r.Kind)
}

func (r *Report) fail(kind Kind, err error) *CycleError {
	r.Kind = kind
	r.Err = err.Error()
	return &CycleError{Kind: kind, Err: err}
}

func (r *Report) log(log *zap.Logger) {
	fields := []zap.Field{
		zap.Duration("duration", r.Duration),
		zap.Ints("counts", r.Counts[:]),
	}
	switch {
	case r.OK():
		fields = append(fields,
			zap.Int("samples1", r.Result.Loop1.Samples),
			zap.Int("samples2", r.Result.Loop2.Samples),
			zap.Time("reference", r.Result.Timestamp))
		log.Info("analysis: cycle complete", fields...)
	case r.Kind == KindInsufficientData:
		log.Warn("analysis: cycle skipped", append(fields, zap.String("reason", r.Err))...)
	default:
		fields = append(fields, zap.String("kind", string(r.Kind)), zap.String("error", r.Err))
		if r.Kind == KindSinkWrite {
			fields = append(fields,
				zap.String("index_write", r.IndexWriteErr),
				zap.String("stats_write", r.StatsWriteErr),
				zap.Bool("spooled", r.Spooled))
		}
		log.Error("analysis: cycle failed", fields...)
	}
}
