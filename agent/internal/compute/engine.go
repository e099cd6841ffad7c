package compute

import (
	"fmt"
	"time"

	"github.com/obsidianstack/ctrlperf/agent/internal/series"
)

// Indices holds the integral performance indices of one error signal.
// A nil field means the index could not be computed.
type Indices struct {
	IE  *float64 `json:"ie"`
	ISE *float64 `json:"ise"`
	IAE *float64 `json:"iae"`
}

// LoopResult is everything derived from one error signal.
type LoopResult struct {
	Indices Indices `json:"indices"`
	Stats   Stats   `json:"stats"`

	// LastError is the terminal error value of the signal.
	LastError float64 `json:"last_error"`

	// Samples is the number of joined points the metrics were computed on.
	Samples int `json:"samples"`
}

// Result bundles both loops of one analysis cycle. Every point written for
// the cycle is stamped with Timestamp.
type Result struct {
	Loop1     LoopResult `json:"loop1"`
	Loop2     LoopResult `json:"loop2"`
	Timestamp time.Time  `json:"timestamp"`
}

// Loop returns the result for loop n (1 or 2).
func (r *Result) Loop(n int) *LoopResult {
	if n == 2 {
		return &r.Loop2
	}
	return &r.Loop1
}

// ComputeIndices returns IE, ISE and IAE of es, each rounded to four decimal
// digits. Statistics are left unrounded.
func ComputeIndices(es series.ErrorSeries) Indices {
	var out Indices
	if v, ok := Integral(es.Errors, es.Offsets); ok {
		out.IE = ptr(round(v, indexDigits))
	}
	if v, ok := IntegralOfSquared(es.Errors, es.Offsets); ok {
		out.ISE = ptr(round(v, indexDigits))
	}
	if v, ok := IntegralOfAbsolute(es.Errors, es.Offsets); ok {
		out.IAE = ptr(round(v, indexDigits))
	}
	return out
}

// Compute derives the indices, statistics and terminal error of es.
func Compute(es series.ErrorSeries) (LoopResult, error) {
	st, err := Statistics(es.Errors)
	if err != nil {
		return LoopResult{}, err
	}
	last, _ := es.Last()
	return LoopResult{
		Indices:   ComputeIndices(es),
		Stats:     st,
		LastError: last,
		Samples:   es.Len(),
	}, nil
}

// Evaluate computes both loops of an alignment into a Result.
func Evaluate(al *series.Alignment) (*Result, error) {
	l1, err := Compute(al.Loop1)
	if err != nil {
		return nil, fmt.Errorf("loop 1: %w", err)
	}
	l2, err := Compute(al.Loop2)
	if err != nil {
		return nil, fmt.Errorf("loop 2: %w", err)
	}
	return &Result{Loop1: l1, Loop2: l2, Timestamp: al.Reference}, nil
}

func ptr(v float64) *float64 { return &v }
