package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/obsidianstack/ctrlperf/agent/internal/compute"
	"github.com/obsidianstack/ctrlperf/agent/internal/fetcher"
	"github.com/obsidianstack/ctrlperf/agent/internal/series"
	"github.com/obsidianstack/ctrlperf/agent/internal/sink"
)

// ErrBusy is returned when RunCycle is called while a cycle is in flight.
var ErrBusy = errors.New("analysis cycle already running")

// Fetcher supplies the raw buffers of a cycle.
type Fetcher interface {
	Fetch(ctx context.Context) (*series.Buffers, error)
}

// Aligner turns raw buffers into the two error signals.
type Aligner interface {
	Align(bufs *series.Buffers) (*series.Alignment, error)
}

const (
	stateIdle int32 = iota
	stateRunning
)

// Analyzer runs analysis cycles: fetch, align, compute, write.
// It is either Idle or Running; concurrent callers get ErrBusy rather than
// a second cycle.
type Analyzer struct {
	fetcher Fetcher
	aligner Aligner
	sink    sink.Sink
	state   atomic.Int32
	now     func() time.Time
}

// New returns an idle Analyzer.
func New(f Fetcher, a Aligner, s sink.Sink) *Analyzer {
	return &Analyzer{fetcher: f, aligner: a, sink: s, now: time.Now}
}

// Running reports whether a cycle is in flight.
func (a *Analyzer) Running() bool { return a.state.Load() == stateRunning }

// RunCycle runs one cycle to completion and returns its report. The report
// is non-nil for every outcome except ErrBusy. A failed cycle also returns
// a *CycleError carrying the failure kind; panics inside the cycle are
// recovered and reported as KindInternal.
func (a *Analyzer) RunCycle(ctx context.Context) (rep *Report, err error) {
	if !a.state.CompareAndSwap(stateIdle, stateRunning) {
		return nil, ErrBusy
	}
	defer a.state.Store(stateIdle)

	rep = &Report{ID: uuid.NewString(), StartedAt: a.now()}
	log := zap.L().With(zap.String("cycle", rep.ID))

	defer func() {
		if r := recover(); r != nil {
			err = rep.fail(KindInternal, fmt.Errorf("panic: %v", r))
		}
		rep.Duration = a.now().Sub(rep.StartedAt)
		rep.log(log)
	}()

	bufs, ferr := a.fetcher.Fetch(ctx)
	if ferr != nil {
		return rep, rep.fail(Classify(ferr), ferr)
	}
	rep.Counts = bufs.Counts()

	al, aerr := a.aligner.Align(bufs)
	if aerr != nil {
		return rep, rep.fail(Classify(aerr), aerr)
	}

	res, cerr := compute.Evaluate(al)
	if cerr != nil {
		return rep, rep.fail(Classify(cerr), cerr)
	}
	rep.Result = res

	// Both batches are attempted; each outcome is kept separately.
	if werr := a.sink.WriteIndices(ctx, res); werr != nil {
		rep.IndexWriteErr = werr.Error()
		rep.Spooled = rep.Spooled || sink.IsSpooled(werr)
		err = errors.Join(err, werr)
	}
	if werr := a.sink.WriteStatistics(ctx, res); werr != nil {
		rep.StatsWriteErr = werr.Error()
		rep.Spooled = rep.Spooled || sink.IsSpooled(werr)
		err = errors.Join(err, werr)
	}
	if err != nil {
		return rep, rep.fail(KindSinkWrite, err)
	}
	return rep, nil
}

// Classify maps a cycle error to its Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, fetcher.ErrConnectivity):
		return KindConnectivity
	case errors.Is(err, series.ErrInsufficientData):
		return KindInsufficientData
	case errors.Is(err, series.ErrDataFormat):
		return KindDataFormat
	case errors.Is(err, compute.ErrEmptyInput):
		return KindEmptyInput
	case errors.Is(err, sink.ErrWrite):
		return KindSinkWrite
	default:
		return KindInternal
	}
}
