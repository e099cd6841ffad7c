package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/obsidianstack/ctrlperf/agent/internal/influx"
	"github.com/obsidianstack/ctrlperf/agent/internal/series"
)

// DefaultLookback is the query range relative to now. It is a little longer
// than the 60-sample window so that one-second sampling fills it.
const DefaultLookback = 65 * time.Second

// ErrConnectivity wraps any failure to reach or query the store.
var ErrConnectivity = errors.New("store unreachable or query rejected")

// Querier runs a Flux query. *influx.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, flux string) ([]influx.Record, error)
}

// Fetcher pulls the four input signals of one analysis cycle with a single
// range query and routes each record to its buffer.
type Fetcher struct {
	q         Querier
	bucket    string
	lookback  time.Duration
	selectors [4]influx.Selector
}

// New returns a Fetcher reading selectors (in A, B, C, D order) from bucket.
// A non-positive lookback selects DefaultLookback.
func New(q Querier, bucket string, lookback time.Duration, selectors [4]influx.Selector) *Fetcher {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Fetcher{q: q, bucket: bucket, lookback: lookback, selectors: selectors}
}

// Query returns the Flux text Fetch sends to the store.
func (f *Fetcher) Query() string {
	return influx.BuildQuery(f.bucket, f.lookback, f.selectors[:])
}

// Fetch runs the range query and demultiplexes the result. Records that
// match no selector are dropped. Buffers are returned in arrival order;
// the store gives no ordering guarantee.
func (f *Fetcher) Fetch(ctx context.Context) (*series.Buffers, error) {
	recs, err := f.q.Query(ctx, f.Query())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectivity, err)
	}

	bufs := &series.Buffers{}
	var dropped int
	for _, r := range recs {
		idx := f.route(r)
		if idx < 0 {
			dropped++
			continue
		}
		bufs[idx] = append(bufs[idx], series.RawSample{Time: r.Time, Value: r.Value})
	}

	counts := bufs.Counts()
	zap.L().Debug("fetcher: records fetched",
		zap.Int("a", counts[series.SignalA]),
		zap.Int("b", counts[series.SignalB]),
		zap.Int("c", counts[series.SignalC]),
		zap.Int("d", counts[series.SignalD]),
		zap.Int("dropped", dropped),
	)
	return bufs, nil
}

// route returns the buffer index for r, or -1 if no selector matches.
func (f *Fetcher) route(r influx.Record) int {
	for i, s := range f.selectors {
		if s.Matches(r) {
			return i
		}
	}
	return -1
}
