package sink

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/obsidianstack/ctrlperf/agent/internal/compute"
	"github.com/obsidianstack/ctrlperf/agent/internal/influx"
)

// ErrWrite is matched by every error a Sink returns for a rejected batch.
var ErrWrite = errors.New("result write failed")

// Sink persists the two result batches of a cycle. The batches are written
// independently: a failure of one says nothing about the other.
type Sink interface {
	WriteIndices(ctx context.Context, res *compute.Result) error
	WriteStatistics(ctx context.Context, res *compute.Result) error
}

// Writer sends points to the store. *influx.Client satisfies it.
type Writer interface {
	WritePoints(ctx context.Context, points []influx.Point) error
}

// WriteError reports a rejected batch. It matches ErrWrite with errors.Is.
type WriteError struct {
	Batch   string // "indices" or "statistics"
	Points  int
	Spooled bool
	Err     error
}

func (e *WriteError) Error() string {
	s := fmt.Sprintf("write %s batch (%d points): %v", e.Batch, e.Points, e.Err)
	if e.Spooled {
		s += " (spooled for replay)"
	}
	return s
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }

// IsSpooled reports whether err is a WriteError whose batch was spooled.
func IsSpooled(err error) bool {
	var we *WriteError
	return errors.As(err, &we) && we.Spooled
}

// InfluxSink writes result batches through a Writer. With a Spool attached,
// a rejected batch is kept on disk for the Replayer; the error is still
// returned so the cycle reports the failure.
type InfluxSink struct {
	w     Writer
	tags  [2]Tag
	spool *Spool
}

// NewInfluxSink returns a sink writing to w. spool may be nil.
func NewInfluxSink(w Writer, tags [2]Tag, spool *Spool) *InfluxSink {
	return &InfluxSink{w: w, tags: tags, spool: spool}
}

// WriteIndices writes the IE/ISE/IAE batch of both loops.
func (s *InfluxSink) WriteIndices(ctx context.Context, res *compute.Result) error {
	return s.write(ctx, "indices", IndexPoints(res, s.tags))
}

// WriteStatistics writes the statistics and terminal error batch.
func (s *InfluxSink) WriteStatistics(ctx context.Context, res *compute.Result) error {
	return s.write(ctx, "statistics", StatisticsPoints(res, s.tags))
}

func (s *InfluxSink) write(ctx context.Context, batch string, pts []influx.Point) error {
	err := s.w.WritePoints(ctx, pts)
	if err == nil {
		zap.L().Debug("sink: batch written", zap.String("batch", batch), zap.Int("points", len(pts)))
		return nil
	}

	werr := &WriteError{Batch: batch, Points: len(pts), Err: err}
	if s.spool != nil {
		if perr := s.spool.Put(pts); perr != nil {
			zap.L().Error("sink: spool failed, batch lost", zap.String("batch", batch), zap.Error(perr))
		} else {
			werr.Spooled = true
		}
	}
	return werr
}
