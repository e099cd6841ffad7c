package series

import (
	"fmt"
	"time"
)

// minSamples is the smallest series an integral or a statistic is defined on.
const minSamples = 2

// Signal names the position of a buffer in the aligner input.
type Signal int

const (
	SignalA Signal = iota // loop 1 reference
	SignalB               // loop 1 measured
	SignalC               // loop 2 reference
	SignalD               // loop 2 measured
)

func (s Signal) String() string {
	switch s {
	case SignalA:
		return "a"
	case SignalB:
		return "b"
	case SignalC:
		return "c"
	case SignalD:
		return "d"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Buffers groups the four fetched signals, indexed by Signal.
type Buffers [4]Buffer

// Counts returns the number of samples in each buffer.
func (b *Buffers) Counts() [4]int {
	var c [4]int
	for i := range b {
		c[i] = len(b[i])
	}
	return c
}

// Alignment is the output of Align: one error series per control loop and
// the timestamp every derived point of this cycle is stamped with.
type Alignment struct {
	Loop1     ErrorSeries
	Loop2     ErrorSeries
	Reference time.Time

	// Windowed holds per-signal sample counts after truncation.
	Windowed [4]int
}

// Aligner truncates, validates and joins the four signal buffers.
type Aligner struct {
	WindowSize int
}

// NewAligner returns an Aligner keeping the last windowSize samples of each
// signal. A non-positive windowSize selects DefaultWindowSize.
func NewAligner(windowSize int) *Aligner {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Aligner{WindowSize: windowSize}
}

// Align sorts each buffer in place, keeps its last WindowSize samples and
// joins A with B and C with D.
//
// It fails with ErrInsufficientData if any windowed buffer or either joined
// sequence has fewer than two samples, and with ErrDataFormat if a value
// is not numeric.
func (a *Aligner) Align(bufs *Buffers) (*Alignment, error) {
	out := &Alignment{}

	var windowed Buffers
	for i := range bufs {
		bufs[i].Sort()
		windowed[i] = bufs[i].Tail(a.WindowSize)
		out.Windowed[i] = len(windowed[i])
	}
	for i, w := range windowed {
		if len(w) < minSamples {
			return nil, fmt.Errorf("%w: signal %s has %d samples after windowing",
				ErrInsufficientData, Signal(i), len(w))
		}
	}

	var norm [4][]Sample
	for i, w := range windowed {
		s, err := w.Normalize()
		if err != nil {
			return nil, fmt.Errorf("signal %s: %w", Signal(i), err)
		}
		norm[i] = s
	}

	rows1 := AsOfJoin(norm[SignalA], norm[SignalB])
	if len(rows1) < minSamples {
		return nil, fmt.Errorf("%w: join a/b kept %d rows", ErrInsufficientData, len(rows1))
	}
	rows2 := AsOfJoin(norm[SignalC], norm[SignalD])
	if len(rows2) < minSamples {
		return nil, fmt.Errorf("%w: join c/d kept %d rows", ErrInsufficientData, len(rows2))
	}

	out.Loop1 = Difference(rows1)
	out.Loop2 = Difference(rows2)
	out.Reference = rows1[len(rows1)-1].Time
	return out, nil
}
