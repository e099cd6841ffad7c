package series

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// DefaultWindowSize is the number of most recent samples kept per signal.
const DefaultWindowSize = 60

var (
	// ErrInsufficientData is returned when a windowed buffer, or the result
	// of joining two of them, holds fewer than two samples.
	ErrInsufficientData = errors.New("insufficient number of samples for analysis")

	// ErrDataFormat is returned when a sample value cannot be read as float64.
	ErrDataFormat = errors.New("sample value is not numeric")
)

// RawSample is one record as it comes back from the store. Value is kept in
// whatever dynamic type the store decoded it to and is only normalized after
// windowing.
type RawSample struct {
	Time  time.Time
	Value any
}

// Buffer holds the samples of one logical signal. The store gives no
// ordering guarantee, so a Buffer may be unsorted until Sort is called.
type Buffer []RawSample

// Sort orders b by timestamp ascending. Samples sharing a timestamp keep
// their arrival order.
func (b Buffer) Sort() {
	sort.SliceStable(b, func(i, j int) bool { return b[i].Time.Before(b[j].Time) })
}

// Tail returns the last n samples of b, or all of b if it is shorter.
// The returned slice shares storage with b.
func (b Buffer) Tail(n int) Buffer {
	if n < 0 || len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}

// Sample is a normalized (timestamp, value) pair.
type Sample struct {
	Time  time.Time
	Value float64
}

// Normalize converts every value of b to float64. The first value that
// cannot be converted fails the whole buffer with ErrDataFormat.
func (b Buffer) Normalize() ([]Sample, error) {
	out := make([]Sample, len(b))
	for i, s := range b {
		v, err := toFloat(s.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: sample %d at %s: %v", ErrDataFormat, i, s.Time.Format(time.RFC3339Nano), err)
		}
		out[i] = Sample{Time: s.Time, Value: v}
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(x, 64)
	case nil:
		return 0, errors.New("nil value")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// Row is one line of an as-of join: the timestamp of the left sample and
// the values of both sides.
type Row struct {
	Time  time.Time
	Left  float64
	Right float64
}

// AsOfJoin matches each left sample with the most recent right sample whose
// timestamp does not exceed it. Both inputs must already be sorted by time.
// Left samples with no such right sample are dropped. When several right
// samples share the matching timestamp, the last one wins.
func AsOfJoin(left, right []Sample) []Row {
	rows := make([]Row, 0, len(left))
	for _, l := range left {
		// First index whose timestamp is strictly after l.Time.
		idx := sort.Search(len(right), func(i int) bool {
			return right[i].Time.After(l.Time)
		})
		if idx == 0 {
			continue
		}
		rows = append(rows, Row{Time: l.Time, Left: l.Value, Right: right[idx-1].Value})
	}
	return rows
}

// ErrorSeries is the difference signal derived from an as-of join.
// Offsets[i] is the number of seconds between Rows[0] and Rows[i].
type ErrorSeries struct {
	Offsets []float64
	Errors  []float64
}

// Len returns the number of points in the series.
func (e ErrorSeries) Len() int { return len(e.Errors) }

// Last returns the final error value. ok is false for an empty series.
func (e ErrorSeries) Last() (v float64, ok bool) {
	if len(e.Errors) == 0 {
		return 0, false
	}
	return e.Errors[len(e.Errors)-1], true
}

// Difference builds an ErrorSeries from joined rows: error = left − right.
func Difference(rows []Row) ErrorSeries {
	es := ErrorSeries{
		Offsets: make([]float64, len(rows)),
		Errors:  make([]float64, len(rows)),
	}
	if len(rows) == 0 {
		return es
	}
	start := rows[0].Time
	for i, r := range rows {
		es.Offsets[i] = r.Time.Sub(start).Seconds()
		es.Errors[i] = r.Left - r.Right
	}
	return es
}
