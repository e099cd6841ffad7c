// Package series aligns asynchronously sampled signals.
//
// The fetcher hands over four unsorted Buffers. Align sorts them, keeps the
// most recent WindowSize samples of each, converts values to float64 and
// pairs A with B and C with D using a backward as-of join: every left
// sample takes the latest right sample at or before its timestamp. Each
// pair yields an ErrorSeries (left − right, with offsets in seconds since
// the first joined row).
//
// The reference timestamp of a cycle is the last joined timestamp of the
// A/B pair, so output points are tied to the newest sample actually
// analyzed rather than to wall-clock time.
package series
