// Package fetcher pulls the raw input signals of an analysis cycle.
//
// One Flux range query (default lookback 65s) filters the bucket down to the
// four configured (measurement, field) pairs; every returned record is routed
// to exactly one of the four series.Buffers by exact pair match. Store
// errors are wrapped with ErrConnectivity and returned without retry; the
// scheduler decides when to try again.
package fetcher
