// Package sink writes analysis results back to the time-series store.
//
// Each cycle produces two batches. The index batch carries IE, ISE and IAE
// of both loops (six points); the statistics batch carries max, min, mean
// and std of both error signals plus their terminal values (ten points).
// Measurement names match the plant dashboards and every point shares the
// cycle's reference timestamp.
//
// When a Spool is configured, batches the store rejects are persisted in
// badger (zstd-compressed JSON) and a Replayer retries them with truncated
// exponential backoff. The rejection is still reported to the caller.
package sink
