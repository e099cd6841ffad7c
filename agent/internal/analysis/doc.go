// Package analysis orchestrates one control-performance cycle.
//
// RunCycle moves the Analyzer from Idle to Running, fetches the four raw
// signals, aligns them into two error signals, computes indices and
// statistics and writes both result batches. Insufficient data ends the
// cycle before anything is computed or written. Every failure is returned
// as a *CycleError with a Kind and recorded in the Report; nothing escapes
// as a panic. The Analyzer always returns to Idle and never retries; the
// scheduler decides when the next cycle runs.
package analysis
