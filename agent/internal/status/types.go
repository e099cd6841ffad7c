package status

import (
	"github.com/obsidianstack/ctrlperf/agent/internal/analysis"
	"github.com/obsidianstack/ctrlperf/agent/internal/security"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is "unknown" before the first cycle, "ok" when the last cycle
	// succeeded, "degraded" after fewer than DownAfter consecutive failures
	// and "down" from then on.
	State               string               `json:"state"`
	Cycles              uint64               `json:"cycles"`
	LastOutcome         string               `json:"last_outcome,omitempty"`
	LastCycleAt         string               `json:"last_cycle_at,omitempty"` // RFC3339
	ConsecutiveFailures int                  `json:"consecutive_failures"`
	SpoolPending        int                  `json:"spool_pending"`
	AlertCount          int                  `json:"alert_count"`
	StoreCert           *security.CertStatus `json:"store_cert,omitempty"`
}

// ResultsResponse is the payload for GET /api/v1/results.
type ResultsResponse struct {
	Reports     []*analysis.Report `json:"reports"`
	GeneratedAt string             `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
