// Package status exposes the agent's recent cycles read-only.
//
// Store keeps a bounded in-memory history of analysis reports. Handler
// serves it as JSON under /api/v1 and as Prometheus gauges on /metrics.
// Hub streams the latest report to WebSocket clients on /ws/stream.
// RequireAPIKey optionally guards all of them.
//
// Endpoints:
//
//	GET /api/v1/health          last outcome, failure streak, spool depth, store cert
//	GET /api/v1/results/latest  newest report
//	GET /api/v1/results?limit=N report history, oldest first
//	GET /api/v1/alerts          firing and recently resolved alerts
//	GET /api/v1/diagnostics     hints explaining the newest report
//	GET /metrics                ctrlperf_index, ctrlperf_error_stat, ctrlperf_cycle_total...
//	GET /ws/stream              WebSocket, one "report" event per broadcast interval
package status
