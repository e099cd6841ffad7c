package status

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/obsidianstack/ctrlperf/agent/internal/alerts"
	"github.com/obsidianstack/ctrlperf/agent/internal/security"
)

// maxResultsLimit caps ?limit on /api/v1/results.
const maxResultsLimit = 1000

// DownAfter is the number of consecutive failed cycles at which health
// turns from "degraded" to "down".
const DownAfter = 3

// AlertLister returns current and recently resolved alerts.
// *alerts.Engine satisfies it.
type AlertLister interface {
	Active() []*alerts.Alert
}

// Sources are the optional collaborators of the status surface. Any of them
// may be nil.
type Sources struct {
	Alerts AlertLister

	// Cert returns the last TLS check of the store endpoint.
	Cert func() *security.CertStatus

	// SpoolLen returns the number of batches awaiting replay.
	SpoolLen func() (int, error)
}

// Handler serves the read-only REST API and /metrics.
type Handler struct {
	store *Store
	src   Sources
	mux   *http.ServeMux
}

// New creates a Handler wired to st and registers all routes.
func New(st *Store, src Sources) http.Handler {
	h := &Handler{store: st, src: src, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/results/latest", h.latest)
	h.mux.HandleFunc("/api/v1/results", h.results)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/diagnostics", h.diagnostics)
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: last outcome, failure streak, spool
// depth and store certificate.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{
		State:               "unknown",
		ConsecutiveFailures: h.store.ConsecutiveFailures(),
		SpoolPending:        h.spoolLen(),
	}
	for _, n := range h.store.Outcomes() {
		resp.Cycles += n
	}
	if rep, ok := h.store.Latest(); ok {
		resp.LastOutcome = rep.Outcome()
		resp.LastCycleAt = rep.StartedAt.UTC().Format(time.RFC3339)
		resp.State = healthState(rep.OK(), resp.ConsecutiveFailures)
	}
	if h.src.Alerts != nil {
		for _, a := range h.src.Alerts.Active() {
			if a.State == "firing" {
				resp.AlertCount++
			}
		}
	}
	if h.src.Cert != nil {
		resp.StoreCert = h.src.Cert()
	}
	jsonResp(w, http.StatusOK, resp)
}

// latest returns GET /api/v1/results/latest: the newest report.
func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rep, ok := h.store.Latest()
	if !ok {
		jsonErr(w, http.StatusNotFound, "no cycle has run yet")
		return
	}
	jsonResp(w, http.StatusOK, rep)
}

// results returns GET /api/v1/results?limit=N: the report history,
// oldest first.
func (h *Handler) results(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 || n > maxResultsLimit {
			jsonErr(w, http.StatusBadRequest, "limit must be an integer between 1 and 1000")
			return
		}
		limit = n
	}

	jsonResp(w, http.StatusOK, ResultsResponse{
		Reports:     h.store.List(limit),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// alerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := []*alerts.Alert{}
	if h.src.Alerts != nil {
		out = append(out, h.src.Alerts.Active()...)
	}
	jsonResp(w, http.StatusOK, out)
}

// metrics returns GET /metrics in the Prometheus text format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", string(textFormat))
	if err := WriteMetrics(w, h.store, h.spoolLen()); err != nil {
		zap.L().Warn("status: render metrics", zap.Error(err))
	}
}

// --- helpers ----------------------------------------------------------------

// healthState maps the latest outcome and the failure streak to the
// reported state.
func healthState(lastOK bool, consecutiveFailures int) string {
	switch {
	case lastOK:
		return "ok"
	case consecutiveFailures >= DownAfter:
		return "down"
	default:
		return "degraded"
	}
}

func (h *Handler) spoolLen() int {
	if h.src.SpoolLen == nil {
		return 0
	}
	n, err := h.src.SpoolLen()
	if err != nil {
		zap.L().Warn("status: spool length", zap.Error(err))
		return 0
	}
	return n
}

// jsonResp encodes v before writing the status line, so a value that cannot
// be encoded yields a 500 instead of a truncated 200.
func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		zap.L().Error("status: encode response", zap.Error(err))
		buf.Reset()
		code = http.StatusInternalServerError
		json.NewEncoder(&buf).Encode(errorResponse{Error: "response could not be encoded"}) //nolint:errcheck
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(buf.Bytes()) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
