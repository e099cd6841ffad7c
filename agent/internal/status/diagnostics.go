package status

import (
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/obsidianstack/ctrlperf/agent/internal/analysis"
	"github.com/obsidianstack/ctrlperf/agent/internal/compute"
	"github.com/obsidianstack/ctrlperf/agent/internal/series"
)

// Thresholds for the loop behaviour hints.
const (
	// offsetRatio: |mean| above this multiple of std reads as a constant offset.
	offsetRatio = 2.0

	// oscillationRatio: |IE| / IAE below this means the error keeps
	// changing sign and mostly cancels out.
	oscillationRatio = 0.2
)

// DiagnosticHint is one human-readable insight about the latest cycle.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level string `json:"level"`
	// Title is a short label.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *compute.JSONFloat `json:"value,omitempty"`
}

// DiagnosticsResponse is the payload for GET /api/v1/diagnostics.
type DiagnosticsResponse struct {
	ReportID string           `json:"report_id"`
	Hints    []DiagnosticHint `json:"hints"`
}

// diagnostics returns GET /api/v1/diagnostics: hints for the newest report.
func (h *Handler) diagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rep, ok := h.store.Latest()
	if !ok {
		jsonErr(w, http.StatusNotFound, "no cycle has run yet")
		return
	}
	jsonResp(w, http.StatusOK, DiagnosticsResponse{ReportID: rep.ID, Hints: Diagnose(rep)})
}

// Diagnose derives hints from a cycle report. A failed cycle yields one hint
// explaining the failure; a computed result yields per-loop behaviour hints.
func Diagnose(rep *analysis.Report) []DiagnosticHint {
	var hints []DiagnosticHint

	switch rep.Kind {
	case analysis.KindConnectivity:
		return append(hints, DiagnosticHint{
			Key:   "store_unreachable",
			Level: "critical",
			Title: "Store unreachable",
			Detail: fmt.Sprintf("The agent could not query InfluxDB: %q. "+
				"Check INFLUX_URL, the token and that the bucket exists. "+
				"No results are written until the store answers again.", rep.Err),
		})

	case analysis.KindInsufficientData:
		return append(hints, DiagnosticHint{
			Key:    "insufficient_data",
			Level:  "warning",
			Title:  "Not enough samples",
			Detail: insufficientDetail(rep),
		})

	case analysis.KindDataFormat:
		return append(hints, DiagnosticHint{
			Key:   "bad_samples",
			Level: "critical",
			Title: "Non-numeric samples",
			Detail: fmt.Sprintf("A signal returned a value that is not a number: %q. "+
				"Check that the configured field holds numeric data.", rep.Err),
		})

	case analysis.KindEmptyInput, analysis.KindInternal:
		return append(hints, DiagnosticHint{
			Key:    "cycle_failed",
			Level:  "critical",
			Title:  "Cycle failed",
			Detail: fmt.Sprintf("The analysis cycle failed unexpectedly: %q.", rep.Err),
		})

	case analysis.KindSinkWrite:
		level, tail := "critical", "These results are lost."
		if rep.Spooled {
			level, tail = "warning", "The rejected batches were spooled and will be replayed."
		}
		var failed []string
		if rep.IndexWriteErr != "" {
			failed = append(failed, "index")
		}
		if rep.StatsWriteErr != "" {
			failed = append(failed, "statistics")
		}
		hints = append(hints, DiagnosticHint{
			Key:   "write_failed",
			Level: level,
			Title: "Write rejected",
			Detail: fmt.Sprintf("The store rejected the %s batch. %s",
				strings.Join(failed, " and "), tail),
		})
	}

	if rep.Result == nil {
		return hints
	}

	for n := 1; n <= 2; n++ {
		lr := rep.Result.Loop(n)
		st := lr.Stats

		if mean := math.Abs(st.Mean); mean > 0 && mean > offsetRatio*st.Std {
			v := compute.JSONFloat(st.Mean)
			hints = append(hints, DiagnosticHint{
				Key:   fmt.Sprintf("loop%d_offset", n),
				Level: "warning",
				Title: fmt.Sprintf("Loop %d steady-state offset", n),
				Detail: fmt.Sprintf("The error of loop %d stays on one side of zero "+
					"(mean %.4g, std %.4g). The controller is not removing the offset; "+
					"check the integral action or the setpoint scaling.", n, st.Mean, st.Std),
				Value: &v,
			})
		}

		if lr.Indices.IE != nil && lr.Indices.IAE != nil && *lr.Indices.IAE > 0 {
			ratio := math.Abs(*lr.Indices.IE) / *lr.Indices.IAE
			if ratio < oscillationRatio {
				v := compute.JSONFloat(ratio)
				hints = append(hints, DiagnosticHint{
					Key:   fmt.Sprintf("loop%d_oscillation", n),
					Level: "info",
					Title: fmt.Sprintf("Loop %d oscillating", n),
					Detail: fmt.Sprintf("Positive and negative errors of loop %d mostly cancel "+
						"(|IE|/IAE = %.2f). The loop may be oscillating around the setpoint; "+
						"a lower gain usually helps.", n, ratio),
					Value: &v,
				})
			}
		}
	}

	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:    "healthy",
			Level:  "ok",
			Title:  "All clear",
			Detail: "Both loops were analysed and written. No offset or oscillation stands out.",
		})
	}
	return hints
}

func insufficientDetail(rep *analysis.Report) string {
	var short []string
	for i, c := range rep.Counts {
		if c < 2 {
			short = append(short, fmt.Sprintf("%s (%d)", series.Signal(i), c))
		}
	}
	if len(short) > 0 {
		return fmt.Sprintf("Signals %s returned fewer than two samples in the lookback window. "+
			"Check that the producers are writing and that measurement and field names match.",
			strings.Join(short, ", "))
	}
	return "Every signal had samples, but the reference and measured series did not overlap " +
		"in time, so fewer than two aligned rows remained. Check the producers' clocks."
}
