package status_test

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/ctrlperf/agent/internal/alerts"
	"github.com/obsidianstack/ctrlperf/agent/internal/analysis"
	"github.com/obsidianstack/ctrlperf/agent/internal/compute"
	"github.com/obsidianstack/ctrlperf/agent/internal/security"
	"github.com/obsidianstack/ctrlperf/agent/internal/status"
)

// --- test helpers -----------------------------------------------------------

func f(v float64) *float64 { return &v }

func report(id string) *analysis.Report {
	return &analysis.Report{
		ID:        id,
		StartedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Counts:    [4]int{60, 60, 60, 60},
		Result: &compute.Result{
			Loop1: compute.LoopResult{
				Indices:   compute.Indices{IE: f(2), ISE: f(5), IAE: f(2)},
				Stats:     compute.Stats{Max: 3, Min: 1, Mean: 2, Std: 1},
				LastError: 1,
				Samples:   2,
			},
			Loop2: compute.LoopResult{
				Indices:   compute.Indices{IE: f(-1)},
				Stats:     compute.Stats{Max: -1, Min: -1, Mean: -1},
				LastError: -1,
				Samples:   2,
			},
			Timestamp: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
		},
	}
}

func failed(id string) *analysis.Report {
	return &analysis.Report{ID: id, StartedAt: time.Now(), Kind: analysis.KindConnectivity, Err: "dial tcp: refused"}
}

func newStore(reps ...*analysis.Report) *status.Store {
	st := status.NewStore(50)
	for _, r := range reps {
		st.Put(r)
	}
	return st
}

type stubAlerts []*alerts.Alert

func (s stubAlerts) Active() []*alerts.Alert { return s }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	rr := get(t, status.New(newStore(), status.Sources{}), "/api/v1/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp status.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "unknown" || resp.Cycles != 0 {
		t.Errorf("health = %+v, want unknown with 0 cycles", resp)
	}
}

func TestHealth_Degraded(t *testing.T) {
	src := status.Sources{
		Alerts: stubAlerts{
			{RuleName: "a", State: "firing"},
			{RuleName: "b", State: "resolved"},
		},
		Cert:     func() *security.CertStatus { return &security.CertStatus{Status: security.StatusExpiring, DaysLeft: 5} },
		SpoolLen: func() (int, error) { return 4, nil },
	}
	rr := get(t, status.New(newStore(report("a"), failed("b"), failed("c")), src), "/api/v1/health")

	var resp status.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "degraded" || resp.LastOutcome != "connectivity" {
		t.Errorf("state/outcome = %s/%s, want degraded/connectivity", resp.State, resp.LastOutcome)
	}
	if resp.Cycles != 3 || resp.ConsecutiveFailures != 2 {
		t.Errorf("cycles/failures = %d/%d, want 3/2", resp.Cycles, resp.ConsecutiveFailures)
	}
	if resp.SpoolPending != 4 || resp.AlertCount != 1 {
		t.Errorf("spool/alerts = %d/%d, want 4/1", resp.SpoolPending, resp.AlertCount)
	}
	if resp.StoreCert == nil || resp.StoreCert.Status != security.StatusExpiring {
		t.Errorf("store cert = %+v", resp.StoreCert)
	}
}

func TestHealth_SpoolError(t *testing.T) {
	src := status.Sources{SpoolLen: func() (int, error) { return 0, errors.New("closed") }}
	rr := get(t, status.New(newStore(report("a")), src), "/api/v1/health")

	var resp status.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "ok" || resp.SpoolPending != 0 {
		t.Errorf("health = %+v", resp)
	}
}

func TestHealth_DownAfterRepeatedFailures(t *testing.T) {
	tests := []struct {
		name  string
		reps  []*analysis.Report
		state string
	}{
		{"one failure", []*analysis.Report{report("a"), failed("b")}, "degraded"},
		{"just below", []*analysis.Report{failed("a"), failed("b")}, "degraded"},
		{"threshold", []*analysis.Report{report("a"), failed("b"), failed("c"), failed("d")}, "down"},
		{"long outage", []*analysis.Report{failed("a"), failed("b"), failed("c"), failed("d"), failed("e")}, "down"},
		{"recovered", []*analysis.Report{failed("a"), failed("b"), failed("c"), report("d")}, "ok"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := get(t, status.New(newStore(tc.reps...), status.Sources{}), "/api/v1/health")
			var resp status.HealthResponse
			decode(t, rr, &resp)
			if resp.State != tc.state {
				t.Errorf("state = %q (failures %d), want %q", resp.State, resp.ConsecutiveFailures, tc.state)
			}
		})
	}
}

func TestLatest_NonFiniteValues(t *testing.T) {
	rep := report("nan")
	rep.Result.Loop1.Stats.Max = math.NaN()
	rep.Result.Loop2.Indices.IE = f(math.Inf(1))

	rr := get(t, status.New(newStore(rep), status.Sources{}), "/api/v1/results/latest")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %q)", rr.Code, rr.Body.String())
	}
	var body map[string]any
	decode(t, rr, &body)
	res := body["result"].(map[string]any)
	stats := res["loop1"].(map[string]any)["stats"].(map[string]any)
	if stats["max"] != "NaN" || stats["min"] != 1.0 {
		t.Errorf("loop1 stats = %v, want max NaN and min 1", stats)
	}
	idx := res["loop2"].(map[string]any)["indices"].(map[string]any)
	if idx["ie"] != "+Inf" {
		t.Errorf("loop2 indices = %v, want ie +Inf", idx)
	}
}

// --- /api/v1/results --------------------------------------------------------

func TestLatest_NotFound(t *testing.T) {
	rr := get(t, status.New(newStore(), status.Sources{}), "/api/v1/results/latest")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestLatest(t *testing.T) {
	rr := get(t, status.New(newStore(report("a"), report("b")), status.Sources{}), "/api/v1/results/latest")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var m map[string]interface{}
	decode(t, rr, &m)
	if m["id"] != "b" {
		t.Errorf("id: got %v, want b", m["id"])
	}
	res := m["result"].(map[string]interface{})
	idx := res["loop1"].(map[string]interface{})["indices"].(map[string]interface{})
	if idx["ise"] != 5.0 {
		t.Errorf("loop1 ise: got %v, want 5", idx["ise"])
	}
	idx2 := res["loop2"].(map[string]interface{})["indices"].(map[string]interface{})
	if idx2["ise"] != nil {
		t.Errorf("loop2 ise: got %v, want null", idx2["ise"])
	}
}

func TestResults_Limit(t *testing.T) {
	h := status.New(newStore(report("a"), report("b"), failed("c")), status.Sources{})

	var resp status.ResultsResponse
	decode(t, get(t, h, "/api/v1/results?limit=2"), &resp)
	if len(resp.Reports) != 2 || resp.Reports[0].ID != "b" || resp.Reports[1].ID != "c" {
		t.Errorf("reports = %+v, want [b c]", resp.Reports)
	}
	if resp.GeneratedAt == "" {
		t.Error("generated_at missing")
	}

	decode(t, get(t, h, "/api/v1/results"), &resp)
	if len(resp.Reports) != 3 {
		t.Errorf("reports: got %d, want 3", len(resp.Reports))
	}
}

func TestResults_BadLimit(t *testing.T) {
	h := status.New(newStore(), status.Sources{})
	for _, q := range []string{"0", "-1", "abc", "5000"} {
		if rr := get(t, h, "/api/v1/results?limit="+q); rr.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: got %d, want 400", q, rr.Code)
		}
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestAlerts(t *testing.T) {
	rr := get(t, status.New(newStore(), status.Sources{}), "/api/v1/alerts")
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("body without engine = %s, want []", body)
	}

	src := status.Sources{Alerts: stubAlerts{{RuleName: "ise-high", State: "firing"}}}
	var out []map[string]interface{}
	decode(t, get(t, status.New(newStore(), src), "/api/v1/alerts"), &out)
	if len(out) != 1 || out[0]["rule_name"] != "ise-high" {
		t.Errorf("alerts = %v", out)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := status.New(newStore(), status.Sources{})
	for _, path := range []string{"/api/v1/health", "/api/v1/results", "/api/v1/results/latest", "/api/v1/alerts", "/metrics"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: got %d, want 405", path, rr.Code)
		}
	}
}

// --- /metrics ---------------------------------------------------------------

func TestMetrics(t *testing.T) {
	src := status.Sources{SpoolLen: func() (int, error) { return 2, nil }}
	rr := get(t, status.New(newStore(report("a"), failed("b")), src), "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(rr.Body)
	if err != nil {
		t.Fatalf("parse metrics: %v", err)
	}

	idx := families["ctrlperf_index"]
	if idx == nil {
		t.Fatal("ctrlperf_index missing")
	}
	// Loop 1 has all three indices, loop 2 only IE.
	if n := len(idx.GetMetric()); n != 4 {
		t.Errorf("ctrlperf_index series = %d, want 4", n)
	}
	if v := find(idx, "loop", "1", "index", "ise"); v != 5 {
		t.Errorf("ctrlperf_index{loop=1,index=ise} = %v, want 5", v)
	}

	stats := families["ctrlperf_error_stat"]
	if n := len(stats.GetMetric()); n != 8 {
		t.Errorf("ctrlperf_error_stat series = %d, want 8", n)
	}
	if v := find(stats, "loop", "1", "stat", "std"); v != 1 {
		t.Errorf("ctrlperf_error_stat{loop=1,stat=std} = %v, want 1", v)
	}

	cycles := families["ctrlperf_cycle_total"]
	if v := find(cycles, "outcome", "ok"); v != 1 {
		t.Errorf("ctrlperf_cycle_total{outcome=ok} = %v, want 1", v)
	}
	if v := find(cycles, "outcome", "connectivity"); v != 1 {
		t.Errorf("ctrlperf_cycle_total{outcome=connectivity} = %v, want 1", v)
	}
	if v := families["ctrlperf_spool_pending"].GetMetric()[0].GetGauge().GetValue(); v != 2 {
		t.Errorf("ctrlperf_spool_pending = %v, want 2", v)
	}
}

func TestMetrics_BeforeFirstResult(t *testing.T) {
	rr := get(t, status.New(newStore(), status.Sources{}), "/metrics")

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(rr.Body)
	if err != nil {
		t.Fatalf("parse metrics: %v", err)
	}
	if _, ok := families["ctrlperf_index"]; ok {
		t.Error("ctrlperf_index present before any result")
	}
	if _, ok := families["ctrlperf_spool_pending"]; !ok {
		t.Error("ctrlperf_spool_pending missing")
	}
}
