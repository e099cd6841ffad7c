package alerts

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/obsidianstack/ctrlperf/agent/internal/compute"
	"github.com/obsidianstack/ctrlperf/agent/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID        string `json:"id"`
	RuleName  string `json:"rule_name"`
	Condition string `json:"condition"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`

	// Loop, Metric, Operator and Threshold are the parsed condition.
	Loop      int     `json:"loop"`
	Metric    string  `json:"metric"`
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`

	// Value is the metric at SampleTime, the reference timestamp of the
	// result that fired or resolved the alert.
	Value      float64   `json:"value"`
	SampleTime time.Time `json:"sample_time"`

	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

// MarshalJSON writes a non-finite Value as a string.
func (a Alert) MarshalJSON() ([]byte, error) {
	type plain Alert
	return json.Marshal(struct {
		plain
		Value compute.JSONFloat `json:"value"`
	}{plain(a), compute.JSONFloat(a.Value)})
}

type rule struct {
	config.AlertRule
	cond condition
}

// Engine evaluates alert rules against cycle results and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	webhooks []config.WebhookConfig
	client   *http.Client
	now      func() time.Time

	mu       sync.Mutex
	rules    []rule
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently resolved alerts
	wg       sync.WaitGroup
}

// New creates an Engine from the alert configuration.
// An Engine with no rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
	}
	e.SetRules(cfg.Rules)
	return e
}

// SetRules replaces the rule set. Rules whose condition does not parse are
// logged and skipped. Active alerts of removed rules are dropped.
func (e *Engine) SetRules(rules []config.AlertRule) {
	parsed := make([]rule, 0, len(rules))
	names := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			zap.L().Error("alerts: skipping rule", zap.String("rule", r.Name), zap.Error(err))
			continue
		}
		parsed = append(parsed, rule{AlertRule: r, cond: c})
		names[r.Name] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = parsed
	for name := range e.active {
		if _, ok := names[name]; !ok {
			delete(e.active, name)
			delete(e.lastFire, name)
		}
	}
}

// Evaluate tests all rules against res. Alerts that fire are stored and
// webhook delivery is triggered asynchronously. Alerts that were firing but
// whose condition is now false are resolved.
func (e *Engine) Evaluate(res *compute.Result) {
	if res == nil {
		return
	}
	now := e.now()

	e.mu.Lock()
	var deliveries []Alert
	for _, r := range e.rules {
		fires, value := r.cond.eval(res)

		if fires {
			cooldown := r.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			// A rule still firing after its cooldown fires again as a reminder.
			if now.Sub(e.lastFire[r.Name]) <= cooldown {
				continue
			}
			sev := r.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:         uuid.NewString(),
				RuleName:   r.Name,
				Condition:  r.Condition,
				Severity:   sev,
				Loop:       r.cond.loop(),
				Metric:     r.cond.metric(),
				Operator:   r.cond.op,
				Threshold:  r.cond.threshold,
				Value:      value,
				SampleTime: res.Timestamp,
				FiredAt:    now,
				State:      "firing",
			}
			a.Message = fmt.Sprintf("Loop %d %s is %.4f, %s %g (rule %s)",
				a.Loop, metricName(a.Metric), value, opPhrase(a.Operator), a.Threshold, r.Name)
			e.active[r.Name] = a
			e.lastFire[r.Name] = now
			deliveries = append(deliveries, *a)

			zap.L().Warn("alert fired",
				zap.String("rule", r.Name),
				zap.Int("loop", a.Loop),
				zap.String("metric", a.Metric),
				zap.Float64("value", value),
				zap.String("severity", sev))
			continue
		}

		a, ok := e.active[r.Name]
		if !ok {
			continue
		}
		resolved := now
		a.State = "resolved"
		a.ResolvedAt = &resolved
		a.Value = value
		a.SampleTime = res.Timestamp
		a.Message = fmt.Sprintf("Loop %d %s back to %.4f, no longer %s %g (rule %s)",
			a.Loop, metricName(a.Metric), value, opPhrase(a.Operator), a.Threshold, r.Name)
		delete(e.active, r.Name)

		e.history = append(e.history, a)
		if len(e.history) > maxHistoryLen {
			e.history = e.history[len(e.history)-maxHistoryLen:]
		}
		deliveries = append(deliveries, *a)

		zap.L().Info("alert resolved", zap.String("rule", r.Name))
	}
	e.mu.Unlock()

	for i := range deliveries {
		a := deliveries[i]
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.deliver(&a)
		}()
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Wait blocks until in-flight webhook deliveries finish.
func (e *Engine) Wait() { e.wg.Wait() }
