package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// notice is an alert rendered for humans. Every webhook target formats the
// same notice.
type notice struct {
	Title string
	Text  string
	Color string
	Facts []fact
}

type fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// render turns a into a notice describing the control loop it concerns.
func render(a *Alert) notice {
	metric := metricName(a.Metric)
	title := fmt.Sprintf("Loop %d %s %s %g", a.Loop, metric, opPhrase(a.Operator), a.Threshold)
	color := severityColor(a.Severity)
	if a.State == "resolved" {
		title = fmt.Sprintf("Loop %d %s recovered", a.Loop, metric)
		color = resolvedColor
	}

	facts := []fact{
		{"Loop", strconv.Itoa(a.Loop)},
		{"Metric", metricDescription(a.Metric)},
		{"Value", formatValue(a.Value)},
		{"Limit", a.Operator + " " + strconv.FormatFloat(a.Threshold, 'g', -1, 64)},
		{"Sample time", a.SampleTime.UTC().Format(time.RFC3339)},
		{"Rule", a.RuleName},
		{"Severity", a.Severity},
	}
	if a.ResolvedAt != nil {
		facts = append(facts, fact{"Firing for", a.ResolvedAt.Sub(a.FiredAt).Round(time.Second).String()})
	}
	return notice{Title: title, Text: a.Message, Color: color, Facts: facts}
}

// deliver sends a to all configured targets. Errors are logged but do not
// affect the caller.
func (e *Engine) deliver(a *Alert) {
	n := render(a)
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body []byte
		switch wh.Type {
		case "slack":
			body = slackPayload(a, n)
		case "teams":
			body = teamsPayload(n)
		case "http":
			body = httpPayload(a, n)
		default:
			zap.L().Warn("alerts: unknown webhook type, skipping", zap.String("type", wh.Type))
			continue
		}
		if body == nil {
			continue
		}

		if err := e.post(url, body); err != nil {
			zap.L().Error("alerts: webhook delivery failed",
				zap.String("type", wh.Type),
				zap.String("rule", a.RuleName),
				zap.Int("loop", a.Loop),
				zap.Error(err))
			continue
		}
		zap.L().Debug("alerts: webhook delivered",
			zap.String("type", wh.Type),
			zap.String("rule", a.RuleName),
			zap.String("state", a.State))
	}
}

// slackPayload uses a legacy attachment so the severity color shows.
func slackPayload(a *Alert, n notice) []byte {
	fields := make([]map[string]any, 0, len(n.Facts))
	for _, f := range n.Facts {
		fields = append(fields, map[string]any{"title": f.Name, "value": f.Value, "short": true})
	}
	return marshal(map[string]any{
		"text": fmt.Sprintf("%s *%s*", severityLabel(a.Severity, a.State), n.Title),
		"attachments": []map[string]any{{
			"color":  "#" + n.Color,
			"text":   n.Text,
			"fields": fields,
			"ts":     a.SampleTime.Unix(),
		}},
	})
}

func teamsPayload(n notice) []byte {
	return marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": n.Color,
		"summary":    n.Title,
		"title":      n.Title,
		"text":       n.Text,
		"sections":   []map[string]any{{"facts": n.Facts}},
	})
}

// httpPayload is the full alert plus the rendered title for generic receivers.
func httpPayload(a *Alert, n notice) []byte {
	return marshal(map[string]any{"title": n.Title, "alert": a})
}

func marshal(v any) []byte {
	body, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("alerts: encode webhook payload", zap.Error(err))
		return nil
	}
	return body
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// metricName is the short display name of a condition metric.
func metricName(m string) string {
	switch m {
	case "ie", "ise", "iae":
		return strings.ToUpper(m)
	case "error":
		return "last error"
	default:
		return "error " + m
	}
}

func metricDescription(m string) string {
	switch m {
	case "ie":
		return "IE (integral of error)"
	case "ise":
		return "ISE (integral of squared error)"
	case "iae":
		return "IAE (integral of absolute error)"
	case "error":
		return "terminal error value"
	case "std":
		return "error standard deviation"
	default:
		return "error " + m
	}
}

func opPhrase(op string) string {
	switch op {
	case ">":
		return "above"
	case ">=":
		return "at or above"
	case "<":
		return "below"
	case "<=":
		return "at or below"
	default:
		return "equal to"
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

const resolvedColor = "2EB67D"

func severityLabel(sev, state string) string {
	if state == "resolved" {
		return "[RESOLVED]"
	}
	switch sev {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
