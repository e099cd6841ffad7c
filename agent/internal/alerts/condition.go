package alerts

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/obsidianstack/ctrlperf/agent/internal/compute"
	"github.com/obsidianstack/ctrlperf/agent/internal/config"
)

// condition is a parsed "field op value" rule expression.
type condition struct {
	field     string
	op        string
	threshold float64
}

// ValidateCondition reports whether expr is a well-formed rule condition.
func ValidateCondition(expr string) error {
	_, err := parseCondition(expr)
	return err
}

// parseCondition parses an expression of the form "field op value":
//
//	ise1 > 50
//	iae2 >= 12.5
//	std1 > 0.8
//	error2 < -3
//
// Fields are ie1, ise1, iae1, max1, min1, mean1, std1, error1 and the same
// with a 2 suffix for loop 2. Operators are >, >=, <, <= and ==.
func parseCondition(expr string) (condition, error) {
	parts := strings.Fields(expr)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("condition %q: want \"field op value\"", expr)
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if _, _, ok := lookup(field, &compute.Result{}); !ok {
		return condition{}, fmt.Errorf("condition %q: unknown field %q", expr, field)
	}
	switch op {
	case ">", ">=", "<", "<=", "==":
	default:
		return condition{}, fmt.Errorf("condition %q: unknown operator %q", expr, op)
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return condition{}, fmt.Errorf("condition %q: bad threshold: %w", expr, err)
	}
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return condition{}, fmt.Errorf("condition %q: threshold must be finite", expr)
	}
	return condition{field: field, op: op, threshold: threshold}, nil
}

// loop returns the control loop (1 or 2) the condition reads.
func (c condition) loop() int {
	if strings.HasSuffix(c.field, "2") {
		return 2
	}
	return 1
}

// metric returns the field name without its loop suffix, e.g. "ise".
func (c condition) metric() string {
	return c.field[:len(c.field)-1]
}

// ValidateRules checks every rule condition and returns all problems joined.
func ValidateRules(rules []config.AlertRule) error {
	var errs []error
	for _, r := range rules {
		if err := ValidateCondition(r.Condition); err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", r.Name, err))
		}
	}
	return errors.Join(errs...)
}

// eval returns whether c holds for res and the value it was tested on.
// A field with no value (an index that could not be computed) never fires.
func (c condition) eval(res *compute.Result) (bool, float64) {
	v, present, _ := lookup(c.field, res)
	if !present {
		return false, 0
	}
	return compareFloat(v, c.op, c.threshold), v
}

// lookup maps a field name to its value in res. present is false for an
// absent index; known is false for an unrecognised field.
func lookup(field string, res *compute.Result) (v float64, present, known bool) {
	if len(field) < 2 {
		return 0, false, false
	}
	var loop *compute.LoopResult
	switch field[len(field)-1] {
	case '1':
		loop = &res.Loop1
	case '2':
		loop = &res.Loop2
	default:
		return 0, false, false
	}

	deref := func(p *float64) (float64, bool, bool) {
		if p == nil {
			return 0, false, true
		}
		return *p, true, true
	}

	switch field[:len(field)-1] {
	case "ie":
		return deref(loop.Indices.IE)
	case "ise":
		return deref(loop.Indices.ISE)
	case "iae":
		return deref(loop.Indices.IAE)
	case "max":
		return loop.Stats.Max, true, true
	case "min":
		return loop.Stats.Min, true, true
	case "mean":
		return loop.Stats.Mean, true, true
	case "std":
		return loop.Stats.Std, true, true
	case "error":
		return loop.LastError, true, true
	default:
		return 0, false, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
