package influx

import "time"

// Record is one row returned by a range query.
// Value keeps the type the client decoded it to (float64, int64, string...).
type Record struct {
	Time        time.Time
	Measurement string
	Field       string
	Value       any
}

// Point is one row to be written. Fields hold float64 or string values.
type Point struct {
	Measurement string            `json:"measurement"`
	Tags        map[string]string `json:"tags"`
	Fields      map[string]any    `json:"fields"`
	Time        time.Time         `json:"time"`
}

// Selector matches records by measurement and field name.
type Selector struct {
	Measurement string
	Field       string
}

// Matches reports whether r belongs to the series s selects.
func (s Selector) Matches(r Record) bool {
	return r.Measurement == s.Measurement && r.Field == s.Field
}
