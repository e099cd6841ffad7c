package sink

import (
	"github.com/obsidianstack/ctrlperf/agent/internal/compute"
	"github.com/obsidianstack/ctrlperf/agent/internal/influx"
)

// Tag is the single key/value tag attached to every point of one loop.
type Tag struct {
	Key   string
	Value string
}

// DefaultTags are the loop tags the plant dashboards filter on.
var DefaultTags = [2]Tag{
	{Key: "opcua", Value: "plc"},
	{Key: "s7conn", Value: "plc"},
}

// indexNames are the measurement names of the index batch, per loop.
// The field name equals the measurement name.
var indexNames = [2][3]string{
	{"IE", "ISE", "IAE"},
	{"IE2", "ISE2", "IAE2"},
}

// statNames are the measurement names of the statistics batch, per loop,
// in max, min, mean, std order.
var statNames = [2][4]string{
	{"ErrorStats1", "ErrorStats11", "ErrorStats111", "ErrorStats1111"},
	{"ErrorStats2", "ErrorStats22", "ErrorStats222", "ErrorStats2222"},
}

const (
	errorValuesMeasurement = "ErrorValues"
	fieldStatName          = "stat_name"
	fieldValue             = "value"
	fieldErrorSignal       = "error_signal"
)

// IndexPoints builds the index batch: IE, ISE, IAE for loop 1 followed by
// IE2, ISE2, IAE2 for loop 2. Indices that could not be computed are
// skipped, so a full batch has six points.
func IndexPoints(res *compute.Result, tags [2]Tag) []influx.Point {
	pts := make([]influx.Point, 0, 6)
	for loop := 0; loop < 2; loop++ {
		idx := res.Loop(loop + 1).Indices
		for i, v := range []*float64{idx.IE, idx.ISE, idx.IAE} {
			if v == nil {
				continue
			}
			name := indexNames[loop][i]
			pts = append(pts, point(name, tags[loop], res, map[string]any{name: *v}))
		}
	}
	return pts
}

// StatisticsPoints builds the statistics batch: four stat points per loop
// followed by one ErrorValues point per loop carrying the terminal error.
func StatisticsPoints(res *compute.Result, tags [2]Tag) []influx.Point {
	pts := make([]influx.Point, 0, 10)
	for loop := 0; loop < 2; loop++ {
		st := res.Loop(loop + 1).Stats
		for i, sv := range []struct {
			name  string
			value float64
		}{
			{"max", st.Max},
			{"min", st.Min},
			{"mean", st.Mean},
			{"std", st.Std},
		} {
			pts = append(pts, point(statNames[loop][i], tags[loop], res, map[string]any{
				fieldStatName: sv.name,
				fieldValue:    sv.value,
			}))
		}
	}
	for loop := 0; loop < 2; loop++ {
		signal := "error_signal1"
		if loop == 1 {
			signal = "error_signal2"
		}
		pts = append(pts, point(errorValuesMeasurement, tags[loop], res, map[string]any{
			fieldErrorSignal: signal,
			fieldValue:       res.Loop(loop + 1).LastError,
		}))
	}
	return pts
}

func point(measurement string, tag Tag, res *compute.Result, fields map[string]any) influx.Point {
	return influx.Point{
		Measurement: measurement,
		Tags:        map[string]string{tag.Key: tag.Value},
		Fields:      fields,
		Time:        res.Timestamp,
	}
}
