package status

import (
	"io"
	"sort"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

var textFormat = expfmt.NewFormat(expfmt.TypeTextPlain)

const (
	metricIndex        = "ctrlperf_index"
	metricErrorStat    = "ctrlperf_error_stat"
	metricLastError    = "ctrlperf_last_error"
	metricCycles       = "ctrlperf_cycle_total"
	metricSpoolPending = "ctrlperf_spool_pending"
	metricResultTime   = "ctrlperf_result_timestamp_seconds"
)

// WriteMetrics renders the latest computed result and the cycle counters of
// st in the Prometheus text exposition format.
func WriteMetrics(w io.Writer, st *Store, spoolPending int) error {
	enc := expfmt.NewEncoder(w, textFormat)
	for _, mf := range Families(st, spoolPending) {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Families builds the metric families exposed on /metrics. Index and
// statistic gauges are omitted until a cycle has computed a result.
func Families(st *Store, spoolPending int) []*dto.MetricFamily {
	var out []*dto.MetricFamily

	if rep, ok := st.LatestResult(); ok {
		res := rep.Result
		idx := family(metricIndex, "Integral performance index of the latest cycle.", dto.MetricType_GAUGE)
		stats := family(metricErrorStat, "Error signal statistic of the latest cycle.", dto.MetricType_GAUGE)
		last := family(metricLastError, "Terminal error value of the latest cycle.", dto.MetricType_GAUGE)

		for n := 1; n <= 2; n++ {
			lr := res.Loop(n)
			loop := strconv.Itoa(n)
			for _, iv := range []struct {
				name string
				v    *float64
			}{
				{"ie", lr.Indices.IE},
				{"ise", lr.Indices.ISE},
				{"iae", lr.Indices.IAE},
			} {
				if iv.v == nil {
					continue
				}
				idx.Metric = append(idx.Metric, gauge(*iv.v, "loop", loop, "index", iv.name))
			}
			for _, sv := range []struct {
				name string
				v    float64
			}{
				{"max", lr.Stats.Max},
				{"min", lr.Stats.Min},
				{"mean", lr.Stats.Mean},
				{"std", lr.Stats.Std},
			} {
				stats.Metric = append(stats.Metric, gauge(sv.v, "loop", loop, "stat", sv.name))
			}
			last.Metric = append(last.Metric, gauge(lr.LastError, "loop", loop))
		}

		ts := family(metricResultTime, "Reference timestamp of the latest computed result.", dto.MetricType_GAUGE)
		ts.Metric = append(ts.Metric, gauge(float64(res.Timestamp.UnixNano())/1e9))

		if len(idx.Metric) > 0 {
			out = append(out, idx)
		}
		out = append(out, stats, last, ts)
	}

	cycles := family(metricCycles, "Analysis cycles by outcome.", dto.MetricType_COUNTER)
	outcomes := st.Outcomes()
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cycles.Metric = append(cycles.Metric, &dto.Metric{
			Label:   labels("outcome", k),
			Counter: &dto.Counter{Value: proto.Float64(float64(outcomes[k]))},
		})
	}
	if len(cycles.Metric) > 0 {
		out = append(out, cycles)
	}

	spool := family(metricSpoolPending, "Result batches waiting in the spool for replay.", dto.MetricType_GAUGE)
	spool.Metric = append(spool.Metric, gauge(float64(spoolPending)))
	out = append(out, spool)

	return out
}

func family(name, help string, typ dto.MetricType) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: typ.Enum(),
	}
}

func gauge(v float64, kv ...string) *dto.Metric {
	return &dto.Metric{
		Label: labels(kv...),
		Gauge: &dto.Gauge{Value: proto.Float64(v)},
	}
}

// labels builds label pairs from alternating names and values.
func labels(kv ...string) []*dto.LabelPair {
	out := make([]*dto.LabelPair, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, &dto.LabelPair{Name: proto.String(kv[i]), Value: proto.String(kv[i+1])})
	}
	return out
}
