package influx

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BuildQuery renders the Flux range query used by the fetcher: every record
// of bucket newer than lookback whose (measurement, field) pair matches one
// of selectors.
func BuildQuery(bucket string, lookback time.Duration, selectors []Selector) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", strconv.Quote(bucket))
	fmt.Fprintf(&b, "  |> range(start: -%ds)\n", int64(lookback.Round(time.Second)/time.Second))
	b.WriteString("  |> filter(fn: (r) =>\n")
	for i, s := range selectors {
		fmt.Fprintf(&b, "    (r._measurement == %s and r._field == %s)",
			strconv.Quote(s.Measurement), strconv.Quote(s.Field))
		if i < len(selectors)-1 {
			b.WriteString(" or")
		}
		b.WriteString("\n")
	}
	b.WriteString("  )\n")
	return b.String()
}
