package influx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Options configures a Client.
type Options struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

// timeoutSeconds converts d to the whole seconds the client accepts,
// rounding up so a sub-second timeout never becomes 0 (no timeout).
func timeoutSeconds(d time.Duration) uint {
	if d <= 0 {
		return 0
	}
	return uint((d + time.Second - 1) / time.Second)
}

// Client is an open connection to one InfluxDB org/bucket. It is created
// once by Open, shared by the fetcher and the sink, and released by Close.
// Client is safe for concurrent use.
type Client struct {
	opts   Options
	client influxdb2.Client
	query  api.QueryAPI
	write  api.WriteAPIBlocking
}

// Open builds a client for opts and verifies the server answers a ping.
// The returned Client must be closed by the caller.
func Open(ctx context.Context, opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("influx: url is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	clientOpts := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(timeoutSeconds(opts.Timeout)).
		SetPrecision(time.Nanosecond)
	if opts.InsecureSkipVerify {
		clientOpts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // user-configured
	}

	ic := influxdb2.NewClientWithOptions(opts.URL, opts.Token, clientOpts)
	c := &Client{
		opts:   opts,
		client: ic,
		query:  ic.QueryAPI(opts.Org),
		write:  ic.WriteAPIBlocking(opts.Org, opts.Bucket),
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	ok, err := ic.Ping(pingCtx)
	if err != nil {
		ic.Close()
		return nil, fmt.Errorf("influx: ping %s: %w", opts.URL, err)
	}
	if !ok {
		ic.Close()
		return nil, fmt.Errorf("influx: ping %s: server not ready", opts.URL)
	}

	zap.L().Info("influx: connected",
		zap.String("url", opts.URL),
		zap.String("org", opts.Org),
		zap.String("bucket", opts.Bucket))
	return c, nil
}

// Bucket returns the bucket the client reads from and writes to.
func (c *Client) Bucket() string { return c.opts.Bucket }

// Query runs a Flux query and collects every record of every result table.
func (c *Client) Query(ctx context.Context, flux string) ([]Record, error) {
	res, err := c.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx: query: %w", err)
	}
	defer res.Close()

	var out []Record
	for res.Next() {
		r := res.Record()
		out = append(out, Record{
			Time:        r.Time(),
			Measurement: r.Measurement(),
			Field:       r.Field(),
			Value:       r.Value(),
		})
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("influx: read result: %w", err)
	}
	return out, nil
}

// WritePoints writes points synchronously with nanosecond precision.
func (c *Client) WritePoints(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	wps := make([]*write.Point, len(points))
	for i, p := range points {
		wps[i] = write.NewPoint(p.Measurement, p.Tags, p.Fields, p.Time)
	}
	if err := c.write.WritePoint(ctx, wps...); err != nil {
		return fmt.Errorf("influx: write %d points: %w", len(points), err)
	}
	return nil
}

// Close releases the client's idle connections.
func (c *Client) Close() {
	c.client.Close()
	zap.L().Debug("influx: closed", zap.String("url", c.opts.URL))
}
