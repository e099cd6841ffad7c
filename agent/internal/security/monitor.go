package security

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultCheckInterval = time.Hour

// Monitor re-checks one endpoint periodically and keeps the latest result.
type Monitor struct {
	endpoint string
	insecure bool
	interval time.Duration
	latest   atomic.Pointer[CertStatus]
}

// NewMonitor returns a Monitor for endpoint. A non-positive interval checks
// hourly.
func NewMonitor(endpoint string, insecureSkipVerify bool, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Monitor{endpoint: endpoint, insecure: insecureSkipVerify, interval: interval}
}

// Latest returns the most recent check, or nil before the first check and
// for plain HTTP endpoints.
func (m *Monitor) Latest() *CertStatus { return m.latest.Load() }

// CheckNow runs one check and stores its result.
func (m *Monitor) CheckNow(ctx context.Context) *CertStatus {
	cs := Check(ctx, m.endpoint, m.insecure)
	if cs == nil {
		return nil
	}
	m.latest.Store(cs)
	if cs.Status != StatusValid {
		zap.L().Warn("security: store certificate needs attention",
			zap.String("endpoint", cs.Endpoint),
			zap.String("status", cs.Status),
			zap.Int("days_left", cs.DaysLeft))
	}
	return cs
}

// Run checks immediately and then every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	if m.CheckNow(ctx) == nil {
		return
	}
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.CheckNow(ctx)
		}
	}
}
