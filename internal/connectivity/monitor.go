// Package connectivity turns periodic remote health checks into
// online/offline transitions for the coordinator.
package connectivity

import (
	"context"
	"errors"
	"time"

	"recipebox/internal/config"
	"recipebox/internal/recipebox"
)

// Pinger is the health check the monitor runs. RemoteService satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Target receives connectivity signals. *recipebox.Coordinator satisfies it.
type Target interface {
	SetOnline(ctx context.Context, online bool)
}

// Monitor probes a remote and reports each result to a target.
// Targets are expected to ignore repeated signals with the same state.
type Monitor struct {
	pinger   Pinger
	target   Target
	logger   recipebox.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewMonitor creates a monitor with the interval and timeout from cfg.
func NewMonitor(pinger Pinger, target Target, logger recipebox.Logger, cfg config.ConnectivityConfig) *Monitor {
	return &Monitor{
		pinger:   pinger,
		target:   target,
		logger:   logger,
		interval: cfg.Interval(),
		timeout:  cfg.Timeout(),
	}
}

// Probe runs one health check, reports the result to the target and returns it.
// A remote that answers but rejects our credentials counts as offline:
// draining the queue against it cannot succeed.
func (m *Monitor) Probe(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.pinger.Ping(pingCtx)
	cancel()

	online := err == nil
	switch {
	case err == nil:
	case errors.Is(err, recipebox.ErrUnauthorized):
		m.logger.Error("remote rejected credentials", "error", err)
	default:
		m.logger.Debug("remote not reachable", "error", err)
	}

	m.target.SetOnline(ctx, online)
	return online
}

// Run probes immediately and then once per interval until ctx is done.
// It returns ctx.Err().
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("connectivity monitor started", "interval", m.interval, "timeout", m.timeout)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			break
		}
		m.Probe(ctx)

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}

	m.logger.Info("connectivity monitor stopped")
	return ctx.Err()
}

// Compile-time check that the coordinator accepts connectivity signals
var _ Target = (*recipebox.Coordinator)(nil)
