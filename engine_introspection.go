package tokenguard

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenguard/internal/flows"
)

// BackendHealth is the probe result of one storage backend.
type BackendHealth struct {
	// Checked is false when the backend cannot be probed.
	Checked bool
	OK      bool
	Latency time.Duration
	Error   string
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	// Healthy is false when the blacklist or replay store is unreachable.
	// The validation cache is advisory and never affects it.
	Healthy   bool
	Blacklist BackendHealth
	Replay    BackendHealth
	Cache     BackendHealth
	// DurableRevocation reports whether revocations survive a restart.
	DurableRevocation bool
}

// Health probes every backend that supports it. Probes are bounded by the
// blacklist timeout.
//
// Health does not mutate shared state and can be used concurrently.
func (e *Engine) Health(ctx context.Context) (HealthStatus, error) {
	if !e.ready() {
		return HealthStatus{}, ErrEngineNotReady
	}
	res := e.flows.Health(ctx)
	return HealthStatus{
		Healthy:           res.Healthy(),
		Blacklist:         toBackendHealth(res.Blacklist),
		Replay:            toBackendHealth(res.Replay),
		Cache:             toBackendHealth(res.Cache),
		DurableRevocation: e.blacklist.Durable() && e.replay.Durable(),
	}, nil
}

func toBackendHealth(c flows.ComponentHealth) BackendHealth {
	out := BackendHealth{Checked: c.Checked, OK: c.OK, Latency: c.Latency}
	if c.Err != nil {
		out.Error = c.Err.Error()
	}
	return out
}
