package flows

import (
	"context"
	"time"
)

type HealthPinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// HealthDeps names the backends probed by RunHealth. Nil entries are skipped.
type HealthDeps struct {
	Blacklist HealthPinger
	Replay    HealthPinger
	Cache     HealthPinger
	Timeout   time.Duration
}

// ComponentHealth is the probe result of one backend.
type ComponentHealth struct {
	Checked bool
	OK      bool
	Latency time.Duration
	Err     error
}

// HealthResult aggregates backend probes.
type HealthResult struct {
	Blacklist ComponentHealth
	Replay    ComponentHealth
	Cache     ComponentHealth
}

// Healthy reports whether every checked backend that gates validation is up.
// The cache is advisory and does not affect the verdict.
func (r HealthResult) Healthy() bool {
	return (!r.Blacklist.Checked || r.Blacklist.OK) && (!r.Replay.Checked || r.Replay.OK)
}

func RunHealth(ctx context.Context, deps HealthDeps) HealthResult {
	return HealthResult{
		Blacklist: probe(ctx, deps.Blacklist, deps.Timeout),
		Replay:    probe(ctx, deps.Replay, deps.Timeout),
		Cache:     probe(ctx, deps.Cache, deps.Timeout),
	}
}

func probe(ctx context.Context, p HealthPinger, timeout time.Duration) ComponentHealth {
	if p == nil {
		return ComponentHealth{}
	}
	pctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	latency, err := p.Ping(pctx)
	return ComponentHealth{Checked: true, OK: err == nil, Latency: latency, Err: err}
}
