package mcporchestrator

import (
	"context"
	"log/slog"
	"time"
)

// healthCheckLoop probes every registered server on cfg.HealthCheckInterval
// until ctx is cancelled.
func (o *Orchestrator) healthCheckLoop(ctx context.Context) {
	interval := o.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.performHealthChecks(ctx)
		}
	}
}

// performHealthChecks probes every registered server once, classifying
// each by the spec's health_score thresholds and appending to its
// retained history (capped, trimmed to the most recent half when full).
func (o *Orchestrator) performHealthChecks(ctx context.Context) {
	o.mu.RLock()
	targets := make(map[string]Target, len(o.servers))
	for name, reg := range o.servers {
		if reg.Target != nil {
			targets[name] = reg.Target
		}
	}
	o.mu.RUnlock()

	for name, target := range targets {
		status := classifyHealth(target.HealthCheck(ctx))
		now := o.now()

		o.mu.Lock()
		reg, ok := o.servers[name]
		if ok {
			reg.Health = status
			reg.LastHealthCheck = now
			hist := append(o.healthLog[name], HealthRecord{At: now, Status: status})
			if len(hist) > healthHistoryLimit {
				hist = hist[len(hist)-healthHistoryTrimTo:]
			}
			o.healthLog[name] = hist
		}
		o.mu.Unlock()

		o.incrHealthChecksPerformed()
	}
}

func classifyHealth(report HealthReport, err error) ServerHealth {
	if err != nil {
		slog.Warn("mcporchestrator.health_check_failed", "error", err)
		return HealthUnknown
	}
	switch {
	case report.Healthy && report.Score >= 8.0:
		return HealthHealthy
	case report.Healthy && report.Score >= 5.0:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}

// HealthSummaryEntry is one server's row in GetHealthSummary.
type HealthSummaryEntry struct {
	Status       ServerHealth
	LastCheck    time.Time
	LastActivity time.Time
	LoadCount    int
}

// HealthSummary aggregates every registered server's current status.
type HealthSummary struct {
	TotalServers     int
	HealthyServers   int
	DegradedServers  int
	UnhealthyServers int
	UnknownServers   int
	Servers          map[string]HealthSummaryEntry
}

// GetHealthSummary reports the current health of every registered server.
func (o *Orchestrator) GetHealthSummary() HealthSummary {
	o.mu.RLock()
	defer o.mu.RUnlock()

	summary := HealthSummary{
		TotalServers: len(o.servers),
		Servers:      make(map[string]HealthSummaryEntry, len(o.servers)),
	}
	for name, reg := range o.servers {
		switch reg.Health {
		case HealthHealthy:
			summary.HealthyServers++
		case HealthDegraded:
			summary.DegradedServers++
		case HealthUnhealthy:
			summary.UnhealthyServers++
		default:
			summary.UnknownServers++
		}
		summary.Servers[name] = HealthSummaryEntry{
			Status:       reg.Health,
			LastCheck:    reg.LastHealthCheck,
			LastActivity: reg.LastActivity,
			LoadCount:    o.loadCounters[name],
		}
	}
	return summary
}
