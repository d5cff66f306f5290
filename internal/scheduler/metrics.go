package scheduler

import (
	"sync/atomic"
	"time"
)

// Metrics holds the scheduler's monotonic counters.
type Metrics struct {
	FullCycles       atomic.Uint64
	HookCycles       atomic.Uint64
	JobsStarted      atomic.Uint64
	JobStartFailures atomic.Uint64
	ZombiesReaped    atomic.Uint64
	OrphansReleased  atomic.Uint64
	Errors           atomic.Uint64
}

// MetricsSnapshot is the JSON form written to metrics.json.
type MetricsSnapshot struct {
	SessionID        string    `json:"session_id"`
	GeneratedAt      time.Time `json:"generated_at"`
	FullCycles       uint64    `json:"full_cycles"`
	HookCycles       uint64    `json:"hook_cycles"`
	JobsStarted      uint64    `json:"jobs_started"`
	JobStartFailures uint64    `json:"job_start_failures"`
	ZombiesReaped    uint64    `json:"zombies_reaped"`
	OrphansReleased  uint64    `json:"orphans_released"`
	Errors           uint64    `json:"errors"`
}

func (m *Metrics) snapshot(sessionID string, at time.Time) MetricsSnapshot {
	return MetricsSnapshot{
		SessionID:        sessionID,
		GeneratedAt:      at.UTC(),
		FullCycles:       m.FullCycles.Load(),
		HookCycles:       m.HookCycles.Load(),
		JobsStarted:      m.JobsStarted.Load(),
		JobStartFailures: m.JobStartFailures.Load(),
		ZombiesReaped:    m.ZombiesReaped.Load(),
		OrphansReleased:  m.OrphansReleased.Load(),
		Errors:           m.Errors.Load(),
	}
}
