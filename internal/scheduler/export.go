package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"shepherd/internal/changespec"
	"shepherd/internal/fileutil"
	"shepherd/internal/logging"
)

// StatusSnapshot is the JSON document written to status.json for
// external viewers. Readers see a complete snapshot or the previous one,
// never a partial write.
type StatusSnapshot struct {
	PID             int            `json:"pid"`
	SessionID       string         `json:"session_id"`
	State           State          `json:"state"`
	StartedAt       time.Time      `json:"started_at"`
	UptimeSeconds   int64          `json:"uptime_seconds"`
	Runners         int            `json:"runners"`
	MaxRunners      int            `json:"max_runners"`
	LastFullCycle   *time.Time     `json:"last_full_cycle,omitempty"`
	LastHookCycle   *time.Time     `json:"last_hook_cycle,omitempty"`
	LastOrphanSweep *time.Time     `json:"last_orphan_sweep,omitempty"`
	RecordCounts    map[string]int `json:"record_counts"`
	Errors          uint64         `json:"errors"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// ExportStatus writes the status and recent-errors snapshots.
func (s *Scheduler) ExportStatus(ctx context.Context) error {
	now := s.clock.Now()

	runners, err := s.pool.CurrentCount(ctx)
	if err != nil {
		s.logger.Warn("runner count unavailable for status export", logging.Error(err))
		runners = -1
	}

	counts := make(map[string]int)
	records, _ := s.store.Load(ctx)
	for _, rec := range records {
		status := rec.Status
		if status == "" {
			status = changespec.StatusNotStarted
		}
		counts[string(status)]++
	}

	s.mu.Lock()
	snap := StatusSnapshot{
		PID:           os.Getpid(),
		SessionID:     s.sessionID,
		State:         s.state,
		StartedAt:     s.startedAt.UTC(),
		UptimeSeconds: int64(now.Sub(s.startedAt).Seconds()),
		Runners:       runners,
		MaxRunners:    s.pool.MaxRunners(),
		RecordCounts:  counts,
		Errors:        s.metrics.Errors.Load(),
		GeneratedAt:   now.UTC(),
	}
	snap.LastFullCycle = utcOrNil(s.lastFullCycle)
	snap.LastHookCycle = utcOrNil(s.lastHookCycle)
	snap.LastOrphanSweep = utcOrNil(s.lastOrphanSweep)
	s.mu.Unlock()

	if err := writeJSON(s.cfg.StatusFilePath(), snap); err != nil {
		return fmt.Errorf("export status: %w", err)
	}
	if err := writeJSON(s.cfg.RecentErrorsFilePath(), s.errors.Snapshot()); err != nil {
		return fmt.Errorf("export recent errors: %w", err)
	}
	return nil
}

// ExportMetrics writes the counter snapshot to metrics.json.
func (s *Scheduler) ExportMetrics() error {
	snap := s.metrics.snapshot(s.sessionID, s.clock.Now())
	if err := writeJSON(s.cfg.MetricsFilePath(), snap); err != nil {
		return fmt.Errorf("export metrics: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

func utcOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
