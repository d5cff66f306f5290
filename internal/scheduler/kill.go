package scheduler

import (
	"context"
	"log/slog"
	"time"

	"shepherd/internal/changespec"
	"shepherd/internal/logging"
	"shepherd/internal/procs"
	"shepherd/internal/specstore"
)

// KillRecordJobs forcibly terminates every job running against a record
// and persists the outcome: claims are cleared and RUNNING status lines
// flip to DEAD with a duration measured against now. It returns how many
// distinct PIDs were signaled. Usable from both the scheduler and the
// CLI, which runs without a scheduler.
func KillRecordJobs(ctx context.Context, store *specstore.Store, processes procs.Processes, project, name string, now time.Time, logger *slog.Logger) (int, error) {
	logger = logging.NewComponentLogger(logger, "kill")

	killed := map[int]bool{}
	err := store.UpdateRecord(ctx, project, name, func(rec *changespec.Record) (bool, error) {
		changed := false

		for _, claim := range rec.Claims {
			if !killed[claim.PID] {
				killed[claim.PID] = true
				killPID(processes, claim.PID, rec.Name, logger)
			}
		}
		if len(rec.Claims) > 0 {
			rec.Claims = nil
			changed = true
		}

		forEachStatusLine(rec, func(line *changespec.StatusLine) {
			if line.State != changespec.RunStateRunning {
				return
			}
			if sfx := line.Suffix; sfx != nil && (sfx.Kind == changespec.SuffixRunningAgent || sfx.Kind == changespec.SuffixRunningProcess) {
				if !killed[sfx.PID] {
					killed[sfx.PID] = true
					killPID(processes, sfx.PID, rec.Name, logger)
				}
			}
			line.State = changespec.RunStateDead
			line.Duration = now.Sub(line.At)
			line.Suffix = nil
			changed = true
		})

		return changed, nil
	})
	return len(killed), err
}

func killPID(processes procs.Processes, pid int, record string, logger *slog.Logger) {
	if err := processes.Kill(pid); err != nil {
		logger.Warn("failed to kill job",
			logging.String(logging.FieldRecord, record),
			logging.Int(logging.FieldPID, pid),
			logging.Error(err),
		)
		return
	}
	logger.Info("killed job",
		logging.String(logging.FieldRecord, record),
		logging.Int(logging.FieldPID, pid),
	)
}

// KillAndPersist terminates every job on the named record through this
// scheduler's store and process table.
func (s *Scheduler) KillAndPersist(ctx context.Context, project, name string) (int, error) {
	return KillRecordJobs(ctx, s.store, s.processes, project, name, s.clock.Now(), s.logger)
}
