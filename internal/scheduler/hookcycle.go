package scheduler

import (
	"context"
	"fmt"
	"time"

	"shepherd/internal/changespec"
	"shepherd/internal/logging"
)

// RunHookCycle is the fast cadence: it folds finished check results
// into records, starts whatever jobs are needed up to the global runner
// bound, reaps zombie status lines, and normalizes proposal and
// ready-to-mail markers.
func (s *Scheduler) RunHookCycle(ctx context.Context) error {
	s.pool.ResetTick()
	now := s.clock.Now()

	records, errs := s.store.Load(ctx)
	for _, err := range errs {
		s.logger.Warn("skipping unreadable record in hook cycle", logging.Error(err))
	}
	byName := make(map[string]*changespec.Record, len(records))
	for _, rec := range records {
		byName[rec.Name] = rec
	}

	// Once one reservation comes back empty the bound is hit for this
	// tick; later records get their turn next tick.
	capacityExhausted := false
	for _, rec := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.filter.Matches(rec) || rec.Status == changespec.StatusSubmitted {
			continue
		}

		if err := s.checker.PollChecks(ctx, rec); err != nil {
			s.logger.Warn("failed to poll checks",
				logging.String(logging.FieldProject, rec.Project),
				logging.String(logging.FieldRecord, rec.Name),
				logging.Error(err),
			)
			s.errors.Add(now, "hook", err)
			s.metrics.Errors.Add(1)
		}

		if capacityExhausted {
			continue
		}
		for _, job := range s.checker.JobsNeeded(rec) {
			granted, err := s.pool.TryReserve(ctx, 1)
			if err != nil {
				return fmt.Errorf("reserve runner slot: %w", err)
			}
			if granted == 0 {
				capacityExhausted = true
				break
			}
			s.startJob(ctx, rec, job, now)
		}
	}

	if reaped, err := s.reapZombies(ctx); err != nil {
		s.logger.Warn("zombie sweep incomplete", logging.Error(err))
		s.errors.Add(now, "hook", err)
		s.metrics.Errors.Add(1)
	} else if reaped > 0 {
		s.logger.Info("marked stale runs dead", logging.Int("count", reaped))
	}

	if err := s.normalizeRecords(ctx, byName); err != nil {
		s.logger.Warn("record normalization incomplete", logging.Error(err))
		s.errors.Add(now, "hook", err)
		s.metrics.Errors.Add(1)
	}

	s.metrics.HookCycles.Add(1)
	s.markHookCycle(now)
	return nil
}

// startJob launches one external job and persists the outcome. A start
// failure is recorded as a FAILED status line so the record shows what
// happened; it does not abort the cycle.
func (s *Scheduler) startJob(ctx context.Context, rec *changespec.Record, job JobSpec, now time.Time) {
	logger := s.logger.With(
		logging.String(logging.FieldProject, rec.Project),
		logging.String(logging.FieldRecord, rec.Name),
		logging.String(logging.FieldWorkflow, job.Workflow),
	)

	started, err := s.runner.StartJob(ctx, rec, job)
	if err != nil {
		s.metrics.JobStartFailures.Add(1)
		logger.Warn("job failed to start", logging.Error(err))
		line := changespec.StatusLine{
			Entry:  job.Entry,
			At:     now,
			State:  changespec.RunStateFailed,
			Suffix: &changespec.Suffix{Kind: changespec.SuffixError, Message: err.Error()},
		}
		if persistErr := s.appendRunLine(ctx, rec.Project, rec.Name, job, line); persistErr != nil {
			logger.Warn("failed to record start failure", logging.Error(persistErr))
		}
		return
	}

	slot := s.pool.FindFirstAvailableSlot(rec)
	if err := s.pool.PersistClaim(ctx, rec.Project, rec.Name, slot, started.PID, job.Workflow); err != nil {
		logger.Warn("failed to persist claim; killing job", logging.Error(err))
		if killErr := s.processes.Kill(started.PID); killErr != nil {
			logger.Warn("failed to kill unclaimed job", logging.Error(killErr))
		}
		s.metrics.JobStartFailures.Add(1)
		return
	}

	if job.Kind != JobWorkflow {
		line := changespec.StatusLine{
			Entry:  job.Entry,
			At:     now,
			State:  changespec.RunStateRunning,
			Suffix: &changespec.Suffix{Kind: changespec.SuffixRunningProcess, PID: started.PID},
		}
		if err := s.appendRunLine(ctx, rec.Project, rec.Name, job, line); err != nil {
			logger.Warn("failed to record running job", logging.Error(err))
		}
	}

	s.metrics.JobsStarted.Add(1)
	logger.Info("job started",
		logging.Int(logging.FieldPID, started.PID),
		logging.Int(logging.FieldSlot, slot),
		logging.String(logging.FieldEntry, job.Entry.String()),
	)
}

// appendRunLine adds a status line to the section the job belongs to,
// creating the hook/mentor/comment entry if the record does not list it
// yet.
func (s *Scheduler) appendRunLine(ctx context.Context, project, name string, job JobSpec, line changespec.StatusLine) error {
	return s.store.UpdateRecord(ctx, project, name, func(rec *changespec.Record) (bool, error) {
		switch job.Kind {
		case JobHook:
			for _, hook := range rec.Hooks {
				if hook.Command == job.Target {
					hook.Lines = append(hook.Lines, line)
					return true, nil
				}
			}
			rec.Hooks = append(rec.Hooks, &changespec.HookEntry{Command: job.Target, Lines: []changespec.StatusLine{line}})
			return true, nil
		case JobMentor:
			rec.Mentors = appendCheckLine(rec.Mentors, job.Target, line)
			return true, nil
		case JobComment:
			rec.Comments = appendCheckLine(rec.Comments, job.Target, line)
			return true, nil
		}
		return false, fmt.Errorf("job kind %q carries no status line", job.Kind)
	})
}

func appendCheckLine(checks []*changespec.CheckEntry, target string, line changespec.StatusLine) []*changespec.CheckEntry {
	for _, check := range checks {
		if check.Name == target {
			check.Lines = append(check.Lines, line)
			return checks
		}
	}
	return append(checks, &changespec.CheckEntry{Name: target, Lines: []changespec.StatusLine{line}})
}

// reapZombies marks RUNNING status lines dead once they are past the
// zombie timeout and their recorded PID is gone. The records are scanned
// without the lock first; projects with no candidates are skipped so the
// common case takes no locks at all.
func (s *Scheduler) reapZombies(ctx context.Context) (int, error) {
	projects, err := s.store.Projects()
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	timeout := time.Duration(s.cfg.Scheduler.ZombieTimeout) * time.Second

	total := 0
	for _, project := range projects {
		records, _ := s.store.LoadProject(project)
		candidates := false
		for _, rec := range records {
			if s.countZombies(rec, now, timeout) > 0 {
				candidates = true
				break
			}
		}
		if !candidates {
			continue
		}

		err := s.store.WithLock(ctx, project, func(records []*changespec.Record) (bool, error) {
			changed := false
			for _, rec := range records {
				reaped := s.markZombiesDead(rec, now, timeout)
				if reaped > 0 {
					changed = true
					total += reaped
					s.logger.Info("reaped zombie runs",
						logging.String(logging.FieldProject, project),
						logging.String(logging.FieldRecord, rec.Name),
						logging.Int("count", reaped),
					)
				}
			}
			return changed, nil
		})
		if err != nil {
			return total, err
		}
	}
	s.metrics.ZombiesReaped.Add(uint64(total))
	return total, nil
}

func (s *Scheduler) countZombies(rec *changespec.Record, now time.Time, timeout time.Duration) int {
	count := 0
	forEachStatusLine(rec, func(line *changespec.StatusLine) {
		if s.isZombie(line, now, timeout) {
			count++
		}
	})
	return count
}

func (s *Scheduler) markZombiesDead(rec *changespec.Record, now time.Time, timeout time.Duration) int {
	count := 0
	forEachStatusLine(rec, func(line *changespec.StatusLine) {
		if !s.isZombie(line, now, timeout) {
			return
		}
		line.State = changespec.RunStateDead
		line.Duration = now.Sub(line.At)
		line.Suffix = nil
		count++
	})
	return count
}

// isZombie reports whether a RUNNING line has aged past the timeout
// with no live process behind it. A line with a live PID is left alone
// no matter how old; one with no PID suffix at all has nothing to wait
// for once stale.
func (s *Scheduler) isZombie(line *changespec.StatusLine, now time.Time, timeout time.Duration) bool {
	if line.State != changespec.RunStateRunning {
		return false
	}
	if now.Sub(line.At) <= timeout {
		return false
	}
	if sfx := line.Suffix; sfx != nil && (sfx.Kind == changespec.SuffixRunningAgent || sfx.Kind == changespec.SuffixRunningProcess) {
		return !s.processes.Alive(sfx.PID)
	}
	return true
}

func forEachStatusLine(rec *changespec.Record, fn func(*changespec.StatusLine)) {
	for _, hook := range rec.Hooks {
		for i := range hook.Lines {
			fn(&hook.Lines[i])
		}
	}
	for _, check := range rec.Comments {
		for i := range check.Lines {
			fn(&check.Lines[i])
		}
	}
	for _, check := range rec.Mentors {
		for i := range check.Lines {
			fn(&check.Lines[i])
		}
	}
}

// normalizeRecords applies the marker maintenance every tick: stale
// proposals get a rejected marker, and the ready-to-mail flag is set or
// cleared to match what the record's hooks and parent actually say.
func (s *Scheduler) normalizeRecords(ctx context.Context, byName map[string]*changespec.Record) error {
	projects, err := s.store.Projects()
	if err != nil {
		return err
	}
	for _, project := range projects {
		err := s.store.WithLock(ctx, project, func(records []*changespec.Record) (bool, error) {
			changed := false
			for _, rec := range records {
				if rec.Status == changespec.StatusSubmitted {
					continue
				}
				if s.rejectStaleProposals(rec) {
					changed = true
				}
				if s.syncReadyToMail(rec, byName) {
					changed = true
				}
			}
			return changed, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// rejectStaleProposals replaces the new-proposal marker on proposals
// whose base predates the newest accepted entry. Such a proposal was
// generated against code that has since moved on, so it needs
// regeneration, not review.
func (s *Scheduler) rejectStaleProposals(rec *changespec.Record) bool {
	max := rec.MaxNumericID()
	changed := false
	for _, entry := range rec.Entries {
		if !entry.ID.IsProposal() || entry.ID.Num >= max {
			continue
		}
		if entry.Suffix == nil || entry.Suffix.Kind != changespec.SuffixNewProposal {
			continue
		}
		entry.Suffix = &changespec.Suffix{
			Kind:  changespec.SuffixRejectedProposal,
			Entry: changespec.EntryID{Num: max},
		}
		changed = true
	}
	return changed
}

// syncReadyToMail keeps the record's attention marker in step with its
// hook results. The marker never overwrites a different attention
// marker; a needs-attention flag set by a human outranks it.
func (s *Scheduler) syncReadyToMail(rec *changespec.Record, byName map[string]*changespec.Record) bool {
	ready := s.isReadyToMail(rec, byName)
	switch {
	case ready && rec.Attention == nil:
		rec.Attention = &changespec.Suffix{Kind: changespec.SuffixReadyToMail}
		return true
	case !ready && rec.Attention != nil && rec.Attention.Kind == changespec.SuffixReadyToMail:
		rec.Attention = nil
		return true
	}
	return false
}

// isReadyToMail reports whether the record's latest accepted entry has a
// passing run for every configured hook, its lifecycle status still
// permits mailing, and its parent is out of the way.
func (s *Scheduler) isReadyToMail(rec *changespec.Record, byName map[string]*changespec.Record) bool {
	if rec.Status != changespec.StatusWIP && rec.Status != changespec.StatusDrafted {
		return false
	}
	latest := rec.LatestEntryID()
	if latest.Num == 0 || len(rec.Hooks) == 0 {
		return false
	}
	if !s.isReadyLeaf(rec, byName) {
		return false
	}
	for _, hook := range rec.Hooks {
		if latestStateFor(hook.Lines, latest) != changespec.RunStatePassed {
			return false
		}
	}
	return true
}

// latestStateFor returns the state of the newest status line for the
// given entry, or the empty state when the entry was never run.
func latestStateFor(lines []changespec.StatusLine, entry changespec.EntryID) changespec.RunState {
	var (
		state changespec.RunState
		at    time.Time
		found bool
	)
	for _, line := range lines {
		if line.Entry != entry {
			continue
		}
		if !found || !line.At.Before(at) {
			state = line.State
			at = line.At
			found = true
		}
	}
	return state
}
