package scheduler

import (
	"context"
	"time"

	"shepherd/internal/changespec"
	"shepherd/internal/logging"
)

// RunFullCycle launches out-of-band checks for every matching record
// whose throttle window has elapsed. Checks are started, never awaited;
// the hook cadence folds their results back in later.
//
// On the daemon's very first full cycle, records that are ready leaves
// (no parent, or a submitted parent) skip the throttle so a restart
// picks up actionable work immediately instead of waiting out windows
// persisted by the previous run.
func (s *Scheduler) RunFullCycle(ctx context.Context) error {
	now := s.clock.Now()
	firstCycle := s.isFirstFullCycle()
	window := time.Duration(s.cfg.Scheduler.FullCheckInterval) * time.Second

	records, errs := s.store.Load(ctx)
	for _, err := range errs {
		s.logger.Warn("skipping unreadable record in full cycle", logging.Error(err))
	}
	byName := make(map[string]*changespec.Record, len(records))
	for _, rec := range records {
		byName[rec.Name] = rec
	}

	checked := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.filter.Matches(rec) || rec.Status == changespec.StatusSubmitted {
			continue
		}

		bypass := firstCycle && s.isReadyLeaf(rec, byName)
		if !bypass {
			last, found, err := s.cache.LastChecked(ctx, rec.Name)
			if err != nil {
				s.logger.Warn("check cache lookup failed",
					logging.String(logging.FieldRecord, rec.Name),
					logging.Error(err),
				)
			} else if found && now.Sub(last) < window {
				continue
			}
		}

		if err := s.checker.StartChecks(ctx, rec); err != nil {
			// Not marked checked, so the next cycle retries.
			s.logger.Warn("failed to start checks",
				logging.String(logging.FieldProject, rec.Project),
				logging.String(logging.FieldRecord, rec.Name),
				logging.Error(err),
			)
			s.errors.Add(now, "full", err)
			s.metrics.Errors.Add(1)
			continue
		}
		checked++
		if err := s.cache.MarkChecked(ctx, rec.Name, now); err != nil {
			s.logger.Warn("failed to persist check timestamp",
				logging.String(logging.FieldRecord, rec.Name),
				logging.Error(err),
			)
		}
	}

	s.metrics.FullCycles.Add(1)
	s.markFullCycle(now)
	if checked > 0 {
		s.logger.Debug("full cycle complete", logging.Int("checked", checked))
	}
	return nil
}

// isReadyLeaf reports whether the record can make progress without
// waiting on a parent: it has no parent, the parent is submitted, or
// the parent is unknown to the store.
func (s *Scheduler) isReadyLeaf(rec *changespec.Record, byName map[string]*changespec.Record) bool {
	if rec.Parent == "" {
		return true
	}
	parent, ok := byName[rec.Parent]
	if !ok {
		return true
	}
	return parent.Status == changespec.StatusSubmitted
}
