package scheduler

import (
	"context"

	"shepherd/internal/logging"
)

// RunOrphanCleanup releases claims whose PIDs are no longer running.
// Jobs that exit cleanly remove their own claims; this cadence covers
// the ones that crashed before they could.
func (s *Scheduler) RunOrphanCleanup(ctx context.Context) error {
	released, err := s.pool.ReleaseDead(ctx)
	if released > 0 {
		s.metrics.OrphansReleased.Add(uint64(released))
		s.logger.Info("orphan cleanup released claims", logging.Int("count", released))
	}
	s.markOrphanSweep(s.clock.Now())
	return err
}
