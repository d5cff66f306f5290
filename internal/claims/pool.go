// Package claims enforces the global bound on concurrently running
// external jobs.
//
// The durable truth lives in each record's RUNNING section; the pool
// re-counts live claims from disk on every query so jobs that died
// between ticks free their slots without bookkeeping. A small in-memory
// counter tracks reservations handed out during the current scheduler
// tick, covering the window before a freshly started job's claim hits
// disk.
package claims

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"shepherd/internal/changespec"
	"shepherd/internal/logging"
	"shepherd/internal/procs"
	"shepherd/internal/specstore"
)

// Pool tracks job capacity across every record.
type Pool struct {
	store      *specstore.Store
	processes  procs.Processes
	maxRunners int
	logger     *slog.Logger

	mu              sync.Mutex
	startedThisTick int
	tickPIDs        map[int]bool
}

// NewPool constructs a pool with the given global runner bound.
func NewPool(store *specstore.Store, processes procs.Processes, maxRunners int, logger *slog.Logger) *Pool {
	return &Pool{
		store:      store,
		processes:  processes,
		maxRunners: maxRunners,
		logger:     logging.NewComponentLogger(logger, "claims"),
	}
}

// MaxRunners returns the configured global bound.
func (p *Pool) MaxRunners() int { return p.maxRunners }

// CurrentCount counts claims with a live PID across every record,
// computed fresh from disk.
func (p *Pool) CurrentCount(ctx context.Context) (int, error) {
	return p.liveClaimCount(ctx, nil)
}

func (p *Pool) liveClaimCount(ctx context.Context, exclude map[int]bool) (int, error) {
	records, errs := p.store.Load(ctx)
	for _, err := range errs {
		p.logger.Warn("skipping unreadable record while counting claims", logging.Error(err))
	}
	count := 0
	for _, rec := range records {
		for _, claim := range rec.Claims {
			if exclude[claim.PID] {
				continue
			}
			if p.processes.Alive(claim.PID) {
				count++
			}
		}
	}
	return count, nil
}

// ResetTick zeroes the started-this-tick state. Call once at the top
// of every hook cycle.
func (p *Pool) ResetTick() {
	p.mu.Lock()
	p.startedThisTick = 0
	p.tickPIDs = nil
	p.mu.Unlock()
}

// TryReserve reserves up to n runner slots against the tick counter and
// returns how many were granted, possibly zero. The sum of grants within
// one tick never pushes live-plus-started past the max runner bound.
// Claims persisted earlier in the same tick already hold a reservation,
// so the disk recount skips their PIDs rather than counting them twice.
func (p *Pool) TryReserve(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.liveClaimCount(ctx, p.tickPIDs)
	if err != nil {
		return 0, err
	}
	available := p.maxRunners - current - p.startedThisTick
	if available <= 0 {
		return 0, nil
	}
	granted := min(n, available)
	p.startedThisTick += granted
	return granted, nil
}

// FindFirstAvailableSlot returns the lowest slot number >= 1 not claimed
// in the record.
func (p *Pool) FindFirstAvailableSlot(rec *changespec.Record) int {
	taken := make(map[int]bool, len(rec.Claims))
	for _, claim := range rec.Claims {
		taken[claim.Slot] = true
	}
	slot := 1
	for taken[slot] {
		slot++
	}
	return slot
}

// PersistClaim durably records a started job in the record's RUNNING
// section and remembers the PID for the rest of the tick.
func (p *Pool) PersistClaim(ctx context.Context, project, record string, slot, pid int, workflow string) error {
	err := p.store.UpdateRecord(ctx, project, record, func(rec *changespec.Record) (bool, error) {
		for _, claim := range rec.Claims {
			if claim.Slot == slot && claim.Workflow == workflow {
				return false, fmt.Errorf("slot %d already claimed for workflow %q on %q", slot, workflow, record)
			}
		}
		rec.Claims = append(rec.Claims, changespec.Claim{
			Slot:     slot,
			PID:      pid,
			Workflow: workflow,
			Record:   record,
		})
		return true, nil
	})
	if err != nil {
		return err
	}
	p.mu.Lock()
	if p.tickPIDs == nil {
		p.tickPIDs = make(map[int]bool)
	}
	p.tickPIDs[pid] = true
	p.mu.Unlock()
	return nil
}

// Release removes a claim from the record's RUNNING section. Releasing a
// claim that is already gone is not an error.
func (p *Pool) Release(ctx context.Context, project, record string, slot int, workflow string) error {
	return p.store.UpdateRecord(ctx, project, record, func(rec *changespec.Record) (bool, error) {
		kept := rec.Claims[:0]
		removed := false
		for _, claim := range rec.Claims {
			if claim.Slot == slot && claim.Workflow == workflow {
				removed = true
				continue
			}
			kept = append(kept, claim)
		}
		rec.Claims = kept
		return removed, nil
	})
}

// ReleaseDead drops every claim whose PID is no longer running and
// returns how many were released. This is the orphan-cleanup pass.
func (p *Pool) ReleaseDead(ctx context.Context) (int, error) {
	projects, err := p.store.Projects()
	if err != nil {
		return 0, err
	}
	released := 0
	for _, project := range projects {
		err := p.store.WithLock(ctx, project, func(records []*changespec.Record) (bool, error) {
			changed := false
			for _, rec := range records {
				kept := rec.Claims[:0]
				for _, claim := range rec.Claims {
					if p.processes.Alive(claim.PID) {
						kept = append(kept, claim)
						continue
					}
					released++
					changed = true
					p.logger.Info("released orphaned claim",
						logging.String(logging.FieldProject, project),
						logging.String(logging.FieldRecord, rec.Name),
						logging.Int(logging.FieldSlot, claim.Slot),
						logging.Int(logging.FieldPID, claim.PID),
						logging.String(logging.FieldWorkflow, claim.Workflow),
					)
				}
				rec.Claims = kept
			}
			return changed, nil
		})
		if err != nil {
			return released, err
		}
	}
	return released, nil
}
