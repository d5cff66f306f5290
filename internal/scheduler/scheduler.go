package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"shepherd/internal/checkcache"
	"shepherd/internal/claims"
	"shepherd/internal/config"
	"shepherd/internal/fileutil"
	"shepherd/internal/logging"
	"shepherd/internal/procs"
	"shepherd/internal/query"
	"shepherd/internal/specstore"
)

// State is the scheduler lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateDraining State = "draining"
)

// Scheduler drives the periodic cadences over the record store: the
// slow full cycle that launches out-of-band checks, the fast hook cycle
// that starts jobs and reaps zombies, orphan-claim cleanup, and the
// status/metrics exports.
type Scheduler struct {
	cfg       *config.Config
	store     *specstore.Store
	pool      *claims.Pool
	cache     *checkcache.Cache
	checker   Checker
	runner    JobRunner
	processes procs.Processes
	filter    *query.Query
	clock     Clock
	logger    *slog.Logger
	sessionID string

	metrics Metrics
	errors  errorRing

	mu                 sync.Mutex
	state              State
	startedAt          time.Time
	firstFullCycleDone bool
	lastFullCycle      time.Time
	lastHookCycle      time.Time
	lastOrphanSweep    time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SchedulerOption configures optional Scheduler collaborators.
type SchedulerOption func(*Scheduler)

// WithClock injects a clock, used by tests to control throttle windows
// and zombie ages.
func WithClock(clock Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = clock }
}

// WithProcesses injects the process liveness checker.
func WithProcesses(processes procs.Processes) SchedulerOption {
	return func(s *Scheduler) { s.processes = processes }
}

// New constructs a scheduler. The configured query filter is compiled
// here so a bad filter fails startup instead of silently matching
// nothing.
func New(
	cfg *config.Config,
	store *specstore.Store,
	pool *claims.Pool,
	cache *checkcache.Cache,
	checker Checker,
	runner JobRunner,
	logger *slog.Logger,
	opts ...SchedulerOption,
) (*Scheduler, error) {
	filter, err := query.Compile(cfg.Scheduler.QueryFilter)
	if err != nil {
		return nil, fmt.Errorf("compile query filter: %w", err)
	}
	s := &Scheduler{
		cfg:       cfg,
		store:     store,
		pool:      pool,
		cache:     cache,
		checker:   checker,
		runner:    runner,
		processes: procs.System(),
		filter:    filter,
		clock:     systemClock{},
		logger:    logging.NewComponentLogger(logger, "scheduler"),
		sessionID: uuid.NewString(),
		state:     StateStopped,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.String(logging.FieldSession, s.sessionID))
	return s, nil
}

// SessionID returns the unique id of this scheduler run.
func (s *Scheduler) SessionID() string { return s.sessionID }

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start transitions the scheduler to running and launches the cadence
// goroutines. It reconciles leftover state from a previous daemon run
// before the first tick: orphaned claims are released and stale RUNNING
// lines are marked dead.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already %s", s.state)
	}
	s.state = StateStarting
	s.startedAt = s.clock.Now()
	s.mu.Unlock()

	s.logger.Info("scheduler starting")

	if err := s.writePIDFile(); err != nil {
		s.setState(StateStopped)
		return err
	}

	if err := s.reconcileStartup(ctx); err != nil {
		s.logger.Warn("startup reconciliation incomplete", logging.Error(err))
		s.errors.Add(s.clock.Now(), "startup", err)
		s.metrics.Errors.Add(1)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.state = StateRunning
	s.mu.Unlock()

	if err := s.ExportStatus(ctx); err != nil {
		s.logger.Warn("initial status export failed", logging.Error(err))
	}

	sch := s.cfg.Scheduler
	s.startCadence(runCtx, "full", seconds(sch.FullCheckInterval), s.RunFullCycle)
	s.startCadence(runCtx, "hook", seconds(sch.HookInterval), s.RunHookCycle)
	s.startCadence(runCtx, "orphan", seconds(sch.HookInterval), s.RunOrphanCleanup)
	s.startCadence(runCtx, "status", seconds(sch.StatusInterval), s.ExportStatus)
	s.startCadence(runCtx, "metrics", seconds(sch.MetricsInterval), func(context.Context) error { return s.ExportMetrics() })

	s.logger.Info("scheduler running",
		logging.Int("max_runners", s.pool.MaxRunners()),
		logging.String("filter", s.filter.Source()),
	)
	return nil
}

// Stop drains the cadence goroutines, writes a final status snapshot,
// and removes the PID file. Safe to call once per Start.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running (state %s)", s.state)
	}
	s.state = StateDraining
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("scheduler draining")
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.setState(StateStopped)
	if err := s.ExportStatus(ctx); err != nil {
		s.logger.Warn("final status export failed", logging.Error(err))
	}
	if err := os.Remove(s.cfg.PIDFilePath()); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// startCadence runs fn once immediately, then on every tick until the
// context is canceled. A failing fn is logged and recorded; the cadence
// keeps ticking. After an error the next run waits the shorter error
// retry interval instead of the full cadence.
func (s *Scheduler) startCadence(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger := s.logger.With(logging.String(logging.FieldCadence, name))

		retry := seconds(s.cfg.Scheduler.ErrorRetryInterval)
		run := func() bool {
			err := fn(ctx)
			if err == nil || ctx.Err() != nil {
				return false
			}
			logger.Error("cadence run failed", logging.Error(err))
			s.errors.Add(s.clock.Now(), name, err)
			s.metrics.Errors.Add(1)
			return true
		}

		failed := run()
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for {
			wait := interval
			if failed && retry > 0 && retry < interval {
				wait = retry
			}
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				failed = run()
			}
		}
	}()
}

// reconcileStartup cleans up after an unclean previous shutdown: claims
// whose PIDs died with the old daemon are released, and RUNNING status
// lines past the zombie timeout are marked dead.
func (s *Scheduler) reconcileStartup(ctx context.Context) error {
	released, err := s.pool.ReleaseDead(ctx)
	if err != nil {
		return fmt.Errorf("release dead claims: %w", err)
	}
	if released > 0 {
		s.metrics.OrphansReleased.Add(uint64(released))
		s.logger.Info("released orphaned claims from previous run", logging.Int("count", released))
	}

	reaped, err := s.reapZombies(ctx)
	if err != nil {
		return fmt.Errorf("reap zombies: %w", err)
	}
	if reaped > 0 {
		s.logger.Info("marked stale runs dead from previous run", logging.Int("count", reaped))
	}
	return nil
}

func (s *Scheduler) writePIDFile() error {
	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := fileutil.WriteFileAtomic(s.cfg.PIDFilePath(), []byte(pid), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

func (s *Scheduler) markFullCycle(at time.Time) {
	s.mu.Lock()
	s.lastFullCycle = at
	s.firstFullCycleDone = true
	s.mu.Unlock()
}

func (s *Scheduler) markHookCycle(at time.Time) {
	s.mu.Lock()
	s.lastHookCycle = at
	s.mu.Unlock()
}

func (s *Scheduler) markOrphanSweep(at time.Time) {
	s.mu.Lock()
	s.lastOrphanSweep = at
	s.mu.Unlock()
}

func (s *Scheduler) isFirstFullCycle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.firstFullCycleDone
}
