// Package daemon wires the scheduler into a single-instance background
// process guarded by a file lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gofrs/flock"

	"shepherd/internal/checkcache"
	"shepherd/internal/config"
	"shepherd/internal/logging"
	"shepherd/internal/scheduler"
)

// Daemon runs the scheduler and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	scheduler *scheduler.Scheduler
	cache     *checkcache.Cache

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, sched *scheduler.Scheduler, cache *checkcache.Cache, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || sched == nil || logger == nil {
		return nil, errors.New("daemon requires config, scheduler, and logger")
	}
	lockPath := cfg.LockFilePath()
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		scheduler: sched,
		cache:     cache,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and starts the scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !ok {
		return errors.New("another shepherd daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.scheduler.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("shepherd daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop drains the scheduler and releases the instance lock.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.Load() {
		return
	}

	if err := d.scheduler.Stop(ctx); err != nil {
		d.logger.Warn("scheduler stop", logging.Error(err))
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("shepherd daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close(ctx context.Context) error {
	d.Stop(ctx)
	if d.cache != nil {
		return d.cache.Close()
	}
	return nil
}

// Running reports whether the daemon holds the lock and runs cadences.
func (d *Daemon) Running() bool { return d.running.Load() }

// Run starts the daemon and blocks until ctx is canceled, then shuts
// down cleanly. Used by the daemon binary's main.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx := context.WithoutCancel(ctx)
	d.Stop(stopCtx)
	return nil
}
