// Command shepherdd is the shepherd background daemon: it watches the
// record store, starts hook and workflow jobs within the runner bound,
// and exports status and metrics snapshots.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"shepherd/internal/checkcache"
	"shepherd/internal/claims"
	"shepherd/internal/config"
	"shepherd/internal/daemon"
	"shepherd/internal/jobs"
	"shepherd/internal/logging"
	"shepherd/internal/procs"
	"shepherd/internal/scheduler"
	"shepherd/internal/specstore"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store := specstore.NewFromConfig(cfg, logger)
	processes := procs.System()
	pool := claims.NewPool(store, processes, cfg.Scheduler.MaxRunners, logger)

	cache, err := checkcache.Open(cfg.CheckCachePath())
	if err != nil {
		logger.Error("open check cache", logging.Error(err))
		return
	}

	runner := jobs.NewExecRunner(cfg.Paths.LogDir, logger)
	checker := jobs.NewHookChecker(store, runner, logger)

	sched, err := scheduler.New(cfg, store, pool, cache, checker, runner, logger,
		scheduler.WithProcesses(processes))
	if err != nil {
		logger.Error("create scheduler", logging.Error(err))
		_ = cache.Close()
		return
	}

	d, err := daemon.New(cfg, sched, cache, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = cache.Close()
		return
	}
	defer d.Close(context.Background()) //nolint:errcheck

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon run", logging.Error(err))
	}
}
