package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shepherd/internal/checkcache"
	"shepherd/internal/claims"
	"shepherd/internal/daemon"
	"shepherd/internal/daemonctl"
	"shepherd/internal/jobs"
	"shepherd/internal/logging"
	"shepherd/internal/procs"
	"shepherd/internal/scheduler"
	"shepherd/internal/specstore"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Control the shepherd daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	return daemonCmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the shepherd daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			binary, err := daemonExecutable()
			if err != nil {
				return err
			}
			var configPath string
			if ctx.configFlag != nil {
				configPath = strings.TrimSpace(*ctx.configFlag)
			}
			pid, err := daemonctl.StartDetached(cfg, binary, configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon started (pid %d)\n", pid)
			return nil
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the shepherd daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stopCtx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			err = daemonctl.Stop(stopCtx, cfg, procs.System())
			if errors.Is(err, daemonctl.ErrNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
			return nil
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			pid, alive := daemonctl.Ping(cfg, procs.System())
			if !alive {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusError, "Not running", colorize))
				return nil
			}

			snap, err := daemonctl.ReadStatus(cfg)
			if err != nil {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn,
					fmt.Sprintf("Running (pid %d), status snapshot unavailable: %v", pid, err), colorize))
				return nil
			}

			recent, _ := daemonctl.ReadRecentErrors(cfg)
			for _, line := range buildDaemonStatusLines(snap, recent, colorize) {
				fmt.Fprintln(stdout, line)
			}

			if rows := buildRecordCountRows(snap.RecordCounts); len(rows) > 0 {
				fmt.Fprintln(stdout)
				for _, line := range renderSectionHeader("Records", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			}
			return nil
		},
	}
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store := specstore.NewFromConfig(cfg, logger)
			processes := procs.System()
			pool := claims.NewPool(store, processes, cfg.Scheduler.MaxRunners, logger)

			cache, err := checkcache.Open(cfg.CheckCachePath())
			if err != nil {
				return fmt.Errorf("open check cache: %w", err)
			}

			runner := jobs.NewExecRunner(cfg.Paths.LogDir, logger)
			checker := jobs.NewHookChecker(store, runner, logger)

			sched, err := scheduler.New(cfg, store, pool, cache, checker, runner, logger,
				scheduler.WithProcesses(processes))
			if err != nil {
				_ = cache.Close()
				return err
			}
			d, err := daemon.New(cfg, sched, cache, logger)
			if err != nil {
				_ = cache.Close()
				return err
			}
			defer d.Close(context.Background()) //nolint:errcheck

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return d.Run(runCtx)
		},
	}
}

// daemonExecutable locates the shepherdd binary, preferring one shipped
// alongside the CLI.
func daemonExecutable() (string, error) {
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "shepherdd")
		if info, statErr := os.Stat(sibling); statErr == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	path, err := exec.LookPath("shepherdd")
	if err != nil {
		return "", errors.New("shepherdd binary not found next to shepherd or on PATH")
	}
	return path, nil
}
