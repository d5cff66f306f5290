// Package daemonctl lets the CLI control a daemon it did not start:
// reading the PID file, signaling shutdown, and consuming the JSON
// snapshots the scheduler exports.
package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"shepherd/internal/config"
	"shepherd/internal/procs"
	"shepherd/internal/scheduler"
)

// ErrNotRunning means no live daemon was found behind the PID file.
var ErrNotRunning = errors.New("shepherd daemon is not running")

// ReadPID returns the PID recorded by a running daemon.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(cfg.PIDFilePath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrNotRunning
		}
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed pid file %s", cfg.PIDFilePath())
	}
	return pid, nil
}

// Ping reports whether a daemon is alive, returning its PID when it is.
func Ping(cfg *config.Config, processes procs.Processes) (int, bool) {
	pid, err := ReadPID(cfg)
	if err != nil {
		return 0, false
	}
	if !processes.Alive(pid) {
		return pid, false
	}
	return pid, true
}

// Stop asks the daemon to shut down with SIGTERM and waits for the
// process to exit or ctx to expire.
func Stop(ctx context.Context, cfg *config.Config, processes procs.Processes) error {
	pid, err := ReadPID(cfg)
	if err != nil {
		return err
	}
	if !processes.Alive(pid) {
		// Stale PID file from a crashed daemon.
		_ = os.Remove(cfg.PIDFilePath())
		return ErrNotRunning
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal daemon %d: %w", pid, err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !processes.Alive(pid) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("daemon %d did not exit: %w", pid, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ReadStatus parses the daemon's exported status snapshot.
func ReadStatus(cfg *config.Config) (scheduler.StatusSnapshot, error) {
	var snap scheduler.StatusSnapshot
	data, err := os.ReadFile(cfg.StatusFilePath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return snap, ErrNotRunning
		}
		return snap, fmt.Errorf("read status file: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parse status file: %w", err)
	}
	return snap, nil
}

// ReadRecentErrors parses the daemon's exported error ring.
func ReadRecentErrors(cfg *config.Config) ([]scheduler.RecordedError, error) {
	data, err := os.ReadFile(cfg.RecentErrorsFilePath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read recent errors file: %w", err)
	}
	var out []scheduler.RecordedError
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse recent errors file: %w", err)
	}
	return out, nil
}

// StartDetached launches the daemon binary in its own session so it
// survives the CLI exiting. configPath is forwarded when non-empty.
func StartDetached(cfg *config.Config, binary, configPath string) (int, error) {
	if pid, alive := Ping(cfg, procs.System()); alive {
		return pid, fmt.Errorf("shepherd daemon already running (pid %d)", pid)
	}

	args := []string{}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("launch daemon: %w", err)
	}
	pid := cmd.Process.Pid
	// Reap the child if it exits; the daemon normally outlives us.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}
