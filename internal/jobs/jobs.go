// Package jobs provides the default job runner and checker: hook
// commands run through the shell, graded by exit code.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"shepherd/internal/changespec"
	"shepherd/internal/logging"
	"shepherd/internal/scheduler"
	"shepherd/internal/specstore"
)

// ExecRunner launches job commands through the shell and tracks their
// exit codes so the checker can fold results back into records. Jobs
// run in their own session and are never awaited inline.
type ExecRunner struct {
	logDir string
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[int]*trackedJob
}

type trackedJob struct {
	done     chan struct{}
	exitCode int
}

// NewExecRunner builds a runner that writes job output under
// logDir/jobs.
func NewExecRunner(logDir string, logger *slog.Logger) *ExecRunner {
	return &ExecRunner{
		logDir: filepath.Join(logDir, "jobs"),
		logger: logging.NewComponentLogger(logger, "runner"),
		jobs:   make(map[int]*trackedJob),
	}
}

func (r *ExecRunner) StartJob(ctx context.Context, rec *changespec.Record, spec scheduler.JobSpec) (scheduler.JobStart, error) {
	if spec.Target == "" {
		return scheduler.JobStart{}, errors.New("job has no command")
	}
	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return scheduler.JobStart{}, fmt.Errorf("create job log dir: %w", err)
	}
	outputPath := filepath.Join(r.logDir, fmt.Sprintf("%s-%s-%d.log", rec.Name, spec.Kind, time.Now().UnixNano()))
	output, err := os.Create(outputPath)
	if err != nil {
		return scheduler.JobStart{}, fmt.Errorf("create job log: %w", err)
	}

	// exec.Command, not CommandContext: the job must outlive the tick
	// that started it.
	cmd := exec.Command("/bin/sh", "-c", spec.Target)
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Env = append(os.Environ(),
		"SHEPHERD_PROJECT="+rec.Project,
		"SHEPHERD_RECORD="+rec.Name,
		"SHEPHERD_WORKFLOW="+spec.Workflow,
		"SHEPHERD_ENTRY="+spec.Entry.String(),
	)
	if err := cmd.Start(); err != nil {
		_ = output.Close()
		_ = os.Remove(outputPath)
		return scheduler.JobStart{}, fmt.Errorf("start job: %w", err)
	}

	pid := cmd.Process.Pid
	job := &trackedJob{done: make(chan struct{})}
	r.mu.Lock()
	r.jobs[pid] = job
	r.mu.Unlock()

	go func() {
		defer output.Close()
		err := cmd.Wait()
		job.exitCode = 0
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			job.exitCode = exitErr.ExitCode()
		} else if err != nil {
			job.exitCode = -1
		}
		close(job.done)
	}()

	return scheduler.JobStart{PID: pid, OutputPath: outputPath}, nil
}

// PollJob reports on a PID this runner started. PIDs from a previous
// daemon run are unknown; those resolve through the zombie sweep.
func (r *ExecRunner) PollJob(pid int) (bool, int, error) {
	r.mu.Lock()
	job, ok := r.jobs[pid]
	r.mu.Unlock()
	if !ok {
		return false, 0, fmt.Errorf("pid %d not started by this runner", pid)
	}
	select {
	case <-job.done:
		r.mu.Lock()
		delete(r.jobs, pid)
		r.mu.Unlock()
		return false, job.exitCode, nil
	default:
		return true, 0, nil
	}
}

// HookChecker is the default Checker: it runs each configured hook once
// against the newest accepted entry and grades runs by exit code.
// Out-of-band review checks are left to external integrations.
type HookChecker struct {
	store  *specstore.Store
	runner *ExecRunner
	logger *slog.Logger
}

func NewHookChecker(store *specstore.Store, runner *ExecRunner, logger *slog.Logger) *HookChecker {
	return &HookChecker{
		store:  store,
		runner: runner,
		logger: logging.NewComponentLogger(logger, "checker"),
	}
}

func (c *HookChecker) StartChecks(ctx context.Context, rec *changespec.Record) error {
	return nil
}

// PollChecks resolves RUNNING status lines whose process has exited,
// grading them PASSED or FAILED and releasing the matching claim.
func (c *HookChecker) PollChecks(ctx context.Context, rec *changespec.Record) error {
	type result struct {
		pid      int
		exitCode int
	}
	var finished []result
	for _, line := range runningLines(rec) {
		running, exitCode, err := c.runner.PollJob(line.Suffix.PID)
		if err != nil || running {
			continue
		}
		finished = append(finished, result{pid: line.Suffix.PID, exitCode: exitCode})
	}
	if len(finished) == 0 {
		return nil
	}

	now := time.Now()
	return c.store.UpdateRecord(ctx, rec.Project, rec.Name, func(fresh *changespec.Record) (bool, error) {
		changed := false
		for _, res := range finished {
			for _, line := range runningLines(fresh) {
				if line.Suffix.PID != res.pid {
					continue
				}
				line.Duration = now.Sub(line.At)
				line.Suffix = nil
				if res.exitCode == 0 {
					line.State = changespec.RunStatePassed
				} else {
					line.State = changespec.RunStateFailed
					line.Suffix = &changespec.Suffix{
						Kind:    changespec.SuffixError,
						Message: fmt.Sprintf("exit status %d", res.exitCode),
					}
				}
				changed = true
			}
			kept := fresh.Claims[:0]
			for _, claim := range fresh.Claims {
				if claim.PID == res.pid {
					changed = true
					continue
				}
				kept = append(kept, claim)
			}
			fresh.Claims = kept
		}
		return changed, nil
	})
}

// JobsNeeded reports one job per hook that has no run at all against
// the newest accepted entry.
func (c *HookChecker) JobsNeeded(rec *changespec.Record) []scheduler.JobSpec {
	latest := rec.LatestEntryID()
	if latest.IsZero() {
		return nil
	}
	var needed []scheduler.JobSpec
	for _, hook := range rec.Hooks {
		if hasLineFor(hook.Lines, latest) {
			continue
		}
		needed = append(needed, scheduler.JobSpec{
			Kind:     scheduler.JobHook,
			Workflow: "hooks",
			Target:   hook.Command,
			Entry:    latest,
		})
	}
	return needed
}

func hasLineFor(lines []changespec.StatusLine, entry changespec.EntryID) bool {
	for _, line := range lines {
		if line.Entry == entry {
			return true
		}
	}
	return false
}

// runningLines returns pointers to every RUNNING status line that names
// a PID.
func runningLines(rec *changespec.Record) []*changespec.StatusLine {
	var out []*changespec.StatusLine
	collect := func(lines []changespec.StatusLine) {
		for i := range lines {
			line := &lines[i]
			if line.State != changespec.RunStateRunning || line.Suffix == nil {
				continue
			}
			if line.Suffix.Kind == changespec.SuffixRunningProcess || line.Suffix.Kind == changespec.SuffixRunningAgent {
				out = append(out, line)
			}
		}
	}
	for _, hook := range rec.Hooks {
		collect(hook.Lines)
	}
	for _, check := range rec.Comments {
		collect(check.Lines)
	}
	for _, check := range rec.Mentors {
		collect(check.Lines)
	}
	return out
}
