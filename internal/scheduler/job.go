package scheduler

import (
	"context"

	"shepherd/internal/changespec"
)

// JobKind says which record section a job's status line belongs to.
type JobKind string

const (
	JobHook     JobKind = "hook"
	JobMentor   JobKind = "mentor"
	JobComment  JobKind = "comment"
	JobWorkflow JobKind = "workflow"
)

// JobSpec describes one external job the checker wants started. Target
// is the hook command or the mentor/comment name; it is empty for bare
// sub-workflows, which get a claim but no status line.
type JobSpec struct {
	Kind     JobKind
	Workflow string
	Target   string
	Entry    changespec.EntryID
}

// JobStart reports a successfully launched external job.
type JobStart struct {
	PID        int
	OutputPath string
}

// JobRunner launches and polls external jobs. The scheduler never
// blocks on a job's completion; it starts the process and watches
// liveness afterwards. Implementations must be safe for concurrent use.
type JobRunner interface {
	StartJob(ctx context.Context, rec *changespec.Record, spec JobSpec) (JobStart, error)
	PollJob(pid int) (running bool, exitCode int, err error)
}

// Checker supplies the domain-specific decisions the scheduler is
// agnostic to: which out-of-band checks to start during a full cycle,
// how to fold finished check results back into records, and which jobs
// a record needs next. Implementations must be safe for concurrent use;
// the full and hook cadences run on separate goroutines.
type Checker interface {
	// StartChecks launches out-of-band status checks for the record
	// (review submitted? new reviewer comments?). Started, not awaited.
	StartChecks(ctx context.Context, rec *changespec.Record) error

	// PollChecks folds any finished check results into the record,
	// persisting through the store as needed.
	PollChecks(ctx context.Context, rec *changespec.Record) error

	// JobsNeeded reports which hook/mentor/workflow runs the record is
	// missing. The scheduler starts as many as capacity allows; the
	// rest stay pending for the next tick.
	JobsNeeded(rec *changespec.Record) []JobSpec
}

// NopChecker is a Checker that never starts anything. Useful in tests
// and for deployments whose checks are wired externally.
type NopChecker struct{}

func (NopChecker) StartChecks(context.Context, *changespec.Record) error { return nil }
func (NopChecker) PollChecks(context.Context, *changespec.Record) error  { return nil }
func (NopChecker) JobsNeeded(*changespec.Record) []JobSpec               { return nil }
