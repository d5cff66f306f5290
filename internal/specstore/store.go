package specstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"shepherd/internal/changespec"
	"shepherd/internal/config"
	"shepherd/internal/fileutil"
	"shepherd/internal/logging"
)

const specExtension = ".spec"

// Store reads and mutates the per-project ChangeSpec files in one
// records directory.
type Store struct {
	dir         string
	lockTimeout time.Duration
	retryDelay  time.Duration
	logger      *slog.Logger
}

// Option configures optional Store behavior.
type Option func(*Store)

// WithLockTimeout overrides how long lock acquisition may retry.
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Store) { s.lockTimeout = timeout }
}

// WithRetryDelay overrides the pause between lock retries.
func WithRetryDelay(delay time.Duration) Option {
	return func(s *Store) { s.retryDelay = delay }
}

// New constructs a store over dir.
func New(dir string, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		dir:         dir,
		lockTimeout: 30 * time.Second,
		retryDelay:  100 * time.Millisecond,
		logger:      logging.NewComponentLogger(logger, "specstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig constructs a store using the configured records
// directory and lock settings.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Store {
	return New(
		cfg.Paths.RecordsDir,
		logger,
		WithLockTimeout(time.Duration(cfg.Locking.TimeoutSeconds)*time.Second),
		WithRetryDelay(time.Duration(cfg.Locking.RetryDelayMS)*time.Millisecond),
	)
}

// Dir returns the records directory.
func (s *Store) Dir() string { return s.dir }

// SpecPath returns the backing file for a project.
func (s *Store) SpecPath(project string) string {
	return filepath.Join(s.dir, project+specExtension)
}

// Projects lists the projects that have a spec file, sorted by name.
func (s *Store) Projects() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read records dir: %w", err)
	}
	var projects []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, specExtension) {
			continue
		}
		projects = append(projects, strings.TrimSuffix(name, specExtension))
	}
	sort.Strings(projects)
	return projects, nil
}

// LoadProject parses one project file. Malformed record blocks are
// skipped and reported as errors alongside the good records.
func (s *Store) LoadProject(project string) ([]*changespec.Record, []error) {
	path := s.SpecPath(project)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, []error{fmt.Errorf("%w: project %q", ErrRecordNotFound, project)}
		}
		return nil, []error{fmt.Errorf("read %s: %w", path, err)}
	}
	return changespec.Parse(path, project, string(data))
}

// Load parses every project file in the records directory.
func (s *Store) Load(ctx context.Context) ([]*changespec.Record, []error) {
	projects, err := s.Projects()
	if err != nil {
		return nil, []error{err}
	}
	var records []*changespec.Record
	var errs []error
	for _, project := range projects {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			return records, errs
		}
		recs, perrs := s.LoadProject(project)
		records = append(records, recs...)
		errs = append(errs, perrs...)
	}
	return records, errs
}

// Find returns the named record, searching every project.
func (s *Store) Find(ctx context.Context, name string) (*changespec.Record, error) {
	records, _ := s.Load(ctx)
	for _, rec := range records {
		if rec.Name == name {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrRecordNotFound, name)
}

// WithLock acquires the project's exclusive lock, re-reads the file
// fresh, and hands the parsed records to fn. When fn reports a change,
// the whole file is rewritten atomically. The lock is released on every
// exit path.
func (s *Store) WithLock(ctx context.Context, project string, fn func(records []*changespec.Record) (bool, error)) error {
	path := s.SpecPath(project)
	lock := flock.New(path + ".lock")

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	ok, err := lock.TryLockContext(lockCtx, s.retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: project %q", ErrLockTimeout, project)
		}
		return fmt.Errorf("acquire lock for %q: %w", project, err)
	}
	if !ok {
		return fmt.Errorf("%w: project %q", ErrLockTimeout, project)
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			s.logger.Warn("failed to release record lock",
				logging.String(logging.FieldProject, project),
				logging.Error(unlockErr),
			)
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: project %q", ErrRecordNotFound, project)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	records, parseErrs := changespec.Parse(path, project, string(data))
	if len(parseErrs) > 0 {
		// A write would drop the unparseable blocks, so refuse to mutate.
		return fmt.Errorf("refusing to rewrite %s with %d malformed blocks: %w", path, len(parseErrs), parseErrs[0])
	}

	changed, err := fn(records)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return fileutil.WriteFileAtomic(path, []byte(changespec.SerializeAll(records)), 0o644)
}

// UpdateRecord locks the project and applies fn to the named record.
func (s *Store) UpdateRecord(ctx context.Context, project, name string, fn func(rec *changespec.Record) (bool, error)) error {
	return s.WithLock(ctx, project, func(records []*changespec.Record) (bool, error) {
		for _, rec := range records {
			if rec.Name == name {
				return fn(rec)
			}
		}
		return false, fmt.Errorf("%w: %q in project %q", ErrRecordNotFound, name, project)
	})
}

// WriteProject replaces a project file wholesale under its lock. Used by
// tooling that creates or rewrites whole files; scheduler code uses
// WithLock/UpdateRecord instead.
func (s *Store) WriteProject(ctx context.Context, project string, records []*changespec.Record) error {
	path := s.SpecPath(project)
	lock := flock.New(path + ".lock")

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	ok, err := lock.TryLockContext(lockCtx, s.retryDelay)
	if err != nil || !ok {
		return fmt.Errorf("%w: project %q", ErrLockTimeout, project)
	}
	defer lock.Unlock() //nolint:errcheck

	return fileutil.WriteFileAtomic(path, []byte(changespec.SerializeAll(records)), 0o644)
}
