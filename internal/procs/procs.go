// Package procs abstracts PID liveness and termination so schedulers can
// be tested without touching real OS processes.
package procs

import (
	"errors"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// Processes answers liveness questions about external job PIDs and can
// terminate them. PID reuse makes liveness a heuristic; callers combine
// it with wall-clock age checks before acting.
type Processes interface {
	Alive(pid int) bool
	Kill(pid int) error
}

type system struct{}

// System returns the real implementation backed by kill(2).
func System() Processes { return system{} }

func (system) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else.
	return errors.Is(err, unix.EPERM)
}

func (system) Kill(pid int) error {
	if pid <= 0 {
		return errors.New("procs: invalid pid")
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// Fake is a test double tracking which PIDs are alive and which were
// killed.
type Fake struct {
	mu     sync.Mutex
	live   map[int]bool
	killed []int
}

// NewFake returns a Fake where only the given PIDs are alive.
func NewFake(livePIDs ...int) *Fake {
	f := &Fake{live: make(map[int]bool, len(livePIDs))}
	for _, pid := range livePIDs {
		f.live[pid] = true
	}
	return f
}

func (f *Fake) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live[pid]
}

func (f *Fake) Kill(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, pid)
	f.killed = append(f.killed, pid)
	return nil
}

// SetAlive marks a PID live or dead.
func (f *Fake) SetAlive(pid int, alive bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if alive {
		f.live[pid] = true
	} else {
		delete(f.live, pid)
	}
}

// Killed returns the PIDs passed to Kill, sorted.
func (f *Fake) Killed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]int(nil), f.killed...)
	sort.Ints(out)
	return out
}
