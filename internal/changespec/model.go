package changespec

import (
	"strings"
	"time"
)

// Status is the lifecycle status of a record.
type Status string

const (
	StatusNotStarted Status = "NotStarted"
	StatusWIP        Status = "WIP"
	StatusDrafted    Status = "Drafted"
	StatusMailed     Status = "Mailed"
	StatusSubmitted  Status = "Submitted"
	StatusReverted   Status = "Reverted"
)

// KnownStatus reports whether s is one of the recognized lifecycle states.
func KnownStatus(s Status) bool {
	switch s {
	case StatusNotStarted, StatusWIP, StatusDrafted, StatusMailed, StatusSubmitted, StatusReverted:
		return true
	}
	return false
}

// RunState is the state of one hook/mentor/comment run against an entry.
type RunState string

const (
	RunStateRunning RunState = "RUNNING"
	RunStatePassed  RunState = "PASSED"
	RunStateFailed  RunState = "FAILED"
	RunStateDead    RunState = "DEAD"
)

// KnownRunState reports whether s is a recognized run state.
func KnownRunState(s RunState) bool {
	switch s {
	case RunStateRunning, RunStatePassed, RunStateFailed, RunStateDead:
		return true
	}
	return false
}

// CommitEntry is one line of a record's commit history: an accepted
// commit or a lettered proposal, with optional transcript and diff
// side-data.
type CommitEntry struct {
	ID       EntryID
	Note     string
	ChatPath string
	DiffPath string
	Suffix   *Suffix
}

// StatusLine records one run of a hook, mentor, or comment check against
// a specific commit entry.
type StatusLine struct {
	Entry    EntryID
	At       time.Time
	State    RunState
	Duration time.Duration
	Suffix   *Suffix
}

// HookEntry is a configured hook command and its run history.
type HookEntry struct {
	Command string
	Lines   []StatusLine
}

// CheckEntry is a named mentor or comment check and its run history.
// Mentors and comments share a shape; only the section differs.
type CheckEntry struct {
	Name  string
	Lines []StatusLine
}

// Claim marks a workspace slot occupied by a running external job.
type Claim struct {
	Slot     int
	PID      int
	Workflow string
	Record   string
}

// Record is one ChangeSpec: a unit of work and all state tracked for it.
// Project is derived from the backing file name and is not serialized.
type Record struct {
	Project     string
	Name        string
	Description []string
	Parent      string
	CL          string
	Status      Status
	Attention   *Suffix
	Entries     []*CommitEntry
	Hooks       []*HookEntry
	Comments    []*CheckEntry
	Mentors     []*CheckEntry
	Claims      []Claim
}

// MaxNumericID returns the highest accepted (letterless) entry number,
// or zero when the record has no accepted entries.
func (r *Record) MaxNumericID() int {
	max := 0
	for _, e := range r.Entries {
		if !e.ID.IsProposal() && e.ID.Num > max {
			max = e.ID.Num
		}
	}
	return max
}

// Entry returns the commit entry with the given id, or nil.
func (r *Record) Entry(id EntryID) *CommitEntry {
	for _, e := range r.Entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// LatestEntryID returns the id of the newest accepted entry, or the zero
// id when no entry has been accepted yet.
func (r *Record) LatestEntryID() EntryID {
	if max := r.MaxNumericID(); max > 0 {
		return EntryID{Num: max}
	}
	return EntryID{}
}

// SearchText flattens the record's searchable fields into one blob for
// query evaluation.
func (r *Record) SearchText() string {
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteByte('\n')
	for _, line := range r.Description {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(string(r.Status))
	b.WriteByte('\n')
	b.WriteString(r.Project)
	b.WriteByte('\n')
	b.WriteString(r.Parent)
	b.WriteByte('\n')
	for _, e := range r.Entries {
		b.WriteString(e.Note)
		b.WriteByte('\n')
	}
	for _, h := range r.Hooks {
		b.WriteString(h.Command)
		b.WriteByte('\n')
	}
	return b.String()
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r
	out.Description = append([]string(nil), r.Description...)
	out.Claims = append([]Claim(nil), r.Claims...)
	if r.Attention != nil {
		cp := *r.Attention
		out.Attention = &cp
	}
	out.Entries = make([]*CommitEntry, len(r.Entries))
	for i, e := range r.Entries {
		cp := *e
		if e.Suffix != nil {
			sfx := *e.Suffix
			cp.Suffix = &sfx
		}
		out.Entries[i] = &cp
	}
	out.Hooks = make([]*HookEntry, len(r.Hooks))
	for i, h := range r.Hooks {
		cp := HookEntry{Command: h.Command, Lines: cloneLines(h.Lines)}
		out.Hooks[i] = &cp
	}
	out.Comments = cloneChecks(r.Comments)
	out.Mentors = cloneChecks(r.Mentors)
	return &out
}

func cloneChecks(src []*CheckEntry) []*CheckEntry {
	out := make([]*CheckEntry, len(src))
	for i, c := range src {
		cp := CheckEntry{Name: c.Name, Lines: cloneLines(c.Lines)}
		out[i] = &cp
	}
	return out
}

func cloneLines(src []StatusLine) []StatusLine {
	out := make([]StatusLine, len(src))
	for i, l := range src {
		out[i] = l
		if l.Suffix != nil {
			sfx := *l.Suffix
			out[i].Suffix = &sfx
		}
	}
	return out
}
