package changespec_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"shepherd/internal/changespec"
)

const sampleRecord = `NAME: auth-retry
DESCRIPTION:
  Retry failed auth calls with backoff.
  Second paragraph of detail.
PARENT: auth-core
CL: cl/123456
STATUS: WIP [needs-attention: merge conflict]
COMMITS:
  1 initial sketch
  2 address review round one
      | chat: logs/auth-retry-2.chat
      | diff: logs/auth-retry-2.diff
  2a tighten backoff bounds [new-proposal]
HOOKS:
  make test
      | 1 2026-08-27T10:00:00Z PASSED 1m30s
      | 2 2026-08-28T09:30:00Z FAILED 45s [error: TestBackoff flaked]
COMMENTS:
  review-comments
      | 2 2026-08-28T10:00:00Z PASSED 5s
MENTORS:
  style-mentor
RUNNING:
  1 | 4242 | hooks | auth-retry
`

func TestParseRecord(t *testing.T) {
	records, errs := changespec.Parse("test.spec", "demo", sampleRecord)
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]

	if rec.Name != "auth-retry" || rec.Project != "demo" {
		t.Fatalf("unexpected identity: %q in %q", rec.Name, rec.Project)
	}
	if len(rec.Description) != 2 {
		t.Fatalf("expected 2 description lines, got %d", len(rec.Description))
	}
	if rec.Parent != "auth-core" || rec.CL != "cl/123456" {
		t.Fatalf("unexpected parent/CL: %q %q", rec.Parent, rec.CL)
	}
	if rec.Status != changespec.StatusWIP {
		t.Fatalf("unexpected status %q", rec.Status)
	}
	if rec.Attention == nil || rec.Attention.Kind != changespec.SuffixNeedsAttention || rec.Attention.Message != "merge conflict" {
		t.Fatalf("unexpected attention suffix: %+v", rec.Attention)
	}

	if len(rec.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(rec.Entries))
	}
	second := rec.Entry(changespec.EntryID{Num: 2})
	if second == nil || second.ChatPath != "logs/auth-retry-2.chat" || second.DiffPath != "logs/auth-retry-2.diff" {
		t.Fatalf("unexpected side data: %+v", second)
	}
	proposal := rec.Entry(changespec.EntryID{Num: 2, Letter: 'a'})
	if proposal == nil || proposal.Suffix == nil || proposal.Suffix.Kind != changespec.SuffixNewProposal {
		t.Fatalf("unexpected proposal entry: %+v", proposal)
	}

	if len(rec.Hooks) != 1 || rec.Hooks[0].Command != "make test" {
		t.Fatalf("unexpected hooks: %+v", rec.Hooks)
	}
	lines := rec.Hooks[0].Lines
	if len(lines) != 2 {
		t.Fatalf("expected 2 hook lines, got %d", len(lines))
	}
	if lines[0].State != changespec.RunStatePassed || lines[0].Duration != 90*time.Second {
		t.Fatalf("unexpected first hook line: %+v", lines[0])
	}
	if lines[1].Suffix == nil || lines[1].Suffix.Kind != changespec.SuffixError {
		t.Fatalf("expected error suffix on second hook line: %+v", lines[1])
	}

	if len(rec.Mentors) != 1 || rec.Mentors[0].Name != "style-mentor" || len(rec.Mentors[0].Lines) != 0 {
		t.Fatalf("unexpected mentors: %+v", rec.Mentors)
	}

	if len(rec.Claims) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(rec.Claims))
	}
	claim := rec.Claims[0]
	if claim.Slot != 1 || claim.PID != 4242 || claim.Workflow != "hooks" || claim.Record != "auth-retry" {
		t.Fatalf("unexpected claim: %+v", claim)
	}
}

func TestParseSkipsMalformedBlock(t *testing.T) {
	content := sampleRecord + "\nNAME: broken\nSTATUS: Bogus\n\n" + strings.Replace(sampleRecord, "auth-retry", "auth-other", -1)
	records, errs := changespec.Parse("test.spec", "demo", content)
	if len(records) != 2 {
		t.Fatalf("expected 2 good records, got %d", len(records))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 parse error, got %v", errs)
	}
	var parseErr *changespec.ParseError
	if !errors.As(errs[0], &parseErr) {
		t.Fatalf("expected *ParseError, got %T", errs[0])
	}
	if !strings.Contains(parseErr.Msg, "unknown status") {
		t.Fatalf("unexpected parse error: %v", parseErr)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	records, errs := changespec.Parse("test.spec", "demo", sampleRecord)
	if len(errs) != 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	first := records[0].Serialize()

	reparsed, errs := changespec.Parse("test.spec", "demo", first)
	if len(errs) != 0 {
		t.Fatalf("reparse errors: %v", errs)
	}
	second := reparsed[0].Serialize()
	if first != second {
		t.Fatalf("serialize not stable:\n--- first ---\n%s\n--- second ---\n%s", first, second)
	}
}

func TestParseKeepsUnknownMarkersOpaque(t *testing.T) {
	content := `NAME: auth-retry
DESCRIPTION:
  fixture
PARENT:
CL:
STATUS: WIP [triaged]
COMMITS:
  1 initial
HOOKS:
  make test
      | 1 2026-08-27T10:00:00Z PASSED 5s [flaky-runner]
COMMENTS:
MENTORS:
`
	records, errs := changespec.Parse("test.spec", "demo", content)
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	rec := records[0]

	if rec.Attention == nil || rec.Attention.Kind != changespec.SuffixOpaque || rec.Attention.Message != "triaged" {
		t.Fatalf("expected opaque attention marker, got %+v", rec.Attention)
	}
	line := rec.Hooks[0].Lines[0]
	if line.Suffix == nil || line.Suffix.Kind != changespec.SuffixOpaque || line.Suffix.Message != "flaky-runner" {
		t.Fatalf("expected opaque line marker, got %+v", line.Suffix)
	}

	out := rec.Serialize()
	if !strings.Contains(out, "STATUS: WIP [triaged]") {
		t.Fatalf("attention marker should round-trip, got:\n%s", out)
	}
	if !strings.Contains(out, "PASSED 5s [flaky-runner]") {
		t.Fatalf("line marker should round-trip, got:\n%s", out)
	}
}

func TestParseStatusRequired(t *testing.T) {
	_, errs := changespec.Parse("test.spec", "demo", "NAME: orphan\nDESCRIPTION:\n  no status\n")
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
}
