package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"shepherd/internal/scheduler"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("State", statusOK, "running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestBuildDaemonStatusLines(t *testing.T) {
	snap := scheduler.StatusSnapshot{
		PID:           4321,
		SessionID:     "session-1",
		State:         scheduler.StateRunning,
		UptimeSeconds: 90,
		Runners:       2,
		MaxRunners:    4,
		Errors:        1,
	}
	recent := []scheduler.RecordedError{{
		At:      time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		Source:  "full-cycle",
		Message: "boom",
	}}

	lines := buildDaemonStatusLines(snap, recent, false)
	if len(lines) != 8 {
		t.Fatalf("expected 8 lines, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[2], "[OK] running (pid 4321)") {
		t.Fatalf("expected running state line, got %q", lines[2])
	}
	if !strings.Contains(lines[5], "[OK] 2/4") {
		t.Fatalf("expected runner line, got %q", lines[5])
	}
	if !strings.Contains(lines[6], "[WARN] 1") {
		t.Fatalf("expected error count line, got %q", lines[6])
	}
	if !strings.Contains(lines[7], "full-cycle: boom") {
		t.Fatalf("expected last error line, got %q", lines[7])
	}
}

func TestBuildDaemonStatusLinesNoErrors(t *testing.T) {
	snap := scheduler.StatusSnapshot{State: scheduler.StateRunning, Runners: 4, MaxRunners: 4}
	lines := buildDaemonStatusLines(snap, nil, false)
	last := lines[len(lines)-1]
	if !strings.Contains(last, "[OK] none") {
		t.Fatalf("expected clean error line, got %q", last)
	}
	if !strings.Contains(lines[5], "[WARN] 4/4") {
		t.Fatalf("expected saturated runner warning, got %q", lines[5])
	}
}

func TestBuildRecordCountRows(t *testing.T) {
	rows := buildRecordCountRows(map[string]int{"Submitted": 3, "WIP": 2})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "WIP" || rows[1][0] != "Submitted" {
		t.Fatalf("expected fixed status order, got %v", rows)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
