package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"shepherd/internal/changespec"
	"shepherd/internal/scheduler"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 14
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func schedulerStateKind(state scheduler.State) statusKind {
	switch state {
	case scheduler.StateRunning:
		return statusOK
	case scheduler.StateStarting, scheduler.StateDraining:
		return statusWarn
	case scheduler.StateStopped:
		return statusError
	default:
		return statusInfo
	}
}

func buildDaemonStatusLines(snap scheduler.StatusSnapshot, recent []scheduler.RecordedError, colorize bool) []string {
	lines := renderSectionHeader("Daemon Status", colorize)

	runnersKind := statusOK
	if snap.Runners >= snap.MaxRunners {
		runnersKind = statusWarn
	}
	lines = append(lines,
		renderStatusLine("State", schedulerStateKind(snap.State), fmt.Sprintf("%s (pid %d)", snap.State, snap.PID), colorize),
		renderStatusLine("Session", statusInfo, snap.SessionID, colorize),
		renderStatusLine("Uptime", statusInfo, (time.Duration(snap.UptimeSeconds)*time.Second).String(), colorize),
		renderStatusLine("Runners", runnersKind, fmt.Sprintf("%d/%d", snap.Runners, snap.MaxRunners), colorize),
	)

	if snap.Errors == 0 {
		lines = append(lines, renderStatusLine("Errors", statusOK, "none", colorize))
		return lines
	}
	lines = append(lines, renderStatusLine("Errors", statusWarn, strconv.FormatUint(snap.Errors, 10), colorize))
	if len(recent) > 0 {
		last := recent[len(recent)-1]
		lines = append(lines, renderStatusLine("Last error", statusError,
			fmt.Sprintf("%s %s: %s", last.At.Format(time.RFC3339), last.Source, last.Message), colorize))
	}
	return lines
}

var recordStatusOrder = []changespec.Status{
	changespec.StatusNotStarted,
	changespec.StatusWIP,
	changespec.StatusDrafted,
	changespec.StatusMailed,
	changespec.StatusSubmitted,
	changespec.StatusReverted,
}

func buildRecordCountRows(counts map[string]int) [][]string {
	var rows [][]string
	for _, status := range recordStatusOrder {
		if n := counts[string(status)]; n > 0 {
			rows = append(rows, []string{string(status), strconv.Itoa(n)})
		}
	}
	return rows
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
