package changespec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseError describes a malformed record block. Parsing skips the block
// and continues, so one bad record never hides the rest of the file.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
}

const (
	bodyIndent     = "  "
	statusLineMark = "      | "
)

// Parse parses the ChangeSpec text format. Each well-formed block yields
// a record; each malformed block yields a *ParseError. path and project
// annotate errors and records respectively.
func Parse(path, project, content string) ([]*Record, []error) {
	lines := strings.Split(content, "\n")

	var records []*Record
	var errs []error

	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		rec, err := parseBlock(path, project, lines, start, end)
		if err != nil {
			errs = append(errs, err)
		} else {
			records = append(records, rec)
		}
	}

	for i, line := range lines {
		if strings.HasPrefix(line, "NAME:") {
			flush(i)
			start = i
		} else if start < 0 && strings.TrimSpace(line) != "" {
			errs = append(errs, &ParseError{Path: path, Line: i + 1, Msg: "content before first NAME section"})
		}
	}
	flush(len(lines))

	return records, errs
}

func parseBlock(path, project string, lines []string, start, end int) (*Record, error) {
	fail := func(line int, format string, args ...any) error {
		return &ParseError{Path: path, Line: line + 1, Msg: fmt.Sprintf(format, args...)}
	}

	rec := &Record{Project: project}
	rec.Name = strings.TrimSpace(strings.TrimPrefix(lines[start], "NAME:"))
	if rec.Name == "" {
		return nil, fail(start, "record name is empty")
	}

	section := ""
	var curHook *HookEntry
	var curCheck *CheckEntry
	var curEntry *CommitEntry

	for i := start + 1; i < end; i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}

		if !strings.HasPrefix(line, " ") {
			curHook, curCheck, curEntry = nil, nil, nil
			header, value, found := strings.Cut(line, ":")
			if !found {
				return nil, fail(i, "expected a section header, got %q", line)
			}
			value = strings.TrimSpace(value)
			switch header {
			case "DESCRIPTION", "COMMITS", "HOOKS", "COMMENTS", "MENTORS", "RUNNING":
				if value != "" {
					return nil, fail(i, "%s header takes no inline value", header)
				}
				section = header
			case "PARENT":
				rec.Parent = value
				section = ""
			case "CL":
				rec.CL = value
				section = ""
			case "STATUS":
				text, suffix := splitSuffix(value)
				if suffix == nil {
					text, suffix = splitOpaqueSuffix(text)
				}
				status := Status(strings.TrimSpace(text))
				if !KnownStatus(status) {
					return nil, fail(i, "unknown status %q", text)
				}
				rec.Status = status
				rec.Attention = suffix
				section = ""
			default:
				return nil, fail(i, "unknown section %q", header)
			}
			continue
		}

		if nested, ok := strings.CutPrefix(line, statusLineMark); ok {
			switch section {
			case "COMMITS":
				if curEntry == nil {
					return nil, fail(i, "side-data line outside a commit entry")
				}
				if err := parseEntrySideData(curEntry, nested); err != nil {
					return nil, fail(i, "%v", err)
				}
			case "HOOKS", "COMMENTS", "MENTORS":
				sl, err := parseStatusLine(nested)
				if err != nil {
					return nil, fail(i, "%v", err)
				}
				switch {
				case section == "HOOKS" && curHook != nil:
					curHook.Lines = append(curHook.Lines, sl)
				case section != "HOOKS" && curCheck != nil:
					curCheck.Lines = append(curCheck.Lines, sl)
				default:
					return nil, fail(i, "status line outside a %s item", strings.ToLower(section))
				}
			default:
				return nil, fail(i, "unexpected nested line in %s section", section)
			}
			continue
		}

		body, ok := strings.CutPrefix(line, bodyIndent)
		if !ok {
			return nil, fail(i, "bad indentation: %q", line)
		}
		switch section {
		case "DESCRIPTION":
			rec.Description = append(rec.Description, body)
		case "COMMITS":
			entry, err := parseCommitEntry(body)
			if err != nil {
				return nil, fail(i, "%v", err)
			}
			if rec.Entry(entry.ID) != nil {
				return nil, fail(i, "duplicate entry id %s", entry.ID)
			}
			rec.Entries = append(rec.Entries, entry)
			curEntry = entry
		case "HOOKS":
			curHook = &HookEntry{Command: body}
			rec.Hooks = append(rec.Hooks, curHook)
		case "COMMENTS":
			curCheck = &CheckEntry{Name: strings.TrimSpace(body)}
			rec.Comments = append(rec.Comments, curCheck)
		case "MENTORS":
			curCheck = &CheckEntry{Name: strings.TrimSpace(body)}
			rec.Mentors = append(rec.Mentors, curCheck)
		case "RUNNING":
			claim, err := parseClaim(body)
			if err != nil {
				return nil, fail(i, "%v", err)
			}
			rec.Claims = append(rec.Claims, claim)
		default:
			return nil, fail(i, "indented line outside a section: %q", line)
		}
	}

	if rec.Status == "" {
		return nil, fail(start, "record %q has no STATUS section", rec.Name)
	}
	return rec, nil
}

func parseCommitEntry(body string) (*CommitEntry, error) {
	text, suffix := splitSuffix(body)
	idText, note, _ := strings.Cut(strings.TrimSpace(text), " ")
	id, err := ParseEntryID(idText)
	if err != nil {
		return nil, err
	}
	return &CommitEntry{ID: id, Note: strings.TrimSpace(note), Suffix: suffix}, nil
}

func parseEntrySideData(entry *CommitEntry, body string) error {
	kind, value, found := strings.Cut(body, ":")
	if !found {
		return fmt.Errorf("bad side-data line %q", body)
	}
	value = strings.TrimSpace(value)
	switch strings.TrimSpace(kind) {
	case "chat":
		entry.ChatPath = value
	case "diff":
		entry.DiffPath = value
	default:
		return fmt.Errorf("unknown side-data kind %q", kind)
	}
	return nil
}

func parseStatusLine(body string) (StatusLine, error) {
	text, suffix := splitSuffix(body)
	if suffix == nil {
		text, suffix = splitOpaqueSuffix(text)
	}
	fields := strings.Fields(text)
	if len(fields) != 4 {
		return StatusLine{}, fmt.Errorf("status line %q: want <id> <time> <state> <duration>", body)
	}
	id, err := ParseEntryID(fields[0])
	if err != nil {
		return StatusLine{}, err
	}
	at, err := time.Parse(time.RFC3339, fields[1])
	if err != nil {
		return StatusLine{}, fmt.Errorf("status line %q: bad timestamp: %v", body, err)
	}
	state := RunState(fields[2])
	if !KnownRunState(state) {
		return StatusLine{}, fmt.Errorf("status line %q: unknown state %q", body, fields[2])
	}
	dur, err := time.ParseDuration(fields[3])
	if err != nil {
		return StatusLine{}, fmt.Errorf("status line %q: bad duration: %v", body, err)
	}
	return StatusLine{Entry: id, At: at.UTC(), State: state, Duration: dur, Suffix: suffix}, nil
}

func parseClaim(body string) (Claim, error) {
	parts := strings.Split(body, "|")
	if len(parts) != 3 && len(parts) != 4 {
		return Claim{}, fmt.Errorf("claim line %q: want slot | pid | workflow [| record]", body)
	}
	slot, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || slot <= 0 {
		return Claim{}, fmt.Errorf("claim line %q: bad slot", body)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || pid <= 0 {
		return Claim{}, fmt.Errorf("claim line %q: bad pid", body)
	}
	claim := Claim{Slot: slot, PID: pid, Workflow: strings.TrimSpace(parts[2])}
	if claim.Workflow == "" {
		return Claim{}, fmt.Errorf("claim line %q: workflow is empty", body)
	}
	if len(parts) == 4 {
		claim.Record = strings.TrimSpace(parts[3])
	}
	return claim, nil
}
