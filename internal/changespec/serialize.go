package changespec

import (
	"strconv"
	"strings"
	"time"
)

// Serialize renders one record in the canonical on-disk form. Parsing
// the output yields a semantically identical record.
func (r *Record) Serialize() string {
	var b strings.Builder

	b.WriteString("NAME: ")
	b.WriteString(r.Name)
	b.WriteByte('\n')

	b.WriteString("DESCRIPTION:\n")
	for _, line := range r.Description {
		b.WriteString(bodyIndent)
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteString("PARENT: ")
	b.WriteString(r.Parent)
	b.WriteByte('\n')

	b.WriteString("CL: ")
	b.WriteString(r.CL)
	b.WriteByte('\n')

	b.WriteString("STATUS: ")
	b.WriteString(string(r.Status))
	if r.Attention != nil {
		b.WriteByte(' ')
		b.WriteString(r.Attention.String())
	}
	b.WriteByte('\n')

	b.WriteString("COMMITS:\n")
	for _, e := range r.Entries {
		b.WriteString(bodyIndent)
		b.WriteString(e.ID.String())
		if e.Note != "" {
			b.WriteByte(' ')
			b.WriteString(e.Note)
		}
		if e.Suffix != nil {
			b.WriteByte(' ')
			b.WriteString(e.Suffix.String())
		}
		b.WriteByte('\n')
		if e.ChatPath != "" {
			b.WriteString(statusLineMark)
			b.WriteString("chat: ")
			b.WriteString(e.ChatPath)
			b.WriteByte('\n')
		}
		if e.DiffPath != "" {
			b.WriteString(statusLineMark)
			b.WriteString("diff: ")
			b.WriteString(e.DiffPath)
			b.WriteByte('\n')
		}
	}

	b.WriteString("HOOKS:\n")
	for _, h := range r.Hooks {
		b.WriteString(bodyIndent)
		b.WriteString(h.Command)
		b.WriteByte('\n')
		writeStatusLines(&b, h.Lines)
	}

	b.WriteString("COMMENTS:\n")
	writeChecks(&b, r.Comments)

	b.WriteString("MENTORS:\n")
	writeChecks(&b, r.Mentors)

	if len(r.Claims) > 0 {
		b.WriteString("RUNNING:\n")
		for _, c := range r.Claims {
			b.WriteString(bodyIndent)
			b.WriteString(strconv.Itoa(c.Slot))
			b.WriteString(" | ")
			b.WriteString(strconv.Itoa(c.PID))
			b.WriteString(" | ")
			b.WriteString(c.Workflow)
			if c.Record != "" {
				b.WriteString(" | ")
				b.WriteString(c.Record)
			}
			b.WriteByte('\n')
		}
	}

	return b.String()
}

// SerializeAll renders records back to back, separated by a blank line.
func SerializeAll(records []*Record) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		parts = append(parts, r.Serialize())
	}
	return strings.Join(parts, "\n")
}

func writeChecks(b *strings.Builder, checks []*CheckEntry) {
	for _, c := range checks {
		b.WriteString(bodyIndent)
		b.WriteString(c.Name)
		b.WriteByte('\n')
		writeStatusLines(b, c.Lines)
	}
}

func writeStatusLines(b *strings.Builder, lines []StatusLine) {
	for _, l := range lines {
		b.WriteString(statusLineMark)
		b.WriteString(l.Entry.String())
		b.WriteByte(' ')
		b.WriteString(l.At.UTC().Format(time.RFC3339))
		b.WriteByte(' ')
		b.WriteString(string(l.State))
		b.WriteByte(' ')
		b.WriteString(l.Duration.String())
		if l.Suffix != nil {
			b.WriteByte(' ')
			b.WriteString(l.Suffix.String())
		}
		b.WriteByte('\n')
	}
}
