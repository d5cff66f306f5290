package changespec

import (
	"fmt"
	"strconv"
	"strings"
)

// SuffixKind enumerates the typed markers that may trail a status or
// commit entry line.
type SuffixKind int

const (
	// SuffixError records a failure message.
	SuffixError SuffixKind = iota
	// SuffixRunningAgent marks an entry being worked on by an LLM agent.
	SuffixRunningAgent
	// SuffixRunningProcess marks an entry owned by a plain OS process.
	SuffixRunningProcess
	// SuffixRejectedProposal marks a proposal superseded by a newer entry.
	SuffixRejectedProposal
	// SuffixNewProposal marks a freshly generated, unreviewed proposal.
	SuffixNewProposal
	// SuffixReadyToMail marks a record whose latest entry passed all hooks.
	SuffixReadyToMail
	// SuffixNeedsAttention flags a record for human review.
	SuffixNeedsAttention
	// SuffixOpaque carries an unrecognized marker verbatim so it
	// survives a rewrite.
	SuffixOpaque
)

// Suffix is a typed bracketed marker. Only the fields relevant to the
// kind are set: Message for error/needs-attention, PID for agent/process,
// Entry for rejected-proposal.
type Suffix struct {
	Kind    SuffixKind
	Message string
	PID     int
	Entry   EntryID
}

func (s *Suffix) String() string {
	if s == nil {
		return ""
	}
	switch s.Kind {
	case SuffixError:
		return "[error: " + s.Message + "]"
	case SuffixRunningAgent:
		return "[agent: " + strconv.Itoa(s.PID) + "]"
	case SuffixRunningProcess:
		return "[process: " + strconv.Itoa(s.PID) + "]"
	case SuffixRejectedProposal:
		return "[rejected: " + s.Entry.String() + "]"
	case SuffixNewProposal:
		return "[new-proposal]"
	case SuffixReadyToMail:
		return "[ready-to-mail]"
	case SuffixNeedsAttention:
		return "[needs-attention: " + s.Message + "]"
	case SuffixOpaque:
		return "[" + s.Message + "]"
	}
	return ""
}

// ParseSuffix parses the bracketed body of a suffix marker, without the
// surrounding brackets.
func ParseSuffix(body string) (*Suffix, error) {
	body = strings.TrimSpace(body)
	name, payload := body, ""
	if idx := strings.Index(body, ":"); idx >= 0 {
		name = strings.TrimSpace(body[:idx])
		payload = strings.TrimSpace(body[idx+1:])
	}

	switch name {
	case "error":
		return &Suffix{Kind: SuffixError, Message: payload}, nil
	case "needs-attention":
		return &Suffix{Kind: SuffixNeedsAttention, Message: payload}, nil
	case "agent", "process":
		pid, err := strconv.Atoi(payload)
		if err != nil || pid <= 0 {
			return nil, fmt.Errorf("suffix %q: bad pid", body)
		}
		kind := SuffixRunningAgent
		if name == "process" {
			kind = SuffixRunningProcess
		}
		return &Suffix{Kind: kind, PID: pid}, nil
	case "rejected":
		id, err := ParseEntryID(payload)
		if err != nil {
			return nil, fmt.Errorf("suffix %q: %w", body, err)
		}
		return &Suffix{Kind: SuffixRejectedProposal, Entry: id}, nil
	case "new-proposal":
		if payload != "" {
			return nil, fmt.Errorf("suffix %q: unexpected payload", body)
		}
		return &Suffix{Kind: SuffixNewProposal}, nil
	case "ready-to-mail":
		if payload != "" {
			return nil, fmt.Errorf("suffix %q: unexpected payload", body)
		}
		return &Suffix{Kind: SuffixReadyToMail}, nil
	}
	return nil, fmt.Errorf("suffix %q: unknown kind", body)
}

// splitSuffix detaches a trailing "[...]" marker from a line when it
// parses as a known suffix. Text whose brackets are not a recognized
// marker stays part of the line.
func splitSuffix(line string) (string, *Suffix) {
	trimmed := strings.TrimRight(line, " ")
	if !strings.HasSuffix(trimmed, "]") {
		return line, nil
	}
	open := strings.LastIndex(trimmed, "[")
	if open < 0 {
		return line, nil
	}
	suffix, err := ParseSuffix(trimmed[open+1 : len(trimmed)-1])
	if err != nil {
		return line, nil
	}
	return strings.TrimRight(trimmed[:open], " "), suffix
}

// splitOpaqueSuffix detaches a trailing "[...]" group verbatim. Status
// lines have a fixed four-field shape, so trailing bracket text is
// always a marker even when the kind is unrecognized; keeping it opaque
// lets the line round-trip instead of failing to parse.
func splitOpaqueSuffix(line string) (string, *Suffix) {
	trimmed := strings.TrimRight(line, " ")
	if !strings.HasSuffix(trimmed, "]") {
		return line, nil
	}
	open := strings.LastIndex(trimmed, "[")
	if open < 0 {
		return line, nil
	}
	body := trimmed[open+1 : len(trimmed)-1]
	return strings.TrimRight(trimmed[:open], " "), &Suffix{Kind: SuffixOpaque, Message: body}
}
