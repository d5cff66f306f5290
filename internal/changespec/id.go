package changespec

import (
	"fmt"
	"strconv"
	"strings"
)

// EntryID identifies a commit entry within a record.
//
// A bare number ("3") is an accepted commit. A number plus a lowercase
// letter ("3a") is an unaccepted proposal. An archived proposal keeps its
// original id suffixed with the numeric id it lost to ("3b-5"), so history
// that referenced it stays distinguishable from the promoted entry.
type EntryID struct {
	Num        int
	Letter     byte
	ArchivedTo int
}

// IsZero reports whether the id is unset.
func (id EntryID) IsZero() bool { return id.Num == 0 }

// IsProposal reports whether the id carries a proposal letter.
func (id EntryID) IsProposal() bool { return id.Letter != 0 }

// IsArchived reports whether the proposal was archived during renumbering.
func (id EntryID) IsArchived() bool { return id.ArchivedTo != 0 }

func (id EntryID) String() string {
	if id.Num == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(id.Num))
	if id.Letter != 0 {
		b.WriteByte(id.Letter)
	}
	if id.ArchivedTo != 0 {
		b.WriteByte('-')
		b.WriteString(strconv.Itoa(id.ArchivedTo))
	}
	return b.String()
}

// Compare orders ids by base number, then by letter with the accepted
// entry first. The archived marker is ignored so archived proposals sort
// adjacent to their pre-rename position.
func (id EntryID) Compare(other EntryID) int {
	if id.Num != other.Num {
		if id.Num < other.Num {
			return -1
		}
		return 1
	}
	if id.Letter != other.Letter {
		if id.Letter < other.Letter {
			return -1
		}
		return 1
	}
	return 0
}

// ParseEntryID parses the textual forms "3", "3a", and "3b-5".
func ParseEntryID(s string) (EntryID, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return EntryID{}, fmt.Errorf("entry id is empty")
	}

	base := trimmed
	archived := 0
	if idx := strings.IndexByte(trimmed, '-'); idx >= 0 {
		tail := trimmed[idx+1:]
		n, err := strconv.Atoi(tail)
		if err != nil || n <= 0 {
			return EntryID{}, fmt.Errorf("entry id %q: bad archive suffix", trimmed)
		}
		archived = n
		base = trimmed[:idx]
	}

	letter := byte(0)
	if len(base) > 0 {
		last := base[len(base)-1]
		if last >= 'a' && last <= 'z' {
			letter = last
			base = base[:len(base)-1]
		}
	}
	num, err := strconv.Atoi(base)
	if err != nil || num <= 0 {
		return EntryID{}, fmt.Errorf("entry id %q: bad number", trimmed)
	}
	if archived != 0 && letter == 0 {
		return EntryID{}, fmt.Errorf("entry id %q: archive suffix on accepted entry", trimmed)
	}
	return EntryID{Num: num, Letter: letter, ArchivedTo: archived}, nil
}
