package changespec

import (
	"fmt"
	"sort"
)

// IDMapping records how every entry id moved during a renumbering pass.
// A nil value means the entry was removed; status lines referencing a
// removed entry are dropped.
type IDMapping map[EntryID]*EntryID

// RenumberAcceptedProposals promotes the given proposals to accepted
// entries, in caller order, appending them after the current highest
// numeric id. Proposals that share a base number with an accepted one
// are archived rather than deleted: their id gains an "-<newNum>"
// marker pointing at the promoted entry. When two accepted proposals
// share a base number only the first is promoted; the rest archive
// against it, so exactly one diff stays canonical.
//
// extraNotes, when present, replaces the note of the promoted entry at
// the same index. The returned mapping has been applied to every hook,
// mentor, and comment status line and to every suffix carrying an entry
// reference. The record is mutated in place; persistence is the
// caller's job.
func (r *Record) RenumberAcceptedProposals(accepted []EntryID, extraNotes []string) (IDMapping, error) {
	if len(accepted) == 0 {
		return nil, fmt.Errorf("no proposals to accept")
	}
	seen := make(map[EntryID]bool, len(accepted))
	for _, id := range accepted {
		if !id.IsProposal() || id.IsArchived() {
			return nil, fmt.Errorf("entry %s is not a live proposal", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("entry %s accepted twice", id)
		}
		seen[id] = true
		if r.Entry(id) == nil {
			return nil, fmt.Errorf("entry %s not found", id)
		}
	}

	mapping := make(IDMapping, len(r.Entries))
	for _, e := range r.Entries {
		id := e.ID
		mapping[id] = &id
	}

	next := r.MaxNumericID() + 1
	promotedByBase := make(map[int]int)

	for i, id := range accepted {
		entry := r.Entry(id)
		if newNum, dup := promotedByBase[id.Num]; dup {
			archived := EntryID{Num: id.Num, Letter: id.Letter, ArchivedTo: newNum}
			entry.ID = archived
			mapping[id] = &archived
			continue
		}
		newID := EntryID{Num: next}
		promotedByBase[id.Num] = next
		next++
		entry.ID = newID
		if entry.Suffix != nil && entry.Suffix.Kind == SuffixNewProposal {
			entry.Suffix = nil
		}
		if i < len(extraNotes) && extraNotes[i] != "" {
			entry.Note = extraNotes[i]
		}
		mapping[id] = &newID
	}

	// Sibling proposals of a promoted base are archived too.
	for _, e := range r.Entries {
		id := e.ID
		if !id.IsProposal() || id.IsArchived() {
			continue
		}
		newNum, ok := promotedByBase[id.Num]
		if !ok {
			continue
		}
		archived := EntryID{Num: id.Num, Letter: id.Letter, ArchivedTo: newNum}
		e.ID = archived
		mapping[id] = &archived
	}

	for _, e := range r.Entries {
		remapSuffix(e.Suffix, mapping)
	}
	remapSuffix(r.Attention, mapping)
	for _, h := range r.Hooks {
		h.Lines = remapLines(h.Lines, mapping)
	}
	for _, c := range r.Comments {
		c.Lines = remapLines(c.Lines, mapping)
	}
	for _, m := range r.Mentors {
		m.Lines = remapLines(m.Lines, mapping)
	}

	sort.SliceStable(r.Entries, func(i, j int) bool {
		return r.Entries[i].ID.Compare(r.Entries[j].ID) < 0
	})

	return mapping, nil
}

func remapLines(lines []StatusLine, mapping IDMapping) []StatusLine {
	type keyed struct {
		line StatusLine
		num  int
		// letter of the pre-renumbering id keeps archived runs adjacent
		// to where they sorted before the rename
		letter byte
	}
	kept := make([]keyed, 0, len(lines))
	for _, l := range lines {
		oldLetter := l.Entry.Letter
		if mapped, ok := mapping[l.Entry]; ok {
			if mapped == nil {
				continue
			}
			l.Entry = *mapped
		}
		remapSuffix(l.Suffix, mapping)
		kept = append(kept, keyed{line: l, num: l.Entry.Num, letter: oldLetter})
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].num != kept[j].num {
			return kept[i].num < kept[j].num
		}
		return kept[i].letter < kept[j].letter
	})
	out := make([]StatusLine, len(kept))
	for i, k := range kept {
		out[i] = k.line
	}
	return out
}

func remapSuffix(s *Suffix, mapping IDMapping) {
	if s == nil || s.Entry.IsZero() {
		return
	}
	if mapped, ok := mapping[s.Entry]; ok && mapped != nil {
		s.Entry = *mapped
	}
}
