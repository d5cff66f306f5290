package changespec_test

import (
	"testing"
	"time"

	"shepherd/internal/changespec"
)

func testRecord() *changespec.Record {
	at := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	return &changespec.Record{
		Project: "demo",
		Name:    "renumber-target",
		Status:  changespec.StatusWIP,
		Entries: []*changespec.CommitEntry{
			{ID: changespec.EntryID{Num: 1}, Note: "first"},
			{ID: changespec.EntryID{Num: 2}, Note: "second"},
			{ID: changespec.EntryID{Num: 3}, Note: "third"},
			{ID: changespec.EntryID{Num: 3, Letter: 'a'}, Note: "proposal a", Suffix: &changespec.Suffix{Kind: changespec.SuffixNewProposal}},
			{ID: changespec.EntryID{Num: 3, Letter: 'b'}, Note: "proposal b", Suffix: &changespec.Suffix{Kind: changespec.SuffixNewProposal}},
			{ID: changespec.EntryID{Num: 4}, Note: "fourth"},
		},
		Hooks: []*changespec.HookEntry{
			{
				Command: "make test",
				Lines: []changespec.StatusLine{
					{Entry: changespec.EntryID{Num: 3}, At: at, State: changespec.RunStatePassed, Duration: time.Minute},
					{Entry: changespec.EntryID{Num: 3, Letter: 'a'}, At: at.Add(time.Hour), State: changespec.RunStatePassed, Duration: time.Minute},
					{Entry: changespec.EntryID{Num: 3, Letter: 'b'}, At: at.Add(2 * time.Hour), State: changespec.RunStateFailed, Duration: time.Minute},
					{Entry: changespec.EntryID{Num: 4}, At: at.Add(3 * time.Hour), State: changespec.RunStatePassed, Duration: time.Minute},
				},
			},
		},
	}
}

func TestRenumberAcceptedProposal(t *testing.T) {
	rec := testRecord()

	mapping, err := rec.RenumberAcceptedProposals([]changespec.EntryID{{Num: 3, Letter: 'a'}}, nil)
	if err != nil {
		t.Fatalf("RenumberAcceptedProposals failed: %v", err)
	}

	// 3a is promoted past the current maximum; accepted ids never move.
	if got := mapping[changespec.EntryID{Num: 3, Letter: 'a'}]; got == nil || *got != (changespec.EntryID{Num: 5}) {
		t.Fatalf("3a should map to 5, got %v", got)
	}
	if got := mapping[changespec.EntryID{Num: 4}]; got == nil || *got != (changespec.EntryID{Num: 4}) {
		t.Fatalf("4 should stay 4, got %v", got)
	}
	wantArchived := changespec.EntryID{Num: 3, Letter: 'b', ArchivedTo: 5}
	if got := mapping[changespec.EntryID{Num: 3, Letter: 'b'}]; got == nil || *got != wantArchived {
		t.Fatalf("3b should archive as 3b-5, got %v", got)
	}

	promoted := rec.Entry(changespec.EntryID{Num: 5})
	if promoted == nil || promoted.Note != "proposal a" {
		t.Fatalf("promoted entry missing: %+v", promoted)
	}
	if promoted.Suffix != nil {
		t.Fatalf("promotion should clear the new-proposal marker, got %+v", promoted.Suffix)
	}
	archived := rec.Entry(wantArchived)
	if archived == nil || archived.Suffix == nil || archived.Suffix.Kind != changespec.SuffixNewProposal {
		t.Fatalf("archived sibling should keep its marker: %+v", archived)
	}

	// Entries end up ordered 1, 2, 3, 3b-5, 4, 5.
	wantOrder := []changespec.EntryID{
		{Num: 1}, {Num: 2}, {Num: 3}, wantArchived, {Num: 4}, {Num: 5},
	}
	for i, want := range wantOrder {
		if rec.Entries[i].ID != want {
			t.Fatalf("entry %d is %s, want %s", i, rec.Entries[i].ID, want)
		}
	}

	// Status lines follow their entries and re-sort on the old letter, so
	// the promoted run stays adjacent to its former position.
	lines := rec.Hooks[0].Lines
	wantLineOrder := []changespec.EntryID{
		{Num: 3}, {Num: 3, Letter: 'b', ArchivedTo: 5}, {Num: 4}, {Num: 5},
	}
	if len(lines) != len(wantLineOrder) {
		t.Fatalf("expected %d lines, got %d", len(wantLineOrder), len(lines))
	}
	for i, want := range wantLineOrder {
		if lines[i].Entry != want {
			t.Fatalf("line %d references %s, want %s", i, lines[i].Entry, want)
		}
	}
}

func TestRenumberReplacesNote(t *testing.T) {
	rec := testRecord()
	_, err := rec.RenumberAcceptedProposals(
		[]changespec.EntryID{{Num: 3, Letter: 'a'}},
		[]string{"landed after rebase"},
	)
	if err != nil {
		t.Fatalf("RenumberAcceptedProposals failed: %v", err)
	}
	promoted := rec.Entry(changespec.EntryID{Num: 5})
	if promoted == nil || promoted.Note != "landed after rebase" {
		t.Fatalf("note not replaced: %+v", promoted)
	}
}

func TestRenumberDuplicateBasePromotesFirst(t *testing.T) {
	rec := testRecord()
	mapping, err := rec.RenumberAcceptedProposals([]changespec.EntryID{
		{Num: 3, Letter: 'b'},
		{Num: 3, Letter: 'a'},
	}, nil)
	if err != nil {
		t.Fatalf("RenumberAcceptedProposals failed: %v", err)
	}
	if got := mapping[changespec.EntryID{Num: 3, Letter: 'b'}]; got == nil || *got != (changespec.EntryID{Num: 5}) {
		t.Fatalf("3b accepted first should map to 5, got %v", got)
	}
	want := changespec.EntryID{Num: 3, Letter: 'a', ArchivedTo: 5}
	if got := mapping[changespec.EntryID{Num: 3, Letter: 'a'}]; got == nil || *got != want {
		t.Fatalf("3a should archive against the promoted sibling, got %v", got)
	}
}

func TestRenumberRejectsBadInput(t *testing.T) {
	cases := []struct {
		name     string
		accepted []changespec.EntryID
	}{
		{"empty", nil},
		{"accepted id", []changespec.EntryID{{Num: 3}}},
		{"missing proposal", []changespec.EntryID{{Num: 9, Letter: 'a'}}},
		{"duplicate", []changespec.EntryID{{Num: 3, Letter: 'a'}, {Num: 3, Letter: 'a'}}},
		{"archived id", []changespec.EntryID{{Num: 3, Letter: 'a', ArchivedTo: 5}}},
	}
	for _, tc := range cases {
		rec := testRecord()
		if _, err := rec.RenumberAcceptedProposals(tc.accepted, nil); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
