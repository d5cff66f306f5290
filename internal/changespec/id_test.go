package changespec_test

import (
	"testing"

	"shepherd/internal/changespec"
)

func TestParseEntryID(t *testing.T) {
	cases := []struct {
		in   string
		want changespec.EntryID
	}{
		{"3", changespec.EntryID{Num: 3}},
		{"12", changespec.EntryID{Num: 12}},
		{"3a", changespec.EntryID{Num: 3, Letter: 'a'}},
		{"3b-5", changespec.EntryID{Num: 3, Letter: 'b', ArchivedTo: 5}},
		{" 7c ", changespec.EntryID{Num: 7, Letter: 'c'}},
	}
	for _, tc := range cases {
		got, err := changespec.ParseEntryID(tc.in)
		if err != nil {
			t.Fatalf("ParseEntryID(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseEntryID(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
		if got.String() != tc.want.String() {
			t.Fatalf("String mismatch for %q: %q vs %q", tc.in, got.String(), tc.want.String())
		}
	}
}

func TestParseEntryIDRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "a", "0", "-3", "3-5", "3b-", "3b-0", "3B"} {
		if _, err := changespec.ParseEntryID(in); err == nil {
			t.Fatalf("ParseEntryID(%q) should have failed", in)
		}
	}
}

func TestEntryIDCompare(t *testing.T) {
	ordered := []changespec.EntryID{
		{Num: 1},
		{Num: 3},
		{Num: 3, Letter: 'a'},
		{Num: 3, Letter: 'b'},
		{Num: 4},
	}
	for i := 0; i < len(ordered)-1; i++ {
		if ordered[i].Compare(ordered[i+1]) >= 0 {
			t.Fatalf("%s should sort before %s", ordered[i], ordered[i+1])
		}
	}

	// Archival does not change sort position.
	archived := changespec.EntryID{Num: 3, Letter: 'b', ArchivedTo: 5}
	plain := changespec.EntryID{Num: 3, Letter: 'b'}
	if archived.Compare(plain) != 0 {
		t.Fatalf("archived %s should compare equal to %s", archived, plain)
	}
}

func TestEntryIDPredicates(t *testing.T) {
	if (changespec.EntryID{Num: 3}).IsProposal() {
		t.Fatal("accepted id reported as proposal")
	}
	if !(changespec.EntryID{Num: 3, Letter: 'a'}).IsProposal() {
		t.Fatal("lettered id not reported as proposal")
	}
	if !(changespec.EntryID{Num: 3, Letter: 'b', ArchivedTo: 5}).IsArchived() {
		t.Fatal("archived id not reported as archived")
	}
	if !(changespec.EntryID{}).IsZero() {
		t.Fatal("zero id not reported as zero")
	}
}
