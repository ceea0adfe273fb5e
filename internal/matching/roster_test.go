package matching

import (
	"fmt"
	"testing"

	"github.com/hallpass-app/api/internal/domain"
)

func testRoster() []domain.RosterEntry {
	return []domain.RosterEntry{
		{StudentID: "1", DisplayName: "John Smith"},
		{StudentID: "2", DisplayName: "Jane Smith"},
		{StudentID: "3", DisplayName: "Alice Johnson"},
		{StudentID: "4", DisplayName: "Bob O'Brien"},
	}
}

func TestRosterMatcherEmptyInputHidesPanel(t *testing.T) {
	m := NewRosterMatcher(testRoster())
	for _, input := range []string{"", "   ", "\t"} {
		got := m.Suggest(input)
		if got.State != PanelHidden {
			t.Fatalf("Suggest(%q) state = %s, want %s", input, got.State, PanelHidden)
		}
		if len(got.Candidates) != 0 {
			t.Fatalf("Suggest(%q) returned %d candidates, want 0", input, len(got.Candidates))
		}
	}
}

func TestRosterMatcherSharedSurname(t *testing.T) {
	m := NewRosterMatcher(testRoster())

	got := m.Suggest("smith j")
	if got.State != PanelOpen {
		t.Fatalf("state = %s, want %s", got.State, PanelOpen)
	}
	if len(got.Candidates) != 2 {
		t.Fatalf("expected both Smiths, got %d candidates", len(got.Candidates))
	}
	for _, cand := range got.Candidates {
		if cand.Entry.StudentID != "1" && cand.Entry.StudentID != "2" {
			t.Fatalf("unexpected candidate %s", cand.Entry.DisplayName)
		}
	}
}

func TestRosterMatcherExactTokenExcludesOthers(t *testing.T) {
	m := NewRosterMatcher(testRoster())

	// "john" is not a prefix of "jane" or "smith", so Jane Smith fails
	// the candidate predicate outright.
	got := m.Suggest("john")
	for _, cand := range got.Candidates {
		if cand.Entry.StudentID == "2" {
			t.Fatalf("Jane Smith should not be a candidate for input \"john\"")
		}
	}
	if len(got.Candidates) == 0 {
		t.Fatalf("expected John Smith as candidate")
	}
	if got.Candidates[0].Entry.StudentID != "1" {
		t.Fatalf("expected John Smith first, got %s", got.Candidates[0].Entry.DisplayName)
	}
	if got.Candidates[0].Score < exactTokenWeight {
		t.Fatalf("expected exact-token score >= %d, got %d", exactTokenWeight, got.Candidates[0].Score)
	}
}

func TestRosterMatcherRejectedEntriesNeverAppear(t *testing.T) {
	m := NewRosterMatcher(testRoster())
	input := "ali"
	inputTokens := Tokenize(input)

	got := m.Suggest(input)
	for _, cand := range got.Candidates {
		if !IsCandidate(Tokenize(cand.Entry.DisplayName), inputTokens) {
			t.Fatalf("candidate %s fails IsCandidate for %q", cand.Entry.DisplayName, input)
		}
	}
}

func TestRosterMatcherCapsCandidates(t *testing.T) {
	entries := make([]domain.RosterEntry, 0, 30)
	for i := 0; i < 30; i++ {
		entries = append(entries, domain.RosterEntry{
			StudentID:   fmt.Sprintf("s%02d", i),
			DisplayName: fmt.Sprintf("Sam Smith%02d", i),
		})
	}
	m := NewRosterMatcher(entries)

	got := m.Suggest("sam")
	if len(got.Candidates) != DefaultSuggestionLimit {
		t.Fatalf("candidate count = %d, want %d", len(got.Candidates), DefaultSuggestionLimit)
	}
}

func TestRosterMatcherSortsDescendingWithDeterministicTies(t *testing.T) {
	m := NewRosterMatcher(testRoster())

	got := m.Suggest("s")
	for i := 1; i < len(got.Candidates); i++ {
		if got.Candidates[i].Score > got.Candidates[i-1].Score {
			t.Fatalf("candidates not sorted descending at index %d", i)
		}
	}
	// Jane and John Smith tie on input "smith"; alphabetical fallback puts
	// Jane first.
	tied := m.Suggest("smith")
	if len(tied.Candidates) < 2 {
		t.Fatalf("expected at least two candidates, got %d", len(tied.Candidates))
	}
	if tied.Candidates[0].Entry.DisplayName != "Jane Smith" {
		t.Fatalf("expected Jane Smith first on tie, got %s", tied.Candidates[0].Entry.DisplayName)
	}
}

func TestRosterMatcherExactFullNameSuppressesPanel(t *testing.T) {
	m := NewRosterMatcher(testRoster())

	got := m.Suggest("John Smith")
	if got.State != PanelExactMatch {
		t.Fatalf("state = %s, want %s", got.State, PanelExactMatch)
	}
	if len(got.Candidates) != 1 || got.Candidates[0].Entry.StudentID != "1" {
		t.Fatalf("expected single John Smith candidate, got %#v", got.Candidates)
	}

	upper := m.Suggest("JOHN SMITH")
	if upper.State != PanelExactMatch {
		t.Fatalf("case-insensitive exact match state = %s, want %s", upper.State, PanelExactMatch)
	}
}

func TestRosterMatcherNotInListThreshold(t *testing.T) {
	m := NewRosterMatcher(testRoster())

	short := m.Suggest("xy")
	if short.State != PanelOpen {
		t.Fatalf("below-threshold state = %s, want %s", short.State, PanelOpen)
	}

	long := m.Suggest("xyz123notarealname")
	if long.State != PanelNotInList {
		t.Fatalf("state = %s, want %s", long.State, PanelNotInList)
	}
	if len(long.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(long.Candidates))
	}
}

func TestStrategyForScope(t *testing.T) {
	if got := StrategyForScope("Period 3", "Other"); got != StrategyRoster {
		t.Fatalf("roster scope strategy = %s", got)
	}
	if got := StrategyForScope("Other", "Other"); got != StrategyDirectory {
		t.Fatalf("catch-all strategy = %s", got)
	}
	if got := StrategyForScope("  other  ", "Other"); got != StrategyDirectory {
		t.Fatalf("catch-all matching should ignore case and spacing, got %s", got)
	}
	if got := StrategyForScope("", ""); got != StrategyRoster {
		t.Fatalf("empty scopes must fall back to roster, got %s", got)
	}
}
