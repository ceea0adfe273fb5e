package matching

import (
	"sort"
	"strings"

	"github.com/hallpass-app/api/internal/domain"
)

const (
	// DefaultSuggestionLimit caps the candidate list shown on the kiosk.
	DefaultSuggestionLimit = 8
	// DefaultNotFoundThreshold is the trimmed input length at which zero
	// candidates flips the panel into the "not in list" state.
	DefaultNotFoundThreshold = 3
)

// PanelState tells the kiosk what to render around the candidate list.
type PanelState string

const (
	// PanelHidden means the input is empty and no suggestions should show.
	PanelHidden PanelState = "hidden"
	// PanelOpen means the ranked candidate list should be displayed.
	PanelOpen PanelState = "open"
	// PanelExactMatch means the input already equals a single roster name
	// and the list is suppressed as "already selected".
	PanelExactMatch PanelState = "exact_match"
	// PanelNotInList means the input is long enough to be a real attempt
	// and nothing matched; the kiosk offers the override path.
	PanelNotInList PanelState = "not_in_list"
)

// Candidate pairs a roster entry with its ranking score.
type Candidate struct {
	Entry domain.RosterEntry
	Score int
}

// Suggestion is the result of matching one input string against a roster.
type Suggestion struct {
	State      PanelState
	Candidates []Candidate
}

// RosterMatcher holds a roster snapshot with precomputed tokenizations so
// per-keystroke matching never re-tokenizes entries. A matcher is bound
// to one scope; switching scope means building a fresh matcher, which is
// how the token cache gets invalidated.
type RosterMatcher struct {
	entries   []indexedEntry
	limit     int
	threshold int
}

type indexedEntry struct {
	entry  domain.RosterEntry
	tokens []string
	folded string
}

// MatcherOption customises a RosterMatcher.
type MatcherOption func(*RosterMatcher)

// WithSuggestionLimit overrides the candidate list cap.
func WithSuggestionLimit(limit int) MatcherOption {
	return func(m *RosterMatcher) {
		if limit > 0 {
			m.limit = limit
		}
	}
}

// WithNotFoundThreshold overrides the minimum input length for the
// "not in list" state.
func WithNotFoundThreshold(length int) MatcherOption {
	return func(m *RosterMatcher) {
		if length > 0 {
			m.threshold = length
		}
	}
}

// NewRosterMatcher tokenizes the roster once and returns a matcher ready
// for per-keystroke suggestions.
func NewRosterMatcher(entries []domain.RosterEntry, opts ...MatcherOption) *RosterMatcher {
	m := &RosterMatcher{
		entries:   make([]indexedEntry, 0, len(entries)),
		limit:     DefaultSuggestionLimit,
		threshold: DefaultNotFoundThreshold,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	for _, entry := range entries {
		tokens := Tokenize(entry.DisplayName)
		if len(tokens) == 0 {
			continue
		}
		m.entries = append(m.entries, indexedEntry{
			entry:  entry,
			tokens: tokens,
			folded: strings.Join(tokens, " "),
		})
	}
	return m
}

// Len reports the number of usable roster entries held by the matcher.
func (m *RosterMatcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Suggest matches the live input against the roster and returns the
// ranked, capped candidate list plus the panel state.
func (m *RosterMatcher) Suggest(input string) Suggestion {
	if m == nil {
		return Suggestion{State: PanelHidden}
	}

	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Suggestion{State: PanelHidden}
	}

	inputTokens := Tokenize(trimmed)
	if len(inputTokens) == 0 {
		return Suggestion{State: PanelHidden}
	}

	candidates := make([]Candidate, 0, m.limit)
	for _, indexed := range m.entries {
		if !IsCandidate(indexed.tokens, inputTokens) {
			continue
		}
		candidates = append(candidates, Candidate{
			Entry: indexed.entry,
			Score: Score(indexed.tokens, inputTokens),
		})
	}

	if len(candidates) == 0 {
		state := PanelOpen
		if len([]rune(trimmed)) >= m.threshold {
			state = PanelNotInList
		}
		return Suggestion{State: state, Candidates: nil}
	}

	// Descending by score; equal scores fall back to display name then
	// student id so ordering stays deterministic across roster loads.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		left := strings.ToLower(candidates[i].Entry.DisplayName)
		right := strings.ToLower(candidates[j].Entry.DisplayName)
		if left != right {
			return left < right
		}
		return candidates[i].Entry.StudentID < candidates[j].Entry.StudentID
	})

	if len(candidates) > m.limit {
		candidates = candidates[:m.limit]
	}

	if len(candidates) == 1 && candidates[0].matchesInputExactly(inputTokens) {
		return Suggestion{State: PanelExactMatch, Candidates: candidates}
	}

	return Suggestion{State: PanelOpen, Candidates: candidates}
}

// matchesInputExactly reports whether the typed input already equals the
// candidate's full name, token-for-token.
func (c Candidate) matchesInputExactly(inputTokens []string) bool {
	entryTokens := Tokenize(c.Entry.DisplayName)
	if len(entryTokens) != len(inputTokens) {
		return false
	}
	for i, token := range entryTokens {
		if token != inputTokens[i] {
			return false
		}
	}
	return true
}
