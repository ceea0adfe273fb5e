package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	domain "github.com/hallpass-app/api/internal/domain"
	"github.com/hallpass-app/api/internal/matching"
	"github.com/hallpass-app/api/internal/platform/debounce"
	"github.com/hallpass-app/api/internal/repositories"
)

// ErrSuggestionInvalidInput indicates a missing scope or malformed query.
var ErrSuggestionInvalidInput = errors.New("suggestions: invalid input")

// ErrSuggestionUnavailable indicates the roster or directory backend failed.
var ErrSuggestionUnavailable = errors.New("suggestions: backend unavailable")

// ErrSearchSuperseded reports that a newer query replaced this one before
// its result was delivered. Expected during fast typing, not a failure.
var ErrSearchSuperseded = errors.New("suggestions: search superseded by newer query")

const (
	defaultSuggestionRosterTTL = 30 * time.Second
	defaultDirectoryDebounce   = 250 * time.Millisecond
	defaultDirectoryMinQuery   = 2
	defaultDirectoryLimit      = 20
)

// SuggestionServiceDeps wires the suggestion service dependencies.
type SuggestionServiceDeps struct {
	Rosters   repositories.RosterRepository
	Directory repositories.StudentDirectoryRepository
	Logger    *zap.Logger

	// CatchAllScope names the single no-roster scope that searches the
	// directory instead of matching a roster.
	CatchAllScope     string
	SuggestionLimit   int
	NotFoundThreshold int
	DirectoryMinQuery int
	DirectoryLimit    int
	DebounceInterval  time.Duration
	RosterCacheTTL    time.Duration
	Clock             func() time.Time
}

type suggestionService struct {
	rosters   repositories.RosterRepository
	directory repositories.StudentDirectoryRepository
	logger    *zap.Logger

	catchAllScope     string
	suggestionLimit   int
	notFoundThreshold int
	directoryMinQuery int
	directoryLimit    int
	debounceInterval  time.Duration
	rosterTTL         time.Duration
	now               func() time.Time

	mu       sync.Mutex
	matchers map[string]*rosterCacheEntry

	sessionMu sync.Mutex
	sessions  map[string]*directorySession
	closed    bool
}

type rosterCacheEntry struct {
	matcher  *matching.RosterMatcher
	loadedAt time.Time
}

// NewSuggestionService constructs the suggestion service.
func NewSuggestionService(deps SuggestionServiceDeps) (SuggestionService, error) {
	if deps.Rosters == nil {
		return nil, errors.New("suggestions: roster repository is required")
	}
	if deps.Directory == nil {
		return nil, errors.New("suggestions: directory repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	minQuery := deps.DirectoryMinQuery
	if minQuery <= 0 {
		minQuery = defaultDirectoryMinQuery
	}
	limit := deps.DirectoryLimit
	if limit <= 0 {
		limit = defaultDirectoryLimit
	}
	interval := deps.DebounceInterval
	if interval <= 0 {
		interval = defaultDirectoryDebounce
	}
	ttl := deps.RosterCacheTTL
	if ttl <= 0 {
		ttl = defaultSuggestionRosterTTL
	}

	return &suggestionService{
		rosters:           deps.Rosters,
		directory:         deps.Directory,
		logger:            logger,
		catchAllScope:     strings.TrimSpace(deps.CatchAllScope),
		suggestionLimit:   deps.SuggestionLimit,
		notFoundThreshold: deps.NotFoundThreshold,
		directoryMinQuery: minQuery,
		directoryLimit:    limit,
		debounceInterval:  interval,
		rosterTTL:         ttl,
		now:               func() time.Time { return clock().UTC() },
		matchers:          make(map[string]*rosterCacheEntry),
		sessions:          make(map[string]*directorySession),
	}, nil
}

// Roster returns the scope's roster as stored, ordered by display name.
func (s *suggestionService) Roster(ctx context.Context, scope string) ([]domain.RosterEntry, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, ErrSuggestionInvalidInput
	}
	entries, err := s.rosters.ListByScope(ctx, scope)
	if err != nil {
		s.logger.Warn("roster load failed", zap.String("scope", scope), zap.Error(err))
		return nil, ErrSuggestionUnavailable
	}
	return entries, nil
}

// Suggest routes the input to the scope's strategy and returns either a
// ranked roster panel or directory hits.
func (s *suggestionService) Suggest(ctx context.Context, query SuggestQuery) (SuggestResult, error) {
	scope := strings.TrimSpace(query.Scope)
	if scope == "" {
		return SuggestResult{}, ErrSuggestionInvalidInput
	}

	strategy := matching.StrategyForScope(scope, s.catchAllScope)
	if strategy == matching.StrategyDirectory {
		students, err := s.SearchDirectory(ctx, DirectorySearchQuery{Query: query.Input})
		if err != nil {
			return SuggestResult{}, err
		}
		return SuggestResult{Strategy: strategy, Directory: students}, nil
	}

	matcher, err := s.matcher(ctx, scope)
	if err != nil {
		return SuggestResult{}, err
	}
	return SuggestResult{Strategy: strategy, Panel: matcher.Suggest(query.Input)}, nil
}

// SearchDirectory runs a directory lookup. A query below the minimum length
// issues no search at all. Queries carrying a session ID are debounced per
// session and a superseded query returns ErrSearchSuperseded.
func (s *suggestionService) SearchDirectory(ctx context.Context, query DirectorySearchQuery) ([]DirectoryStudent, error) {
	q := strings.TrimSpace(query.Query)
	if len([]rune(q)) < s.directoryMinQuery {
		return nil, nil
	}

	sessionID := strings.TrimSpace(query.SessionID)
	if sessionID == "" {
		return s.searchNow(ctx, q)
	}

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	ch := make(chan searchOutcome, 1)
	sess.mu.Lock()
	generation := sess.debouncer.Submit(q)
	// Waiters for older generations are superseded the moment a newer
	// query arrives; they must not be left blocking until it completes.
	kept := sess.waiters[:0]
	for _, w := range sess.waiters {
		if w.generation < generation {
			w.ch <- searchOutcome{err: ErrSearchSuperseded}
			continue
		}
		kept = append(kept, w)
	}
	sess.waiters = append(kept, &searchWaiter{generation: generation, ch: ch})
	sess.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case outcome := <-ch:
		return outcome.students, outcome.err
	}
}

// InvalidateRoster drops the cached matcher for a scope, forcing the next
// suggestion request to reload the roster.
func (s *suggestionService) InvalidateRoster(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matchers, strings.TrimSpace(scope))
}

// Close shuts down the debounced search sessions and releases any waiters.
func (s *suggestionService) Close() {
	s.sessionMu.Lock()
	if s.closed {
		s.sessionMu.Unlock()
		return
	}
	s.closed = true
	sessions := make([]*directorySession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = nil
	s.sessionMu.Unlock()

	for _, sess := range sessions {
		sess.debouncer.Close()
		sess.mu.Lock()
		for _, w := range sess.waiters {
			w.ch <- searchOutcome{err: ErrSearchSuperseded}
		}
		sess.waiters = nil
		sess.mu.Unlock()
	}
}

func (s *suggestionService) matcher(ctx context.Context, scope string) (*matching.RosterMatcher, error) {
	now := s.now()

	s.mu.Lock()
	entry, ok := s.matchers[scope]
	s.mu.Unlock()
	if ok && now.Sub(entry.loadedAt) < s.rosterTTL {
		return entry.matcher, nil
	}

	rosterEntries, err := s.rosters.ListByScope(ctx, scope)
	if err != nil {
		// Serve the stale matcher rather than fail the keystroke; the
		// kiosk retries on the next input change anyway.
		if ok {
			s.logger.Warn("roster refresh failed, serving cached roster",
				zap.String("scope", scope), zap.Error(err))
			return entry.matcher, nil
		}
		s.logger.Warn("roster load failed", zap.String("scope", scope), zap.Error(err))
		return nil, ErrSuggestionUnavailable
	}

	opts := make([]matching.MatcherOption, 0, 2)
	if s.suggestionLimit > 0 {
		opts = append(opts, matching.WithSuggestionLimit(s.suggestionLimit))
	}
	if s.notFoundThreshold > 0 {
		opts = append(opts, matching.WithNotFoundThreshold(s.notFoundThreshold))
	}
	matcher := matching.NewRosterMatcher(rosterEntries, opts...)

	s.mu.Lock()
	s.matchers[scope] = &rosterCacheEntry{matcher: matcher, loadedAt: now}
	s.mu.Unlock()
	return matcher, nil
}

func (s *suggestionService) searchNow(ctx context.Context, query string) ([]DirectoryStudent, error) {
	students, err := s.directory.Search(ctx, query, s.directoryLimit)
	if err != nil {
		s.logger.Warn("directory search failed", zap.Error(err))
		return nil, ErrSuggestionUnavailable
	}
	hits := make([]DirectoryStudent, 0, len(students))
	for _, student := range students {
		hits = append(hits, DirectoryStudent{
			ID:          student.ID,
			FirstName:   student.FirstName,
			LastName:    student.LastName,
			DisplayName: student.DisplayName(),
		})
	}
	return hits, nil
}

type searchOutcome struct {
	students []DirectoryStudent
	err      error
}

type searchWaiter struct {
	generation uint64
	ch         chan searchOutcome
}

type directorySession struct {
	debouncer *debounce.Debouncer[string, []DirectoryStudent]
	mu        sync.Mutex
	waiters   []*searchWaiter
}

func (s *suggestionService) session(sessionID string) (*directorySession, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if s.closed {
		return nil, ErrSuggestionUnavailable
	}
	if sess, ok := s.sessions[sessionID]; ok {
		return sess, nil
	}

	sess := &directorySession{}
	sess.debouncer = debounce.New(
		s.debounceInterval,
		func(ctx context.Context, query string) ([]DirectoryStudent, error) {
			return s.searchNow(ctx, query)
		},
		func(_ string, generation uint64, students []DirectoryStudent, err error) {
			sess.mu.Lock()
			defer sess.mu.Unlock()
			kept := sess.waiters[:0]
			for _, w := range sess.waiters {
				switch {
				case w.generation == generation:
					w.ch <- searchOutcome{students: students, err: err}
				case w.generation < generation:
					w.ch <- searchOutcome{err: ErrSearchSuperseded}
				default:
					kept = append(kept, w)
				}
			}
			sess.waiters = kept
		},
	)
	s.sessions[sessionID] = sess
	return sess, nil
}

var _ SuggestionService = (*suggestionService)(nil)
