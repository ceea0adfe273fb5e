package matching

import "strings"

// Strategy selects how a scope's names get matched.
type Strategy string

const (
	// StrategyRoster matches against the scope's fixed roster with
	// token-prefix scoring.
	StrategyRoster Strategy = "roster"
	// StrategyDirectory bypasses token matching and substring-searches the
	// full student directory. Used only for the catch-all scope.
	StrategyDirectory Strategy = "directory"
)

// StrategyForScope picks the matching strategy for a scope. Pure function
// of the scope name: only the designated catch-all scope uses directory
// search, every other scope matches against its roster.
func StrategyForScope(scope, catchAllScope string) Strategy {
	if normalizeScope(scope) == normalizeScope(catchAllScope) && normalizeScope(scope) != "" {
		return StrategyDirectory
	}
	return StrategyRoster
}

func normalizeScope(scope string) string {
	return strings.ToLower(strings.Join(strings.Fields(scope), " "))
}
