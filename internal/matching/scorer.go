package matching

import "strings"

// exactTokenWeight is the score contributed by an exact token match. It
// must exceed any realistic prefix length so a full token always outranks
// a partial one.
const exactTokenWeight = 10

// IsCandidate reports whether every input token is a prefix of at least
// one entry token. The check is order-agnostic: "smith john" matches the
// entry tokens ["john","smith"]. Empty input never matches.
func IsCandidate(entryTokens, inputTokens []string) bool {
	if len(inputTokens) == 0 {
		return false
	}
	for _, input := range inputTokens {
		matched := false
		for _, entry := range entryTokens {
			if strings.HasPrefix(entry, input) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// maxPrefixWeight caps what a proper prefix can contribute so an exact
// token always outranks a partial one, no matter how long the input is.
const maxPrefixWeight = exactTokenWeight - 1

// Score sums, per input token, the best match against any entry token:
// exact equality contributes exactTokenWeight, a proper prefix contributes
// the input token's length capped at maxPrefixWeight. Entry tokens may be
// reused across input tokens; there is no exclusivity constraint.
func Score(entryTokens, inputTokens []string) int {
	total := 0
	for _, input := range inputTokens {
		best := 0
		for _, entry := range entryTokens {
			if entry == input {
				best = exactTokenWeight
				break
			}
			if strings.HasPrefix(entry, input) {
				partial := len(input)
				if partial > maxPrefixWeight {
					partial = maxPrefixWeight
				}
				if partial > best {
					best = partial
				}
			}
		}
		total += best
	}
	return total
}
