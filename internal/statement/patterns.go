package statement

import (
	"fmt"
	"regexp"
)

// Patterns recognise the non-transaction lines of a statement. Each list is
// matched against the raw line text, case-insensitively.
type Patterns struct {
	PageMarkers    []*regexp.Regexp
	HeaderFooters  []*regexp.Regexp
	SectionHeaders []*regexp.Regexp
	OpeningBalance []*regexp.Regexp
	ClosingBalance []*regexp.Regexp
}

// DefaultPatterns covers the layouts of common North American statements.
func DefaultPatterns() Patterns {
	return Patterns{
		PageMarkers: mustCompile(
			`^\s*page\s+\d+(\s+of\s+\d+)?\s*$`,
			`^\s*-+\s*\d+\s*-+\s*$`,
			`\bcontinued\s+on\s+(next\s+)?page\b`,
		),
		HeaderFooters: mustCompile(
			`^\s*date\s+(transaction\s+)?description\b`,
			`\bwithdrawals?\b.*\bdeposits?\b.*\bbalance\b`,
			`^\s*(account\s+(number|no\.?)|statement\s+period)\b`,
			`^\s*total\s+(withdrawals|deposits|debits|credits)\b`,
			`\bmember\s+fdic\b`,
		),
		SectionHeaders: mustCompile(
			`^\s*(deposits?\s+(and|&)\s+(other\s+)?(credits|additions)|withdrawals?\s+(and|&)\s+(other\s+)?debits)\s*$`,
			`^\s*(checks\s+paid|electronic\s+withdrawals|service\s+charges|account\s+activity|transaction\s+details|daily\s+balance\s+summary)\s*$`,
		),
		OpeningBalance: mustCompile(
			`\b(opening|beginning|starting|start|previous)\s+balance\b`,
			`\bbalance\s+brought\s+forward\b`,
			`^\s*balance\s+forward\b`,
		),
		ClosingBalance: mustCompile(
			`\b(closing|ending|new)\s+balance\b`,
			`\bbalance\s+carried\s+forward\b`,
		),
	}
}

// CompilePatterns builds case-insensitive regexps from raw expressions.
func CompilePatterns(exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		re, err := regexp.Compile(`(?i)` + e)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %q: %w", e, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func mustCompile(exprs ...string) []*regexp.Regexp {
	out, err := CompilePatterns(exprs)
	if err != nil {
		panic(err)
	}
	return out
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
