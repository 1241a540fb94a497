// Package phrase matches transcript fragments against a user's secret
// phrase. An optional substitutions file normalizes common
// mis-transcriptions before matching.
package phrase

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// loopLimit bounds repeated rule application so mutually recursive
// substitutions terminate.
const loopLimit = 10

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Matcher performs case-insensitive substring matching after
// normalization.
type Matcher struct {
	target string
	rules  []rule
}

// NewMatcher compiles a matcher for the target phrase. rulesPath may
// be empty or point at a missing file; both mean no normalization.
// Rule lines are `heard => meant`; blank lines and # comments are
// skipped.
func NewMatcher(target string, rulesPath string) (*Matcher, error) {
	target = collapseSpace(target)
	if target == "" {
		return nil, errors.New("secret phrase cannot be empty")
	}

	m := &Matcher{target: strings.ToLower(target)}
	if strings.TrimSpace(rulesPath) == "" {
		return m, nil
	}

	contents, err := os.ReadFile(rulesPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("failed to read substitutions file %q: %w", rulesPath, err)
	}

	rules, err := parseRules(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse substitutions file %q: %w", rulesPath, err)
	}
	m.rules = rules
	return m, nil
}

// Target returns the normalized phrase being matched.
func (m *Matcher) Target() string { return m.target }

// Match reports whether the fragment contains the secret phrase,
// ignoring case and repeated whitespace.
func (m *Matcher) Match(fragment string) bool {
	text := strings.ToLower(collapseSpace(m.normalize(fragment)))
	return strings.Contains(text, m.target)
}

func (m *Matcher) normalize(text string) string {
	if len(m.rules) == 0 {
		return text
	}
	result := text
	for i := 0; i < loopLimit; i++ {
		changed := false
		for _, r := range m.rules {
			next := r.re.ReplaceAllString(result, r.replacement)
			if next != result {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result
}

func parseRules(contents string) ([]rule, error) {
	lines := strings.Split(contents, "\n")
	rules := make([]rule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=>", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: expected `heard => meant`", index+1)
		}
		from := strings.TrimSpace(parts[0])
		to := strings.TrimSpace(parts[1])
		if from == "" {
			return nil, fmt.Errorf("line %d: substitution source cannot be empty", index+1)
		}
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		rules = append(rules, rule{re: re, replacement: to})
	}
	return rules, nil
}

func collapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
