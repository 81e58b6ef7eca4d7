// Package utils holds small helpers shared by the CLI and the state store
package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// NameMatcher matches module names against glob patterns. '*' matches any
// run of characters, '?' exactly one and '[...]' a character class
// ('[!...]' negates it).
type NameMatcher struct {
	patterns []string
	regexps  []*regexp.Regexp
}

// NewNameMatcher compiles the given patterns
func NewNameMatcher(patterns []string) (*NameMatcher, error) {
	nm := &NameMatcher{
		patterns: append([]string(nil), patterns...),
		regexps:  make([]*regexp.Regexp, 0, len(patterns)),
	}

	for _, pattern := range patterns {
		regex, err := globToRegex(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		nm.regexps = append(nm.regexps, regex)
	}

	return nm, nil
}

// Match reports whether name matches any pattern
func (nm *NameMatcher) Match(name string) bool {
	for _, regex := range nm.regexps {
		if regex.MatchString(name) {
			return true
		}
	}
	return false
}

// Select returns the names matching any pattern, in input order, and the
// patterns that matched nothing
func (nm *NameMatcher) Select(names []string) (matched, unused []string) {
	used := make([]bool, len(nm.regexps))
	for _, name := range names {
		hit := false
		for i, regex := range nm.regexps {
			if regex.MatchString(name) {
				used[i] = true
				hit = true
			}
		}
		if hit {
			matched = append(matched, name)
		}
	}

	for i, pattern := range nm.patterns {
		if !used[i] {
			unused = append(unused, pattern)
		}
	}
	return matched, unused
}

// globToRegex converts a glob pattern to an anchored regular expression
func globToRegex(pattern string) (*regexp.Regexp, error) {
	var regex strings.Builder
	regex.WriteString("^")

	i := 0
	for i < len(pattern) {
		switch pattern[i] {
		case '*':
			regex.WriteString(".*")
			i++
		case '?':
			regex.WriteString(".")
			i++
		case '[':
			j := i + 1
			if j < len(pattern) && pattern[j] == '!' {
				regex.WriteString("[^")
				j++
			} else {
				regex.WriteString("[")
			}

			for j < len(pattern) && pattern[j] != ']' {
				if pattern[j] == '\\' && j+1 < len(pattern) {
					regex.WriteByte(pattern[j])
					regex.WriteByte(pattern[j+1])
					j += 2
				} else {
					regex.WriteByte(pattern[j])
					j++
				}
			}

			if j < len(pattern) {
				regex.WriteByte(']')
				i = j + 1
			} else {
				// Unclosed bracket, treat as literal
				return regexp.Compile("^" + regexp.QuoteMeta(pattern) + "$")
			}
		case '\\':
			if i+1 < len(pattern) {
				regex.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				regex.WriteString(`\\`)
				i++
			}
		default:
			regex.WriteString(regexp.QuoteMeta(string(pattern[i])))
			i++
		}
	}

	regex.WriteString("$")

	return regexp.Compile(regex.String())
}

// IsGlobPattern checks if a string contains glob wildcards
func IsGlobPattern(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}
