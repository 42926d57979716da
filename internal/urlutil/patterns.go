package urlutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

const regexPrefix = "re:"

// PatternSet is a compiled list of include or exclude patterns.
// Patterns are globs ("*/blog/*", "/admin/**") unless prefixed with "re:", in
// which case the remainder is a Go regular expression. A pattern matches when it
// matches either the full URL or its path (plus query).
type PatternSet struct {
	raw      []string
	globs    []glob.Glob
	patterns []*regexp.Regexp
}

// CompilePatterns compiles patterns, failing on the first invalid one.
func CompilePatterns(patterns []string) (*PatternSet, error) {
	set := &PatternSet{}
	for _, raw := range patterns {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, regexPrefix) {
			re, err := regexp.Compile(strings.TrimPrefix(p, regexPrefix))
			if err != nil {
				return nil, fmt.Errorf("compile pattern %q: %w", raw, err)
			}
			set.patterns = append(set.patterns, re)
		} else {
			g, err := glob.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("compile pattern %q: %w", raw, err)
			}
			set.globs = append(set.globs, g)
		}
		set.raw = append(set.raw, p)
	}
	return set, nil
}

// Empty reports whether the set holds no patterns.
func (s *PatternSet) Empty() bool {
	return s == nil || len(s.raw) == 0
}

// Match reports whether any pattern matches rawURL. An empty set matches nothing;
// callers using include semantics check Empty first.
func (s *PatternSet) Match(rawURL string) bool {
	if s.Empty() {
		return false
	}
	candidates := []string{rawURL}
	if u, err := url.Parse(rawURL); err == nil {
		path := u.EscapedPath()
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
		candidates = append(candidates, path)
	}
	for _, candidate := range candidates {
		for _, g := range s.globs {
			if g.Match(candidate) {
				return true
			}
		}
		for _, re := range s.patterns {
			if re.MatchString(candidate) {
				return true
			}
		}
	}
	return false
}

var patternCache sync.Map

// MatchesPatterns reports whether rawURL matches any of patterns. Invalid
// patterns never match. Compiled sets are cached by pattern list.
func MatchesPatterns(rawURL string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	key := strings.Join(patterns, "\x00")
	if cached, ok := patternCache.Load(key); ok {
		set, _ := cached.(*PatternSet)
		return set.Match(rawURL)
	}
	set, err := CompilePatterns(patterns)
	if err != nil {
		set = nil
	}
	patternCache.Store(key, set)
	return set.Match(rawURL)
}
