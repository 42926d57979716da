package urlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPatternSetMatch(t *testing.T) {
	t.Parallel()

	set, err := CompilePatterns([]string{"/blog/*", "*.pdf", `re:^/p/\d+$`})
	require.NoError(t, err)
	require.False(t, set.Empty())

	require.True(t, set.Match("https://a.test/blog/post-1"))
	require.True(t, set.Match("https://a.test/files/report.pdf"))
	require.True(t, set.Match("https://a.test/p/42"))
	require.False(t, set.Match("https://a.test/p/forty-two"))
	require.False(t, set.Match("https://a.test/about"))
}

func TestCompilePatternsRejectsInvalid(t *testing.T) {
	t.Parallel()

	_, err := CompilePatterns([]string{"re:(unclosed"})
	require.Error(t, err)
}

func TestMatchesPatternsEmpty(t *testing.T) {
	t.Parallel()

	require.False(t, MatchesPatterns("https://a.test/", nil))
	var set *PatternSet
	require.True(t, set.Empty())
	require.False(t, set.Match("https://a.test/"))
}

func TestMatchesPatternsInvalidNeverMatches(t *testing.T) {
	t.Parallel()

	require.False(t, MatchesPatterns("https://a.test/x", []string{"re:[bad"}))
	require.True(t, MatchesPatterns("https://a.test/x", []string{"*/x"}))
}
