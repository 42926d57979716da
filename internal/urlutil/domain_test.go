package urlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistrableDomain(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.co.uk", RegistrableDomain("blog.example.co.uk"))
	require.Equal(t, "example.com", RegistrableDomain("WWW.Example.com"))
	require.Equal(t, "localhost", RegistrableDomain("localhost"))
	require.Equal(t, "127.0.0.1", RegistrableDomain("127.0.0.1"))
	require.Equal(t, "127.0.0.1", RegistrableDomain("127.0.0.1:8080"))
}

func TestSameSite(t *testing.T) {
	t.Parallel()

	require.True(t, SameSite("https://www.a.com/x", "http://blog.a.com/"))
	require.False(t, SameSite("https://a.com/", "https://b.com/"))
	require.False(t, SameSite("/relative", "https://a.com/"))
}

func TestDomainMatcher(t *testing.T) {
	t.Parallel()

	t.Run("plain entry covers subdomains", func(t *testing.T) {
		m := NewDomainMatcher([]string{"example.org"})
		require.NotNil(t, m)
		require.True(t, m.Match("example.org"))
		require.True(t, m.Match("sub.example.org"))
		require.False(t, m.Match("badexample.org"))
	})

	t.Run("exact entry", func(t *testing.T) {
		m := NewDomainMatcher([]string{"=example.org"})
		require.True(t, m.Match("example.org"))
		require.False(t, m.Match("sub.example.org"))
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		m := NewDomainMatcher([]string{"*.ru", ".de"})
		cases := []struct {
			host  string
			match bool
		}{
			{"example.ru", true},
			{"sub.domain.ru", true},
			{"ru", true},
			{"shop.de", true},
			{"example.com", false},
		}
		for _, tc := range cases {
			require.Equal(t, tc.match, m.Match(tc.host), "host %q", tc.host)
		}
	})

	t.Run("nil matcher", func(t *testing.T) {
		var m *DomainMatcher
		require.False(t, m.Match("anything"))
		require.Nil(t, NewDomainMatcher([]string{"", "  "}))
	})
}

func TestIsAllowedDomain(t *testing.T) {
	t.Parallel()

	require.True(t, IsAllowedDomain("https://any.test/", nil))
	require.True(t, IsAllowedDomain("https://www.a.test/x", []string{"a.test"}))
	require.False(t, IsAllowedDomain("https://b.test/x", []string{"a.test"}))
}
