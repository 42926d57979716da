package urlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"drops https default port", "https://example.com:443/a", "https://example.com/a"},
		{"drops http default port", "http://example.com:80/a", "http://example.com/a"},
		{"keeps non default port", "http://example.com:8080/a", "http://example.com:8080/a"},
		{"strips fragment", "https://example.com/a#section", "https://example.com/a"},
		{"sorts query", "https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"adds root path", "https://example.com", "https://example.com/"},
		{"drops empty query", "https://example.com/a?", "https://example.com/a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"HTTPS://Example.COM:443/a/b/?z=1&a=2&a=1#frag",
		"http://example.com",
		"https://example.com/%7Euser/file name",
		"https://example.com/search?q=a+b&flag",
		"https://example.com/path/?",
		"https://sub.example.co.uk:8443/x?utm_source=y",
	}
	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalizeReturnsInputOnParseFailure(t *testing.T) {
	t.Parallel()

	raw := "http://[::1"
	require.Equal(t, raw, Normalize(raw))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	got, ok := Resolve("https://a.test/blog/post", "../about#team")
	require.True(t, ok)
	require.Equal(t, "https://a.test/about", got)

	got, ok = Resolve("https://a.test/", "//cdn.a.test/x")
	require.True(t, ok)
	require.Equal(t, "https://cdn.a.test/x", got)

	_, ok = Resolve("https://a.test/", "mailto:me@a.test")
	require.False(t, ok)
	_, ok = Resolve("https://a.test/", "")
	require.False(t, ok)
	_, ok = Resolve("::bad", "/x")
	require.False(t, ok)
}

func TestIsValidURL(t *testing.T) {
	t.Parallel()

	require.True(t, IsValidURL("https://a.test/x"))
	require.True(t, IsValidURL("http://127.0.0.1:8080/"))
	require.False(t, IsValidURL("ftp://a.test/file"))
	require.False(t, IsValidURL("/relative/path"))
	require.False(t, IsValidURL("https://"))
	require.False(t, IsValidURL("javascript:alert(1)"))
}

func TestGetURLDepth(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, GetURLDepth("https://a.test/", "https://a.test/"))
	require.Equal(t, 1, GetURLDepth("https://a.test/about", "https://a.test/"))
	require.Equal(t, 2, GetURLDepth("https://a.test/blog/post", "https://a.test/"))
	require.Equal(t, 1, GetURLDepth("https://a.test/docs/intro", "https://a.test/docs/"))
	require.Equal(t, 0, GetURLDepth("https://a.test/", "https://a.test/docs/intro"))
}
