package urlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsSEOValueURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want bool
	}{
		{"https://a.test/about", true},
		{"https://a.test/blog/post?page=2", true},
		{"/pricing", true},
		{"#top", false},
		{"", false},
		{"mailto:hi@a.test", false},
		{"tel:+123", false},
		{"javascript:void(0)", false},
		{"https://a.test/logo.PNG", false},
		{"https://a.test/app.js", false},
		{"https://a.test/feed", false},
		{"https://a.test/wp-admin/options.php", false},
		{"https://a.test/login", false},
		{"https://a.test/cart", false},
		{"https://a.test/cartography", true},
		{"https://a.test/page?utm_source=news", false},
		{"https://a.test/page?PHPSESSID=abc", false},
		{"https://a.test/page?fbclid=1", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, IsSEOValueURL(tc.url), "url %q", tc.url)
	}
}
