package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports, sorts query parameters
// and removes fragments. An empty path becomes "/".
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""

	if u.Host != "" && u.Path == "" && u.Opaque == "" {
		u.Path = "/"
		u.RawPath = ""
	}

	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	u.ForceQuery = false

	return u.String(), nil
}

// Normalize is NormalizeURL without the error: unparseable input is returned unchanged.
func Normalize(rawURL string) string {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return rawURL
	}
	return normalized
}

// Resolve resolves ref against base and normalizes the result.
// It reports false when either side cannot be parsed or the result is not crawlable.
func Resolve(base, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	resolved := baseURL.ResolveReference(refURL).String()
	if !IsValidURL(resolved) {
		return "", false
	}
	return Normalize(resolved), true
}

// IsValidURL reports whether rawURL is an absolute http(s) URL with a host.
func IsValidURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	return u.Hostname() != ""
}

// Hostname returns the lower-cased host of rawURL without its port, or "".
func Hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// GetURLDepth returns how many path segments rawURL sits below the seed's path.
// URLs at or above the seed path have depth 0.
func GetURLDepth(rawURL, seedURL string) int {
	depth := len(pathSegments(rawURL)) - len(pathSegments(seedURL))
	if depth < 0 {
		return 0
	}
	return depth
}

func pathSegments(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	var segments []string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}
