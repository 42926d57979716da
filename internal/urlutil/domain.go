package urlutil

import (
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain returns the eTLD+1 for host ("blog.example.co.uk" -> "example.co.uk").
// IP addresses, single-label hosts and unknown suffixes fall back to the host itself.
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// SameSite reports whether two URLs share a registrable domain.
func SameSite(a, b string) bool {
	ha, hb := Hostname(a), Hostname(b)
	if ha == "" || hb == "" {
		return false
	}
	return RegistrableDomain(ha) == RegistrableDomain(hb)
}

// DomainMatcher matches hosts against exact entries and suffix entries.
// Plain entries ("example.com"), ".example.com" and "*.example.com" match the
// domain and all of its subdomains; "=example.com" matches that host only.
type DomainMatcher struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewDomainMatcher compiles patterns. It returns nil when no usable pattern remains.
func NewDomainMatcher(patterns []string) *DomainMatcher {
	matcher := &DomainMatcher{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "="):
			if host := strings.TrimPrefix(value, "="); host != "" {
				matcher.exact[host] = struct{}{}
			}
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.addSuffix(value)
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (m *DomainMatcher) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range m.suffixes {
		if existing == suffix {
			return
		}
	}
	m.suffixes = append(m.suffixes, suffix)
}

// Match reports whether host is covered by the matcher. A nil matcher matches nothing.
func (m *DomainMatcher) Match(host string) bool {
	if m == nil {
		return false
	}
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	if _, exact := m.exact[host]; exact {
		return true
	}
	for _, suffix := range m.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// IsAllowedDomain reports whether rawURL's host falls under allowList.
// An empty list allows every domain.
func IsAllowedDomain(rawURL string, allowList []string) bool {
	matcher := NewDomainMatcher(allowList)
	if matcher == nil {
		return true
	}
	return matcher.Match(Hostname(rawURL))
}
