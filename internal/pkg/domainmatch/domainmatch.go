// Package domainmatch decides whether a widget request origin is admitted by
// a merchant's allowed-domain list. Entries are exact hostnames or wildcard
// patterns of the form *.base.
package domainmatch

import (
	"net/url"
	"strings"
)

// IsAllowed reports whether originHost matches any entry in allowedDomains.
// Comparison is case-insensitive. A wildcard entry *.base admits base itself
// and all of its subdomains, matching conventional wildcard semantics.
func IsAllowed(originHost string, allowedDomains []string) bool {
	host := normalizeHost(originHost)
	if host == "" {
		return false
	}

	for _, entry := range allowedDomains {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}

		if base, ok := strings.CutPrefix(entry, "*."); ok {
			if host == base || strings.HasSuffix(host, "."+base) {
				return true
			}
			continue
		}

		if host == entry {
			return true
		}
	}

	return false
}

// HostFromOrigin extracts the bare hostname from an Origin or Referer header
// value. Scheme and port are ignored; a value without a scheme is treated as
// a bare hostname.
func HostFromOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ""
	}

	if strings.Contains(origin, "://") {
		u, err := url.Parse(origin)
		if err != nil {
			return ""
		}
		return normalizeHost(u.Hostname())
	}

	// Bare host, possibly with port
	host := origin
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host, "]") {
		// Strip a port but leave IPv6 literals alone
		if _, rest := host[:i], host[i+1:]; isDigits(rest) {
			host = host[:i]
		}
	}
	return normalizeHost(host)
}

// IsValidPattern reports whether a whitelist entry is acceptable: a bare
// hostname, optionally with a single leading wildcard label. Schemes, paths
// and ports are rejected so stored entries stay comparable to origin hosts.
func IsValidPattern(pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" || len(pattern) > 253 {
		return false
	}
	if strings.Contains(pattern, "://") || strings.ContainsAny(pattern, "/: ") {
		return false
	}

	host, _ := strings.CutPrefix(pattern, "*.")
	if host == "" || strings.Contains(host, "*") {
		return false
	}

	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z':
			case r >= '0' && r <= '9':
			case r == '-':
			default:
				return false
			}
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
	}
	return true
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimSuffix(host, ".")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
