// internal/tenant/host.go
//
// Host header → cache key.
//
// Context
// -------
// Every lookup, put, and invalidation goes through NormalizeHost so the
// three always agree on the key:
//
//   - trimmed and lower-cased,
//   - trailing root dot removed ("a.example.com." → "a.example.com"),
//   - IPv6 brackets handled ("[::1]:8080"),
//   - the port is stripped for production hosts but kept for loopback
//     hosts, so localhost:3000 and localhost:3001 can serve different
//     tenants during development.
//
// A value that cannot be a host name normalizes to "" and never reaches
// the store.
//
// Notes
// -----
//   - No logging here; caller decides what to log.
//   - Oxford commas, two spaces after periods.
package tenant

import (
	"net"
	"strings"
)

// maxHostLen is the DNS limit for a full name.
const maxHostLen = 253

// NormalizeHost returns the cache key for a Host header value, or "" when
// the value is not a usable host.
func NormalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if h == "" || !validHostChars(h) {
		return ""
	}

	host, port := splitHostPort(h)
	host = strings.TrimSuffix(host, ".")
	if host == "" || len(host) > maxHostLen {
		return ""
	}

	if port != "" && isLoopback(host) {
		if strings.Contains(host, ":") {
			return "[" + host + "]:" + port
		}
		return host + ":" + port
	}
	return host
}

// stripPort removes :port from a normalized key.  Used for alias fallback.
func stripPort(key string) string {
	host, _ := splitHostPort(key)
	return host
}

// splitHostPort is a lenient net.SplitHostPort: a missing or non-numeric
// port yields port == "".
func splitHostPort(h string) (host, port string) {
	if strings.HasPrefix(h, "[") {
		end := strings.IndexByte(h, ']')
		if end < 0 {
			return strings.TrimPrefix(h, "["), ""
		}
		host = h[1:end]
		if rest := h[end+1:]; strings.HasPrefix(rest, ":") {
			port = rest[1:]
		}
		return host, numericOrEmpty(port)
	}

	// More than one colon without brackets is a bare IPv6 literal.
	if strings.Count(h, ":") != 1 {
		return h, ""
	}
	i := strings.IndexByte(h, ':')
	return h[:i], numericOrEmpty(h[i+1:])
}

func numericOrEmpty(p string) string {
	if p == "" || len(p) > 5 {
		return ""
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return p
}

func isLoopback(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func validHostChars(h string) bool {
	for _, r := range h {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '_', r == ':', r == '[', r == ']':
		default:
			return false
		}
	}
	return true
}

// IsLoopbackHost reports whether a Host header value names this machine.
func IsLoopbackHost(h string) bool {
	key := NormalizeHost(h)
	return key != "" && isLoopback(stripPort(key))
}
