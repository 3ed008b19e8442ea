// Package privacy handles personally identifiable information before it
// reaches durable storage. The audit trail keeps anonymized addresses only.
package privacy

import (
	"fmt"
	"net"
	"strings"
)

// AnonymizeIP reduces a client address to a network prefix that cannot
// identify an individual host: IPv4 keeps the /24 (last octet zeroed), IPv6
// keeps the /48 prefix.
//
// The input is whatever the HTTP layer saw, so three shapes are accepted:
// a bare IP, host:port as found in RemoteAddr, and a comma-separated
// X-Forwarded-For chain, of which the first hop is taken.
//
// Returns "invalid" for unparseable input and "unknown" for empty input.
func AnonymizeIP(raw string) string {
	ip := firstHop(raw)
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		// RemoteAddr carries a port; IPv6 literals are bracketed there.
		if host, _, err := net.SplitHostPort(ip); err == nil {
			parsed = net.ParseIP(host)
		}
	}
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}

func firstHop(raw string) string {
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}
