package fetch

import (
	"net/url"
	"strings"
)

// Domain extracts the rate-limit partition key from a URL: the host with
// scheme and port stripped, lowercased. Inputs that do not parse fall back
// to the raw string so the limiter still keys them consistently.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(rawURL)
	}
	host := u.Hostname()
	if host == "" {
		// Schemeless inputs like "example.com/path" parse as a bare path.
		host = u.Path
		if i := strings.IndexByte(host, '/'); i >= 0 {
			host = host[:i]
		}
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
	}
	return strings.ToLower(host)
}
