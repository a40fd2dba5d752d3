package urlutil

import (
	"fmt"
	"net/url"
	"strings"

	"vigil/internal/domain"
)

// fallbackScanLimit bounds the linear scan used when a feed entry's
// granularity differs from host level (e.g. path-level listings).
const fallbackScanLimit = 5000

// Normalize canonicalizes an absolute URL: lowercases the host, strips the
// fragment and the scheme's default port, and leaves path and query intact.
// It is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("urlutil: parse %q: %w", rawURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("urlutil: %q is not an absolute URL", rawURL)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Fragment = ""

	host := strings.ToLower(parsed.Hostname())
	// IPv6 literals come back from Hostname() unbracketed and must be
	// re-bracketed to stay a valid authority.
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := parsed.Port(); port != "" && !isDefaultPort(parsed.Scheme, port) {
		parsed.Host = host + ":" + port
	} else {
		parsed.Host = host
	}

	return parsed.String(), nil
}

// Hostname extracts the lowercased hostname of a URL, or "" when the value
// cannot be parsed as an absolute URL.
func Hostname(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// IsListed tests a normalized URL against one feed snapshot: an O(1) host
// index probe first, then a bounded scan of the raw entries for exact
// equality to cover entries listed at finer granularity than the host.
func IsListed(normalizedURL string, snapshot *domain.FeedSnapshot) bool {
	if snapshot == nil {
		return false
	}

	if host := Hostname(normalizedURL); host != "" && snapshot.ContainsHost(host) {
		return true
	}

	limit := len(snapshot.Entries)
	if limit > fallbackScanLimit {
		limit = fallbackScanLimit
	}
	for _, entry := range snapshot.Entries[:limit] {
		if entry == normalizedURL {
			return true
		}
	}
	return false
}

func isDefaultPort(scheme, port string) bool {
	switch scheme {
	case "http":
		return port == "80"
	case "https":
		return port == "443"
	default:
		return false
	}
}
