package config

import (
	"net/url"
	"strings"
	"sync/atomic"
)

// sourceBlocklistSet holds normalized hostnames that feed and intel
// fetchers must never contact.
var sourceBlocklistSet atomic.Value

func init() {
	sourceBlocklistSet.Store(make(map[string]struct{}))
}

// NormalizeSourceBlocklist trims, lowercases, and deduplicates host entries.
func NormalizeSourceBlocklist(entries []string) []string {
	return normalizeSourceEntries(entries)
}

// updateSourceBlocklist refreshes the in-memory set from the persisted config.
func updateSourceBlocklist(entries []string) {
	normalized := normalizeSourceEntries(entries)
	sourceBlocklistSet.Store(buildSourceBlocklist(normalized))
}

// IsSourceBlocked reports whether the given URL or hostname matches the
// configured blocklist.
func IsSourceBlocked(rawURL string) bool {
	blockedSet := sourceBlocklistSet.Load().(map[string]struct{})
	if len(blockedSet) == 0 {
		return false
	}

	host := normalizeHostname(rawURL)
	if host == "" {
		return false
	}
	return isHostBlocked(host, blockedSet)
}

func buildSourceBlocklist(entries []string) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, host := range entries {
		if host == "" {
			continue
		}
		set[host] = struct{}{}
	}
	return set
}

func normalizeSourceEntries(entries []string) []string {
	unique := make(map[string]struct{}, len(entries))
	normalized := make([]string, 0, len(entries))

	for _, raw := range entries {
		host := normalizeHostname(raw)
		if host == "" {
			continue
		}
		if _, exists := unique[host]; exists {
			continue
		}
		unique[host] = struct{}{}
		normalized = append(normalized, host)
	}

	return normalized
}

func normalizeHostname(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	// Allow bare hostnames by prefixing a scheme for URL parsing.
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}

	host := strings.ToLower(parsed.Hostname())
	return strings.Trim(host, ".")
}

func isHostBlocked(host string, blockedSet map[string]struct{}) bool {
	if host == "" || len(blockedSet) == 0 {
		return false
	}

	if _, ok := blockedSet[host]; ok {
		return true
	}

	for blocked := range blockedSet {
		if blocked == "" {
			continue
		}
		if strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}

	return false
}
