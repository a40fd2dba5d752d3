// Package engine turns the collected signals for one URL into a
// deterministic, explainable risk assessment. It holds no state and does
// no I/O: every signal arrives already resolved, which keeps scoring pure
// and directly testable.
package engine

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"vigil/internal/domain"
)

// Policy selects the score-to-level threshold table.
type Policy string

const (
	PolicyConservative Policy = "conservative"
	PolicyBalanced     Policy = "balanced"
	PolicyAggressive   Policy = "aggressive"
)

type thresholds struct {
	low      int
	high     int
	critical int
}

var policyThresholds = map[Policy]thresholds{
	PolicyConservative: {low: 21, high: 71, critical: 91},
	PolicyBalanced:     {low: 21, high: 51, critical: 81},
	PolicyAggressive:   {low: 21, high: 41, critical: 61},
}

// ParsePolicy maps a caller-supplied policy name to a known policy,
// falling back to balanced.
func ParsePolicy(raw string) Policy {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case PolicyConservative:
		return PolicyConservative
	case PolicyAggressive:
		return PolicyAggressive
	default:
		return PolicyBalanced
	}
}

// Signals is the resolved input bundle for one evaluation. Missing signals
// are nil and simply contribute nothing.
type Signals struct {
	BlacklistSources []string
	Crowd            *domain.CrowdItem
	IPReputation     *domain.IPReputationRecord
	MLScore          *float64
	Context          domain.CheckContext
}

const maxKeywordHits = 3

var (
	freeHostingSuffixes = []string{
		"000webhostapp.com",
		"weebly.com",
		"wixsite.com",
		"blogspot.com",
		"github.io",
		"netlify.app",
		"herokuapp.com",
		"firebaseapp.com",
		"web.app",
		"glitch.me",
		"repl.co",
		"pages.dev",
		"vercel.app",
	}

	phishingKeywords = []string{
		"login", "signin", "secure", "verify", "account",
		"update", "confirm", "banking", "password", "wallet",
	}

	shortenerHosts = map[string]struct{}{
		"bit.ly":      {},
		"goo.gl":      {},
		"tinyurl.com": {},
		"t.co":        {},
		"is.gd":       {},
		"ow.ly":       {},
		"buff.ly":     {},
		"cutt.ly":     {},
		"rb.gy":       {},
	}

	longHexPattern = regexp.MustCompile(`[0-9a-f]{32,}`)
)

// Evaluate scores a normalized URL against every rule group and classifies
// the total under the given policy. Scoring is additive and monotonic:
// each fired rule appends its points and one explanation.
func Evaluate(normalizedURL string, signals Signals, policy Policy) domain.Assessment {
	score := 0
	var factors []string

	add := func(points int, explanation string) {
		score += points
		factors = append(factors, explanation)
	}

	// 1. Blacklist hits, one per reporting source.
	for _, source := range signals.BlacklistSources {
		add(60, fmt.Sprintf("Listed in %s blacklist feed", source))
	}

	// 2. Crowd reports.
	if crowd := signals.Crowd; crowd != nil && crowd.ReportCount >= 1 {
		if crowd.ReportCount >= 3 && crowd.AggregateScore >= 0.7 {
			add(40, fmt.Sprintf("Reported by the community %d times with high agreement", crowd.ReportCount))
		} else {
			add(15, fmt.Sprintf("Reported by the community %d time(s)", crowd.ReportCount))
		}
	}

	// 3. IP reputation.
	if rep := signals.IPReputation; rep != nil {
		switch {
		case rep.AbuseConfidenceScore >= 80:
			add(50, fmt.Sprintf("Host IP %s has abuse confidence %d", rep.IP, rep.AbuseConfidenceScore))
		case rep.AbuseConfidenceScore >= 50:
			add(30, fmt.Sprintf("Host IP %s has abuse confidence %d", rep.IP, rep.AbuseConfidenceScore))
		case rep.AbuseConfidenceScore >= 25:
			add(15, fmt.Sprintf("Host IP %s has abuse confidence %d", rep.IP, rep.AbuseConfidenceScore))
		}
		if isHostingUsage(rep.UsageType) {
			add(10, "Hosted in a datacenter or hosting provider network")
		}
		if rep.IsWhitelisted {
			add(-10, "Host IP is whitelisted by the reputation service")
		}
	}

	if parsed, err := url.Parse(normalizedURL); err == nil && parsed.Host != "" {
		host := strings.ToLower(parsed.Hostname())
		isRawIP := net.ParseIP(host) != nil

		// 4. Lexical domain heuristics. Label rules only make sense for
		// real hostnames, not raw addresses.
		if !isRawIP {
			labels := strings.Split(host, ".")
			if sld := secondLevelDomain(labels); sld != "" {
				if len(sld) >= 15 {
					add(10, fmt.Sprintf("Unusually long domain name %q", sld))
				}
				if digitCount(sld) >= 4 {
					add(10, fmt.Sprintf("Domain name %q is digit-heavy", sld))
				}
			}
			if len(labels) >= 4 {
				add(10, "Deeply nested subdomain")
			}
			if suffix := matchFreeHosting(host); suffix != "" {
				add(20, fmt.Sprintf("Hosted on free hosting service %s", suffix))
			}
			for _, keyword := range matchKeywords(host) {
				add(15, fmt.Sprintf("Phishing-suggestive keyword %q in hostname", keyword))
			}
		}

		// 5. Path and protocol heuristics.
		segments := pathSegments(parsed.Path)
		if hasSegment(segments, "login", "signin") {
			add(15, "Login-like path segment")
		}
		if hasSegment(segments, "verify", "update") {
			add(10, "Verification-like path segment")
		}
		if isPlaintextScheme(parsed.Scheme) {
			add(25, "Connection is not encrypted")
		}
		if port := parsed.Port(); isPrivilegedNonStandardPort(port) {
			add(10, fmt.Sprintf("Non-standard privileged port %s", port))
		}

		// 6. URL shape, first match only.
		if len(normalizedURL) > 200 {
			add(10, "Unusually long URL")
		}
		switch {
		case isShortenerHost(host):
			add(15, "Uses a known URL shortener")
		case isRawIP:
			add(15, "Uses a raw IP address instead of a hostname")
		case longHexPattern.MatchString(strings.ToLower(normalizedURL)):
			add(15, "Contains a long hexadecimal token")
		}
	}

	// 7. Context bonus for user-initiated checks.
	if signals.Context == domain.CheckActive {
		add(5, "User-initiated check")
	}

	// Externally supplied ML signal, one factor at most.
	if ml := signals.MLScore; ml != nil {
		switch {
		case *ml >= 0.9:
			add(35, fmt.Sprintf("Model flagged the URL with probability %.2f", *ml))
		case *ml >= 0.7:
			add(20, fmt.Sprintf("Model flagged the URL with probability %.2f", *ml))
		}
	}

	if score < 0 {
		score = 0
	}

	return domain.Assessment{
		URL:       normalizedURL,
		RiskScore: score,
		RiskLevel: Classify(score, policy),
		Factors:   factors,
	}
}

// Classify maps a score onto the four contiguous levels of the policy's
// threshold table.
func Classify(score int, policy Policy) domain.RiskLevel {
	table, ok := policyThresholds[policy]
	if !ok {
		table = policyThresholds[PolicyBalanced]
	}

	switch {
	case score >= table.critical:
		return domain.RiskCritical
	case score >= table.high:
		return domain.RiskHigh
	case score >= table.low:
		return domain.RiskLow
	default:
		return domain.RiskSafe
	}
}

func secondLevelDomain(labels []string) string {
	if len(labels) < 2 {
		return ""
	}
	return labels[len(labels)-2]
}

func digitCount(s string) int {
	count := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			count++
		}
	}
	return count
}

func matchFreeHosting(host string) string {
	for _, suffix := range freeHostingSuffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return suffix
		}
	}
	return ""
}

func matchKeywords(host string) []string {
	var hits []string
	for _, keyword := range phishingKeywords {
		if strings.Contains(host, keyword) {
			hits = append(hits, keyword)
			if len(hits) == maxKeywordHits {
				break
			}
		}
	}
	return hits
}

func pathSegments(path string) []string {
	raw := strings.Split(strings.ToLower(path), "/")
	segments := make([]string, 0, len(raw))
	for _, segment := range raw {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

func hasSegment(segments []string, wanted ...string) bool {
	for _, segment := range segments {
		for _, w := range wanted {
			if segment == w {
				return true
			}
		}
	}
	return false
}

func isPlaintextScheme(scheme string) bool {
	switch scheme {
	case "http", "ftp", "ws":
		return true
	default:
		return false
	}
}

func isPrivilegedNonStandardPort(port string) bool {
	if port == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n < 1024 && n != 80 && n != 443
}

func isShortenerHost(host string) bool {
	_, found := shortenerHosts[host]
	return found
}

func isHostingUsage(usageType string) bool {
	normalized := strings.ToLower(usageType)
	return strings.Contains(normalized, "hosting") || strings.Contains(normalized, "data center") || strings.Contains(normalized, "datacenter")
}
