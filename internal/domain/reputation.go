package domain

import "time"

// IPReputationRecord is the cached result of an IP reputation query,
// keyed by IP with a 24h time-to-live.
type IPReputationRecord struct {
	IP                   string    `json:"ip"`
	AbuseConfidenceScore int       `json:"abuse_confidence_score"`
	UsageType            string    `json:"usage_type"`
	IsPublic             bool      `json:"is_public"`
	IsWhitelisted        bool      `json:"is_whitelisted"`
	CountryCode          string    `json:"country_code"`
	LastReportedAt       time.Time `json:"last_reported_at"`
	CachedAt             time.Time `json:"cached_at"`
}
