package domain

import "time"

// CrowdItem is one backend-aggregated crowd entry, keyed by hostname.
type CrowdItem struct {
	Hostname       string    `json:"hostname"`
	AggregateScore float64   `json:"score"`
	ReportCount    int       `json:"reports"`
	LastReportAt   time.Time `json:"last_report_at"`
}

// CrowdSummary is the wholesale-synced crowd report cache.
type CrowdSummary struct {
	Items    []CrowdItem `json:"items"`
	SyncedAt time.Time   `json:"synced_at"`
}

// Lookup returns the item for an exact hostname match, or nil.
func (s *CrowdSummary) Lookup(hostname string) *CrowdItem {
	if s == nil {
		return nil
	}
	for i := range s.Items {
		if s.Items[i].Hostname == hostname {
			return &s.Items[i]
		}
	}
	return nil
}
