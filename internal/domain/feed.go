package domain

import "time"

// FeedSnapshot is one fetched blacklist feed. Immutable once built: a
// refresh constructs a fresh snapshot and swaps it in wholesale, so readers
// never observe entries and host index out of step.
type FeedSnapshot struct {
	SourceID  string
	Entries   []string
	HostIndex map[string]struct{}
	FetchedAt time.Time
}

// NewFeedSnapshot builds a snapshot from normalized URL entries, deriving
// the host index eagerly so it can never drift from the entry list.
func NewFeedSnapshot(sourceID string, entries []string, hosts []string, fetchedAt time.Time) *FeedSnapshot {
	index := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		if h == "" {
			continue
		}
		index[h] = struct{}{}
	}
	return &FeedSnapshot{
		SourceID:  sourceID,
		Entries:   entries,
		HostIndex: index,
		FetchedAt: fetchedAt,
	}
}

// ContainsHost reports whether the snapshot's host index has the hostname.
func (s *FeedSnapshot) ContainsHost(host string) bool {
	if s == nil {
		return false
	}
	_, found := s.HostIndex[host]
	return found
}

// PersistedFeed is the storable form of a snapshot. Only the entries are
// persisted; the host index is rebuilt from them on load so it can never
// diverge from the entry list.
type PersistedFeed struct {
	Entries   []string  `json:"entries"`
	FetchedAt time.Time `json:"fetched_at"`
}
