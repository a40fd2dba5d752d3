// Package feeds maintains one in-memory snapshot per external blacklist
// feed. A snapshot is replaced wholesale on a successful refresh and left
// untouched on any failure, so readers always see the last good list.
package feeds

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"vigil/internal/config"
	"vigil/internal/domain"
	"vigil/internal/store"
	"vigil/internal/urlutil"
)

const (
	maxResponseBytes  = 10 << 20 // 10 MiB safety cap
	maxEntriesPerFeed = 20000

	feedKeyPrefix = "feed:"
)

type Manager struct {
	store  store.Store
	client *http.Client
	now    func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	snapshots map[string]*atomic.Value
}

func NewManager(st store.Store, client *http.Client, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:     st,
		client:    client,
		now:       now,
		snapshots: make(map[string]*atomic.Value),
	}
}

// LoadPersisted hydrates in-memory snapshots from the store. A persisted
// snapshot older than its source TTL is treated as absent until the next
// successful refresh.
func (m *Manager) LoadPersisted(ctx context.Context) {
	for _, src := range config.GetConfig().Feeds.Sources {
		raw, storedAt, err := m.store.Get(ctx, feedKeyPrefix+src.ID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				log.Warn("Feed cache load failed", "source", src.ID, "error", err)
			}
			continue
		}

		if m.now().Sub(storedAt) > sourceTTL(src) {
			log.Debug("Persisted feed snapshot is stale, ignoring", "source", src.ID)
			continue
		}

		var persisted domain.PersistedFeed
		if err := json.Unmarshal(raw, &persisted); err != nil {
			log.Warn("Persisted feed snapshot is malformed, ignoring", "source", src.ID, "error", err)
			continue
		}

		snapshot := domain.NewFeedSnapshot(src.ID, persisted.Entries, hostsOf(persisted.Entries), persisted.FetchedAt)
		m.slot(src.ID).Store(snapshot)
		log.Info("Feed snapshot restored from cache", "source", src.ID, "entries", len(snapshot.Entries))
	}
}

// Refresh fetches one source and swaps in a fresh snapshot. Refreshes of
// the same source are collapsed so no two ever overlap; any failure leaves
// the previous snapshot in place.
func (m *Manager) Refresh(ctx context.Context, sourceID string) error {
	_, err, _ := m.group.Do(sourceID, func() (interface{}, error) {
		return nil, m.doRefresh(ctx, sourceID)
	})
	return err
}

// RefreshAll triggers every configured source concurrently. Completions are
// independent: one failed source never blocks or corrupts another.
func (m *Manager) RefreshAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, src := range config.GetConfig().Feeds.Sources {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := m.Refresh(ctx, id); err != nil {
				if errors.Is(err, context.Canceled) {
					log.Info("Feed refresh canceled", "source", id)
					return
				}
				log.Warn("Feed refresh failed", "source", id, "error", err)
			}
		}(src.ID)
	}
	wg.Wait()
}

// Snapshot returns the current snapshot for a source, or nil when none is
// available.
func (m *Manager) Snapshot(sourceID string) *domain.FeedSnapshot {
	slot := m.slot(sourceID)
	snapshot, _ := slot.Load().(*domain.FeedSnapshot)
	return snapshot
}

// Match returns the IDs of every source whose snapshot lists the
// normalized URL.
func (m *Manager) Match(normalizedURL string) []string {
	var hits []string
	for _, src := range config.GetConfig().Feeds.Sources {
		if urlutil.IsListed(normalizedURL, m.Snapshot(src.ID)) {
			hits = append(hits, src.ID)
		}
	}
	return hits
}

func (m *Manager) doRefresh(ctx context.Context, sourceID string) error {
	src, found := findSource(sourceID)
	if !found {
		return fmt.Errorf("feeds: unknown source %q", sourceID)
	}

	payload, err := m.fetch(ctx, src.URL)
	if err != nil {
		return err
	}

	entries, hosts, err := parsePayload(payload, src.Format)
	if err != nil {
		return err
	}

	snapshot := domain.NewFeedSnapshot(src.ID, entries, hosts, m.now())

	persisted, err := json.Marshal(domain.PersistedFeed{
		Entries:   snapshot.Entries,
		FetchedAt: snapshot.FetchedAt,
	})
	if err != nil {
		return fmt.Errorf("feeds: encode snapshot: %w", err)
	}
	if err := m.store.Set(ctx, feedKeyPrefix+src.ID, persisted, snapshot.FetchedAt); err != nil {
		// The in-memory snapshot still advances; persistence is best effort.
		log.Warn("Feed snapshot persist failed", "source", src.ID, "error", err)
	}

	m.slot(src.ID).Store(snapshot)
	log.Info("Feed refresh completed", "source", src.ID, "entries", len(snapshot.Entries), "hosts", len(snapshot.HostIndex))
	return nil
}

func (m *Manager) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	if config.IsSourceBlocked(sourceURL) {
		return nil, fmt.Errorf("feeds: source blocked: %s", sourceURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("feeds: build request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feeds: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("feeds: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("feeds: read response: %w", err)
	}
	return content, nil
}

func (m *Manager) slot(sourceID string) *atomic.Value {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.snapshots[sourceID]
	if !ok {
		slot = &atomic.Value{}
		m.snapshots[sourceID] = slot
	}
	return slot
}

func findSource(sourceID string) (config.FeedSource, bool) {
	for _, src := range config.GetConfig().Feeds.Sources {
		if src.ID == sourceID {
			return src, true
		}
	}
	return config.FeedSource{}, false
}

func hostsOf(entries []string) []string {
	seen := make(map[string]struct{}, len(entries))
	hosts := make([]string, 0, len(entries))
	for _, entry := range entries {
		host := urlutil.Hostname(entry)
		if host == "" {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}
	return hosts
}

func sourceTTL(src config.FeedSource) time.Duration {
	if src.TTLHours == 0 {
		return time.Hour
	}
	return time.Duration(src.TTLHours) * time.Hour
}

func parsePayload(payload []byte, format config.FeedFormat) ([]string, []string, error) {
	var raws []string
	var err error

	switch format {
	case config.FeedFormatJSON:
		raws, err = parseJSONFeed(payload)
	default:
		raws = parseTextFeed(payload)
	}
	if err != nil {
		return nil, nil, err
	}

	return normalizeEntries(raws)
}

// parseJSONFeed accepts the shapes the configured sources emit: a bare
// string array, an array of objects with a url field, or an object
// wrapping such an array under "urls".
func parseJSONFeed(payload []byte) ([]string, error) {
	var asStrings []string
	if err := json.Unmarshal(payload, &asStrings); err == nil {
		return asStrings, nil
	}

	type urlRecord struct {
		URL string `json:"url"`
	}

	var asRecords []urlRecord
	if err := json.Unmarshal(payload, &asRecords); err == nil {
		urls := make([]string, 0, len(asRecords))
		for _, rec := range asRecords {
			urls = append(urls, rec.URL)
		}
		return urls, nil
	}

	var wrapped struct {
		URLs []urlRecord `json:"urls"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil && wrapped.URLs != nil {
		urls := make([]string, 0, len(wrapped.URLs))
		for _, rec := range wrapped.URLs {
			urls = append(urls, rec.URL)
		}
		return urls, nil
	}

	return nil, errors.New("feeds: unrecognized JSON payload")
}

func parseTextFeed(payload []byte) []string {
	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 1024), 1024*1024)

	var urls []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		log.Warn("Feed scanner warning", "error", err)
	}
	return urls
}

func normalizeEntries(raws []string) ([]string, []string, error) {
	seen := make(map[string]struct{}, len(raws))
	hostSeen := make(map[string]struct{})

	entries := make([]string, 0, len(raws))
	hosts := make([]string, 0, len(raws))

	for _, raw := range raws {
		normalized, err := urlutil.Normalize(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		entries = append(entries, normalized)

		if host := urlutil.Hostname(normalized); host != "" {
			if _, dup := hostSeen[host]; !dup {
				hostSeen[host] = struct{}{}
				hosts = append(hosts, host)
			}
		}

		if len(entries) >= maxEntriesPerFeed {
			break
		}
	}

	if len(entries) == 0 {
		return nil, nil, errors.New("feeds: payload produced no usable entries")
	}
	return entries, hosts, nil
}
