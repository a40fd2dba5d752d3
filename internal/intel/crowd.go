package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"vigil/internal/config"
	"vigil/internal/domain"
	"vigil/internal/store"
	"vigil/internal/support"
	"vigil/internal/urlutil"
)

const (
	crowdCacheTTL   = 6 * time.Hour
	crowdSummaryKey = "crowd:summary"
)

// ErrNoBackend indicates that no crowd backend base URL is configured.
var ErrNoBackend = errors.New("intel: crowd backend base url is not configured")

// CrowdClient syncs the backend's aggregated crowd report summary and
// submits individual reports. Lookups are served from an atomically
// replaced in-memory summary; a stale or absent summary yields no signal.
type CrowdClient struct {
	store  store.Store
	client *http.Client
	now    func() time.Time

	summary atomic.Value // *domain.CrowdSummary
}

func NewCrowdClient(st store.Store, client *http.Client, now func() time.Time) *CrowdClient {
	if now == nil {
		now = time.Now
	}
	return &CrowdClient{store: st, client: client, now: now}
}

// LoadPersisted restores the last synced summary if it is still fresh.
func (c *CrowdClient) LoadPersisted(ctx context.Context) {
	raw, storedAt, err := c.store.Get(ctx, crowdSummaryKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("Crowd cache load failed", "error", err)
		}
		return
	}
	if c.now().Sub(storedAt) > crowdCacheTTL {
		log.Debug("Persisted crowd summary is stale, ignoring")
		return
	}

	var summary domain.CrowdSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		log.Warn("Persisted crowd summary is malformed, ignoring", "error", err)
		return
	}
	c.summary.Store(&summary)
	log.Info("Crowd summary restored from cache", "items", len(summary.Items))
}

// Sync pulls the aggregated summary wholesale and replaces the cache. Any
// failure leaves the previous summary in place.
func (c *CrowdClient) Sync(ctx context.Context) error {
	base := config.BackendBaseURL()
	if base == "" {
		return ErrNoBackend
	}

	pageSize := support.GetEnvInt("VIGIL_CROWD_PAGE_SIZE", int(config.GetConfig().Crowd.PageSize))
	if pageSize <= 0 {
		pageSize = 200
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/crowd/summary?limit=%d", base, pageSize), nil)
	if err != nil {
		return fmt.Errorf("intel: build crowd sync request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("intel: crowd sync request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("intel: crowd sync unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("intel: read crowd sync response: %w", err)
	}

	var payload struct {
		Items []struct {
			Hostname     string  `json:"hostname"`
			Score        float64 `json:"score"`
			Reports      int     `json:"reports"`
			LastReportAt string  `json:"last_report_at"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("intel: crowd sync payload malformed: %w", err)
	}

	summary := &domain.CrowdSummary{
		Items:    make([]domain.CrowdItem, 0, len(payload.Items)),
		SyncedAt: c.now(),
	}
	for _, item := range payload.Items {
		hostname := strings.ToLower(strings.TrimSpace(item.Hostname))
		if hostname == "" {
			continue
		}
		entry := domain.CrowdItem{
			Hostname:       hostname,
			AggregateScore: item.Score,
			ReportCount:    item.Reports,
		}
		if ts, err := time.Parse(time.RFC3339, item.LastReportAt); err == nil {
			entry.LastReportAt = ts
		}
		summary.Items = append(summary.Items, entry)
	}

	if raw, err := json.Marshal(summary); err == nil {
		if err := c.store.Set(ctx, crowdSummaryKey, raw, summary.SyncedAt); err != nil {
			log.Warn("Crowd summary persist failed", "error", err)
		}
	}

	c.summary.Store(summary)
	log.Info("Crowd summary synced", "items", len(summary.Items))
	return nil
}

// Lookup returns the crowd item for an exact hostname match, or nil when
// the cache is absent or past its TTL.
func (c *CrowdClient) Lookup(hostname string) *domain.CrowdItem {
	summary, _ := c.summary.Load().(*domain.CrowdSummary)
	if summary == nil || c.now().Sub(summary.SyncedAt) > crowdCacheTTL {
		return nil
	}
	return summary.Lookup(strings.ToLower(strings.TrimSpace(hostname)))
}

// SubmitReport sends one crowd report upstream. Unlike the read paths a
// failure here is returned to the caller: the user expects confirmation.
func (c *CrowdClient) SubmitReport(ctx context.Context, report domain.Report) error {
	if err := report.Validate(); err != nil {
		return err
	}

	base := config.BackendBaseURL()
	if base == "" {
		return ErrNoBackend
	}

	if normalized, err := urlutil.Normalize(report.URL); err == nil {
		report.URL = normalized
	}
	if report.ReportedAt.IsZero() {
		report.ReportedAt = c.now()
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("intel: encode report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/crowd/report", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("intel: build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("intel: submit report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("intel: report rejected with status %d", resp.StatusCode)
	}
	return nil
}
