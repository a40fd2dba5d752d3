package intel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"vigil/internal/config"
	"vigil/internal/domain"
	"vigil/internal/geolite"
	"vigil/internal/store"
)

const (
	reputationCacheTTL = 24 * time.Hour
	reputationKeyBase  = "iprep:"
	reputationMaxAge   = "90"
)

// ReputationClient resolves a hostname and queries the IP reputation
// service, caching records for 24 hours. The whole path is gated on an API
// key: without one no network call of any kind is made.
type ReputationClient struct {
	store     store.Store
	client    *http.Client
	resolver  *Resolver
	countries *geolite.CountryDB
	now       func() time.Time

	group singleflight.Group
}

func NewReputationClient(st store.Store, client *http.Client, resolver *Resolver, countries *geolite.CountryDB, now func() time.Time) *ReputationClient {
	if now == nil {
		now = time.Now
	}
	return &ReputationClient{
		store:     st,
		client:    client,
		resolver:  resolver,
		countries: countries,
		now:       now,
	}
}

// Check returns the reputation record for the hostname's first resolved
// address, or nil. Every failure mode — missing key, resolution failure,
// rate limiting, malformed response — resolves to nil, never an error.
func (c *ReputationClient) Check(ctx context.Context, hostname string) *domain.IPReputationRecord {
	apiKey := config.AbuseAPIKey()
	if apiKey == "" {
		return nil
	}

	ip, ok := c.resolver.Resolve(ctx, hostname)
	if !ok {
		return nil
	}

	result, _, _ := c.group.Do(ip, func() (interface{}, error) {
		return c.lookup(ctx, ip, apiKey), nil
	})
	record, _ := result.(*domain.IPReputationRecord)
	return record
}

func (c *ReputationClient) lookup(ctx context.Context, ip, apiKey string) *domain.IPReputationRecord {
	if cached := c.fromCache(ctx, ip); cached != nil {
		return cached
	}

	record := c.query(ctx, ip, apiKey)
	if record == nil {
		return nil
	}

	if record.CountryCode == "" {
		record.CountryCode = c.countries.CountryCode(ip)
	}

	if raw, err := json.Marshal(record); err == nil {
		if err := c.store.Set(ctx, reputationKeyBase+ip, raw, record.CachedAt); err != nil {
			log.Warn("Reputation cache persist failed", "ip", ip, "error", err)
		}
	}
	return record
}

func (c *ReputationClient) fromCache(ctx context.Context, ip string) *domain.IPReputationRecord {
	raw, storedAt, err := c.store.Get(ctx, reputationKeyBase+ip)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("Reputation cache read failed", "ip", ip, "error", err)
		}
		return nil
	}
	if c.now().Sub(storedAt) > reputationCacheTTL {
		return nil
	}

	var record domain.IPReputationRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil
	}
	return &record
}

func (c *ReputationClient) query(ctx context.Context, ip, apiKey string) *domain.IPReputationRecord {
	endpoint := config.GetConfig().Reputation.Endpoint
	if endpoint == "" {
		return nil
	}

	checkURL := fmt.Sprintf("%s?ipAddress=%s&maxAgeInDays=%s", endpoint, url.QueryEscape(ip), reputationMaxAge)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Key", apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Debug("Reputation query failed", "ip", ip, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		// No retry and no backoff state: the 24h cache already spaces
		// queries out.
		log.Warn("Reputation service rate limited", "ip", ip)
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		log.Debug("Reputation query returned non-OK status", "ip", ip, "status", resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil
	}

	var payload struct {
		Data struct {
			IPAddress            string `json:"ipAddress"`
			AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
			UsageType            string `json:"usageType"`
			IsPublic             bool   `json:"isPublic"`
			IsWhitelisted        *bool  `json:"isWhitelisted"`
			CountryCode          string `json:"countryCode"`
			LastReportedAt       string `json:"lastReportedAt"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Debug("Reputation response is malformed", "ip", ip, "error", err)
		return nil
	}

	record := &domain.IPReputationRecord{
		IP:                   ip,
		AbuseConfidenceScore: payload.Data.AbuseConfidenceScore,
		UsageType:            payload.Data.UsageType,
		IsPublic:             payload.Data.IsPublic,
		CountryCode:          payload.Data.CountryCode,
		CachedAt:             c.now(),
	}
	if payload.Data.IsWhitelisted != nil {
		record.IsWhitelisted = *payload.Data.IsWhitelisted
	}
	if ts, err := time.Parse(time.RFC3339, payload.Data.LastReportedAt); err == nil {
		record.LastReportedAt = ts
	}
	return record
}
