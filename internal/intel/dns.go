// Package intel wraps the external reputation signals: DNS-over-HTTPS
// resolution, the IP reputation service, and the crowd report backend.
// Every read path here degrades to "no signal" instead of failing.
package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"vigil/internal/config"
)

// dnsCacheTTL bounds the in-memory hostname→IP cache. It only exists to
// avoid redundant resolver calls within one process lifetime and is never
// persisted.
const dnsCacheTTL = 5 * time.Minute

type dnsEntry struct {
	ip         string
	resolvedAt time.Time
}

type Resolver struct {
	client *http.Client
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]dnsEntry
}

func NewResolver(client *http.Client, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		client: client,
		now:    now,
		cache:  make(map[string]dnsEntry),
	}
}

// Resolve looks up the first A record for hostname through the configured
// DNS-over-HTTPS endpoint. Failures of any kind report no result.
func (r *Resolver) Resolve(ctx context.Context, hostname string) (string, bool) {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return "", false
	}

	r.mu.Lock()
	if entry, ok := r.cache[hostname]; ok && r.now().Sub(entry.resolvedAt) <= dnsCacheTTL {
		r.mu.Unlock()
		return entry.ip, true
	}
	r.mu.Unlock()

	ip, ok := r.query(ctx, hostname)
	if !ok {
		return "", false
	}

	r.mu.Lock()
	r.cache[hostname] = dnsEntry{ip: ip, resolvedAt: r.now()}
	r.mu.Unlock()
	return ip, true
}

func (r *Resolver) query(ctx context.Context, hostname string) (string, bool) {
	endpoint := config.GetConfig().DNS.Endpoint
	if endpoint == "" {
		return "", false
	}

	lookupURL := fmt.Sprintf("%s?name=%s&type=A", endpoint, url.QueryEscape(hostname))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := r.client.Do(req)
	if err != nil {
		log.Debug("DNS lookup failed", "hostname", hostname, "error", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug("DNS lookup returned non-OK status", "hostname", hostname, "status", resp.StatusCode)
		return "", false
	}

	var answer struct {
		Status int `json:"Status"`
		Answer []struct {
			Type int    `json:"type"`
			Data string `json:"data"`
		} `json:"Answer"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", false
	}
	if err := json.Unmarshal(body, &answer); err != nil {
		log.Debug("DNS answer is malformed", "hostname", hostname, "error", err)
		return "", false
	}

	for _, record := range answer.Answer {
		// Type 1 is an A record.
		if record.Type == 1 && record.Data != "" {
			return record.Data, true
		}
	}
	return "", false
}
