package intel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vigil/internal/config"
	"vigil/internal/domain"
	"vigil/internal/store"
)

func setBackendBaseURL(t *testing.T, base string) {
	t.Helper()
	var cfg config.Config
	cfg.Backend.BaseURL = base
	config.ApplyConfig(cfg)
	t.Cleanup(func() { config.ApplyConfig(config.Config{}) })
	t.Setenv("VIGIL_BACKEND_URL", "")
}

const crowdSummaryPayload = `{"items": [
	{"hostname": "Reported.Example.COM", "score": 0.85, "reports": 12, "last_report_at": "2026-02-28T09:00:00Z"},
	{"hostname": "mild.example.net", "score": 0.3, "reports": 1, "last_report_at": "2026-02-01T00:00:00Z"},
	{"hostname": "", "score": 0.9, "reports": 4, "last_report_at": ""}
]}`

func TestSyncAndLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crowd/summary" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, crowdSummaryPayload)
	}))
	defer server.Close()

	setBackendBaseURL(t, server.URL)
	client := NewCrowdClient(store.NewMemoryStore(), server.Client(), nil)

	if err := client.Sync(context.Background()); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}

	item := client.Lookup("reported.example.com")
	if item == nil {
		t.Fatal("Lookup missed a synced hostname")
	}
	if item.AggregateScore != 0.85 || item.ReportCount != 12 {
		t.Fatalf("item = %+v", item)
	}
	if got := client.Lookup("  Reported.Example.COM  "); got == nil {
		t.Fatal("Lookup is not case and whitespace insensitive")
	}
	if got := client.Lookup("unknown.test"); got != nil {
		t.Fatalf("Lookup(unknown) = %+v, want nil", got)
	}
}

func TestSyncPageSize(t *testing.T) {
	var gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		fmt.Fprint(w, `{"items": []}`)
	}))
	defer server.Close()

	setBackendBaseURL(t, server.URL)
	client := NewCrowdClient(store.NewMemoryStore(), server.Client(), nil)

	t.Run("default when unconfigured", func(t *testing.T) {
		if err := client.Sync(context.Background()); err != nil {
			t.Fatalf("Sync returned error: %v", err)
		}
		if gotLimit != "200" {
			t.Fatalf("limit = %q, want the 200 default", gotLimit)
		}
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("VIGIL_CROWD_PAGE_SIZE", "50")
		if err := client.Sync(context.Background()); err != nil {
			t.Fatalf("Sync returned error: %v", err)
		}
		if gotLimit != "50" {
			t.Fatalf("limit = %q, want the override", gotLimit)
		}
	})
}

func TestLookupStaleSummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, crowdSummaryPayload)
	}))
	defer server.Close()

	setBackendBaseURL(t, server.URL)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := NewCrowdClient(store.NewMemoryStore(), server.Client(), func() time.Time { return current })

	if err := client.Sync(context.Background()); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if client.Lookup("reported.example.com") == nil {
		t.Fatal("fresh lookup missed")
	}

	current = current.Add(crowdCacheTTL + time.Minute)
	if item := client.Lookup("reported.example.com"); item != nil {
		t.Fatalf("stale lookup returned %+v, want nil", item)
	}
}

func TestSyncFailureKeepsPriorSummary(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, crowdSummaryPayload)
	}))
	defer server.Close()

	setBackendBaseURL(t, server.URL)
	client := NewCrowdClient(store.NewMemoryStore(), server.Client(), nil)

	if err := client.Sync(context.Background()); err != nil {
		t.Fatalf("initial Sync failed: %v", err)
	}

	healthy = false
	if err := client.Sync(context.Background()); err == nil {
		t.Fatal("Sync against a failing backend succeeded, want error")
	}
	if client.Lookup("reported.example.com") == nil {
		t.Fatal("failed sync discarded the prior summary")
	}
}

func TestSyncWithoutBackend(t *testing.T) {
	config.ApplyConfig(config.Config{})
	t.Setenv("VIGIL_BACKEND_URL", "")

	client := NewCrowdClient(store.NewMemoryStore(), http.DefaultClient, nil)
	if err := client.Sync(context.Background()); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("Sync error = %v, want ErrNoBackend", err)
	}
}

func TestLoadPersistedSummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, crowdSummaryPayload)
	}))
	defer server.Close()

	setBackendBaseURL(t, server.URL)

	st := store.NewMemoryStore()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := NewCrowdClient(st, server.Client(), func() time.Time { return t0 })
	if err := seed.Sync(context.Background()); err != nil {
		t.Fatalf("seed Sync failed: %v", err)
	}

	t.Run("fresh summary restored", func(t *testing.T) {
		client := NewCrowdClient(st, server.Client(), func() time.Time { return t0.Add(time.Hour) })
		client.LoadPersisted(context.Background())
		if client.Lookup("reported.example.com") == nil {
			t.Fatal("fresh persisted summary was not restored")
		}
	})

	t.Run("stale summary ignored", func(t *testing.T) {
		client := NewCrowdClient(st, server.Client(), func() time.Time { return t0.Add(crowdCacheTTL + time.Hour) })
		client.LoadPersisted(context.Background())
		if item := client.Lookup("reported.example.com"); item != nil {
			t.Fatalf("stale persisted summary served %+v", item)
		}
	})
}

func TestSubmitReport(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		var received domain.Report
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/crowd/report" {
				t.Errorf("unexpected path %q", r.URL.Path)
			}
			if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
				t.Errorf("decode report: %v", err)
			}
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		setBackendBaseURL(t, server.URL)
		client := NewCrowdClient(store.NewMemoryStore(), server.Client(), nil)

		err := client.SubmitReport(context.Background(), domain.Report{
			URL:      "HTTP://Bad.Example.COM/login#frag",
			Verdict:  domain.VerdictMalicious,
			DeviceID: "device-1",
		})
		if err != nil {
			t.Fatalf("SubmitReport returned error: %v", err)
		}
		if received.URL != "http://bad.example.com/login" {
			t.Fatalf("submitted URL = %q, want normalized form", received.URL)
		}
		if received.ReportedAt.IsZero() {
			t.Fatal("ReportedAt was not stamped")
		}
	})

	t.Run("rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		setBackendBaseURL(t, server.URL)
		client := NewCrowdClient(store.NewMemoryStore(), server.Client(), nil)

		err := client.SubmitReport(context.Background(), domain.Report{URL: "http://x.test/", Verdict: domain.VerdictSuspicious})
		if err == nil {
			t.Fatal("SubmitReport succeeded against a rejecting backend")
		}
	})

	t.Run("invalid report", func(t *testing.T) {
		client := NewCrowdClient(store.NewMemoryStore(), http.DefaultClient, nil)
		err := client.SubmitReport(context.Background(), domain.Report{URL: "http://x.test/", Verdict: "angry"})
		if !errors.Is(err, domain.ErrInvalidReport) {
			t.Fatalf("error = %v, want ErrInvalidReport", err)
		}
	})
}
