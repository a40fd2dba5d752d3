package config

import (
	"testing"
	"time"
)

func TestCalculateBetweenTime(t *testing.T) {
	tests := []struct {
		name  string
		timer Timer
		want  time.Duration
	}{
		{"hours only", Timer{Hours: 2}, 2 * time.Hour},
		{"days and minutes", Timer{Days: 1, Minutes: 30}, 24*time.Hour + 30*time.Minute},
		{"all fields", Timer{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}, 26*time.Hour + 3*time.Minute + 4*time.Second},
		{"zero timer floors to a second", Timer{}, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateBetweenTime(tt.timer); got != tt.want {
				t.Fatalf("CalculateBetweenTime(%+v) = %v, want %v", tt.timer, got, tt.want)
			}
		})
	}
}

func TestRefreshIntervalDefaults(t *testing.T) {
	ApplyConfig(Config{})
	t.Cleanup(func() { ApplyConfig(Config{}) })

	if got := GetFeedRefreshInterval(); got != defaultFeedRefreshInterval {
		t.Fatalf("feed refresh interval = %v, want default %v", got, defaultFeedRefreshInterval)
	}
	if got := GetCrowdSyncInterval(); got != defaultCrowdSyncInterval {
		t.Fatalf("crowd sync interval = %v, want default %v", got, defaultCrowdSyncInterval)
	}
}

func TestIntervalUpdatesNotifyListeners(t *testing.T) {
	ApplyConfig(Config{})
	t.Cleanup(func() { ApplyConfig(Config{}) })

	updates := FeedRefreshIntervalUpdates()

	select {
	case got := <-updates:
		if got != defaultFeedRefreshInterval {
			t.Fatalf("initial interval = %v, want %v", got, defaultFeedRefreshInterval)
		}
	default:
		t.Fatal("listener channel did not receive the current interval immediately")
	}

	var cfg Config
	cfg.Feeds.RefreshTimer = Timer{Minutes: 10}
	ApplyConfig(cfg)

	select {
	case got := <-updates:
		if got != 10*time.Minute {
			t.Fatalf("updated interval = %v, want 10m", got)
		}
	case <-time.After(time.Second):
		t.Fatal("listener was not notified of the interval change")
	}

	// Re-applying the same cadence is not an update.
	ApplyConfig(cfg)
	select {
	case got := <-updates:
		t.Fatalf("unexpected notification %v for an unchanged interval", got)
	default:
	}
}
