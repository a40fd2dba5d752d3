package config

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultFeedRefreshInterval = time.Hour
	defaultCrowdSyncInterval   = time.Hour
)

var (
	feedRefreshInterval  atomic.Value
	crowdSyncInterval    atomic.Value
	feedRefreshListeners []chan time.Duration
	crowdSyncListeners   []chan time.Duration
	listenersMu          sync.Mutex
)

func init() {
	feedRefreshInterval.Store(defaultFeedRefreshInterval)
	crowdSyncInterval.Store(defaultCrowdSyncInterval)
}

// SetRefreshIntervals recomputes the refresh cadences from the current
// config and notifies listeners of changes.
func SetRefreshIntervals() {
	cfg := GetConfig()
	setFeedRefreshInterval(timerOrDefault(cfg.Feeds.RefreshTimer, defaultFeedRefreshInterval))
	setCrowdSyncInterval(timerOrDefault(cfg.Crowd.SyncTimer, defaultCrowdSyncInterval))
}

// CalculateBetweenTime converts a Timer into a duration with a one second
// floor.
func CalculateBetweenTime(timer Timer) time.Duration {
	interval := time.Duration(timer.Days)*24*time.Hour +
		time.Duration(timer.Hours)*time.Hour +
		time.Duration(timer.Minutes)*time.Minute +
		time.Duration(timer.Seconds)*time.Second

	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

func timerOrDefault(timer Timer, fallback time.Duration) time.Duration {
	if timer.Days == 0 && timer.Hours == 0 && timer.Minutes == 0 && timer.Seconds == 0 {
		return fallback
	}
	return CalculateBetweenTime(timer)
}

func GetFeedRefreshInterval() time.Duration {
	return feedRefreshInterval.Load().(time.Duration)
}

// FeedRefreshIntervalUpdates returns a channel that receives the current
// interval immediately and every subsequent change.
func FeedRefreshIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	feedRefreshListeners = append(feedRefreshListeners, ch)
	listenersMu.Unlock()

	ch <- GetFeedRefreshInterval()
	return ch
}

func setFeedRefreshInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultFeedRefreshInterval
	}
	if GetFeedRefreshInterval() == interval {
		return
	}

	feedRefreshInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range feedRefreshListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

func GetCrowdSyncInterval() time.Duration {
	return crowdSyncInterval.Load().(time.Duration)
}

func CrowdSyncIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	crowdSyncListeners = append(crowdSyncListeners, ch)
	listenersMu.Unlock()

	ch <- GetCrowdSyncInterval()
	return ch
}

func setCrowdSyncInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultCrowdSyncInterval
	}
	if GetCrowdSyncInterval() == interval {
		return
	}

	crowdSyncInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range crowdSyncListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}
