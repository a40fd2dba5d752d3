// Package scanner drives the whole assessment pipeline: it owns the
// periodic refresh loops and exposes CheckURL, the single operation
// consumed by callers.
package scanner

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"vigil/internal/config"
	"vigil/internal/domain"
	"vigil/internal/engine"
	"vigil/internal/feeds"
	"vigil/internal/intel"
	"vigil/internal/support"
	"vigil/internal/urlutil"
)

const (
	feedRefreshLockKey = "vigil:lock:feed_refresh"
	crowdSyncLockKey   = "vigil:lock:crowd_sync"

	refreshTimeout = 2 * time.Minute
)

type Service struct {
	feedManager *feeds.Manager
	crowd       *intel.CrowdClient
	reputation  *intel.ReputationClient
	now         func() time.Time

	initialized atomic.Bool
}

func NewService(feedManager *feeds.Manager, crowd *intel.CrowdClient, reputation *intel.ReputationClient, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		feedManager: feedManager,
		crowd:       crowd,
		reputation:  reputation,
		now:         now,
	}
}

// Init hydrates the caches, starts the two periodic refresh loops, and
// kicks off one immediate best-effort refresh of each without blocking
// startup. Calling it more than once is a no-op.
func (s *Service) Init(ctx context.Context) {
	if !s.initialized.CompareAndSwap(false, true) {
		return
	}

	s.feedManager.LoadPersisted(ctx)
	s.crowd.LoadPersisted(ctx)

	go s.runFeedLoop(ctx)
	go s.runCrowdLoop(ctx)
}

// CheckURL normalizes the URL, gathers every available signal as an
// independent task, and delegates scoring to the engine. It always
// returns an Assessment: a sub-signal failure only removes that signal's
// contribution, and absence of evidence classifies as SAFE.
func (s *Service) CheckURL(ctx context.Context, rawURL string, checkCtx domain.CheckContext, policy engine.Policy) domain.Assessment {
	return s.CheckURLWithScore(ctx, rawURL, checkCtx, policy, nil)
}

// CheckURLWithScore is CheckURL with an optional externally supplied model
// probability attached upstream.
func (s *Service) CheckURLWithScore(ctx context.Context, rawURL string, checkCtx domain.CheckContext, policy engine.Policy, mlScore *float64) domain.Assessment {
	normalized, err := urlutil.Normalize(rawURL)
	if err != nil {
		log.Debug("CheckURL received an unparseable URL", "url", rawURL, "error", err)
		return domain.Assessment{URL: rawURL, RiskScore: 0, RiskLevel: domain.RiskSafe}
	}

	hostname := urlutil.Hostname(normalized)

	signals := engine.Signals{
		Context: checkCtx,
		MLScore: mlScore,
	}

	// Each signal is its own task: one failing or slow source never
	// blocks the others, it just contributes nothing.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		signals.BlacklistSources = s.feedManager.Match(normalized)
		return nil
	})
	group.Go(func() error {
		signals.Crowd = s.crowd.Lookup(hostname)
		return nil
	})
	group.Go(func() error {
		signals.IPReputation = s.reputation.Check(groupCtx, hostname)
		return nil
	})
	_ = group.Wait()

	return engine.Evaluate(normalized, signals, policy)
}

// SubmitReport forwards a crowd report upstream; failures surface to the
// caller.
func (s *Service) SubmitReport(ctx context.Context, report domain.Report) error {
	return s.crowd.SubmitReport(ctx, report)
}

// FeedSnapshotAges reports per-source snapshot age for health reporting.
func (s *Service) FeedSnapshotAges() map[string]time.Duration {
	ages := make(map[string]time.Duration)
	for _, src := range config.GetConfig().Feeds.Sources {
		if snapshot := s.feedManager.Snapshot(src.ID); snapshot != nil {
			ages[src.ID] = s.now().Sub(snapshot.FetchedAt)
		}
	}
	return ages
}

func (s *Service) runFeedLoop(ctx context.Context) {
	updates := config.FeedRefreshIntervalUpdates()
	interval := <-updates

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.refreshFeeds(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshFeeds(ctx, "scheduled")
		case newInterval := <-updates:
			if newInterval == interval {
				continue
			}
			drainTicker(ticker)
			interval = newInterval
			ticker.Reset(interval)
		}
	}
}

func (s *Service) runCrowdLoop(ctx context.Context) {
	updates := config.CrowdSyncIntervalUpdates()
	interval := <-updates

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.syncCrowd(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncCrowd(ctx, "scheduled")
		case newInterval := <-updates:
			if newInterval == interval {
				continue
			}
			drainTicker(ticker)
			interval = newInterval
			ticker.Reset(interval)
		}
	}
}

func (s *Service) refreshFeeds(ctx context.Context, reason string) {
	refreshCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	err := support.WithRefreshLock(refreshCtx, feedRefreshLockKey, support.DefaultRefreshLockTTL, func(lockCtx context.Context) error {
		s.feedManager.RefreshAll(lockCtx)
		return nil
	})
	switch {
	case errors.Is(err, support.ErrLockHeld):
		log.Debug("Feed refresh skipped, another instance holds the lock", "reason", reason)
	case err != nil:
		log.Warn("Feed refresh cycle failed", "reason", reason, "error", err)
	}
}

func (s *Service) syncCrowd(ctx context.Context, reason string) {
	syncCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	err := support.WithRefreshLock(syncCtx, crowdSyncLockKey, support.DefaultRefreshLockTTL, func(lockCtx context.Context) error {
		return s.crowd.Sync(lockCtx)
	})
	switch {
	case err == nil:
	case errors.Is(err, support.ErrLockHeld):
		log.Debug("Crowd sync skipped, another instance holds the lock", "reason", reason)
	case errors.Is(err, intel.ErrNoBackend):
		log.Debug("Crowd sync skipped, no backend configured", "reason", reason)
	case errors.Is(err, context.Canceled):
		log.Info("Crowd sync canceled", "reason", reason)
	default:
		log.Warn("Crowd sync failed", "reason", reason, "error", err)
	}
}

func drainTicker(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
		default:
			return
		}
	}
}
