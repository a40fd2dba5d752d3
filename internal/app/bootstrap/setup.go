package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"vigil/internal/config"
	"vigil/internal/feeds"
	"vigil/internal/geolite"
	"vigil/internal/intel"
	"vigil/internal/scanner"
	"vigil/internal/store"
	"vigil/internal/support"
)

const (
	feedFetchTimeout = 15 * time.Second
	intelTimeout     = 8 * time.Second
	dnsTimeout       = 4 * time.Second
)

// Setup wires the persistent store, the signal clients, and the scanner
// service, then starts the refresh loops.
func Setup(ctx context.Context) (*scanner.Service, error) {
	config.ReadSettings()

	st, err := selectStore()
	if err != nil {
		return nil, err
	}

	proxyAddr := config.GetConfig().OutboundProxy

	feedClient, err := support.NewHTTPClient(feedFetchTimeout, proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: feed http client: %w", err)
	}
	intelClient, err := support.NewHTTPClient(intelTimeout, proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: intel http client: %w", err)
	}
	dnsClient, err := support.NewHTTPClient(dnsTimeout, proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: dns http client: %w", err)
	}

	countries := geolite.OpenCountryDB(config.GeoLiteCountryDBPath())
	resolver := intel.NewResolver(dnsClient, nil)

	service := scanner.NewService(
		feeds.NewManager(st, feedClient, nil),
		intel.NewCrowdClient(st, intelClient, nil),
		intel.NewReputationClient(st, intelClient, resolver, countries, nil),
		nil,
	)
	service.Init(ctx)
	return service, nil
}

func selectStore() (store.Store, error) {
	if support.RedisConfigured() {
		client, err := support.GetRedisClient()
		if err != nil {
			return nil, fmt.Errorf("bootstrap: redis store: %w", err)
		}
		log.Info("Using Redis cache store")
		return store.NewRedisStore(client), nil
	}

	if dsn := support.GetEnv("DATABASE_URL", ""); dsn != "" {
		gormStore, err := store.OpenGormStore(dsn)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: postgres store: %w", err)
		}
		log.Info("Using Postgres cache store")
		return gormStore, nil
	}

	log.Warn("No external store configured, caches will not survive restarts")
	return store.NewMemoryStore(), nil
}
