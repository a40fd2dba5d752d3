package config

import (
	_ "embed"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"vigil/internal/support"
)

// FeedFormat selects the parser for a blacklist feed payload.
type FeedFormat string

const (
	FeedFormatJSON FeedFormat = "json"
	FeedFormatText FeedFormat = "text"
)

// FeedSource is one configured external blacklist feed. TTLHours bounds how
// long a persisted snapshot of this source is trusted on load.
type FeedSource struct {
	ID       string     `json:"id"`
	URL      string     `json:"url"`
	Format   FeedFormat `json:"format"`
	TTLHours uint32     `json:"ttl_hours"`
}

type Config struct {
	Feeds struct {
		Sources      []FeedSource `json:"sources"`
		RefreshTimer Timer        `json:"refresh_timer"`
	} `json:"feeds"`

	Crowd struct {
		SyncTimer Timer  `json:"sync_timer"`
		PageSize  uint32 `json:"page_size"`
	} `json:"crowd"`

	Reputation struct {
		APIKey           string `json:"api_key,omitempty"`
		Endpoint         string `json:"endpoint"`
		GeoLiteCountryDB string `json:"geolite_country_db,omitempty"`
	} `json:"reputation"`

	DNS struct {
		Endpoint string `json:"endpoint"`
	} `json:"dns"`

	Backend struct {
		BaseURL string `json:"base_url"`
	} `json:"backend"`

	// OutboundProxy routes feed and intel fetches through a SOCKS5 proxy
	// when set (socks5://host:port).
	OutboundProxy string `json:"outbound_proxy,omitempty"`

	SourceBlocklist []string `json:"source_blocklist"`
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

const settingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex
)

func init() {
	configValue.Store(Config{})
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

// ReadSettings loads the settings file, creating it from the embedded
// defaults on first run.
func ReadSettings() {
	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration")

			if err := os.MkdirAll("data", os.ModePerm); err != nil {
				log.Error("Error creating directory for settings file:", "error", err)
				return
			}
			if err := os.WriteFile(settingsFilePath, defaultConfig, os.ModePerm); err != nil {
				log.Error("Error writing default settings file:", "error", err)
				return
			}
			data = defaultConfig
		} else {
			log.Error("Error reading settings file:", "error", err)
			return
		}
	}

	var newConfig Config
	if err := json.Unmarshal(data, &newConfig); err != nil {
		log.Error("Error unmarshalling settings file:", "error", err)
		return
	}

	ApplyConfig(newConfig)
	log.Debug("Settings file loaded successfully")
}

// ApplyConfig installs a configuration without persisting it.
func ApplyConfig(newConfig Config) {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)
	SetRefreshIntervals()
	updateSourceBlocklist(newConfig.SourceBlocklist)
}

// SetConfig applies a configuration update and writes it to the settings
// file.
func SetConfig(newConfig Config) {
	ApplyConfig(newConfig)

	data, err := json.MarshalIndent(newConfig, "", "  ")
	if err != nil {
		log.Error("Error marshalling new configuration:", "error", err)
		return
	}
	if err := os.WriteFile(settingsFilePath, data, os.ModePerm); err != nil {
		log.Error("Error writing new configuration to file:", "error", err)
		return
	}
	log.Debug("Configuration updated and written to file successfully")
}

// AbuseAPIKey resolves the IP reputation credential: environment first,
// then the settings file. Empty means the reputation path is disabled.
func AbuseAPIKey() string {
	if key := strings.TrimSpace(support.GetEnv("VIGIL_ABUSE_API_KEY", "")); key != "" {
		return key
	}
	return strings.TrimSpace(GetConfig().Reputation.APIKey)
}

// BackendBaseURL resolves the crowd backend base URL, with the environment
// override taking precedence over the settings file.
func BackendBaseURL() string {
	if base := strings.TrimSpace(support.GetEnv("VIGIL_BACKEND_URL", "")); base != "" {
		return strings.TrimRight(base, "/")
	}
	return strings.TrimRight(strings.TrimSpace(GetConfig().Backend.BaseURL), "/")
}

// GeoLiteCountryDBPath resolves the optional GeoLite2 country database path.
func GeoLiteCountryDBPath() string {
	if path := strings.TrimSpace(support.GetEnv("GEOLITE_COUNTRY_DB", "")); path != "" {
		return path
	}
	return strings.TrimSpace(GetConfig().Reputation.GeoLiteCountryDB)
}
