package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"vigil/internal/config"
)

func (h *handlers) getGlobalSettings(w http.ResponseWriter, _ *http.Request) {
	cfg := config.GetConfig()
	// Never echo the credential back out.
	cfg.Reputation.APIKey = ""
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handlers) saveSettings(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	// The credential is masked on reads, so a read-modify-write cycle
	// posts it back empty. An empty value means "keep the current one".
	if strings.TrimSpace(newConfig.Reputation.APIKey) == "" {
		newConfig.Reputation.APIKey = config.GetConfig().Reputation.APIKey
	}
	newConfig.SourceBlocklist = config.NormalizeSourceBlocklist(newConfig.SourceBlocklist)

	config.SetConfig(newConfig)
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	ages := h.service.FeedSnapshotAges()
	feeds := make(map[string]string, len(ages))
	for source, age := range ages {
		feeds[source] = age.Round(time.Second).String()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"feed_cache_age": feeds,
	})
}
