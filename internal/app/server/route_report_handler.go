package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"vigil/internal/domain"
	"vigil/internal/intel"
)

func (h *handlers) submitReport(w http.ResponseWriter, r *http.Request) {
	var report domain.Report
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	err := h.service.SubmitReport(r.Context(), report)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "submitted"})
	case errors.Is(err, domain.ErrInvalidReport):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, intel.ErrNoBackend):
		writeError(w, "crowd reporting is not configured", http.StatusServiceUnavailable)
	default:
		log.Warn("Crowd report submission failed", "error", err)
		writeError(w, "report submission failed", http.StatusBadGateway)
	}
}
