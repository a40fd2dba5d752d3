package server

import (
	"encoding/json"
	"net/http"

	"vigil/internal/domain"
	"vigil/internal/engine"
	"vigil/internal/scanner"
)

type handlers struct {
	service *scanner.Service
}

func newHandlers(service *scanner.Service) *handlers {
	return &handlers{service: service}
}

type checkRequest struct {
	URL     string   `json:"url"`
	Context string   `json:"context,omitempty"`
	Policy  string   `json:"policy,omitempty"`
	MLScore *float64 `json:"ml_score,omitempty"`
}

func (h *handlers) checkURL(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		writeError(w, "url is required", http.StatusBadRequest)
		return
	}

	checkCtx := domain.CheckPassive
	if req.Context == string(domain.CheckActive) {
		checkCtx = domain.CheckActive
	}

	assessment := h.service.CheckURLWithScore(r.Context(), req.URL, checkCtx, engine.ParsePolicy(req.Policy), req.MLScore)
	writeJSON(w, http.StatusOK, assessment)
}
