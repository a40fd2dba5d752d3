package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"vigil/internal/auth"
	"vigil/internal/scanner"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// OpenRoutes starts the API server with the given assessment service.
func OpenRoutes(port int, service *scanner.Service) error {
	handlers := newHandlers(service)

	router := http.NewServeMux()
	router.HandleFunc("POST /check", handlers.checkURL)
	router.HandleFunc("POST /report", handlers.submitReport)
	router.HandleFunc("GET /health", handlers.health)

	// Reading the (credential-masked) settings needs any valid token;
	// changing them stays admin-only.
	router.Handle("GET /global/settings", auth.RequireAuth(http.HandlerFunc(handlers.getGlobalSettings)))
	router.Handle("POST /saveSettings", auth.IsAdmin(http.HandlerFunc(handlers.saveSettings)))

	addr := fmt.Sprintf(":%d", port)
	log.Info("Starting API server", "addr", addr)
	return http.ListenAndServe(addr, enableCORS(router))
}
