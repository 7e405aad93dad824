package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/catalog"
)

// RoomsHandler serves GET /rooms with a snapshot of every live room.
func RoomsHandler(registry *app.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, registry.List(r.Context()))
	}
}

// SubjectsHandler serves GET /subjects with the loaded question partitions.
func SubjectsHandler(bank *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, bank.Subjects())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response failed")
	}
}
