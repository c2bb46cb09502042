package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/githubbar/refwatch/internal/models"
	"github.com/githubbar/refwatch/internal/recordstore"
	"github.com/githubbar/refwatch/internal/relay"
)

// newAdminHandler exposes the companion's small API: push a schedule
// down to the wearable, inspect the relay's match view and the record
// store.
func newAdminHandler(rly *relay.Relay, records *recordstore.Repository) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/schedule", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var matches []models.Match
		if err := json.NewDecoder(r.Body).Decode(&matches); err != nil {
			http.Error(w, "invalid schedule payload", http.StatusBadRequest)
			return
		}
		if err := rly.PublishSchedule(r.Context(), matches); err != nil {
			log.Error().Err(err).Msg("failed to publish schedule")
			http.Error(w, "failed to publish schedule", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/api/matches", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, rly.Matches())
	})

	mux.HandleFunc("/api/completed", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		matches, err := records.ListCompleted(r.Context(), limit)
		if err != nil {
			log.Error().Err(err).Msg("failed to list completed matches")
			http.Error(w, "failed to list completed matches", http.StatusInternalServerError)
			return
		}
		writeJSON(w, matches)
	})

	return cors.AllowAll().Handler(mux)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
