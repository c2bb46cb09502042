package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/githubbar/refwatch/internal/models"
)

// MatchEngine is the slice of the engine the gateway exposes to front
// ends.
type MatchEngine interface {
	StartClock() models.Match
	PauseClock() models.Match
	KickOff() models.Match
	EndCurrentPhase() models.Match
	RecordGoal(team models.TeamSide) models.Match
	RecordCard(team models.TeamSide, playerNumber int, kind models.CardKind) models.Match
	SelectKickOffTeam(team models.TeamSide) models.Match
	AddNote(message string) models.Match
	Abandon() models.Match
	CreateAdHocMatch() models.Match
	SelectScheduledMatch(id uuid.UUID) models.Match
	FinishAndSync(done func(error)) models.Match
	Snapshot() models.Match
	KnownMatches() []models.Match
	Subscribe() (<-chan models.Match, func())
}

// Server serves the presentation API and the snapshot stream.
type Server struct {
	engine MatchEngine
	hub    *Hub
}

func NewServer(engine MatchEngine) *Server {
	return &Server{engine: engine, hub: NewHub()}
}

// Handler returns the routed HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/match", s.handleMatchStream)
	mux.HandleFunc("/api/match", s.handleMatch)
	mux.HandleFunc("/api/matches", s.handleMatches)
	mux.HandleFunc("/api/action", s.handleAction)
	return cors.AllowAll().Handler(mux)
}

// Run pumps engine snapshots into the hub until ctx is done.
func (s *Server) Run(ctx context.Context) {
	snapshots, cancel := s.engine.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-snapshots:
			data, err := json.Marshal(m)
			if err != nil {
				log.Error().Err(err).Msg("failed to marshal snapshot for observers")
				continue
			}
			s.hub.Broadcast(data)
		}
	}
}

func (s *Server) handleMatchStream(w http.ResponseWriter, r *http.Request) {
	initial, err := json.Marshal(s.engine.Snapshot())
	if err != nil {
		http.Error(w, "failed to render snapshot", http.StatusInternalServerError)
		return
	}
	if err := s.hub.Attach(w, r, initial); err != nil {
		log.Error().Err(err).Msg("failed to upgrade observer connection")
	}
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Snapshot())
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	matches := s.engine.KnownMatches()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := matches[:0]
		for _, m := range matches {
			if m.Status == models.MatchStatus(status) {
				filtered = append(filtered, m)
			}
		}
		matches = filtered
	}
	writeJSON(w, matches)
}

// actionRequest is the wire form of one referee action invocation.
type actionRequest struct {
	Action       string          `json:"action"`
	Team         models.TeamSide `json:"team,omitempty"`
	PlayerNumber int             `json:"player_number,omitempty"`
	Card         models.CardKind `json:"card,omitempty"`
	Message      string          `json:"message,omitempty"`
	MatchID      string          `json:"match_id,omitempty"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid action payload", http.StatusBadRequest)
		return
	}

	var snap models.Match
	switch req.Action {
	case "startClock":
		snap = s.engine.StartClock()
	case "pauseClock":
		snap = s.engine.PauseClock()
	case "kickOff":
		snap = s.engine.KickOff()
	case "endCurrentPhase":
		snap = s.engine.EndCurrentPhase()
	case "recordGoal":
		snap = s.engine.RecordGoal(req.Team)
	case "recordCard":
		snap = s.engine.RecordCard(req.Team, req.PlayerNumber, req.Card)
	case "selectKickOffTeam":
		snap = s.engine.SelectKickOffTeam(req.Team)
	case "addNote":
		snap = s.engine.AddNote(req.Message)
	case "abandon":
		snap = s.engine.Abandon()
	case "createAdHocMatch":
		snap = s.engine.CreateAdHocMatch()
	case "selectScheduledMatch":
		id, err := uuid.Parse(req.MatchID)
		if err != nil {
			http.Error(w, "invalid match_id", http.StatusBadRequest)
			return
		}
		snap = s.engine.SelectScheduledMatch(id)
	case "finishAndSync":
		snap = s.engine.FinishAndSync(func(err error) {
			if err != nil {
				log.Warn().Err(err).Msg("finished match hand-off did not complete")
			}
		})
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	writeJSON(w, snap)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
