package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jcai27/Chessica/internal/store"
)

type sessionEventsResponse struct {
	SessionID string             `json:"session_id"`
	Events    []store.Event      `json:"events"`
	Summary   store.EventSummary `json:"summary"`
}

// handleSessionEvents returns the durable event log for one session.
// The session must exist; an empty log for a live session is fine.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.deps.Sessions.Get(r.Context(), id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	events, summary, err := s.deps.Telemetry.ListBySession(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	writeJSON(w, http.StatusOK, sessionEventsResponse{SessionID: id, Events: events, Summary: summary})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Telemetry.UserStats(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
