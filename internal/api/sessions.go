package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jcai27/Chessica/internal/insight"
	"github.com/jcai27/Chessica/internal/opening"
	"github.com/jcai27/Chessica/internal/session"
)

// sessionDetail is the GET response: the record plus derived fields the
// client renders directly.
type sessionDetail struct {
	*session.Record
	Opening *opening.Opening     `json:"opening,omitempty"`
	History []insight.Annotation `json:"history"`
}

func newSessionDetail(rec *session.Record) sessionDetail {
	history := rec.History()
	if history == nil {
		history = []insight.Annotation{}
	}
	return sessionDetail{
		Record:  rec,
		Opening: opening.Detect(rec.Moves()),
		History: history,
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var params session.CreateParams
	if !decodeBody(w, r, &params) {
		return
	}
	rec, err := s.deps.Sessions.Create(r.Context(), params)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionDetail(rec))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionDetail(rec))
}

func (s *Server) handleSubmitMove(w http.ResponseWriter, r *http.Request) {
	var req session.MoveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Sessions.SubmitMove(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResign(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Sessions.Resign(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionDetail(rec))
}

func (s *Server) handleCoach(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Sessions.Coach(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	replay, err := s.deps.Sessions.GetReplay(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, replay)
}

func (s *Server) handlePGN(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.deps.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	pgn, err := session.ExportPGN(rec)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-chess-pgn")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.pgn"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(pgn))
}
