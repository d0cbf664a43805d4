package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jcai27/Chessica/internal/apperr"
	"github.com/jcai27/Chessica/internal/session"
)

func (s *Server) handleCreateMultiplayer(w http.ResponseWriter, r *http.Request) {
	var params session.MultiplayerCreateParams
	if !decodeBody(w, r, &params) {
		return
	}
	rec, err := s.deps.Sessions.CreateMultiplayer(r.Context(), params)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionDetail(rec))
}

func (s *Server) handleMultiplayerMove(w http.ResponseWriter, r *http.Request) {
	var req session.MoveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Sessions.MultiplayerMove(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type multiplayerActionRequest struct {
	PlayerID string `json:"player_id"`
}

func (s *Server) multiplayerAction(w http.ResponseWriter, r *http.Request,
	action func(sessionID, playerID string) (*session.Record, error)) {
	var req multiplayerActionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := action(mux.Vars(r)["id"], req.PlayerID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionDetail(rec))
}

func (s *Server) handleMultiplayerResign(w http.ResponseWriter, r *http.Request) {
	s.multiplayerAction(w, r, func(id, playerID string) (*session.Record, error) {
		return s.deps.Sessions.MultiplayerResign(r.Context(), id, playerID)
	})
}

func (s *Server) handleMultiplayerDraw(w http.ResponseWriter, r *http.Request) {
	s.multiplayerAction(w, r, func(id, playerID string) (*session.Record, error) {
		return s.deps.Sessions.MultiplayerDraw(r.Context(), id, playerID)
	})
}

func (s *Server) handleMultiplayerAbort(w http.ResponseWriter, r *http.Request) {
	s.multiplayerAction(w, r, func(id, playerID string) (*session.Record, error) {
		return s.deps.Sessions.MultiplayerAbort(r.Context(), id, playerID)
	})
}

type enqueueRequest struct {
	PlayerID    string              `json:"player_id"`
	TimeControl session.TimeControl `json:"time_control"`
	Color       string              `json:"color"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Matchmaking == nil {
		writeError(w, s.logger, apperr.New(apperr.FeatureDisabled, "matchmaking is not configured"))
		return
	}
	var req enqueueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PlayerID == "" {
		writeError(w, s.logger, apperr.New(apperr.IllegalMove, "player_id is required"))
		return
	}
	status, err := s.deps.Matchmaking.Enqueue(r.Context(), req.PlayerID, req.TimeControl, req.Color)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Matchmaking == nil {
		writeError(w, s.logger, apperr.New(apperr.FeatureDisabled, "matchmaking is not configured"))
		return
	}
	status, err := s.deps.Matchmaking.Status(r.Context(), mux.Vars(r)["player_id"])
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDequeue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Matchmaking == nil {
		writeError(w, s.logger, apperr.New(apperr.FeatureDisabled, "matchmaking is not configured"))
		return
	}
	if err := s.deps.Matchmaking.Dequeue(r.Context(), mux.Vars(r)["player_id"]); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
