package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jcai27/Chessica/internal/stream"
)

// handleStream upgrades the connection and subscribes it to the
// session's event feed. Unknown sessions get the dedicated close code
// instead of an HTTP error, since the upgrade has already happened.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}

	if _, err := s.deps.Sessions.Get(r.Context(), sessionID); err != nil {
		stream.RejectUnknownSession(conn, sessionID)
		return
	}

	sink := stream.NewWSSink(conn)
	s.deps.Hub.Subscribe(sessionID, sink)
	if s.deps.Metrics != nil {
		s.deps.Metrics.StreamOpened()
	}
	s.logger.Info("stream subscribed", "session_id", sessionID)

	go func() {
		sink.ReadUntilClose()
		s.deps.Hub.Unsubscribe(sessionID, sink)
		if s.deps.Metrics != nil {
			s.deps.Metrics.StreamClosed()
		}
		s.logger.Info("stream closed", "session_id", sessionID)
	}()
}
