package matchmaking

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/jcai27/Chessica/internal/apperr"
	"github.com/jcai27/Chessica/internal/session"
)

// SessionCreator seats a matched pair. Satisfied by session.Service.
type SessionCreator interface {
	CreateMultiplayer(ctx context.Context, p session.MultiplayerCreateParams) (*session.Record, error)
}

// QueueStatus is the poll/enqueue response.
type QueueStatus struct {
	Status      string `json:"status"` // matched, queued, none
	SessionID   string `json:"session_id,omitempty"`
	PlayerColor string `json:"player_color,omitempty"`
	OpponentID  string `json:"opponent_id,omitempty"`
	Bucket      string `json:"bucket,omitempty"`
}

// Service runs the pairing flow on top of a queue store.
type Service struct {
	store    Store
	sessions SessionCreator
	logger   *slog.Logger
	coinFlip func() bool
}

// NewService wires matchmaking.
func NewService(store Store, sessions SessionCreator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		sessions: sessions,
		logger:   logger,
		coinFlip: func() bool { return rand.Intn(2) == 0 },
	}
}

// Bucket keys the queue by time control.
func Bucket(tc session.TimeControl) string {
	return fmt.Sprintf("%d:%d", tc.InitialMs, tc.IncrementMs)
}

func normalizeColor(color string) (string, error) {
	switch color {
	case "", "auto":
		return "auto", nil
	case "white", "black":
		return color, nil
	default:
		return "", apperr.Newf(apperr.IllegalMove, "unknown color preference %q", color)
	}
}

// Enqueue either pairs the player immediately with a compatible waiter
// or parks them in the bucket queue. On a match the requester gets the
// matched status back synchronously; the waiting opponent's
// notification is stored for their next poll.
func (s *Service) Enqueue(ctx context.Context, playerID string, tc session.TimeControl, color string) (*QueueStatus, error) {
	color, err := normalizeColor(color)
	if err != nil {
		return nil, err
	}
	if tc.InitialMs <= 0 {
		return nil, apperr.New(apperr.IllegalMove, "time control initial_ms must be positive")
	}
	requester := Entry{PlayerID: playerID, Bucket: Bucket(tc), Color: color, TimeControl: tc}

	opponent, err := s.store.PairAndPop(ctx, requester)
	if err != nil {
		return nil, err
	}
	if opponent == nil {
		if err := s.store.Push(ctx, requester); err != nil {
			return nil, err
		}
		return &QueueStatus{Status: "queued", Bucket: requester.Bucket}, nil
	}

	requesterColor := s.assignColor(requester.Color, opponent.Color)
	whiteID, blackID := playerID, opponent.PlayerID
	if requesterColor == "black" {
		whiteID, blackID = opponent.PlayerID, playerID
	}

	rec, err := s.sessions.CreateMultiplayer(ctx, session.MultiplayerCreateParams{
		PlayerWhiteID: whiteID,
		PlayerBlackID: blackID,
		TimeControl:   tc,
	})
	if err != nil {
		// Put the opponent back so a transient failure does not
		// silently drop them from the pool.
		if pushErr := s.store.Push(ctx, *opponent); pushErr != nil {
			s.logger.Error("failed to requeue opponent", "player_id", opponent.PlayerID, "error", pushErr)
		}
		return nil, err
	}

	opponentColor := "white"
	if requesterColor == "white" {
		opponentColor = "black"
	}
	notice := Notification{
		Status:      "matched",
		SessionID:   rec.SessionID,
		PlayerColor: opponentColor,
		OpponentID:  playerID,
	}
	if err := s.store.PutNotification(ctx, opponent.PlayerID, notice); err != nil {
		s.logger.Error("failed to store match notification", "player_id", opponent.PlayerID, "error", err)
	}

	s.logger.Info("matched players",
		"session_id", rec.SessionID, "white", whiteID, "black", blackID, "bucket", requester.Bucket)
	return &QueueStatus{
		Status:      "matched",
		SessionID:   rec.SessionID,
		PlayerColor: requesterColor,
		OpponentID:  opponent.PlayerID,
	}, nil
}

// assignColor resolves the requester's side. A specific preference on
// either side is honored; two autos flip a coin. Incompatible specific
// pairs never reach here.
func (s *Service) assignColor(requesterColor, opponentColor string) string {
	switch {
	case requesterColor == "white" || opponentColor == "black":
		return "white"
	case requesterColor == "black" || opponentColor == "white":
		return "black"
	case s.coinFlip():
		return "white"
	default:
		return "black"
	}
}

// Dequeue removes the player from the pool and drops any undelivered
// notification.
func (s *Service) Dequeue(ctx context.Context, playerID string) error {
	return s.store.Remove(ctx, playerID)
}

// Status reports the player's queue state, consuming a pending match
// notification if one exists.
func (s *Service) Status(ctx context.Context, playerID string) (*QueueStatus, error) {
	if n, ok, err := s.store.TakeNotification(ctx, playerID); err != nil {
		return nil, err
	} else if ok {
		return &QueueStatus{
			Status:      n.Status,
			SessionID:   n.SessionID,
			PlayerColor: n.PlayerColor,
			OpponentID:  n.OpponentID,
		}, nil
	}

	queued, err := s.store.IsQueued(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if queued {
		return &QueueStatus{Status: "queued"}, nil
	}
	return &QueueStatus{Status: "none"}, nil
}
