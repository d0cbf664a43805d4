package session

import (
	"context"

	"github.com/jcai27/Chessica/internal/apperr"
	"github.com/jcai27/Chessica/internal/board"
	"github.com/jcai27/Chessica/internal/engine"
	"github.com/jcai27/Chessica/internal/insight"
)

// MultiplayerCreateParams seats two humans in one session.
type MultiplayerCreateParams struct {
	PlayerWhiteID string      `json:"player_white_id"`
	PlayerBlackID string      `json:"player_black_id"`
	TimeControl   TimeControl `json:"time_control"`
}

// CreateMultiplayer starts a human-vs-human session. Clocks map
// player_ms to white and engine_ms to black.
func (s *Service) CreateMultiplayer(ctx context.Context, p MultiplayerCreateParams) (*Record, error) {
	now := s.now()
	rec := &Record{
		SessionID:       newSessionID(),
		PlayerColor:     "white",
		EngineColor:     "black",
		ExploitMode:     "off",
		Difficulty:      "custom",
		Status:          StatusActive,
		FEN:             board.StartingFEN,
		InitialFEN:      board.StartingFEN,
		TimeControl:     p.TimeControl,
		Clocks:          ClockState{PlayerMs: p.TimeControl.InitialMs, EngineMs: p.TimeControl.InitialMs},
		OpponentProfile: DefaultOpponentProfile(),
		IsMultiplayer:   true,
		PlayerWhiteID:   p.PlayerWhiteID,
		PlayerBlackID:   p.PlayerBlackID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.logEvent(ctx, rec.SessionID, "session_created", map[string]any{
		"multiplayer":     true,
		"player_white_id": p.PlayerWhiteID,
		"player_black_id": p.PlayerBlackID,
	})
	return rec, nil
}

// MultiplayerMoveResult is the response for a human move.
type MultiplayerMoveResult struct {
	MoveUCI       string              `json:"move_uci"`
	EvalCp        int                 `json:"eval_cp"`
	GameState     GameState           `json:"game_state"`
	LatestInsight *insight.Annotation `json:"latest_insight,omitempty"`
	Clocks        ClockState          `json:"clocks"`
	Result        string              `json:"result,omitempty"`
	Winner        string              `json:"winner,omitempty"`
	Message       string              `json:"message,omitempty"`
}

// MultiplayerMove applies one human move: turn ownership is enforced by
// player id, the mover's clock pays for the wall time since the last
// update, and the eval comes from a fast material count instead of the
// analyzer.
func (s *Service) MultiplayerMove(ctx context.Context, sessionID string, req MoveRequest) (*MultiplayerMoveResult, error) {
	rec, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !rec.IsMultiplayer {
		return nil, apperr.New(apperr.WrongTurn, "session is not multiplayer")
	}
	if rec.Status != StatusActive {
		return nil, apperr.New(apperr.GameOver, "session is already over")
	}

	b, err := board.FromFEN(rec.FEN)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "stored position is corrupt", err)
	}

	moverColor := b.ActiveColor()
	expected := rec.PlayerWhiteID
	if moverColor == "black" {
		expected = rec.PlayerBlackID
	}
	if expected != "" && req.PlayerID != expected {
		return nil, apperr.New(apperr.Forbidden, "it is not your turn")
	}

	if err := validatePromotion(req.UCI); err != nil {
		return nil, err
	}
	if !b.IsLegal(req.UCI) {
		return nil, apperr.Newf(apperr.IllegalMove, "illegal move %q", req.UCI)
	}

	before := b.Copy()
	if err := b.ApplyUCI(req.UCI); err != nil {
		return nil, apperr.Wrap(apperr.IllegalMove, "apply move", err)
	}

	now := s.now()
	elapsedMs := 0
	if !rec.UpdatedAt.IsZero() && now.After(rec.UpdatedAt) {
		elapsedMs = int(now.Sub(rec.UpdatedAt).Milliseconds())
	}
	rec.Clocks = deductClock(rec.Clocks, moverColor, elapsedMs, rec.TimeControl.IncrementMs)

	var evalCp int
	switch {
	case b.IsCheckmate():
		evalCp = terminalEval(b, colorFromName(moverColor))
	case b.IsStalemate():
		evalCp = 0
	default:
		evalCp = engine.MaterialEval(b)
	}

	ann := insight.Build(insight.Input{
		Before:     before,
		After:      b,
		UCI:        req.UCI,
		MoverColor: colorFromName(moverColor),
		Side:       "player",
		PrevEvalCp: rec.LastEvalCp,
		NewEvalCp:  evalCp,
		Ply:        rec.NextPly(),
	})
	rec.MoveLog = append(rec.MoveLog, ann)
	rec.LastEvalCp = evalCp
	rec.FEN = b.FEN()
	rec.UpdatedAt = now

	var result, winner, message string
	switch {
	case b.IsCheckmate():
		result = ResultCheckmate
		winner = moverColor
		message = "Checkmate."
	case b.IsStalemate():
		result, winner, message = ResultStalemate, "draw", "Game drawn by stalemate."
	case b.InsufficientMaterial():
		result, winner, message = ResultDraw, "draw", "Game drawn by insufficient material."
	}
	if result != "" {
		rec.Status = StatusCompleted
		rec.Result = result
		rec.Winner = winner
		if s.limiter != nil {
			s.limiter.Forget(rec.SessionID)
		}
	}

	if err := s.repo.Save(ctx, rec); err != nil {
		return nil, err
	}

	state := gameState(b)
	payload := map[string]any{
		"uci":            req.UCI,
		"game_state":     state,
		"eval_cp":        evalCp,
		"latest_insight": ann,
		"result":         result,
		"winner":         winner,
		"message":        message,
		"player":         req.PlayerID,
		"clocks":         rec.Clocks,
	}
	s.publish(sessionID, "player_move", payload)
	s.logEvent(ctx, sessionID, "player_move", payload)
	if result != "" {
		s.broadcastGameOver(ctx, rec, state, message)
	}

	return &MultiplayerMoveResult{
		MoveUCI:       req.UCI,
		EvalCp:        evalCp,
		GameState:     state,
		LatestInsight: &rec.MoveLog[len(rec.MoveLog)-1],
		Clocks:        rec.Clocks,
		Result:        result,
		Winner:        winner,
		Message:       message,
	}, nil
}

// MultiplayerResign ends the game in favor of the resigner's opponent.
func (s *Service) MultiplayerResign(ctx context.Context, sessionID, playerID string) (*Record, error) {
	return s.endMultiplayer(ctx, sessionID, playerID, func(rec *Record, color string) {
		rec.Result = ResultResigned
		rec.Winner = oppositeName(color)
		rec.Status = StatusCompleted
	}, "session_resigned")
}

// MultiplayerDraw completes the game as an agreed draw.
func (s *Service) MultiplayerDraw(ctx context.Context, sessionID, playerID string) (*Record, error) {
	return s.endMultiplayer(ctx, sessionID, playerID, func(rec *Record, _ string) {
		rec.Result = ResultDraw
		rec.Winner = "draw"
		rec.Status = StatusCompleted
	}, "session_draw")
}

// MultiplayerAbort abandons the game with no winner.
func (s *Service) MultiplayerAbort(ctx context.Context, sessionID, playerID string) (*Record, error) {
	return s.endMultiplayer(ctx, sessionID, playerID, func(rec *Record, _ string) {
		rec.Result = ResultAbandoned
		rec.Winner = ""
		rec.Status = StatusAbandoned
	}, "session_aborted")
}

func (s *Service) endMultiplayer(ctx context.Context, sessionID, playerID string,
	apply func(rec *Record, playerColor string), event string) (*Record, error) {
	rec, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !rec.IsMultiplayer {
		return nil, apperr.New(apperr.WrongTurn, "session is not multiplayer")
	}

	color := ""
	switch playerID {
	case rec.PlayerWhiteID:
		color = "white"
	case rec.PlayerBlackID:
		color = "black"
	default:
		if rec.PlayerWhiteID != "" || rec.PlayerBlackID != "" {
			return nil, apperr.New(apperr.Forbidden, "player is not part of this session")
		}
	}
	if rec.Status != StatusActive {
		return rec, nil
	}

	apply(rec, color)
	rec.UpdatedAt = s.now()
	if s.limiter != nil {
		s.limiter.Forget(rec.SessionID)
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		return nil, err
	}

	if b, berr := board.FromFEN(rec.FEN); berr == nil {
		s.broadcastGameOver(ctx, rec, gameState(b), "Game over.")
	}
	s.logEvent(ctx, sessionID, event, map[string]any{"status": rec.Status, "player": playerID})
	return rec, nil
}

// deductClock charges the mover's clock and then credits the increment.
// In multiplayer clocks, player_ms belongs to white.
func deductClock(c ClockState, moverColor string, elapsedMs, incrementMs int) ClockState {
	if moverColor == "white" {
		c.PlayerMs = maxInt(0, c.PlayerMs-elapsedMs) + incrementMs
	} else {
		c.EngineMs = maxInt(0, c.EngineMs-elapsedMs) + incrementMs
	}
	return c
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
