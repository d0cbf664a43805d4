package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notnil/chess"

	"github.com/jcai27/Chessica/internal/apperr"
	"github.com/jcai27/Chessica/internal/board"
	"github.com/jcai27/Chessica/internal/coach"
	"github.com/jcai27/Chessica/internal/engine"
	"github.com/jcai27/Chessica/internal/insight"
)

// Analyzer is the slice of the UCI gateway the state machine drives.
type Analyzer interface {
	BestMove(ctx context.Context, fen, difficulty string, rating int) (string, int, error)
	Evaluate(ctx context.Context, fen, difficulty string, rating int) (int, error)
	MultiPV(ctx context.Context, fen, difficulty string, rating, k, maxMoves int) ([]engine.Variation, error)
}

// Repository persists session records.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, sessionID string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
}

// EventSink receives broadcast events for a session's subscribers.
type EventSink interface {
	Publish(sessionID, eventType string, payload any)
}

// TelemetryLog appends structured events to the durable event log.
type TelemetryLog interface {
	Record(ctx context.Context, sessionID, eventType string, payload any)
}

// ProfileStore persists a player's opponent model across sessions, so
// the next game against the engine starts from what the last one
// learned.
type ProfileStore interface {
	GetOpponentProfile(ctx context.Context, userID string) (OpponentProfile, error)
	SaveOpponentProfile(ctx context.Context, userID string, p OpponentProfile) error
}

// Service is the session state machine.
type Service struct {
	repo      Repository
	analyzer  Analyzer
	events    EventSink
	telemetry TelemetryLog
	coach     *coach.Service
	limiter   *coach.Limiter
	profiles  ProfileStore
	logger    *slog.Logger

	defaultDepth int
	now          func() time.Time
}

// NewService wires the state machine. events, telemetry, coach,
// limiter, and profiles may be nil; the corresponding steps become
// no-ops.
func NewService(repo Repository, analyzer Analyzer, events EventSink, telemetry TelemetryLog,
	coachSvc *coach.Service, limiter *coach.Limiter, profiles ProfileStore,
	defaultDepth int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultDepth < 1 {
		defaultDepth = 3
	}
	return &Service{
		repo:         repo,
		analyzer:     analyzer,
		events:       events,
		telemetry:    telemetry,
		coach:        coachSvc,
		limiter:      limiter,
		profiles:     profiles,
		logger:       logger,
		defaultDepth: defaultDepth,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// MoveRequest is the decoded move submission.
type MoveRequest struct {
	UCI      string     `json:"uci,omitempty"`
	ClientTS time.Time  `json:"client_ts"`
	Clock    ClockState `json:"clock"`
	PlayerID string     `json:"player_id,omitempty"`
}

// pendingMove holds the player move until the engine has evaluated the
// resulting position.
type pendingMove struct {
	before *board.Board
	uci    string
}

// MoveResult is what a move submission returns.
type MoveResult struct {
	EngineMove        string              `json:"engine_move,omitempty"`
	EngineEvalCp      int                 `json:"engine_eval_cp"`
	ExploitConfidence float64             `json:"exploit_confidence"`
	OpponentProfile   OpponentProfile     `json:"opponent_profile"`
	Explanation       Explanation         `json:"explanation"`
	GameState         GameState           `json:"game_state"`
	LatestInsight     *insight.Annotation `json:"latest_insight,omitempty"`
	Result            string              `json:"result,omitempty"`
	Winner            string              `json:"winner,omitempty"`
	Message           string              `json:"message,omitempty"`
	PlayerRating      int                 `json:"player_rating,omitempty"`
	PlayerRatingDelta int                 `json:"player_rating_delta,omitempty"`
}

// Create starts a new single-player session.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Record, error) {
	playerColor, engineColor := resolveColors(p.Color)
	depth, rating, difficulty := resolveEngineSettings(p, s.defaultDepth)
	if p.ExploitMode == "" {
		p.ExploitMode = "auto"
	}

	profile := DefaultOpponentProfile()
	if s.profiles != nil && p.PlayerID != "" {
		stored, err := s.profiles.GetOpponentProfile(ctx, p.PlayerID)
		if err != nil {
			s.logger.Warn("load opponent profile", "player_id", p.PlayerID, "error", err)
		} else {
			profile = stored
		}
	}

	now := s.now()
	rec := &Record{
		SessionID:       newSessionID(),
		PlayerColor:     playerColor,
		EngineColor:     engineColor,
		ExploitMode:     p.ExploitMode,
		Difficulty:      difficulty,
		EngineDepth:     depth,
		EngineRating:    rating,
		Status:          StatusActive,
		FEN:             board.StartingFEN,
		InitialFEN:      board.StartingFEN,
		TimeControl:     p.TimeControl,
		Clocks:          ClockState{PlayerMs: p.TimeControl.InitialMs, EngineMs: p.TimeControl.InitialMs},
		OpponentProfile: profile,
		PlayerID:        p.PlayerID,
		PlayerRating:    defaultRating,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.logEvent(ctx, rec.SessionID, "session_created", map[string]any{
		"difficulty":    difficulty,
		"engine_rating": rating,
		"player_color":  playerColor,
	})
	return rec, nil
}

// Get loads a session record.
func (s *Service) Get(ctx context.Context, sessionID string) (*Record, error) {
	return s.repo.Get(ctx, sessionID)
}

// SubmitMove runs one turn of the state machine: validate and apply the
// player move when present, then produce the engine reply.
func (s *Service) SubmitMove(ctx context.Context, sessionID string, req MoveRequest) (*MoveResult, error) {
	rec, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.IsMultiplayer {
		return nil, apperr.New(apperr.WrongTurn, "session is multiplayer; use the multiplayer endpoint")
	}
	if rec.Status != StatusActive {
		return nil, apperr.New(apperr.GameOver, "session is already over")
	}

	b, err := board.FromFEN(rec.FEN)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "stored position is corrupt", err)
	}

	var pending *pendingMove
	if req.UCI != "" {
		if b.ActiveColor() != rec.PlayerColor {
			return nil, apperr.New(apperr.WrongTurn, "it is not the player's turn")
		}
		if err := validatePromotion(req.UCI); err != nil {
			return nil, err
		}
		if !b.IsLegal(req.UCI) {
			return nil, apperr.Newf(apperr.IllegalMove, "illegal move %q", req.UCI)
		}

		beforePlayer := b.Copy()
		if err := b.ApplyUCI(req.UCI); err != nil {
			return nil, apperr.Wrap(apperr.IllegalMove, "apply move", err)
		}
		s.logEvent(ctx, sessionID, "player_move", map[string]any{
			"uci":        req.UCI,
			"clocks":     req.Clock,
			"move_index": rec.NextPly(),
		})

		if b.IsTerminal() {
			return s.finishAfterPlayerMove(ctx, rec, beforePlayer, b, req)
		}
		// The player insight needs the engine's evaluation of the
		// resulting position; hold the pre-move board until then.
		pending = &pendingMove{before: beforePlayer, uci: req.UCI}
	}

	if b.ActiveColor() != rec.EngineColor {
		return nil, apperr.New(apperr.EngineNotToMove, "engine is waiting for the player move")
	}

	beforeEngine := b.Copy()
	engineMove, preMoveEval, err := s.analyzer.BestMove(ctx, b.FEN(), rec.Difficulty, rec.EngineRating)
	if err != nil {
		return nil, err
	}

	if pending != nil {
		ann := insight.Build(insight.Input{
			Before:     pending.before,
			After:      beforeEngine,
			UCI:        pending.uci,
			MoverColor: colorFromName(rec.PlayerColor),
			Side:       "player",
			PrevEvalCp: rec.LastEvalCp,
			NewEvalCp:  preMoveEval,
			Ply:        rec.NextPly(),
		})
		rec.MoveLog = append(rec.MoveLog, ann)
		rec.LastEvalCp = preMoveEval
	}

	if err := b.ApplyUCI(engineMove); err != nil {
		return nil, apperr.Wrap(apperr.EngineUnavailable, "analyzer returned unplayable move", err)
	}
	postMoveEval, err := s.analyzer.Evaluate(ctx, b.FEN(), rec.Difficulty, rec.EngineRating)
	if err != nil {
		return nil, err
	}

	engineAnn := insight.Build(insight.Input{
		Before:     beforeEngine,
		After:      b,
		UCI:        engineMove,
		MoverColor: colorFromName(rec.EngineColor),
		Side:       "engine",
		PrevEvalCp: rec.LastEvalCp,
		NewEvalCp:  postMoveEval,
		Ply:        rec.NextPly(),
	})
	rec.MoveLog = append(rec.MoveLog, engineAnn)
	rec.LastEvalCp = postMoveEval

	rec.FEN = b.FEN()
	rec.Clocks = req.Clock
	rec.OpponentProfile = refreshProfile(rec.OpponentProfile)
	rec.UpdatedAt = s.now()

	res := &MoveResult{
		EngineMove:        engineMove,
		EngineEvalCp:      postMoveEval,
		ExploitConfidence: exploitConfidence(),
		OpponentProfile:   rec.OpponentProfile,
		Explanation:       explainEngineMove(engineAnn, preMoveEval, postMoveEval),
		GameState:         gameState(b),
		LatestInsight:     latestPlayerInsight(rec),
	}

	if b.IsTerminal() {
		result, winner, message := determineOutcome(b, rec.PlayerColor)
		s.complete(rec, result, winner)
		res.Result, res.Winner, res.Message = result, winner, message
		res.PlayerRating, res.PlayerRatingDelta = rec.PlayerRating, rec.PlayerRatingDelta
	}

	if err := s.repo.Save(ctx, rec); err != nil {
		return nil, err
	}

	movePayload := map[string]any{
		"uci":                engineMove,
		"engine_eval_cp":     res.EngineEvalCp,
		"exploit_confidence": res.ExploitConfidence,
		"best_line":          []string{engineMove},
		"clocks":             rec.Clocks,
		"game_state":         res.GameState,
		"opponent_profile":   rec.OpponentProfile,
		"explanation":        res.Explanation,
		"result":             res.Result,
		"winner":             res.Winner,
		"difficulty":         rec.Difficulty,
		"engine_depth":       rec.EngineDepth,
		"engine_rating":      rec.EngineRating,
		"history_entry":      engineAnn,
	}
	s.publish(sessionID, "engine_move", movePayload)
	s.logEvent(ctx, sessionID, "engine_move", movePayload)

	if rec.Status == StatusCompleted {
		s.storeProfile(ctx, rec)
		s.broadcastGameOver(ctx, rec, res.GameState, res.Message)
	}
	return res, nil
}

// finishAfterPlayerMove closes out a session the player just ended.
func (s *Service) finishAfterPlayerMove(ctx context.Context, rec *Record, before, after *board.Board, req MoveRequest) (*MoveResult, error) {
	moverColor := colorFromName(rec.PlayerColor)
	eval := terminalEval(after, moverColor)

	ann := insight.Build(insight.Input{
		Before:     before,
		After:      after,
		UCI:        req.UCI,
		MoverColor: moverColor,
		Side:       "player",
		PrevEvalCp: rec.LastEvalCp,
		NewEvalCp:  eval,
		Ply:        rec.NextPly(),
	})
	rec.MoveLog = append(rec.MoveLog, ann)
	rec.LastEvalCp = eval
	rec.FEN = after.FEN()
	rec.Clocks = req.Clock
	rec.UpdatedAt = s.now()

	result, winner, message := determineOutcome(after, rec.PlayerColor)
	s.complete(rec, result, winner)

	if err := s.repo.Save(ctx, rec); err != nil {
		return nil, err
	}
	s.storeProfile(ctx, rec)

	state := gameState(after)
	s.broadcastGameOver(ctx, rec, state, message)

	return &MoveResult{
		EngineEvalCp:      eval,
		OpponentProfile:   rec.OpponentProfile,
		Explanation:       Explanation{Summary: message, AltBestMove: "-"},
		GameState:         state,
		LatestInsight:     &rec.MoveLog[len(rec.MoveLog)-1],
		Result:            result,
		Winner:            winner,
		Message:           message,
		PlayerRating:      rec.PlayerRating,
		PlayerRatingDelta: rec.PlayerRatingDelta,
	}, nil
}

// Resign marks the session completed with the engine as winner.
func (s *Service) Resign(ctx context.Context, sessionID string) (*Record, error) {
	rec, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusActive {
		return rec, nil
	}

	winner := "engine"
	if rec.IsMultiplayer {
		winner = oppositeName(rec.PlayerColor)
	}
	rec.UpdatedAt = s.now()
	s.complete(rec, ResultResigned, winner)
	if err := s.repo.Save(ctx, rec); err != nil {
		return nil, err
	}
	s.storeProfile(ctx, rec)

	b, err := board.FromFEN(rec.FEN)
	if err == nil {
		s.broadcastGameOver(ctx, rec, gameState(b), "Game resigned.")
	}
	s.logEvent(ctx, sessionID, "session_resigned", map[string]any{"status": rec.Status})
	return rec, nil
}

// CoachResult carries the coach text plus the structured sections.
type CoachResult struct {
	SessionID string         `json:"session_id"`
	Summary   string         `json:"summary"`
	Sections  coach.Briefing `json:"sections"`
	EvalCp    int            `json:"eval_cp"`
}

// Coach produces the end-of-position briefing, rate-limited per session.
func (s *Service) Coach(ctx context.Context, sessionID string) (*CoachResult, error) {
	rec, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil && !s.limiter.Allow(sessionID) {
		return nil, apperr.New(apperr.RateLimited, "coach summaries are rate-limited for this session")
	}
	if s.coach == nil {
		return nil, apperr.New(apperr.SummarizerUnavailable, "coach is not configured")
	}

	b, err := board.FromFEN(rec.FEN)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "stored position is corrupt", err)
	}

	var variations []engine.Variation
	if s.analyzer != nil && !b.IsTerminal() {
		variations, err = s.analyzer.MultiPV(ctx, rec.FEN, rec.Difficulty, rec.EngineRating, 3, 6)
		if err != nil {
			s.logger.Warn("multipv unavailable for coach briefing", "session_id", sessionID, "error", err)
			variations = nil
		}
	}

	text, sections := s.coach.Summary(ctx, coach.Input{
		Board:       b,
		EvalCp:      rec.LastEvalCp,
		MoverColor:  b.Turn(),
		EngineColor: colorFromName(rec.EngineColor),
		LastComment: rec.LastPlayerCommentary(),
		Variations:  variations,
	})

	res := &CoachResult{SessionID: sessionID, Summary: text, Sections: sections, EvalCp: rec.LastEvalCp}
	s.publish(sessionID, "coach_update", map[string]any{"summary": text, "eval_cp": rec.LastEvalCp})
	s.logEvent(ctx, sessionID, "coach_update", map[string]any{"eval_cp": rec.LastEvalCp})
	return res, nil
}

// Replay is the structured game history.
type Replay struct {
	SessionID     string               `json:"session_id"`
	InitialFEN    string               `json:"initial_fen"`
	FinalFEN      string               `json:"final_fen"`
	Plies         []insight.Annotation `json:"plies"`
	Result        string               `json:"result,omitempty"`
	Winner        string               `json:"winner,omitempty"`
	VerdictCounts map[string]int       `json:"verdict_counts"`
}

// GetReplay returns the annotated history ordered by ply.
func (s *Service) GetReplay(ctx context.Context, sessionID string) (*Replay, error) {
	rec, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, a := range rec.MoveLog {
		if a.Verdict != "" {
			counts[string(a.Verdict)]++
		}
	}
	return &Replay{
		SessionID:     rec.SessionID,
		InitialFEN:    rec.InitialFEN,
		FinalFEN:      rec.FEN,
		Plies:         rec.History(),
		Result:        rec.Result,
		Winner:        rec.Winner,
		VerdictCounts: counts,
	}, nil
}

// complete transitions the record to completed and applies the rating.
func (s *Service) complete(rec *Record, result, winner string) {
	rec.Status = StatusCompleted
	rec.Result = result
	rec.Winner = winner
	applyRating(rec, scoreForWinner(rec, winner))
	rec.OpponentProfile = profileAfterCompletion(rec.OpponentProfile, rec)
	if s.limiter != nil {
		s.limiter.Forget(rec.SessionID)
	}
}

// storeProfile writes the session's final opponent model back to the
// player's durable profile. Multiplayer games teach nothing about the
// engine matchup and are skipped.
func (s *Service) storeProfile(ctx context.Context, rec *Record) {
	if s.profiles == nil || rec.PlayerID == "" || rec.IsMultiplayer {
		return
	}
	if err := s.profiles.SaveOpponentProfile(ctx, rec.PlayerID, rec.OpponentProfile); err != nil {
		s.logger.Warn("save opponent profile", "session_id", rec.SessionID, "player_id", rec.PlayerID, "error", err)
	}
}

func (s *Service) broadcastGameOver(ctx context.Context, rec *Record, state GameState, message string) {
	payload := map[string]any{
		"result":              rec.Result,
		"winner":              rec.Winner,
		"message":             message,
		"game_state":          state,
		"difficulty":          rec.Difficulty,
		"engine_depth":        rec.EngineDepth,
		"engine_rating":       rec.EngineRating,
		"player_rating":       rec.PlayerRating,
		"player_rating_delta": rec.PlayerRatingDelta,
	}
	s.publish(rec.SessionID, "game_over", payload)
	s.logEvent(ctx, rec.SessionID, "game_over", payload)
}

func (s *Service) publish(sessionID, eventType string, payload any) {
	if s.events != nil {
		s.events.Publish(sessionID, eventType, payload)
	}
}

func (s *Service) logEvent(ctx context.Context, sessionID, eventType string, payload any) {
	if s.telemetry != nil {
		s.telemetry.Record(ctx, sessionID, eventType, payload)
	}
}

// determineOutcome classifies a terminal board from the player's side.
func determineOutcome(b *board.Board, playerColor string) (result, winner, message string) {
	switch {
	case b.IsCheckmate():
		loser := b.ActiveColor()
		if loser == playerColor {
			return ResultCheckmate, "engine", "Engine delivered checkmate."
		}
		return ResultCheckmate, "player", "You delivered checkmate!"
	case b.IsStalemate():
		return ResultStalemate, "draw", "Game drawn by stalemate."
	default:
		return ResultDraw, "draw", "Game drawn by insufficient material."
	}
}

// terminalEval scores a terminal position: mate is ±CheckmateCp for the
// mating side, every draw is 0.
func terminalEval(b *board.Board, mover chess.Color) int {
	if !b.IsCheckmate() {
		return 0
	}
	if mover == chess.White {
		return engine.CheckmateCp
	}
	return -engine.CheckmateCp
}

func gameState(b *board.Board) GameState {
	return GameState{FEN: b.FEN(), MoveNumber: b.FullMoveNumber(), Turn: b.ActiveColor()}
}

func validatePromotion(uci string) error {
	if len(uci) == 5 && !strings.ContainsRune("qrbn", rune(uci[4])) {
		return apperr.Newf(apperr.IllegalMove, "malformed promotion %q", uci)
	}
	if len(uci) != 4 && len(uci) != 5 {
		return apperr.Newf(apperr.IllegalMove, "malformed move %q", uci)
	}
	return nil
}

func latestPlayerInsight(rec *Record) *insight.Annotation {
	for i := len(rec.MoveLog) - 1; i >= 0; i-- {
		if rec.MoveLog[i].Side == "player" {
			return &rec.MoveLog[i]
		}
	}
	if len(rec.MoveLog) > 0 {
		return &rec.MoveLog[len(rec.MoveLog)-1]
	}
	return nil
}

// explainEngineMove derives the move rationale from the engine insight.
func explainEngineMove(ann insight.Annotation, preMoveEval, postMoveEval int) Explanation {
	theme := "positional"
	if len(ann.Themes) > 0 {
		theme = ann.Themes[0]
	}
	cost := preMoveEval - postMoveEval
	if cost < 0 {
		cost = -cost
	}
	return Explanation{
		Summary:         "Steers toward " + theme + " patterns aligned with observed weaknesses.",
		ObjectiveCostCp: cost,
		AltBestMove:     "-",
		AltEvalCp:       preMoveEval,
	}
}

func newSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
