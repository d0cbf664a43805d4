package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jcai27/Chessica/internal/apperr"
	"github.com/jcai27/Chessica/internal/insight"
	"github.com/jcai27/Chessica/internal/session"
)

// SessionStore is the SQL-backed session repository with a write-through
// cache.
type SessionStore struct {
	db     *sql.DB
	driver string
	cache  Cache
	logger *slog.Logger
}

// NewSessionStore wires the repository. cache may be nil.
func NewSessionStore(db *sql.DB, driver string, cache Cache, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{db: db, driver: driver, cache: cache, logger: logger}
}

const sessionColumnsList = `session_id, player_color, engine_color, exploit_mode, difficulty,
	engine_depth, engine_rating, status, result, winner, fen, initial_fen,
	tc_initial_ms, tc_increment_ms, clock_player_ms, clock_engine_ms,
	moves, opponent_profile, last_eval_cp, player_id, player_rating,
	player_rating_delta, rating_applied, is_multiplayer, player_white_id,
	player_black_id, created_at, updated_at`

// Create inserts a new record and primes the cache.
func (s *SessionStore) Create(ctx context.Context, rec *session.Record) error {
	moves, profile, err := encodeJSONFields(rec)
	if err != nil {
		return err
	}
	query := rebind(s.driver, `INSERT INTO sessions (`+sessionColumnsList+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		rec.SessionID, rec.PlayerColor, rec.EngineColor, rec.ExploitMode, rec.Difficulty,
		rec.EngineDepth, rec.EngineRating, rec.Status, nullable(rec.Result), nullable(rec.Winner),
		rec.FEN, rec.InitialFEN,
		rec.TimeControl.InitialMs, rec.TimeControl.IncrementMs,
		rec.Clocks.PlayerMs, rec.Clocks.EngineMs,
		moves, profile, rec.LastEvalCp, nullable(rec.PlayerID), rec.PlayerRating,
		rec.PlayerRatingDelta, boolToInt(rec.RatingApplied), boolToInt(rec.IsMultiplayer),
		nullable(rec.PlayerWhiteID), nullable(rec.PlayerBlackID),
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "insert session", err)
	}
	s.cacheSet(ctx, rec)
	return nil
}

// Get loads a record, cache first.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*session.Record, error) {
	if s.cache != nil {
		if payload, ok := s.cache.Get(ctx, sessionID); ok {
			var rec session.Record
			if err := json.Unmarshal(payload, &rec); err == nil {
				return &rec, nil
			}
			s.cache.Invalidate(ctx, sessionID)
		}
	}

	query := rebind(s.driver, `SELECT `+sessionColumnsList+` FROM sessions WHERE session_id = ?`)
	rec, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Newf(apperr.NotFound, "session %s not found", sessionID)
		}
		return nil, apperr.Wrap(apperr.Persistence, "load session", err)
	}
	s.cacheSet(ctx, rec)
	return rec, nil
}

// Save updates a record in place and refreshes the cache.
func (s *SessionStore) Save(ctx context.Context, rec *session.Record) error {
	moves, profile, err := encodeJSONFields(rec)
	if err != nil {
		return err
	}
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	query := rebind(s.driver, `UPDATE sessions SET
		status = ?, result = ?, winner = ?, fen = ?,
		clock_player_ms = ?, clock_engine_ms = ?,
		moves = ?, opponent_profile = ?, last_eval_cp = ?,
		engine_depth = ?, engine_rating = ?, difficulty = ?,
		player_rating = ?, player_rating_delta = ?, rating_applied = ?,
		updated_at = ?
		WHERE session_id = ?`)
	res, err := s.db.ExecContext(ctx, query,
		rec.Status, nullable(rec.Result), nullable(rec.Winner), rec.FEN,
		rec.Clocks.PlayerMs, rec.Clocks.EngineMs,
		moves, profile, rec.LastEvalCp,
		rec.EngineDepth, rec.EngineRating, rec.Difficulty,
		rec.PlayerRating, rec.PlayerRatingDelta, boolToInt(rec.RatingApplied),
		rec.UpdatedAt, rec.SessionID)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "update session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "session %s not found", rec.SessionID)
	}
	s.cacheSet(ctx, rec)
	return nil
}

func (s *SessionStore) cacheSet(ctx context.Context, rec *session.Record) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn("cache encode failed", "session_id", rec.SessionID, "error", err)
		return
	}
	s.cache.Set(ctx, rec.SessionID, payload)
}

func encodeJSONFields(rec *session.Record) (moves, profile []byte, err error) {
	log := rec.MoveLog
	if log == nil {
		log = []insight.Annotation{}
	}
	moves, err = json.Marshal(log)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Persistence, "encode move log", err)
	}
	profile, err = json.Marshal(rec.OpponentProfile)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Persistence, "encode opponent profile", err)
	}
	return moves, profile, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Record, error) {
	var (
		rec              session.Record
		result, winner   sql.NullString
		playerID         sql.NullString
		whiteID, blackID sql.NullString
		moves, profile   []byte
		ratingApplied    int
		isMultiplayer    int
	)
	err := row.Scan(
		&rec.SessionID, &rec.PlayerColor, &rec.EngineColor, &rec.ExploitMode, &rec.Difficulty,
		&rec.EngineDepth, &rec.EngineRating, &rec.Status, &result, &winner, &rec.FEN, &rec.InitialFEN,
		&rec.TimeControl.InitialMs, &rec.TimeControl.IncrementMs,
		&rec.Clocks.PlayerMs, &rec.Clocks.EngineMs,
		&moves, &profile, &rec.LastEvalCp, &playerID, &rec.PlayerRating,
		&rec.PlayerRatingDelta, &ratingApplied, &isMultiplayer, &whiteID, &blackID,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rec.Result = result.String
	rec.Winner = winner.String
	rec.PlayerID = playerID.String
	rec.PlayerWhiteID = whiteID.String
	rec.PlayerBlackID = blackID.String
	rec.RatingApplied = ratingApplied != 0
	rec.IsMultiplayer = isMultiplayer != 0

	if len(moves) > 0 {
		if err := json.Unmarshal(moves, &rec.MoveLog); err != nil {
			return nil, err
		}
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &rec.OpponentProfile); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
