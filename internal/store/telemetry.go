package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jcai27/Chessica/internal/apperr"
)

// Event is one row of the durable per-session event log.
type Event struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventSummary aggregates a session's event log.
type EventSummary struct {
	TotalEvents  int            `json:"total_events"`
	CountsByType map[string]int `json:"counts_by_type"`
	LastEventAt  *time.Time     `json:"last_event_at,omitempty"`
}

// TelemetryStore appends and queries engine_events.
type TelemetryStore struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
	now    func() time.Time
}

// NewTelemetryStore wires the event log.
func NewTelemetryStore(db *sql.DB, driver string, logger *slog.Logger) *TelemetryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelemetryStore{db: db, driver: driver, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Record appends one event. Failures are logged, never propagated: the
// event log must not take down the move path.
func (t *TelemetryStore) Record(ctx context.Context, sessionID, eventType string, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.logger.Warn("telemetry encode failed", "session_id", sessionID, "event_type", eventType, "error", err)
		return
	}
	query := rebind(t.driver,
		`INSERT INTO engine_events (session_id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := t.db.ExecContext(ctx, query, sessionID, eventType, encoded, t.now()); err != nil {
		t.logger.Warn("telemetry write failed", "session_id", sessionID, "event_type", eventType, "error", err)
	}
}

// ListBySession returns the session's events in chronological order
// plus the aggregate summary.
func (t *TelemetryStore) ListBySession(ctx context.Context, sessionID string) ([]Event, EventSummary, error) {
	query := rebind(t.driver, `SELECT id, session_id, event_type, payload, created_at
		FROM engine_events WHERE session_id = ? ORDER BY created_at ASC, id ASC`)
	rows, err := t.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, EventSummary{}, apperr.Wrap(apperr.Persistence, "list events", err)
	}
	defer rows.Close()

	var events []Event
	counts := make(map[string]int)
	for rows.Next() {
		var (
			ev      Event
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
			return nil, EventSummary{}, apperr.Wrap(apperr.Persistence, "scan event", err)
		}
		ev.Payload = json.RawMessage(payload)
		events = append(events, ev)
		counts[ev.EventType]++
	}
	if err := rows.Err(); err != nil {
		return nil, EventSummary{}, apperr.Wrap(apperr.Persistence, "list events", err)
	}

	summary := EventSummary{TotalEvents: len(events), CountsByType: counts}
	if len(events) > 0 {
		last := events[len(events)-1].CreatedAt
		summary.LastEventAt = &last
	}
	return events, summary, nil
}

// UserStats aggregates completed single-player results for one user.
type UserStats struct {
	TotalGames    int      `json:"total_games"`
	Wins          int      `json:"wins"`
	Losses        int      `json:"losses"`
	Draws         int      `json:"draws"`
	WinRate       float64  `json:"win_rate"`
	RecentResults []string `json:"recent_results"`
}

// UserStats tallies the user's sessions: wins, losses, draws, and the
// last ten outcomes newest first.
func (t *TelemetryStore) UserStats(ctx context.Context, userID string) (UserStats, error) {
	query := rebind(t.driver,
		`SELECT winner FROM sessions WHERE player_id = ? ORDER BY created_at DESC`)
	rows, err := t.db.QueryContext(ctx, query, userID)
	if err != nil {
		return UserStats{}, apperr.Wrap(apperr.Persistence, "user stats", err)
	}
	defer rows.Close()

	var stats UserStats
	for rows.Next() {
		var winner sql.NullString
		if err := rows.Scan(&winner); err != nil {
			return UserStats{}, apperr.Wrap(apperr.Persistence, "user stats", err)
		}
		stats.TotalGames++
		switch winner.String {
		case "player":
			stats.Wins++
		case "engine":
			stats.Losses++
		default:
			stats.Draws++
		}
		if len(stats.RecentResults) < 10 {
			stats.RecentResults = append(stats.RecentResults, winner.String)
		}
	}
	if err := rows.Err(); err != nil {
		return UserStats{}, apperr.Wrap(apperr.Persistence, "user stats", err)
	}
	if stats.TotalGames > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.TotalGames)
	}
	return stats, nil
}
