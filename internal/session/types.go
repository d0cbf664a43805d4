// Package session owns the game session domain: records, difficulty
// resolution, the move state machine, multiplayer play, ratings, and
// PGN export.
package session

import (
	"strings"
	"time"

	"github.com/notnil/chess"

	"github.com/jcai27/Chessica/internal/insight"
)

// Session status values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusAbandoned = "abandoned"
)

// Result values for completed games.
const (
	ResultCheckmate = "checkmate"
	ResultStalemate = "stalemate"
	ResultResigned  = "resigned"
	ResultDraw      = "draw"
	ResultAbandoned = "abandoned"
)

// TimeControl is the requested clock allotment.
type TimeControl struct {
	InitialMs   int `json:"initial_ms"`
	IncrementMs int `json:"increment_ms"`
}

// ClockState is the remaining time for the two sides. In single-player
// games player/engine are literal; in multiplayer games player_ms is
// white's clock and engine_ms is black's.
type ClockState struct {
	PlayerMs int `json:"player_ms"`
	EngineMs int `json:"engine_ms"`
}

// OpponentStyle is the style vector of the modeled opponent.
type OpponentStyle struct {
	Tactical float64 `json:"tactical"`
	Risk     float64 `json:"risk"`
}

// OpponentProfile captures what the engine believes about the player.
type OpponentProfile struct {
	Style     OpponentStyle      `json:"style"`
	MotifRisk map[string]float64 `json:"motif_risk"`
}

// Explanation justifies an engine move choice.
type Explanation struct {
	Summary         string `json:"summary"`
	ObjectiveCostCp int    `json:"objective_cost_cp"`
	AltBestMove     string `json:"alt_best_move"`
	AltEvalCp       int    `json:"alt_eval_cp"`
}

// GameState is the board snapshot clients render from.
type GameState struct {
	FEN        string `json:"fen"`
	MoveNumber int    `json:"move_number"`
	Turn       string `json:"turn"`
}

// Record is the full persistent state of one session.
type Record struct {
	SessionID    string `json:"session_id"`
	PlayerColor  string `json:"player_color"`
	EngineColor  string `json:"engine_color"`
	ExploitMode  string `json:"exploit_mode"`
	Difficulty   string `json:"difficulty"`
	EngineDepth  int    `json:"engine_depth"`
	EngineRating int    `json:"engine_rating"`

	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Winner string `json:"winner,omitempty"`

	FEN         string               `json:"fen"`
	InitialFEN  string               `json:"initial_fen"`
	TimeControl TimeControl          `json:"time_control"`
	Clocks      ClockState           `json:"clocks"`
	MoveLog     []insight.Annotation `json:"move_log"`
	LastEvalCp  int                  `json:"last_eval_cp"`

	OpponentProfile OpponentProfile `json:"opponent_profile"`

	PlayerID          string `json:"player_id,omitempty"`
	PlayerRating      int    `json:"player_rating"`
	PlayerRatingDelta int    `json:"player_rating_delta"`
	RatingApplied     bool   `json:"rating_applied"`

	IsMultiplayer bool   `json:"is_multiplayer"`
	PlayerWhiteID string `json:"player_white_id,omitempty"`
	PlayerBlackID string `json:"player_black_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Moves returns the bare UCI list in play order.
func (r *Record) Moves() []string {
	out := make([]string, len(r.MoveLog))
	for i, a := range r.MoveLog {
		out[i] = a.UCI
	}
	return out
}

// NextPly is the 1-based ply number the next move will get.
func (r *Record) NextPly() int { return len(r.MoveLog) + 1 }

// History returns the annotated entries that carry a verdict.
func (r *Record) History() []insight.Annotation {
	var out []insight.Annotation
	for _, a := range r.MoveLog {
		if a.Verdict != "" {
			out = append(out, a)
		}
	}
	return out
}

// LastPlayerCommentary is the commentary of the most recent player ply.
func (r *Record) LastPlayerCommentary() string {
	for i := len(r.MoveLog) - 1; i >= 0; i-- {
		if r.MoveLog[i].Side == "player" {
			return r.MoveLog[i].Commentary
		}
	}
	return ""
}

// DefaultOpponentProfile seeds a fresh session.
func DefaultOpponentProfile() OpponentProfile {
	return OpponentProfile{
		Style:     OpponentStyle{Tactical: 0.5, Risk: 0.5},
		MotifRisk: map[string]float64{"forks": 0.4, "back_rank": 0.3},
	}
}

func colorName(c chess.Color) string {
	if c == chess.White {
		return "white"
	}
	return "black"
}

func colorFromName(name string) chess.Color {
	if strings.EqualFold(name, "white") {
		return chess.White
	}
	return chess.Black
}

func oppositeName(name string) string {
	if name == "white" {
		return "black"
	}
	return "white"
}
