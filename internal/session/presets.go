package session

import (
	"github.com/jcai27/Chessica/internal/engine"
)

// CreateParams is the session create request after transport decoding.
type CreateParams struct {
	Variant      string      `json:"variant"`
	TimeControl  TimeControl `json:"time_control"`
	Color        string      `json:"color"`        // white, black, auto
	ExploitMode  string      `json:"exploit_mode"` // auto, on, off
	EngineDepth  int         `json:"engine_depth,omitempty"`
	Difficulty   string      `json:"difficulty,omitempty"`
	EngineRating int         `json:"engine_rating,omitempty"`
	PlayerID     string      `json:"player_id,omitempty"`
}

func depthToRating(depth int) int {
	for _, name := range engine.Difficulties() {
		p := engine.ProfileFor(name, 0)
		if name != "custom" && p.Depth == depth {
			return p.Rating
		}
	}
	return 600 + depth*400
}

// resolveEngineSettings picks (depth, rating, difficulty) with the
// precedence: explicit difficulty, then target rating, then depth, then
// the configured default depth. The rating is clamped to the analyzer's
// supported band afterwards.
func resolveEngineSettings(p CreateParams, defaultDepth int) (depth, rating int, difficulty string) {
	switch {
	case p.Difficulty != "" && engine.KnownDifficulty(p.Difficulty):
		prof := engine.ProfileFor(p.Difficulty, 0)
		depth, rating, difficulty = prof.Depth, prof.Rating, p.Difficulty
	case p.EngineRating > 0:
		difficulty = engine.NearestDifficulty(p.EngineRating)
		depth = engine.ProfileFor(difficulty, 0).Depth
		rating = p.EngineRating
	case p.EngineDepth > 0:
		depth = p.EngineDepth
		rating = depthToRating(depth)
		difficulty = engine.DifficultyForDepth(depth)
		if engine.ProfileFor(difficulty, 0).Depth != depth {
			difficulty = "custom"
		}
	default:
		difficulty = engine.DifficultyForDepth(defaultDepth)
		prof := engine.ProfileFor(difficulty, 0)
		depth, rating = prof.Depth, prof.Rating
	}

	if rating < engine.MinElo {
		rating = engine.MinElo
	}
	if rating > engine.MaxElo {
		rating = engine.MaxElo
	}
	return depth, rating, difficulty
}

// resolveColors maps the requested color to (player, engine). "auto"
// seats the player as white.
func resolveColors(requested string) (player, engineColor string) {
	if requested != "black" {
		requested = "white"
	}
	return requested, oppositeName(requested)
}
