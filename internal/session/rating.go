package session

import "math"

const (
	ratingK       = 32
	defaultRating = 1200
)

// expectedScore is the standard Elo expectation for the player against
// the opponent rating.
func expectedScore(player, opponent int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponent-player)/400))
}

// ratingDelta computes the fixed-K Elo adjustment for an achieved score
// (1 win, 0.5 draw, 0 loss).
func ratingDelta(player, opponent int, score float64) int {
	return int(math.Round(ratingK * (score - expectedScore(player, opponent))))
}

// applyRating adjusts the player's rating exactly once per session, at
// the transition to completed.
func applyRating(rec *Record, score float64) {
	if rec.RatingApplied || rec.IsMultiplayer {
		return
	}
	if rec.PlayerRating == 0 {
		rec.PlayerRating = defaultRating
	}
	rec.PlayerRatingDelta = ratingDelta(rec.PlayerRating, rec.EngineRating, score)
	rec.PlayerRating += rec.PlayerRatingDelta
	rec.RatingApplied = true
}

// scoreForWinner maps a winner tag to the player's achieved score.
func scoreForWinner(rec *Record, winner string) float64 {
	switch winner {
	case "player":
		return 1
	case "draw":
		return 0.5
	case rec.PlayerColor:
		return 1
	default:
		return 0
	}
}
