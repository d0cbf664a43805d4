package engine

import "time"

// Profile bundles the analyzer settings for one difficulty tier.
type Profile struct {
	Skill     int
	Rating    int
	ThinkTime time.Duration
	Depth     int
}

var profiles = map[string]Profile{
	"beginner":     {Skill: 1, Rating: 800, ThinkTime: 200 * time.Millisecond, Depth: 1},
	"intermediate": {Skill: 5, Rating: 1200, ThinkTime: 300 * time.Millisecond, Depth: 2},
	"advanced":     {Skill: 10, Rating: 1600, ThinkTime: 400 * time.Millisecond, Depth: 3},
	"expert":       {Skill: 15, Rating: 2000, ThinkTime: 600 * time.Millisecond, Depth: 4},
	"grandmaster":  {Skill: 20, Rating: 2400, ThinkTime: 800 * time.Millisecond, Depth: 5},
	"custom":       {Skill: 15, Rating: 1800, ThinkTime: 500 * time.Millisecond, Depth: 3},
}

// Difficulties lists the known tiers.
func Difficulties() []string {
	return []string{"beginner", "intermediate", "advanced", "expert", "grandmaster", "custom"}
}

// KnownDifficulty reports whether name is a recognized tier.
func KnownDifficulty(name string) bool {
	_, ok := profiles[name]
	return ok
}

// ProfileFor resolves the settings for a difficulty tier. Unknown names
// fall back to the custom tier; a positive rating overrides the tier's
// nominal rating.
func ProfileFor(difficulty string, rating int) Profile {
	p, ok := profiles[difficulty]
	if !ok {
		p = profiles["custom"]
	}
	if rating > 0 {
		p.Rating = rating
	}
	if p.Skill < MinSkill {
		p.Skill = MinSkill
	}
	if p.Skill > MaxSkill {
		p.Skill = MaxSkill
	}
	return p
}

// NearestDifficulty maps a target rating to the tier whose nominal
// rating is closest.
func NearestDifficulty(rating int) string {
	best := "custom"
	bestDist := -1
	for _, name := range Difficulties() {
		if name == "custom" {
			continue
		}
		d := rating - profiles[name].Rating
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = name, d
		}
	}
	return best
}

// DifficultyForDepth maps a search depth to the tier with that depth,
// picking the strongest tier at or below the requested depth.
func DifficultyForDepth(depth int) string {
	best := "beginner"
	for _, name := range Difficulties() {
		if name == "custom" {
			continue
		}
		p := profiles[name]
		if p.Depth <= depth && p.Depth >= profiles[best].Depth {
			best = name
		}
	}
	return best
}
