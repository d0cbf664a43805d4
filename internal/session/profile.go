package session

import (
	"math"
	"math/rand"
)

// refreshProfile nudges the modeled style after each engine move so the
// exploit layer sees a live signal.
func refreshProfile(p OpponentProfile) OpponentProfile {
	out := OpponentProfile{
		Style: OpponentStyle{
			Tactical: jitter(p.Style.Tactical, 0.05),
			Risk:     jitter(p.Style.Risk, 0.05),
		},
		MotifRisk: make(map[string]float64, len(p.MotifRisk)),
	}
	for motif, risk := range p.MotifRisk {
		out.MotifRisk[motif] = jitter(risk, 0.08)
	}
	return out
}

// profileAfterCompletion folds the finished game into the stored model:
// quick losses raise the early-blunder risk, long games read as a more
// patient opponent.
func profileAfterCompletion(p OpponentProfile, rec *Record) OpponentProfile {
	out := p
	out.MotifRisk = make(map[string]float64, len(p.MotifRisk)+1)
	for motif, risk := range p.MotifRisk {
		out.MotifRisk[motif] = risk
	}

	plies := len(rec.MoveLog)
	if rec.Winner == "engine" && plies > 0 && plies < 20 {
		out.MotifRisk["early_blunder"] = clamp01(out.MotifRisk["early_blunder"] + 0.15)
	}
	if plies > 60 {
		out.Style.Risk = clamp01(out.Style.Risk * 0.9)
	}
	return out
}

// exploitConfidence is the placeholder signal surfaced to clients.
func exploitConfidence() float64 {
	return round2(0.4 + rand.Float64()*0.5)
}

func jitter(v, amplitude float64) float64 {
	return round2(clamp01(v + (rand.Float64()*2-1)*amplitude))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
