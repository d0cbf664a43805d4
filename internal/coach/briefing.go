// Package coach assembles end-of-position briefings. The briefing is a
// set of structured sections built from positional features; a pluggable
// summarizer can condense it into prose, and the rendered sections serve
// as the fallback when the summarizer is absent or failing.
package coach

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"

	"github.com/jcai27/Chessica/internal/board"
	"github.com/jcai27/Chessica/internal/engine"
)

// Feature thresholds for the Strengths / Pressure Points split.
const (
	materialEdgeCp  = 120
	centerEdgeMin   = 2
	advancedEdgeMin = 2
)

// Input is everything the briefing builder looks at.
type Input struct {
	Board       *board.Board
	EvalCp      int // white POV
	MoverColor  chess.Color
	EngineColor chess.Color
	LastComment string // most recent player-move commentary, if any
	Variations  []engine.Variation
}

// Briefing holds the five sections, each a list of short sentences.
type Briefing struct {
	Summary        []string `json:"summary"`
	Strengths      []string `json:"strengths"`
	PressurePoints []string `json:"pressure_points"`
	Plans          []string `json:"plans"`
	KeyLines       []string `json:"key_lines"`
}

// sideFeatures is the per-color positional digest the sections draw on.
type sideFeatures struct {
	materialCp  int
	centerCount int // pieces inside c3-f6
	advanced    int // non-pawn pieces in the opponent's half
	bishopPair  bool
	passedPawns int
	kingShield  int // friendly pawns on the three squares in front of the king
}

var pieceCp = map[chess.PieceType]int{
	chess.Pawn:   100,
	chess.Knight: 320,
	chess.Bishop: 330,
	chess.Rook:   500,
	chess.Queen:  900,
}

// BuildBriefing computes the structured sections for the position.
func BuildBriefing(in Input) Briefing {
	white := featuresFor(in.Board, chess.White)
	black := featuresFor(in.Board, chess.Black)

	b := Briefing{
		Summary:  summarySection(in, white, black),
		Plans:    plansSection(white, black),
		KeyLines: keyLines(in.Variations),
	}
	b.Strengths, b.PressurePoints = edgesSection(in.MoverColor, white, black)
	return b
}

func featuresFor(b *board.Board, color chess.Color) sideFeatures {
	f := sideFeatures{
		bishopPair: b.CountPieces(color, chess.Bishop) >= 2,
	}
	for sq, piece := range b.Pieces(color) {
		pt := piece.Type()
		f.materialCp += pieceCp[pt]
		if inExtendedCenter(sq) {
			f.centerCount++
		}
		if pt != chess.Pawn && pt != chess.King && inOpponentHalf(sq, color) {
			f.advanced++
		}
		if pt == chess.Pawn && isPassed(b, sq, color) {
			f.passedPawns++
		}
	}
	f.kingShield = kingShield(b, color)
	return f
}

func summarySection(in Input, white, black sideFeatures) []string {
	var out []string

	diff := white.materialCp - black.materialCp
	switch {
	case diff > 0:
		out = append(out, fmt.Sprintf("White is up %s of material.", cpPhrase(diff)))
	case diff < 0:
		out = append(out, fmt.Sprintf("Black is up %s of material.", cpPhrase(-diff)))
	default:
		out = append(out, "Material is level.")
	}

	switch {
	case white.centerCount > black.centerCount:
		out = append(out, "White has the firmer grip on the center.")
	case black.centerCount > white.centerCount:
		out = append(out, "Black has the firmer grip on the center.")
	default:
		out = append(out, "The central battle is balanced.")
	}

	mover, opponent := white, black
	moverName := "White"
	if in.MoverColor == chess.Black {
		mover, opponent = black, white
		moverName = "Black"
	}
	if mover.advanced >= opponent.advanced {
		out = append(out, fmt.Sprintf("%s's pieces are the more active side of the board.", moverName))
	} else {
		out = append(out, fmt.Sprintf("%s's pieces are still waiting for better squares.", moverName))
	}

	out = append(out, kingSentence("White", white), kingSentence("Black", black))

	if white.bishopPair != black.bishopPair {
		holder := "White"
		if black.bishopPair {
			holder = "Black"
		}
		out = append(out, fmt.Sprintf("%s holds the bishop pair.", holder))
	}
	if white.passedPawns > 0 || black.passedPawns > 0 {
		out = append(out, fmt.Sprintf("Passed pawns on the board: %d for White, %d for Black.",
			white.passedPawns, black.passedPawns))
	}
	return out
}

func kingSentence(name string, f sideFeatures) string {
	if f.kingShield >= 2 {
		return fmt.Sprintf("%s's king is well sheltered.", name)
	}
	return fmt.Sprintf("%s's king cover is thin.", name)
}

// edgesSection assigns each asymmetric feature to Strengths or Pressure
// Points from the mover's point of view.
func edgesSection(mover chess.Color, white, black sideFeatures) (strengths, pressure []string) {
	mine, theirs := white, black
	if mover == chess.Black {
		mine, theirs = black, white
	}

	add := func(favorable bool, text string) {
		if favorable {
			strengths = append(strengths, text)
		} else {
			pressure = append(pressure, text)
		}
	}

	if d := mine.materialCp - theirs.materialCp; d > materialEdgeCp {
		add(true, fmt.Sprintf("A material edge of %s.", cpPhrase(d)))
	} else if d < -materialEdgeCp {
		add(false, fmt.Sprintf("A material deficit of %s.", cpPhrase(-d)))
	}
	if d := mine.centerCount - theirs.centerCount; d >= centerEdgeMin {
		add(true, "Clear extra presence in the extended center.")
	} else if d <= -centerEdgeMin {
		add(false, "The opponent dominates the extended center.")
	}
	if d := mine.advanced - theirs.advanced; d >= advancedEdgeMin {
		add(true, "More pieces advanced into enemy territory.")
	} else if d <= -advancedEdgeMin {
		add(false, "Enemy pieces are camped in your half.")
	}
	if mine.bishopPair && !theirs.bishopPair {
		add(true, "The bishop pair.")
	} else if theirs.bishopPair && !mine.bishopPair {
		add(false, "The opponent owns the bishop pair.")
	}
	if d := mine.passedPawns - theirs.passedPawns; d > 0 {
		add(true, "A passed pawn to push.")
	} else if d < 0 {
		add(false, "An enemy passed pawn to restrain.")
	}

	if len(strengths) == 0 {
		strengths = append(strengths, "No clear static advantage yet; the position is flexible.")
	}
	if len(pressure) == 0 {
		pressure = append(pressure, "No immediate weaknesses to defend.")
	}
	return strengths, pressure
}

// plansSection picks one sentence per color from its dominant feature.
func plansSection(white, black sideFeatures) []string {
	return []string{
		"White: " + planFor(white, black),
		"Black: " + planFor(black, white),
	}
}

func planFor(mine, theirs sideFeatures) string {
	switch {
	case mine.materialCp-theirs.materialCp > materialEdgeCp:
		return "trade pieces and convert the extra material."
	case mine.passedPawns > theirs.passedPawns:
		return "support and advance the passed pawn."
	case mine.centerCount-theirs.centerCount >= centerEdgeMin:
		return "use the central grip to start a wing operation."
	case mine.advanced-theirs.advanced >= advancedEdgeMin:
		return "press the advanced pieces before the opponent consolidates."
	case mine.bishopPair && !theirs.bishopPair:
		return "open the position for the bishop pair."
	case mine.kingShield < 2:
		return "repair the king position before committing elsewhere."
	default:
		return "improve the worst-placed piece and stay flexible."
	}
}

func keyLines(vars []engine.Variation) []string {
	var out []string
	for _, v := range vars {
		if len(v.SANLine) == 0 {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", FormatEval(v.EvalCp), strings.Join(v.SANLine, " ")))
	}
	return out
}

// FormatEval renders a white-POV centipawn score the way analysis GUIs
// do: "+0.35", "-1.20", or "#" for mate scores.
func FormatEval(cp int) string {
	if cp >= engine.CheckmateCp {
		return "#+"
	}
	if cp <= -engine.CheckmateCp {
		return "#-"
	}
	return fmt.Sprintf("%+.2f", float64(cp)/100)
}

func cpPhrase(cp int) string {
	pawns := float64(cp) / 100
	if pawns == float64(int(pawns)) {
		return fmt.Sprintf("%d pawn(s)", int(pawns))
	}
	return fmt.Sprintf("%.1f pawns", pawns)
}

// Render serializes the sections as the structured fallback text.
func (b Briefing) Render() string {
	var sb strings.Builder
	writeSection(&sb, "Summary", b.Summary)
	writeSection(&sb, "Strengths", b.Strengths)
	writeSection(&sb, "Pressure Points", b.PressurePoints)
	writeSection(&sb, "Plans", b.Plans)
	writeSection(&sb, "Key Lines", b.KeyLines)
	return strings.TrimRight(sb.String(), "\n")
}

func writeSection(sb *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	sb.WriteString(title + ":\n")
	for _, line := range lines {
		sb.WriteString("- " + line + "\n")
	}
	sb.WriteString("\n")
}

// Prompt builds the instruction handed to the summarizer.
func (b Briefing) Prompt(lastComment string) string {
	var sb strings.Builder
	sb.WriteString("You are a chess coach. Using the notes below, reply with exactly three sentences: ")
	sb.WriteString("(1) what White should aim for, (2) what Black should aim for, ")
	sb.WriteString("(3) the single most important action for the player to move. ")
	sb.WriteString("At most 50 words per sentence.\n\n")
	sb.WriteString(b.Render())
	if lastComment != "" {
		sb.WriteString("\n\nMost recent move feedback: " + lastComment)
	}
	return sb.String()
}

func inExtendedCenter(sq chess.Square) bool {
	f, r := int(sq.File()), int(sq.Rank())
	return f >= 2 && f <= 5 && r >= 2 && r <= 5
}

func inOpponentHalf(sq chess.Square, color chess.Color) bool {
	if color == chess.White {
		return int(sq.Rank()) >= 4
	}
	return int(sq.Rank()) <= 3
}

func isPassed(b *board.Board, sq chess.Square, color chess.Color) bool {
	enemy := chess.Black
	if color == chess.Black {
		enemy = chess.White
	}
	file, rank := int(sq.File()), int(sq.Rank())
	step := 1
	if color == chess.Black {
		step = -1
	}
	for df := -1; df <= 1; df++ {
		f := file + df
		if f < 0 || f > 7 {
			continue
		}
		for r := rank + step; r >= 0 && r < 8; r += step {
			piece := b.PieceAt(board.Square(f, r))
			if piece != chess.NoPiece && piece.Type() == chess.Pawn && piece.Color() == enemy {
				return false
			}
		}
	}
	return true
}

// kingShield counts friendly pawns on the three squares directly ahead
// of the king.
func kingShield(b *board.Board, color chess.Color) int {
	kingSq := b.KingSquare(color)
	if kingSq == chess.NoSquare {
		return 0
	}
	step := 1
	if color == chess.Black {
		step = -1
	}
	rank := int(kingSq.Rank()) + step
	if rank < 0 || rank > 7 {
		return 0
	}
	count := 0
	for df := -1; df <= 1; df++ {
		f := int(kingSq.File()) + df
		if f < 0 || f > 7 {
			continue
		}
		piece := b.PieceAt(board.Square(f, rank))
		if piece != chess.NoPiece && piece.Type() == chess.Pawn && piece.Color() == color {
			count++
		}
	}
	return count
}
