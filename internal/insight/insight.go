// Package insight annotates a single ply with an evaluation delta,
// verdict, positional themes, and commentary. It is pure: callers hand
// it the positions before and after the move plus the two evaluations,
// and it performs no I/O.
package insight

import (
	"strings"
	"time"

	"github.com/notnil/chess"

	"github.com/jcai27/Chessica/internal/board"
)

// Verdict grades a ply by its centipawn swing from the mover's view.
type Verdict string

const (
	VerdictBrilliant  Verdict = "brilliant"
	VerdictGreat      Verdict = "great"
	VerdictGood       Verdict = "good"
	VerdictSharp      Verdict = "sharp"
	VerdictInaccuracy Verdict = "inaccuracy"
	VerdictMistake    Verdict = "mistake"
	VerdictBlunder    Verdict = "blunder"
)

// verdictRanks orders verdicts from worst to best.
var verdictRanks = map[Verdict]int{
	VerdictBlunder:    0,
	VerdictMistake:    1,
	VerdictInaccuracy: 2,
	VerdictSharp:      3,
	VerdictGood:       4,
	VerdictGreat:      5,
	VerdictBrilliant:  6,
}

// Rank returns the verdict's position in the worst-to-best ordering.
func (v Verdict) Rank() int { return verdictRanks[v] }

// Theme is a positional idea attached to a ply. The set is closed.
type Theme string

const (
	ThemeKingSafety     Theme = "king_safety"
	ThemeCentralControl Theme = "central_control"
	ThemeMaterialGain   Theme = "material_gain"
	ThemePieceActivity  Theme = "piece_activity"
	ThemeKingAttack     Theme = "king_attack"
	ThemeSpaceGain      Theme = "space_gain"
	ThemePassedPawn     Theme = "passed_pawn"
	ThemeSimplification Theme = "simplification"
)

// themeOrder fixes the display order of detected themes.
var themeOrder = []Theme{
	ThemeKingSafety,
	ThemeCentralControl,
	ThemeMaterialGain,
	ThemePieceActivity,
	ThemeKingAttack,
	ThemeSpaceGain,
	ThemePassedPawn,
	ThemeSimplification,
}

// themeLabels renders themes to their human form.
var themeLabels = map[Theme]string{
	ThemeKingSafety:     "king safety",
	ThemeCentralControl: "central control",
	ThemeMaterialGain:   "material play",
	ThemePieceActivity:  "piece activity",
	ThemeKingAttack:     "king attack",
	ThemeSpaceGain:      "space advantage",
	ThemePassedPawn:     "passed pawn",
	ThemeSimplification: "simplification",
}

// Label returns the display form of a theme.
func (t Theme) Label() string { return themeLabels[t] }

// Annotation is the stored record for one ply.
type Annotation struct {
	Ply        int       `json:"ply"`
	Side       string    `json:"side"`
	UCI        string    `json:"uci"`
	SAN        string    `json:"san"`
	EvalCp     int       `json:"eval_cp"`
	DeltaCp    int       `json:"delta_cp"`
	Verdict    Verdict   `json:"verdict"`
	Commentary string    `json:"commentary"`
	Themes     []string  `json:"themes"`
	Timestamp  time.Time `json:"timestamp"`
}

// Input carries everything Build needs for one ply.
type Input struct {
	Before     *board.Board
	After      *board.Board
	UCI        string
	MoverColor chess.Color
	Side       string // "player", "engine", "white", or "black"
	PrevEvalCp int    // white POV, before the move
	NewEvalCp  int    // white POV, after the move
	Ply        int    // 1-based
}

// Build produces the annotation for one ply.
func Build(in Input) Annotation {
	san, err := in.Before.SAN(in.UCI)
	if err != nil {
		san = in.UCI
	}

	delta := in.NewEvalCp - in.PrevEvalCp
	if in.MoverColor == chess.Black {
		delta = -delta
	}

	verdict := Classify(delta)
	themes := DetectThemes(in.Before, in.After, in.UCI, in.MoverColor)

	labels := make([]string, len(themes))
	for i, t := range themes {
		labels[i] = t.Label()
	}

	return Annotation{
		Ply:        in.Ply,
		Side:       in.Side,
		UCI:        in.UCI,
		SAN:        san,
		EvalCp:     in.NewEvalCp,
		DeltaCp:    delta,
		Verdict:    verdict,
		Commentary: commentary(in.Side, verdict, themes),
		Themes:     labels,
		Timestamp:  time.Now().UTC(),
	}
}

// Classify maps a mover-relative centipawn delta to a verdict.
// Thresholds: >=150 brilliant, >=80 great, >=30 good, <=-150 blunder,
// <=-80 mistake, <=-30 inaccuracy, otherwise sharp.
func Classify(deltaCp int) Verdict {
	switch {
	case deltaCp >= 150:
		return VerdictBrilliant
	case deltaCp >= 80:
		return VerdictGreat
	case deltaCp >= 30:
		return VerdictGood
	case deltaCp <= -150:
		return VerdictBlunder
	case deltaCp <= -80:
		return VerdictMistake
	case deltaCp <= -30:
		return VerdictInaccuracy
	default:
		return VerdictSharp
	}
}

// DetectThemes evaluates the theme rules and returns the matches in
// display order.
func DetectThemes(before, after *board.Board, uci string, mover chess.Color) []Theme {
	move, err := before.ParseMove(uci)
	if err != nil {
		return nil
	}

	movedType := before.PieceAt(move.S1()).Type()
	dest := move.S2()
	isCastle := before.IsCastle(uci)
	isCapture := before.IsCapture(uci)
	capturedType := before.CapturedType(uci)
	givesCheck := before.GivesCheck(uci)
	destType := after.PieceAt(dest).Type() // differs from movedType on promotion

	matched := map[Theme]bool{}

	if isCastle || movedType == chess.King {
		matched[ThemeKingSafety] = true
	}
	if (movedType == chess.Pawn && inCentralCore(dest)) ||
		(isMinorOrQueen(movedType) && inExtendedCenter(dest)) {
		matched[ThemeCentralControl] = true
	}
	if isCapture {
		matched[ThemeMaterialGain] = true
	}
	if pieceActivity(after, movedType, dest, mover) {
		matched[ThemePieceActivity] = true
	}
	if isCapture && capturedType == movedType {
		matched[ThemeSimplification] = true
	}
	if givesCheck || sliderEyesKing(after, movedType, dest, mover) {
		matched[ThemeKingAttack] = true
	}
	if destType == chess.Pawn && isPassedPawn(after, dest, mover) {
		matched[ThemePassedPawn] = true
	}
	if movedType == chess.Pawn && inOpponentHalf(dest, mover) {
		matched[ThemeSpaceGain] = true
	}

	var out []Theme
	for _, t := range themeOrder {
		if matched[t] {
			out = append(out, t)
		}
	}
	return out
}

func isMinorOrQueen(pt chess.PieceType) bool {
	return pt == chess.Knight || pt == chess.Bishop || pt == chess.Queen
}

// inCentralCore covers d4, d5, e4, e5.
func inCentralCore(sq chess.Square) bool {
	f, r := int(sq.File()), int(sq.Rank())
	return f >= 3 && f <= 4 && r >= 3 && r <= 4
}

// inExtendedCenter covers the 4x4 block c3-f6.
func inExtendedCenter(sq chess.Square) bool {
	f, r := int(sq.File()), int(sq.Rank())
	return f >= 2 && f <= 5 && r >= 2 && r <= 5
}

func inOpponentHalf(sq chess.Square, mover chess.Color) bool {
	if mover == chess.White {
		return int(sq.Rank()) >= 4
	}
	return int(sq.Rank()) <= 3
}

// pieceActivity matches minors or queens in the extended center, rooks
// reaching an open file, and any non-pawn advanced into the opponent's
// half.
func pieceActivity(after *board.Board, movedType chess.PieceType, dest chess.Square, mover chess.Color) bool {
	if isMinorOrQueen(movedType) && inExtendedCenter(dest) {
		return true
	}
	if movedType == chess.Rook && fileHasNoPawns(after, int(dest.File())) {
		return true
	}
	switch movedType {
	case chess.Knight, chess.Bishop, chess.Rook, chess.Queen:
		return inOpponentHalf(dest, mover)
	}
	return false
}

func fileHasNoPawns(b *board.Board, file int) bool {
	for rank := 0; rank < 8; rank++ {
		if b.PieceAt(board.Square(file, rank)).Type() == chess.Pawn {
			return false
		}
	}
	return true
}

// sliderEyesKing reports whether the moved slider now x-rays the enemy
// king through an empty corridor.
func sliderEyesKing(after *board.Board, movedType chess.PieceType, dest chess.Square, mover chess.Color) bool {
	kingSq := after.KingSquare(oppositeColor(mover))
	if kingSq == chess.NoSquare {
		return false
	}
	aligned := false
	switch movedType {
	case chess.Rook:
		aligned = board.SameRankOrFile(dest, kingSq)
	case chess.Bishop:
		aligned = board.SameDiagonal(dest, kingSq)
	case chess.Queen:
		aligned = board.SameRankOrFile(dest, kingSq) || board.SameDiagonal(dest, kingSq)
	default:
		return false
	}
	if !aligned {
		return false
	}
	for _, sq := range board.Between(dest, kingSq) {
		if after.PieceAt(sq) != chess.NoPiece {
			return false
		}
	}
	return true
}

// isPassedPawn checks that no enemy pawn sits ahead on the same or an
// adjacent file.
func isPassedPawn(after *board.Board, sq chess.Square, mover chess.Color) bool {
	enemy := oppositeColor(mover)
	file, rank := int(sq.File()), int(sq.Rank())
	for df := -1; df <= 1; df++ {
		f := file + df
		if f < 0 || f > 7 {
			continue
		}
		if mover == chess.White {
			for r := rank + 1; r < 8; r++ {
				if isPawnOf(after, board.Square(f, r), enemy) {
					return false
				}
			}
		} else {
			for r := rank - 1; r >= 0; r-- {
				if isPawnOf(after, board.Square(f, r), enemy) {
					return false
				}
			}
		}
	}
	return true
}

func isPawnOf(b *board.Board, sq chess.Square, color chess.Color) bool {
	piece := b.PieceAt(sq)
	return piece != chess.NoPiece && piece.Type() == chess.Pawn && piece.Color() == color
}

func oppositeColor(c chess.Color) chess.Color {
	if c == chess.White {
		return chess.Black
	}
	return chess.White
}

// verdictSentences complete "You ..." / "The engine ...".
var verdictSentences = map[Verdict]string{
	VerdictBrilliant:  "found a brilliant resource.",
	VerdictGreat:      "played a great move.",
	VerdictGood:       "made a solid choice.",
	VerdictSharp:      "kept the position balanced.",
	VerdictInaccuracy: "drifted with a small inaccuracy.",
	VerdictMistake:    "made a mistake.",
	VerdictBlunder:    "blundered.",
}

// themeTips follow the verdict sentence, keyed on the first matched theme.
var themeTips = map[Theme]string{
	ThemeKingSafety:     "A safe king frees the rest of the army.",
	ThemeCentralControl: "Central squares decide where the game is played.",
	ThemeMaterialGain:   "Material won now can be converted later.",
	ThemePieceActivity:  "Active pieces create problems on every move.",
	ThemeKingAttack:     "Pressure on the king forces defensive concessions.",
	ThemeSpaceGain:      "Extra space cramps the opponent's pieces.",
	ThemePassedPawn:     "A passed pawn must be pushed or blockaded.",
	ThemeSimplification: "Trading pieces steers toward a calmer game.",
}

// verdictReinforcements close out the commentary for the notable grades.
var verdictReinforcements = map[Verdict]string{
	VerdictBrilliant:  "Remember the pattern behind it.",
	VerdictGreat:      "Keep looking for ideas of this caliber.",
	VerdictInaccuracy: "A more forcing option was available.",
	VerdictMistake:    "Check all checks, captures, and threats first.",
	VerdictBlunder:    "Slow down on critical moves.",
}

func commentary(side string, verdict Verdict, themes []Theme) string {
	actor := "The engine"
	if side == "player" {
		actor = "You"
	}

	parts := []string{actor + " " + verdictSentences[verdict]}
	if len(themes) > 0 {
		if tip, ok := themeTips[themes[0]]; ok {
			parts = append(parts, tip)
		}
	}
	if extra, ok := verdictReinforcements[verdict]; ok {
		parts = append(parts, extra)
	}
	return strings.Join(parts, " ")
}
