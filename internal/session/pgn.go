package session

import (
	"fmt"
	"strings"

	"github.com/jcai27/Chessica/internal/board"
)

// ExportPGN renders the session as a PGN document. Annotated history is
// replayed from the initial position so the movetext carries SAN.
func ExportPGN(rec *Record) (string, error) {
	initial := rec.InitialFEN
	if initial == "" {
		initial = board.StartingFEN
	}
	b, err := board.FromFEN(initial)
	if err != nil {
		return "", fmt.Errorf("parse initial position: %w", err)
	}

	white, black := pgnPlayers(rec)
	result := pgnResult(rec)

	var sb strings.Builder
	writeTag := func(name, value string) {
		fmt.Fprintf(&sb, "[%s %q]\n", name, value)
	}
	writeTag("Event", "Chessica Game")
	writeTag("Site", "Chessica")
	writeTag("Date", rec.CreatedAt.Format("2006.01.02"))
	writeTag("Round", "-")
	writeTag("White", white)
	writeTag("Black", black)
	writeTag("Result", result)
	if rec.TimeControl.InitialMs > 0 {
		writeTag("TimeControl", fmt.Sprintf("%d+%d",
			rec.TimeControl.InitialMs/1000, rec.TimeControl.IncrementMs/1000))
	}
	if initial != board.StartingFEN {
		writeTag("SetUp", "1")
		writeTag("FEN", initial)
	}
	sb.WriteString("\n")

	var tokens []string
	for _, uci := range rec.Moves() {
		san, serr := b.SAN(uci)
		if serr != nil {
			return "", fmt.Errorf("replay move %q: %w", uci, serr)
		}
		if b.ActiveColor() == "white" {
			tokens = append(tokens, fmt.Sprintf("%d.", b.FullMoveNumber()), san)
		} else {
			if len(tokens) == 0 {
				tokens = append(tokens, fmt.Sprintf("%d...", b.FullMoveNumber()))
			}
			tokens = append(tokens, san)
		}
		if err := b.ApplyUCI(uci); err != nil {
			return "", fmt.Errorf("replay move %q: %w", uci, err)
		}
	}
	tokens = append(tokens, result)
	sb.WriteString(wrapMovetext(tokens, 80))
	sb.WriteString("\n")
	return sb.String(), nil
}

func pgnPlayers(rec *Record) (white, black string) {
	if rec.IsMultiplayer {
		white, black = rec.PlayerWhiteID, rec.PlayerBlackID
		if white == "" {
			white = "White"
		}
		if black == "" {
			black = "Black"
		}
		return white, black
	}
	playerName := "Player"
	if rec.PlayerID != "" {
		playerName = rec.PlayerID
	}
	engineName := fmt.Sprintf("Chessica Engine (%d)", rec.EngineRating)
	if rec.PlayerColor == "white" {
		return playerName, engineName
	}
	return engineName, playerName
}

func pgnResult(rec *Record) string {
	if rec.Status != StatusCompleted {
		return "*"
	}
	switch rec.Winner {
	case "draw":
		return "1/2-1/2"
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "player":
		if rec.PlayerColor == "white" {
			return "1-0"
		}
		return "0-1"
	case "engine":
		if rec.EngineColor == "white" {
			return "1-0"
		}
		return "0-1"
	default:
		return "*"
	}
}

func wrapMovetext(tokens []string, width int) string {
	var sb strings.Builder
	lineLen := 0
	for i, tok := range tokens {
		if i > 0 {
			if lineLen+1+len(tok) > width {
				sb.WriteString("\n")
				lineLen = 0
			} else {
				sb.WriteString(" ")
				lineLen++
			}
		}
		sb.WriteString(tok)
		lineLen += len(tok)
	}
	return sb.String()
}
