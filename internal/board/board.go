// Package board is a thin adapter over notnil/chess exposing the
// primitives the session engine needs: FEN round-trips, legal move
// enumeration, SAN rendering, terminal detection, and the square-level
// queries used by insight and coach analysis.
package board

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/notnil/chess"
)

// StartingFEN is the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Board wraps an immutable notnil/chess position. ApplyUCI replaces the
// wrapped position; Copy is cheap because positions are never mutated in
// place.
type Board struct {
	pos *chess.Position
}

// New returns a board at the standard starting position.
func New() *Board {
	b, _ := FromFEN(StartingFEN)
	return b
}

// FromFEN parses a FEN string.
func FromFEN(fen string) (*Board, error) {
	pos := &chess.Position{}
	if err := pos.UnmarshalText([]byte(fen)); err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return &Board{pos: pos}, nil
}

// FEN serializes the current position.
func (b *Board) FEN() string {
	return b.pos.String()
}

// Position exposes the wrapped position for callers that need direct
// notnil/chess access (PGN rendering, SAN lines).
func (b *Board) Position() *chess.Position {
	return b.pos
}

// Turn returns the side to move.
func (b *Board) Turn() chess.Color {
	return b.pos.Turn()
}

// ActiveColor reports the side to move as "white" or "black".
func (b *Board) ActiveColor() string {
	if b.pos.Turn() == chess.White {
		return "white"
	}
	return "black"
}

// FullMoveNumber reads the fullmove counter from the FEN tail.
func (b *Board) FullMoveNumber() int {
	fields := strings.Fields(b.pos.String())
	if len(fields) < 6 {
		return 1
	}
	n, err := strconv.Atoi(fields[5])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// LegalMoves enumerates legal moves in UCI notation.
func (b *Board) LegalMoves() []string {
	valid := b.pos.ValidMoves()
	out := make([]string, len(valid))
	for i, m := range valid {
		out[i] = chess.UCINotation{}.Encode(b.pos, m)
	}
	return out
}

// ParseMove decodes a UCI move and verifies it is legal here.
func (b *Board) ParseMove(uci string) (*chess.Move, error) {
	move, err := chess.UCINotation{}.Decode(b.pos, uci)
	if err != nil {
		return nil, fmt.Errorf("decode move %q: %w", uci, err)
	}
	for _, m := range b.pos.ValidMoves() {
		if m.S1() == move.S1() && m.S2() == move.S2() && m.Promo() == move.Promo() {
			return m, nil
		}
	}
	return nil, fmt.Errorf("illegal move %q", uci)
}

// IsLegal reports whether the UCI move is playable in this position.
func (b *Board) IsLegal(uci string) bool {
	_, err := b.ParseMove(uci)
	return err == nil
}

// SAN renders the UCI move in short algebraic notation.
func (b *Board) SAN(uci string) (string, error) {
	move, err := b.ParseMove(uci)
	if err != nil {
		return "", err
	}
	return chess.AlgebraicNotation{}.Encode(b.pos, move), nil
}

// ApplyUCI plays the move, replacing the wrapped position.
func (b *Board) ApplyUCI(uci string) error {
	move, err := b.ParseMove(uci)
	if err != nil {
		return err
	}
	b.pos = b.pos.Update(move)
	return nil
}

// Copy returns an independent board at the same position.
func (b *Board) Copy() *Board {
	return &Board{pos: b.pos}
}

// IsCheckmate reports checkmate for the side to move.
func (b *Board) IsCheckmate() bool {
	return b.pos.Status() == chess.Checkmate
}

// IsStalemate reports stalemate for the side to move.
func (b *Board) IsStalemate() bool {
	return b.pos.Status() == chess.Stalemate
}

// InsufficientMaterial reports dead positions: K vs K, K+minor vs K, and
// K+B vs K+B with same-colored bishops.
func (b *Board) InsufficientMaterial() bool {
	var minors, bishops []chess.Square
	for sq, piece := range b.pos.Board().SquareMap() {
		switch piece.Type() {
		case chess.King:
		case chess.Bishop:
			minors = append(minors, sq)
			bishops = append(bishops, sq)
		case chess.Knight:
			minors = append(minors, sq)
		default:
			return false
		}
	}
	switch len(minors) {
	case 0, 1:
		return true
	case 2:
		if len(bishops) == 2 {
			return squareShade(bishops[0]) == squareShade(bishops[1])
		}
	}
	return false
}

// IsTerminal reports whether no further moves can be played.
func (b *Board) IsTerminal() bool {
	return b.IsCheckmate() || b.IsStalemate() || b.InsufficientMaterial()
}

// PieceAt returns the piece on a square (chess.NoPiece when empty).
func (b *Board) PieceAt(sq chess.Square) chess.Piece {
	return b.pos.Board().Piece(sq)
}

// Pieces returns the occupied squares for one side.
func (b *Board) Pieces(color chess.Color) map[chess.Square]chess.Piece {
	out := make(map[chess.Square]chess.Piece)
	for sq, piece := range b.pos.Board().SquareMap() {
		if piece.Color() == color {
			out[sq] = piece
		}
	}
	return out
}

// CountPieces tallies a piece type for one side.
func (b *Board) CountPieces(color chess.Color, pt chess.PieceType) int {
	count := 0
	for _, piece := range b.pos.Board().SquareMap() {
		if piece.Color() == color && piece.Type() == pt {
			count++
		}
	}
	return count
}

// KingSquare locates the king of the given color.
func (b *Board) KingSquare(color chess.Color) chess.Square {
	for sq, piece := range b.pos.Board().SquareMap() {
		if piece.Color() == color && piece.Type() == chess.King {
			return sq
		}
	}
	return chess.NoSquare
}

// GivesCheck reports whether the move checks the opponent.
func (b *Board) GivesCheck(uci string) bool {
	move, err := b.ParseMove(uci)
	if err != nil {
		return false
	}
	return move.HasTag(chess.Check)
}

// IsCapture reports whether the move captures (including en passant).
func (b *Board) IsCapture(uci string) bool {
	move, err := b.ParseMove(uci)
	if err != nil {
		return false
	}
	return move.HasTag(chess.Capture) || move.HasTag(chess.EnPassant)
}

// IsCastle reports whether the move is either castling move.
func (b *Board) IsCastle(uci string) bool {
	move, err := b.ParseMove(uci)
	if err != nil {
		return false
	}
	return move.HasTag(chess.KingSideCastle) || move.HasTag(chess.QueenSideCastle)
}

// CapturedType returns the type of the piece a move would capture, or
// NoPieceType for quiet moves. En passant always captures a pawn.
func (b *Board) CapturedType(uci string) chess.PieceType {
	move, err := b.ParseMove(uci)
	if err != nil {
		return chess.NoPieceType
	}
	if move.HasTag(chess.EnPassant) {
		return chess.Pawn
	}
	if victim := b.pos.Board().Piece(move.S2()); victim != chess.NoPiece {
		return victim.Type()
	}
	return chess.NoPieceType
}

// Square constructs a square from file and rank indices (0-based).
func Square(file, rank int) chess.Square {
	return chess.Square(rank*8 + file)
}

// Between lists the squares strictly between two aligned squares. The
// result is empty when the squares share no rank, file, or diagonal.
func Between(a, b chess.Square) []chess.Square {
	df := int(b.File()) - int(a.File())
	dr := int(b.Rank()) - int(a.Rank())
	if !(df == 0 || dr == 0 || abs(df) == abs(dr)) {
		return nil
	}
	stepF := sign(df)
	stepR := sign(dr)
	var out []chess.Square
	f, r := int(a.File())+stepF, int(a.Rank())+stepR
	for f != int(b.File()) || r != int(b.Rank()) {
		out = append(out, Square(f, r))
		f += stepF
		r += stepR
	}
	return out
}

// SameRankOrFile reports rook-style alignment.
func SameRankOrFile(a, b chess.Square) bool {
	return a.File() == b.File() || a.Rank() == b.Rank()
}

// SameDiagonal reports bishop-style alignment.
func SameDiagonal(a, b chess.Square) bool {
	df := int(b.File()) - int(a.File())
	dr := int(b.Rank()) - int(a.Rank())
	return df != 0 && abs(df) == abs(dr)
}

func squareShade(sq chess.Square) int {
	return (int(sq.File()) + int(sq.Rank())) % 2
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}
