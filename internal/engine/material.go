package engine

import (
	"github.com/notnil/chess"

	"github.com/jcai27/Chessica/internal/board"
)

var pieceValues = map[chess.PieceType]int{
	chess.Pawn:   100,
	chess.Knight: 320,
	chess.Bishop: 330,
	chess.Rook:   500,
	chess.Queen:  900,
}

// MaterialEval is a fast material count in centipawns from white's POV,
// used where a full search would be wasted (multiplayer games have no
// analyzer in the loop).
func MaterialEval(b *board.Board) int {
	total := 0
	for _, piece := range b.Pieces(chess.White) {
		total += pieceValues[piece.Type()]
	}
	for _, piece := range b.Pieces(chess.Black) {
		total -= pieceValues[piece.Type()]
	}
	return total
}
