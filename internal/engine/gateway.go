// Package engine supervises the external UCI analyzer. A single
// subprocess serves the whole process; every operation is serialized by
// a mutex and reconfigures skill and nominal strength before searching.
// When the subprocess dies, the gateway respawns it transparently and
// retries the operation once.
package engine

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/notnil/chess"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jcai27/Chessica/internal/apperr"
	"github.com/jcai27/Chessica/internal/board"
)

// Analyzer strength bounds.
const (
	MinElo = 1320
	MaxElo = 2850

	MinSkill = 0
	MaxSkill = 20

	// CheckmateCp encodes mate as an extreme centipawn value, positive
	// when white mates.
	CheckmateCp = 10000

	minMoveTime = 50 * time.Millisecond
)

// Variation is one multi-PV candidate line.
type Variation struct {
	EvalCp  int      `json:"eval_cp"`
	SANLine []string `json:"san_line"`
}

// Gateway owns the analyzer subprocess.
type Gateway struct {
	mu            sync.Mutex
	path          string
	moveTimeLimit time.Duration
	proc          *uciProcess

	searchSeconds prometheus.Observer
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSearchObserver records search wall time into the given histogram.
func WithSearchObserver(obs prometheus.Observer) Option {
	return func(g *Gateway) { g.searchSeconds = obs }
}

// NewGateway builds the gateway; the subprocess is spawned lazily on
// first use.
func NewGateway(path string, moveTimeLimit time.Duration, opts ...Option) *Gateway {
	g := &Gateway{path: path, moveTimeLimit: moveTimeLimit}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Close terminates the subprocess if one is running.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.proc != nil {
		g.proc.kill()
		g.proc = nil
	}
}

// BestMove plays the position at the configured strength and returns
// the chosen move with its evaluation (centipawns, white POV).
func (g *Gateway) BestMove(ctx context.Context, fen, difficulty string, rating int) (string, int, error) {
	pos, err := board.FromFEN(fen)
	if err != nil {
		return "", 0, apperr.Wrap(apperr.IllegalMove, "best move", err)
	}
	if pos.IsTerminal() {
		return "", 0, apperr.New(apperr.GameOver, "position is game over")
	}

	var uci string
	var eval int
	err = g.analyze(ctx, fen, difficulty, rating, 1, func(res *searchResult) error {
		if res.bestMove == "" || res.bestMove == "(none)" {
			return apperr.New(apperr.GameOver, "analyzer found no legal moves")
		}
		uci = res.bestMove
		eval = whitePovCp(res.lines[1], pos.Turn() == chess.White)
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	return uci, eval, nil
}

// Evaluate analyzes the position and returns the score in centipawns
// from white's point of view.
func (g *Gateway) Evaluate(ctx context.Context, fen, difficulty string, rating int) (int, error) {
	pos, err := board.FromFEN(fen)
	if err != nil {
		return 0, apperr.Wrap(apperr.IllegalMove, "evaluate", err)
	}
	if pos.IsCheckmate() {
		if pos.Turn() == chess.White {
			return -CheckmateCp, nil
		}
		return CheckmateCp, nil
	}
	if pos.IsStalemate() || pos.InsufficientMaterial() {
		return 0, nil
	}

	var eval int
	err = g.analyze(ctx, fen, difficulty, rating, 1, func(res *searchResult) error {
		eval = whitePovCp(res.lines[1], pos.Turn() == chess.White)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return eval, nil
}

// MultiPV returns up to k principal variations, each truncated to
// maxMoves plies and rendered in SAN from the given root.
func (g *Gateway) MultiPV(ctx context.Context, fen, difficulty string, rating, k, maxMoves int) ([]Variation, error) {
	root, err := board.FromFEN(fen)
	if err != nil {
		return nil, apperr.Wrap(apperr.IllegalMove, "multipv", err)
	}
	if root.IsTerminal() {
		return nil, apperr.New(apperr.GameOver, "position is game over")
	}
	if k < 1 {
		k = 1
	}

	var out []Variation
	err = g.analyze(ctx, fen, difficulty, rating, k, func(res *searchResult) error {
		whiteToMove := root.Turn() == chess.White
		for idx := 1; idx <= k; idx++ {
			info, ok := res.lines[idx]
			if !ok {
				continue
			}
			out = append(out, Variation{
				EvalCp:  whitePovCp(info, whiteToMove),
				SANLine: sanLine(root, info.moves, maxMoves),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// analyze configures the subprocess, runs one search, and hands the raw
// result to fn. A dead subprocess is respawned and the whole operation
// retried once.
func (g *Gateway) analyze(ctx context.Context, fen, difficulty string, rating, multiPV int, fn func(*searchResult) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.EngineUnavailable, "analyze", err)
	}

	profile := ProfileFor(difficulty, rating)
	moveTime := profile.ThinkTime
	if g.moveTimeLimit > 0 && moveTime > g.moveTimeLimit {
		moveTime = g.moveTimeLimit
	}
	if moveTime < minMoveTime {
		moveTime = minMoveTime
	}

	run := func() error {
		if g.proc == nil {
			proc, err := startUCI(g.path)
			if err != nil {
				return err
			}
			g.proc = proc
		}
		p := g.proc
		if err := p.setOption("Skill Level", strconv.Itoa(profile.Skill)); err != nil {
			return err
		}
		if err := p.setOption("UCI_LimitStrength", "true"); err != nil {
			return err
		}
		if err := p.setOption("UCI_Elo", strconv.Itoa(clampElo(rating))); err != nil {
			return err
		}
		if err := p.setOption("MultiPV", strconv.Itoa(multiPV)); err != nil {
			return err
		}
		if err := p.setPosition(fen); err != nil {
			return err
		}
		start := time.Now()
		res, err := p.search(int(moveTime.Milliseconds()))
		if err != nil {
			return err
		}
		if g.searchSeconds != nil {
			g.searchSeconds.Observe(time.Since(start).Seconds())
		}
		return fn(res)
	}

	err := run()
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.Internal {
		return err // domain outcome, not a process failure
	}

	slog.Warn("analyzer failed, respawning", "error", err)
	if g.proc != nil {
		g.proc.kill()
		g.proc = nil
	}
	if err := run(); err != nil {
		if apperr.KindOf(err) != apperr.Internal {
			return err
		}
		return apperr.Wrap(apperr.EngineUnavailable, "analyzer respawn failed", err)
	}
	return nil
}

// whitePovCp converts a side-to-move UCI score to white's POV. Mate
// scores collapse to ±CheckmateCp.
func whitePovCp(info pvInfo, whiteToMove bool) int {
	var cp int
	if info.hasMate {
		if info.scoreMate > 0 {
			cp = CheckmateCp
		} else {
			cp = -CheckmateCp
		}
	} else {
		cp = info.scoreCp
	}
	if !whiteToMove {
		cp = -cp
	}
	return cp
}

func sanLine(root *board.Board, moves []string, maxMoves int) []string {
	if maxMoves > 0 && len(moves) > maxMoves {
		moves = moves[:maxMoves]
	}
	cursor := root.Copy()
	var line []string
	for _, uci := range moves {
		san, err := cursor.SAN(uci)
		if err != nil {
			break
		}
		line = append(line, san)
		if err := cursor.ApplyUCI(uci); err != nil {
			break
		}
	}
	return line
}

func clampElo(rating int) int {
	if rating < MinElo {
		return MinElo
	}
	if rating > MaxElo {
		return MaxElo
	}
	return rating
}
