package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcai27/Chessica/internal/apperr"
	"github.com/jcai27/Chessica/internal/board"
	"github.com/jcai27/Chessica/internal/coach"
	"github.com/jcai27/Chessica/internal/engine"
)

type memoryRepo struct {
	mu   sync.Mutex
	recs map[string]*Record
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{recs: make(map[string]*Record)}
}

func (m *memoryRepo) Create(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *rec
	m.recs[rec.SessionID] = &clone
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "session %s not found", id)
	}
	clone := *rec
	clone.MoveLog = append(clone.MoveLog[:0:0], rec.MoveLog...)
	return &clone, nil
}

func (m *memoryRepo) Save(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.SessionID]; !ok {
		return apperr.Newf(apperr.NotFound, "session %s not found", rec.SessionID)
	}
	clone := *rec
	clone.MoveLog = append(clone.MoveLog[:0:0], rec.MoveLog...)
	m.recs[rec.SessionID] = &clone
	return nil
}

// scriptedAnalyzer replays a fixed list of engine moves.
type scriptedAnalyzer struct {
	moves []string
	idx   int
}

func (a *scriptedAnalyzer) BestMove(_ context.Context, fen, _ string, _ int) (string, int, error) {
	b, err := board.FromFEN(fen)
	if err != nil {
		return "", 0, err
	}
	if b.IsTerminal() {
		return "", 0, apperr.New(apperr.GameOver, "position is game over")
	}
	if a.idx >= len(a.moves) {
		return "", 0, apperr.New(apperr.EngineUnavailable, "script exhausted")
	}
	move := a.moves[a.idx]
	a.idx++
	return move, 0, nil
}

func (a *scriptedAnalyzer) Evaluate(_ context.Context, fen, _ string, _ int) (int, error) {
	b, err := board.FromFEN(fen)
	if err != nil {
		return 0, err
	}
	if b.IsCheckmate() {
		if b.Turn().String() == "w" {
			return -engine.CheckmateCp, nil
		}
		return engine.CheckmateCp, nil
	}
	return 0, nil
}

func (a *scriptedAnalyzer) MultiPV(context.Context, string, string, int, int, int) ([]engine.Variation, error) {
	return nil, nil
}

type capturedEvent struct {
	sessionID string
	eventType string
}

type recordingSink struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (r *recordingSink) Publish(sessionID, eventType string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, capturedEvent{sessionID, eventType})
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.eventType
	}
	return out
}

func newTestService(t *testing.T, analyzer Analyzer) (*Service, *memoryRepo, *recordingSink) {
	t.Helper()
	repo := newMemoryRepo()
	sink := &recordingSink{}
	svc := NewService(repo, analyzer, sink, nil, nil, nil, nil, 3, nil)
	return svc, repo, sink
}

type fakeProfileStore struct {
	mu       sync.Mutex
	profiles map[string]OpponentProfile
	saves    int
}

func (f *fakeProfileStore) GetOpponentProfile(_ context.Context, userID string) (OpponentProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return DefaultOpponentProfile(), nil
	}
	return p, nil
}

func (f *fakeProfileStore) SaveOpponentProfile(_ context.Context, userID string, p OpponentProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profiles == nil {
		f.profiles = make(map[string]OpponentProfile)
	}
	f.profiles[userID] = p
	f.saves++
	return nil
}

func TestCreateResolvesBeginnerPreset(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedAnalyzer{})
	rec, err := svc.Create(context.Background(), CreateParams{
		TimeControl: TimeControl{InitialMs: 300000},
		Color:       "white",
		Difficulty:  "beginner",
	})
	require.NoError(t, err)

	assert.Equal(t, "white", rec.PlayerColor)
	assert.Equal(t, "black", rec.EngineColor)
	assert.Equal(t, 1, rec.EngineDepth)
	assert.Equal(t, engine.MinElo, rec.EngineRating, "preset rating clamps up to the analyzer floor")
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, board.StartingFEN, rec.FEN)
	assert.Equal(t, 300000, rec.Clocks.PlayerMs)
	assert.Equal(t, 300000, rec.Clocks.EngineMs)
}

func TestResolveEngineSettings(t *testing.T) {
	cases := []struct {
		name       string
		params     CreateParams
		depth      int
		rating     int
		difficulty string
	}{
		{"difficulty wins", CreateParams{Difficulty: "grandmaster", EngineRating: 900, EngineDepth: 1}, 5, 2400, "grandmaster"},
		{"rating maps to nearest", CreateParams{EngineRating: 1700}, 3, 1700, "advanced"},
		{"depth maps to preset", CreateParams{EngineDepth: 2}, 2, engine.MinElo, "intermediate"},
		{"default depth", CreateParams{}, 3, 1600, "advanced"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			depth, rating, difficulty := resolveEngineSettings(tc.params, 3)
			assert.Equal(t, tc.depth, depth)
			assert.Equal(t, tc.rating, rating)
			assert.Equal(t, tc.difficulty, difficulty)
		})
	}
}

func TestSubmitMoveProducesEngineReply(t *testing.T) {
	svc, _, sink := newTestService(t, &scriptedAnalyzer{moves: []string{"e7e5"}})
	rec, err := svc.Create(context.Background(), CreateParams{
		TimeControl: TimeControl{InitialMs: 300000},
		Color:       "white",
		Difficulty:  "beginner",
	})
	require.NoError(t, err)

	res, err := svc.SubmitMove(context.Background(), rec.SessionID, MoveRequest{
		UCI:   "e2e4",
		Clock: ClockState{PlayerMs: 299000, EngineMs: 300000},
	})
	require.NoError(t, err)

	assert.Equal(t, "e7e5", res.EngineMove)
	assert.Equal(t, "white", res.GameState.Turn)
	assert.Equal(t, 2, res.GameState.MoveNumber)
	require.NotNil(t, res.LatestInsight)
	assert.Equal(t, "player", res.LatestInsight.Side)
	assert.Equal(t, "e4", res.LatestInsight.SAN)

	saved, err := svc.Get(context.Background(), rec.SessionID)
	require.NoError(t, err)
	require.Len(t, saved.MoveLog, 2)
	assert.Equal(t, "player", saved.MoveLog[0].Side)
	assert.Equal(t, "engine", saved.MoveLog[1].Side)
	assert.Equal(t, 1, saved.MoveLog[0].Ply)
	assert.Equal(t, 2, saved.MoveLog[1].Ply)
	assert.Equal(t, ClockState{PlayerMs: 299000, EngineMs: 300000}, saved.Clocks, "clocks echo the client values")
	assert.Equal(t, []string{"engine_move"}, sink.types())
}

func TestSubmitMoveIllegal(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedAnalyzer{})
	rec, err := svc.Create(context.Background(), CreateParams{Color: "white"})
	require.NoError(t, err)

	_, err = svc.SubmitMove(context.Background(), rec.SessionID, MoveRequest{UCI: "e2e5"})
	assert.Equal(t, apperr.IllegalMove, apperr.KindOf(err))

	_, err = svc.SubmitMove(context.Background(), rec.SessionID, MoveRequest{UCI: "e7e8x"})
	assert.Equal(t, apperr.IllegalMove, apperr.KindOf(err))
}

func TestSubmitMoveWrongTurn(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedAnalyzer{moves: []string{"e2e4"}})
	rec, err := svc.Create(context.Background(), CreateParams{Color: "black"})
	require.NoError(t, err)

	_, err = svc.SubmitMove(context.Background(), rec.SessionID, MoveRequest{UCI: "e7e5"})
	assert.Equal(t, apperr.WrongTurn, apperr.KindOf(err))

	// Empty uci triggers the engine's first move instead.
	res, err := svc.SubmitMove(context.Background(), rec.SessionID, MoveRequest{})
	require.NoError(t, err)
	assert.Equal(t, "e2e4", res.EngineMove)
}

func TestSubmitMoveNotFound(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedAnalyzer{})
	_, err := svc.SubmitMove(context.Background(), "missing", MoveRequest{UCI: "e2e4"})
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestFoolsMateCompletesSession(t *testing.T) {
	// Player takes black; the scripted engine walks into the mate.
	svc, _, sink := newTestService(t, &scriptedAnalyzer{moves: []string{"f2f3", "g2g4"}})
	rec, err := svc.Create(context.Background(), CreateParams{Color: "black", Difficulty: "beginner"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.SubmitMove(ctx, rec.SessionID, MoveRequest{})
	require.NoError(t, err)
	_, err = svc.SubmitMove(ctx, rec.SessionID, MoveRequest{UCI: "e7e5"})
	require.NoError(t, err)

	res, err := svc.SubmitMove(ctx, rec.SessionID, MoveRequest{UCI: "d8h4"})
	require.NoError(t, err)

	assert.Equal(t, ResultCheckmate, res.Result)
	assert.Equal(t, "player", res.Winner)
	assert.Contains(t, res.Message, "checkmate")
	assert.Empty(t, res.EngineMove)
	assert.Equal(t, -engine.CheckmateCp, res.EngineEvalCp, "black delivered mate")
	assert.NotZero(t, res.PlayerRatingDelta)

	saved, err := svc.Get(ctx, rec.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, saved.Status)
	assert.True(t, saved.RatingApplied)

	types := sink.types()
	assert.Equal(t, "game_over", types[len(types)-1])

	// The session is closed; further moves are rejected.
	_, err = svc.SubmitMove(ctx, rec.SessionID, MoveRequest{UCI: "a7a6"})
	assert.Equal(t, apperr.GameOver, apperr.KindOf(err))

	after, err := svc.Get(ctx, rec.SessionID)
	require.NoError(t, err)
	assert.Equal(t, saved.PlayerRating, after.PlayerRating, "rating applied exactly once")
}

func TestMoveLogReplaysToFinalFEN(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedAnalyzer{moves: []string{"e7e5", "b8c6"}})
	rec, err := svc.Create(context.Background(), CreateParams{Color: "white"})
	require.NoError(t, err)
	ctx := context.Background()

	for _, uci := range []string{"e2e4", "g1f3"} {
		_, err = svc.SubmitMove(ctx, rec.SessionID, MoveRequest{UCI: uci})
		require.NoError(t, err)
	}

	saved, err := svc.Get(ctx, rec.SessionID)
	require.NoError(t, err)

	b, err := board.FromFEN(saved.InitialFEN)
	require.NoError(t, err)
	lastPly := 0
	for _, ann := range saved.MoveLog {
		require.Greater(t, ann.Ply, lastPly, "plies strictly increasing")
		lastPly = ann.Ply
		require.NoError(t, b.ApplyUCI(ann.UCI))
	}
	assert.Equal(t, saved.FEN, b.FEN())
}

func TestResign(t *testing.T) {
	svc, _, sink := newTestService(t, &scriptedAnalyzer{})
	rec, err := svc.Create(context.Background(), CreateParams{Color: "white"})
	require.NoError(t, err)

	saved, err := svc.Resign(context.Background(), rec.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, saved.Status)
	assert.Equal(t, ResultResigned, saved.Result)
	assert.Equal(t, "engine", saved.Winner)
	assert.True(t, saved.RatingApplied)
	assert.Negative(t, saved.PlayerRatingDelta)
	assert.Contains(t, sink.types(), "game_over")
}

func TestCompletedGameUpdatesStoredProfile(t *testing.T) {
	repo := newMemoryRepo()
	profiles := &fakeProfileStore{profiles: map[string]OpponentProfile{
		"u1": {
			Style:     OpponentStyle{Tactical: 0.5, Risk: 0.5},
			MotifRisk: map[string]float64{"early_blunder": 0.5},
		},
	}}
	svc := NewService(repo, &scriptedAnalyzer{moves: []string{"e7e5"}}, nil, nil, nil, nil, profiles, 3, nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, CreateParams{Color: "white", PlayerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 0.5, rec.OpponentProfile.MotifRisk["early_blunder"], "stored model seeds the session")

	_, err = svc.SubmitMove(ctx, rec.SessionID, MoveRequest{UCI: "e2e4"})
	require.NoError(t, err)
	_, err = svc.Resign(ctx, rec.SessionID)
	require.NoError(t, err)

	require.Equal(t, 1, profiles.saves)
	saved := profiles.profiles["u1"]
	assert.Greater(t, saved.MotifRisk["early_blunder"], 0.5, "a quick loss raises the early-blunder risk")
}

func TestAnonymousSessionSkipsProfileStore(t *testing.T) {
	repo := newMemoryRepo()
	profiles := &fakeProfileStore{}
	svc := NewService(repo, &scriptedAnalyzer{}, nil, nil, nil, nil, profiles, 3, nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, CreateParams{Color: "white"})
	require.NoError(t, err)
	_, err = svc.Resign(ctx, rec.SessionID)
	require.NoError(t, err)
	assert.Zero(t, profiles.saves)
}

func TestCoachLimitResetsWhenSessionEnds(t *testing.T) {
	repo := newMemoryRepo()
	limiter := coach.NewLimiter(time.Minute, 1)
	svc := NewService(repo, &scriptedAnalyzer{}, nil, nil, coach.NewService(nil, nil), limiter, nil, 3, nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, CreateParams{Color: "white"})
	require.NoError(t, err)

	_, err = svc.Coach(ctx, rec.SessionID)
	require.NoError(t, err)
	_, err = svc.Coach(ctx, rec.SessionID)
	assert.Equal(t, apperr.RateLimited, apperr.KindOf(err))

	_, err = svc.Resign(ctx, rec.SessionID)
	require.NoError(t, err)
	_, err = svc.Coach(ctx, rec.SessionID)
	require.NoError(t, err, "completing the session frees the coach budget")
}

func TestRatingDelta(t *testing.T) {
	assert.Equal(t, 16, ratingDelta(1200, 1200, 1))
	assert.Equal(t, -16, ratingDelta(1200, 1200, 0))
	assert.Equal(t, 0, ratingDelta(1200, 1200, 0.5))
	assert.Positive(t, ratingDelta(1200, 2000, 0.5), "draw against a stronger engine gains points")
}

func TestGetReplay(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedAnalyzer{moves: []string{"e7e5"}})
	rec, err := svc.Create(context.Background(), CreateParams{Color: "white"})
	require.NoError(t, err)
	_, err = svc.SubmitMove(context.Background(), rec.SessionID, MoveRequest{UCI: "e2e4"})
	require.NoError(t, err)

	replay, err := svc.GetReplay(context.Background(), rec.SessionID)
	require.NoError(t, err)
	require.Len(t, replay.Plies, 2)
	assert.Equal(t, 1, replay.Plies[0].Ply)
	assert.Equal(t, board.StartingFEN, replay.InitialFEN)
	assert.NotEmpty(t, replay.VerdictCounts)
}

func TestMultiplayerMoveClockAndTurn(t *testing.T) {
	svc, repo, sink := newTestService(t, &scriptedAnalyzer{})
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	rec, err := svc.CreateMultiplayer(context.Background(), MultiplayerCreateParams{
		PlayerWhiteID: "A",
		PlayerBlackID: "B",
		TimeControl:   TimeControl{InitialMs: 600000, IncrementMs: 5000},
	})
	require.NoError(t, err)
	ctx := context.Background()

	// B tries to move on white's turn.
	_, err = svc.MultiplayerMove(ctx, rec.SessionID, MoveRequest{UCI: "e2e4", PlayerID: "B"})
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	// A moves 3 seconds after creation: pays 3s, gains the increment.
	svc.now = func() time.Time { return base.Add(3 * time.Second) }
	res, err := svc.MultiplayerMove(ctx, rec.SessionID, MoveRequest{UCI: "e2e4", PlayerID: "A"})
	require.NoError(t, err)
	assert.Equal(t, 600000-3000+5000, res.Clocks.PlayerMs)
	assert.Equal(t, 600000, res.Clocks.EngineMs)
	require.NotNil(t, res.LatestInsight)
	assert.Equal(t, 1, res.LatestInsight.Ply)

	saved, err := repo.Get(ctx, rec.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, saved.Status)
	assert.Contains(t, sink.types(), "player_move")
}

func TestMultiplayerDrawAndAbort(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedAnalyzer{})
	ctx := context.Background()

	rec, err := svc.CreateMultiplayer(ctx, MultiplayerCreateParams{
		PlayerWhiteID: "A", PlayerBlackID: "B",
		TimeControl: TimeControl{InitialMs: 60000},
	})
	require.NoError(t, err)
	drawn, err := svc.MultiplayerDraw(ctx, rec.SessionID, "A")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, drawn.Status)
	assert.Equal(t, ResultDraw, drawn.Result)
	assert.Equal(t, "draw", drawn.Winner)

	rec2, err := svc.CreateMultiplayer(ctx, MultiplayerCreateParams{
		PlayerWhiteID: "A", PlayerBlackID: "B",
		TimeControl: TimeControl{InitialMs: 60000},
	})
	require.NoError(t, err)
	aborted, err := svc.MultiplayerAbort(ctx, rec2.SessionID, "B")
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, aborted.Status)
	assert.Equal(t, ResultAbandoned, aborted.Result)
	assert.Empty(t, aborted.Winner)

	_, err = svc.MultiplayerResign(ctx, rec.SessionID, "C")
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestMultiplayerResignWinner(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedAnalyzer{})
	ctx := context.Background()
	rec, err := svc.CreateMultiplayer(ctx, MultiplayerCreateParams{
		PlayerWhiteID: "A", PlayerBlackID: "B",
		TimeControl: TimeControl{InitialMs: 60000},
	})
	require.NoError(t, err)

	saved, err := svc.MultiplayerResign(ctx, rec.SessionID, "A")
	require.NoError(t, err)
	assert.Equal(t, "black", saved.Winner, "white resigned")
	assert.Equal(t, ResultResigned, saved.Result)
}
