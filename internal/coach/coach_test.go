package coach

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcai27/Chessica/internal/board"
	"github.com/jcai27/Chessica/internal/engine"
)

func testInput(t *testing.T, fen string) Input {
	t.Helper()
	b, err := board.FromFEN(fen)
	require.NoError(t, err)
	return Input{
		Board:       b,
		MoverColor:  b.Turn(),
		EngineColor: chess.Black,
	}
}

func TestBriefingSectionsPresent(t *testing.T) {
	in := testInput(t, board.StartingFEN)
	b := BuildBriefing(in)

	assert.NotEmpty(t, b.Summary)
	assert.NotEmpty(t, b.Strengths)
	assert.NotEmpty(t, b.PressurePoints)
	assert.Len(t, b.Plans, 2)
	assert.Contains(t, b.Summary[0], "Material is level")
}

func TestBriefingMaterialEdge(t *testing.T) {
	// White up a full queen.
	in := testInput(t, "rnb1kbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	b := BuildBriefing(in)

	assert.Contains(t, b.Summary[0], "White is up")
	require.NotEmpty(t, b.Strengths)
	assert.Contains(t, b.Strengths[0], "material edge")
	assert.Contains(t, b.Plans[0], "convert the extra material")
}

func TestMaterialEdgeRequiresMoreThanThreshold(t *testing.T) {
	level := sideFeatures{}

	at := sideFeatures{materialCp: materialEdgeCp}
	strengths, _ := edgesSection(chess.White, at, level)
	assert.NotContains(t, strings.Join(strengths, " "), "material edge",
		"a diff of exactly the threshold is not an edge")
	assert.NotEqual(t, "trade pieces and convert the extra material.", planFor(at, level))

	over := sideFeatures{materialCp: materialEdgeCp + 1}
	strengths, _ = edgesSection(chess.White, over, level)
	assert.Contains(t, strings.Join(strengths, " "), "material edge")
	assert.Equal(t, "trade pieces and convert the extra material.", planFor(over, level))
}

func TestBriefingPressurePointsForWorseSide(t *testing.T) {
	// Black to move while down a queen.
	in := testInput(t, "rnb1kbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b KQkq - 0 1")
	b := BuildBriefing(in)

	joined := strings.Join(b.PressurePoints, " ")
	assert.Contains(t, joined, "material deficit")
}

func TestKeyLinesFormat(t *testing.T) {
	in := testInput(t, board.StartingFEN)
	in.Variations = []engine.Variation{
		{EvalCp: 35, SANLine: []string{"e4", "e5", "Nf3"}},
		{EvalCp: -120, SANLine: []string{"d4", "d5"}},
	}
	b := BuildBriefing(in)

	require.Len(t, b.KeyLines, 2)
	assert.Equal(t, "+0.35: e4 e5 Nf3", b.KeyLines[0])
	assert.Equal(t, "-1.20: d4 d5", b.KeyLines[1])
}

func TestRenderAndPrompt(t *testing.T) {
	in := testInput(t, board.StartingFEN)
	b := BuildBriefing(in)

	rendered := b.Render()
	assert.Contains(t, rendered, "Summary:")
	assert.Contains(t, rendered, "Plans:")

	prompt := b.Prompt("You made a solid choice.")
	assert.Contains(t, prompt, "exactly three sentences")
	assert.Contains(t, prompt, "Most recent move feedback: You made a solid choice.")
}

type stubSummarizer struct {
	text string
	err  error
}

func (s stubSummarizer) Summarize(context.Context, string) (string, error) {
	return s.text, s.err
}

func TestServiceUsesSummarizer(t *testing.T) {
	svc := NewService(stubSummarizer{text: "Three crisp sentences."}, slog.Default())
	text, _ := svc.Summary(context.Background(), testInput(t, board.StartingFEN))
	assert.Equal(t, "Three crisp sentences.", text)
}

func TestServiceFallsBackOnError(t *testing.T) {
	svc := NewService(stubSummarizer{err: errors.New("boom")}, slog.Default())
	text, briefing := svc.Summary(context.Background(), testInput(t, board.StartingFEN))
	assert.Equal(t, briefing.Render(), text)
}

func TestServiceFallsBackWhenUnconfigured(t *testing.T) {
	svc := NewService(nil, nil)
	text, briefing := svc.Summary(context.Background(), testInput(t, board.StartingFEN))
	assert.Equal(t, briefing.Render(), text)
}

func TestHTTPSummarizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"text":"summarized"}`))
	}))
	defer srv.Close()

	s := NewHTTPSummarizer(srv.URL, "secret", "coach-v1")
	text, err := s.Summarize(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "summarized", text)
}

func TestHTTPSummarizerNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewHTTPSummarizer(srv.URL, "", "coach-v1")
	_, err := s.Summarize(context.Background(), "prompt")
	assert.Error(t, err)
}

func TestLimiterSlidingWindow(t *testing.T) {
	l := NewLimiter(10*time.Second, 2)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("s1"))
	assert.True(t, l.Allow("s1"))
	assert.False(t, l.Allow("s1"))

	assert.True(t, l.Allow("s2"), "sessions are limited independently")

	now = now.Add(11 * time.Second)
	assert.True(t, l.Allow("s1"), "window expired")
}

func TestLimiterDisabled(t *testing.T) {
	l := NewLimiter(time.Second, 0)
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("s"))
	}
}
