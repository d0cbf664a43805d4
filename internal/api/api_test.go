package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcai27/Chessica/internal/coach"
	"github.com/jcai27/Chessica/internal/config"
	"github.com/jcai27/Chessica/internal/engine"
	"github.com/jcai27/Chessica/internal/matchmaking"
	"github.com/jcai27/Chessica/internal/metrics"
	"github.com/jcai27/Chessica/internal/session"
	"github.com/jcai27/Chessica/internal/store"
	"github.com/jcai27/Chessica/internal/stream"
)

// scriptedAnalyzer returns canned engine replies in order.
type scriptedAnalyzer struct {
	moves []string
}

func (a *scriptedAnalyzer) BestMove(_ context.Context, _, _ string, _ int) (string, int, error) {
	if len(a.moves) == 0 {
		return "", 0, nil
	}
	mv := a.moves[0]
	a.moves = a.moves[1:]
	return mv, 12, nil
}

func (a *scriptedAnalyzer) Evaluate(context.Context, string, string, int) (int, error) {
	return 12, nil
}

func (a *scriptedAnalyzer) MultiPV(context.Context, string, string, int, int, int) ([]engine.Variation, error) {
	return []engine.Variation{{EvalCp: 30, SANLine: []string{"Nf3", "Nc6"}}}, nil
}

type testEnv struct {
	server   *httptest.Server
	analyzer *scriptedAnalyzer
	hub      *stream.Hub
}

func newTestEnv(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()
	db, driver, err := store.Open("sqlite://")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db, driver))

	cfg := config.Config{
		APIPrefix:     "/api/v1",
		AllowOrigins:  []string{"*"},
		JWTSecret:     "test-secret",
		JWTExpMinutes: 60,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	repo := store.NewSessionStore(db, driver, store.NewMemoryCache(), nil)
	telemetry := store.NewTelemetryStore(db, driver, nil)
	users := store.NewUserStore(db, driver)
	hub := stream.NewHub(nil)
	analyzer := &scriptedAnalyzer{}

	coachSvc := coach.NewService(nil, nil)
	limiter := coach.NewLimiter(time.Minute, 1)
	sessions := session.NewService(repo, analyzer, hub, telemetry, coachSvc, limiter, users, 3, nil)
	mm := matchmaking.NewService(matchmaking.NewMemoryStore(), sessions, nil)

	srv := NewServer(Deps{
		Config:      cfg,
		Sessions:    sessions,
		Matchmaking: mm,
		Hub:         hub,
		Telemetry:   telemetry,
		Users:       users,
		Metrics:     metrics.New(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, analyzer: analyzer, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	decoded := map[string]any{}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func createSession(t *testing.T, e *testEnv, body any) string {
	resp, data := e.do(t, http.MethodPost, "/api/v1/sessions", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := data["session_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	resp, data := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", data["status"])
}

func TestCreateAndGetSession(t *testing.T) {
	e := newTestEnv(t)
	id := createSession(t, e, map[string]any{"difficulty": "beginner", "color": "white"})

	resp, data := e.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "beginner", data["difficulty"])
	assert.Equal(t, float64(engine.MinElo), data["engine_rating"], "beginner preset clamps to the floor")
	assert.Equal(t, "active", data["status"])

	resp, data = e.do(t, http.MethodGet, "/api/v1/sessions/sess_missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	errDetail := data["error"].(map[string]any)
	assert.Equal(t, "not_found", errDetail["code"])
}

func TestSubmitMoveFlow(t *testing.T) {
	e := newTestEnv(t)
	id := createSession(t, e, map[string]any{"difficulty": "intermediate"})
	e.analyzer.moves = []string{"e7e5"}

	resp, data := e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/moves",
		map[string]any{"uci": "e2e4"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "e7e5", data["engine_move"])
	state := data["game_state"].(map[string]any)
	assert.Equal(t, "w", state["turn"])

	// The opening is tagged once both book moves are on the board.
	resp, data = e.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, data["opening"], "e4 e5 is in the book")

	resp, data = e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/moves",
		map[string]any{"uci": "e2e4"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errDetail := data["error"].(map[string]any)
	assert.Equal(t, "illegal_move", errDetail["code"])
}

func TestResignEndpoint(t *testing.T) {
	e := newTestEnv(t)
	id := createSession(t, e, nil)

	resp, data := e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/resign", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", data["status"])
	assert.Equal(t, "engine", data["winner"])

	resp, data = e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/moves",
		map[string]any{"uci": "e2e4"})
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	errDetail := data["error"].(map[string]any)
	assert.Equal(t, "game_over", errDetail["code"])
}

func TestCoachRateLimit(t *testing.T) {
	e := newTestEnv(t)
	id := createSession(t, e, nil)

	resp, data := e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/coach", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, data["summary"], "Summary:")

	resp, _ = e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/coach", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestPGNEndpoint(t *testing.T) {
	e := newTestEnv(t)
	id := createSession(t, e, nil)
	e.analyzer.moves = []string{"e7e5"}
	resp, _ := e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/moves", map[string]any{"uci": "e2e4"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/api/v1/sessions/"+id+"/pgn", nil)
	require.NoError(t, err)
	raw, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()

	assert.Equal(t, "application/x-chess-pgn", raw.Header.Get("Content-Type"))
	assert.Contains(t, raw.Header.Get("Content-Disposition"), id+".pgn")
}

func TestReplayEndpoint(t *testing.T) {
	e := newTestEnv(t)
	id := createSession(t, e, nil)
	e.analyzer.moves = []string{"e7e5"}
	resp, _ := e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/moves", map[string]any{"uci": "e2e4"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := e.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/replay", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	plies := data["plies"].([]any)
	assert.Len(t, plies, 2)
}

func TestAnalyticsEndpoints(t *testing.T) {
	e := newTestEnv(t)
	id := createSession(t, e, nil)
	e.analyzer.moves = []string{"e7e5"}
	resp, _ := e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/moves", map[string]any{"uci": "e2e4"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := e.do(t, http.MethodGet, "/api/v1/analytics/sessions/"+id+"/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := data["summary"].(map[string]any)
	assert.Greater(t, summary["total_events"].(float64), 1.0)

	resp, _ = e.do(t, http.MethodGet, "/api/v1/analytics/sessions/sess_missing/events", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMatchmakingEndpoints(t *testing.T) {
	e := newTestEnv(t)
	tc := map[string]any{"initial_ms": 300000, "increment_ms": 2000}

	resp, data := e.do(t, http.MethodPost, "/api/v1/multiplayer/queue",
		map[string]any{"player_id": "alice", "time_control": tc, "color": "auto"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "queued", data["status"])

	resp, data = e.do(t, http.MethodPost, "/api/v1/multiplayer/queue",
		map[string]any{"player_id": "bob", "time_control": tc, "color": "auto"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "matched", data["status"])
	sessionID := data["session_id"].(string)

	resp, data = e.do(t, http.MethodGet, "/api/v1/multiplayer/queue/alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "matched", data["status"])
	assert.Equal(t, sessionID, data["session_id"])

	resp, data = e.do(t, http.MethodGet, "/api/v1/multiplayer/queue/alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "none", data["status"], "notification is consumed once")
}

func TestMultiplayerMoveAndDraw(t *testing.T) {
	e := newTestEnv(t)
	resp, data := e.do(t, http.MethodPost, "/api/v1/multiplayer/sessions", map[string]any{
		"player_white_id": "alice",
		"player_black_id": "bob",
		"time_control":    map[string]any{"initial_ms": 600000, "increment_ms": 0},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := data["session_id"].(string)

	resp, _ = e.do(t, http.MethodPost, "/api/v1/multiplayer/sessions/"+id+"/moves",
		map[string]any{"uci": "e2e4", "player_id": "bob"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "black cannot move first")

	resp, data = e.do(t, http.MethodPost, "/api/v1/multiplayer/sessions/"+id+"/moves",
		map[string]any{"uci": "e2e4", "player_id": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "e2e4", data["move_uci"])

	resp, data = e.do(t, http.MethodPost, "/api/v1/multiplayer/sessions/"+id+"/draw",
		map[string]any{"player_id": "bob"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "draw", data["winner"])
}

func TestAuthDisabled(t *testing.T) {
	e := newTestEnv(t)

	resp, data := e.do(t, http.MethodGet, "/api/v1/auth/feature", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, data["enabled"])

	resp, data = e.do(t, http.MethodPost, "/api/v1/auth/signup",
		map[string]any{"email": "a@b.c", "password": "longenough", "username": "a"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	errDetail := data["error"].(map[string]any)
	assert.Equal(t, "feature_disabled", errDetail["code"])
}

func TestAuthFlow(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.AuthFeatureEnabled = true })

	resp, data := e.do(t, http.MethodPost, "/api/v1/auth/signup",
		map[string]any{"email": "alice@example.com", "password": "hunter22222", "username": "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token := data["access_token"].(string)
	require.NotEmpty(t, token)

	resp, data = e.do(t, http.MethodPost, "/api/v1/auth/signin",
		map[string]any{"email": "alice@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, data = e.do(t, http.MethodPost, "/api/v1/auth/signin",
		map[string]any{"email": "alice@example.com", "password": "hunter22222"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token = data["access_token"].(string)

	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/api/v1/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	raw, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	require.Equal(t, http.StatusOK, raw.StatusCode)
	var me map[string]any
	require.NoError(t, json.NewDecoder(raw.Body).Decode(&me))
	assert.Equal(t, "alice@example.com", me["email"])

	req.Header.Set("Authorization", "Bearer not-a-token")
	raw2, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer raw2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, raw2.StatusCode)
}

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

func TestStreamUnknownSessionCloses4404(t *testing.T) {
	e := newTestEnv(t)
	conn, _, err := websocket.DefaultDialer.Dial(
		wsURL(e.server.URL, "/api/v1/sessions/sess_missing/stream"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close frame, got %v", err)
	assert.Equal(t, stream.CloseSessionNotFound, closeErr.Code)
}

func TestStreamReceivesEngineMove(t *testing.T) {
	e := newTestEnv(t)
	id := createSession(t, e, nil)

	conn, _, err := websocket.DefaultDialer.Dial(
		wsURL(e.server.URL, "/api/v1/sessions/"+id+"/stream"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the subscription to land before moving.
	require.Eventually(t, func() bool {
		return e.hub.SubscriberCount(id) == 1
	}, 2*time.Second, 10*time.Millisecond)

	e.analyzer.moves = []string{"e7e5"}
	resp, _ := e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/moves", map[string]any{"uci": "e2e4"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg stream.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "engine_move", msg.Type)
	payload := msg.Payload.(map[string]any)
	assert.Equal(t, "e7e5", payload["uci"])
}
