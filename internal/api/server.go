// Package api is the HTTP and websocket boundary. Handlers decode,
// delegate to the domain services, and encode; every domain error maps
// to a stable status code through the shared taxonomy.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/jcai27/Chessica/internal/config"
	"github.com/jcai27/Chessica/internal/matchmaking"
	"github.com/jcai27/Chessica/internal/metrics"
	"github.com/jcai27/Chessica/internal/session"
	"github.com/jcai27/Chessica/internal/store"
	"github.com/jcai27/Chessica/internal/stream"
)

// Deps is everything the boundary serves.
type Deps struct {
	Config      config.Config
	Sessions    *session.Service
	Matchmaking *matchmaking.Service
	Hub         *stream.Hub
	Telemetry   *store.TelemetryStore
	Users       *store.UserStore
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Server owns the router.
type Server struct {
	deps     Deps
	logger   *slog.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
}

// NewServer builds the router with every route mounted under the API
// prefix. Health and scrape endpoints live at the root.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		deps:   deps,
		logger: deps.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(deps.Config.AllowOrigins),
		},
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the composed stack.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.router)
}

func (s *Server) buildRouter() *mux.Router {
	root := mux.NewRouter()
	if s.deps.Metrics != nil {
		root.Use(s.deps.Metrics.Middleware)
		root.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}
	root.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := root.PathPrefix(s.deps.Config.APIPrefix).Subrouter()

	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/moves", s.handleSubmitMove).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/resign", s.handleResign).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/coach", s.handleCoach).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/replay", s.handleReplay).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/pgn", s.handlePGN).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/stream", s.handleStream).Methods(http.MethodGet)

	api.HandleFunc("/multiplayer/sessions", s.handleCreateMultiplayer).Methods(http.MethodPost)
	api.HandleFunc("/multiplayer/sessions/{id}/moves", s.handleMultiplayerMove).Methods(http.MethodPost)
	api.HandleFunc("/multiplayer/sessions/{id}/resign", s.handleMultiplayerResign).Methods(http.MethodPost)
	api.HandleFunc("/multiplayer/sessions/{id}/draw", s.handleMultiplayerDraw).Methods(http.MethodPost)
	api.HandleFunc("/multiplayer/sessions/{id}/abort", s.handleMultiplayerAbort).Methods(http.MethodPost)
	api.HandleFunc("/multiplayer/queue", s.handleEnqueue).Methods(http.MethodPost)
	api.HandleFunc("/multiplayer/queue/{player_id}", s.handleQueueStatus).Methods(http.MethodGet)
	api.HandleFunc("/multiplayer/queue/{player_id}", s.handleDequeue).Methods(http.MethodDelete)

	api.HandleFunc("/analytics/sessions/{id}/events", s.handleSessionEvents).Methods(http.MethodGet)
	api.HandleFunc("/analytics/stats/{user_id}", s.handleUserStats).Methods(http.MethodGet)

	api.HandleFunc("/auth/feature", s.handleAuthFeature).Methods(http.MethodGet)
	api.HandleFunc("/auth/signup", s.handleSignUp).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", s.handleSignIn).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)

	return root
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowAll := false
	set := make(map[string]struct{})
	for _, o := range s.deps.Config.AllowOrigins {
		if o == "*" {
			allowAll = true
		}
		set[o] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := set[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
