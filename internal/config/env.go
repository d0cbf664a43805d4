// Package config loads service configuration from the environment.
// A .env file is honored when present; every value has a development
// default so the server boots with no configuration at all.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the session engine reads at startup.
type Config struct {
	APIPrefix    string
	AllowOrigins []string
	ListenAddr   string
	WebsocketURL string

	DatabaseURL string
	RedisURL    string

	EngineDefaultDepth  int
	StockfishPath       string
	EngineMoveTimeLimit time.Duration

	CoachLLMURL          string
	CoachLLMAPIKey       string
	CoachLLMModel        string
	CoachRateLimitWindow time.Duration
	CoachRateLimitMax    int

	JWTSecret          string
	JWTExpMinutes      int
	AuthFeatureEnabled bool
}

// Load reads .env (if present) and resolves the configuration.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		APIPrefix:    getString("API_PREFIX", "/api/v1"),
		AllowOrigins: getList("ALLOW_ORIGINS", []string{"*"}),
		ListenAddr:   getString("LISTEN_ADDR", ":8000"),
		WebsocketURL: getString("WEBSOCKET_URL", "ws://localhost:8000"),

		DatabaseURL: getString("DATABASE_URL", "sqlite://chessica.db"),
		RedisURL:    getString("REDIS_URL", ""),

		EngineDefaultDepth:  getInt("ENGINE_DEFAULT_DEPTH", 3),
		StockfishPath:       getString("STOCKFISH_PATH", "stockfish"),
		EngineMoveTimeLimit: getDuration("ENGINE_MOVE_TIME_LIMIT", 600*time.Millisecond),

		CoachLLMURL:          getString("COACH_LLM_URL", ""),
		CoachLLMAPIKey:       getString("COACH_LLM_API_KEY", ""),
		CoachLLMModel:        getString("COACH_LLM_MODEL", "gpt-4o-mini"),
		CoachRateLimitWindow: getDuration("COACH_RATE_LIMIT_WINDOW", 60*time.Second),
		CoachRateLimitMax:    getInt("COACH_RATE_LIMIT_MAX", 6),

		JWTSecret:          getString("JWT_SECRET", "dev-secret"),
		JWTExpMinutes:      getInt("JWT_EXP_MINUTES", 60*24),
		AuthFeatureEnabled: getBool("AUTH_FEATURE_ENABLED", false),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getDuration accepts either a Go duration string ("600ms") or a bare
// number of seconds ("8").
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
