// Package apperr defines the domain error taxonomy shared by the session
// engine. Every error that crosses a service boundary carries a Kind, and
// the HTTP layer maps kinds to stable status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error.
type Kind int

const (
	Internal Kind = iota
	NotFound
	Forbidden
	Unauthorized
	IllegalMove
	WrongTurn
	EngineNotToMove
	GameOver
	EngineTerminal
	EngineUnavailable
	RateLimited
	SummarizerUnavailable
	Persistence
	MatchmakingConflict
	FeatureDisabled
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Unauthorized:
		return "unauthorized"
	case IllegalMove:
		return "illegal_move"
	case WrongTurn:
		return "wrong_turn"
	case EngineNotToMove:
		return "engine_not_to_move"
	case GameOver:
		return "game_over"
	case EngineTerminal:
		return "engine_terminal"
	case EngineUnavailable:
		return "engine_unavailable"
	case RateLimited:
		return "rate_limited"
	case SummarizerUnavailable:
		return "summarizer_unavailable"
	case Persistence:
		return "persistence_error"
	case MatchmakingConflict:
		return "matchmaking_conflict"
	case FeatureDisabled:
		return "feature_disabled"
	default:
		return "internal"
	}
}

// Error is a kind-tagged error with an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a kind-tagged error with a plain message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds a kind-tagged error with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain; unclassified errors
// report Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a Kind to its stable HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case Unauthorized:
		return http.StatusUnauthorized
	case IllegalMove:
		return http.StatusBadRequest
	case WrongTurn, EngineNotToMove, MatchmakingConflict:
		return http.StatusConflict
	case GameOver:
		return http.StatusGone
	case RateLimited:
		return http.StatusTooManyRequests
	case SummarizerUnavailable:
		return http.StatusBadGateway
	case EngineTerminal, EngineUnavailable, FeatureDisabled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
