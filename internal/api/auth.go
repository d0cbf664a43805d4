package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/jcai27/Chessica/internal/apperr"
	"github.com/jcai27/Chessica/internal/store"
)

func (s *Server) handleAuthFeature(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.deps.Config.AuthFeatureEnabled})
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        *store.User `json:"user"`
}

func (s *Server) authEnabled(w http.ResponseWriter) bool {
	if s.deps.Config.AuthFeatureEnabled && s.deps.Users != nil {
		return true
	}
	writeError(w, s.logger, apperr.New(apperr.FeatureDisabled, "accounts are not enabled on this deployment"))
	return false
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if !s.authEnabled(w) {
		return
	}
	var req signUpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		writeError(w, s.logger, apperr.New(apperr.IllegalMove, "email and a password of at least 8 characters are required"))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, s.logger, apperr.Wrap(apperr.Internal, "hash password", err))
		return
	}
	user, err := s.deps.Users.CreateUser(r.Context(), req.Email, string(hash), req.Username)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.issueToken(w, http.StatusCreated, user)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if !s.authEnabled(w) {
		return
	}
	var req signInRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := s.deps.Users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			err = apperr.New(apperr.Unauthorized, "invalid email or password")
		}
		writeError(w, s.logger, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, s.logger, apperr.New(apperr.Unauthorized, "invalid email or password"))
		return
	}
	if err := s.deps.Users.TouchLogin(r.Context(), user.ID); err != nil {
		s.logger.Warn("touch login failed", "user_id", user.ID, "error", err)
	}
	s.issueToken(w, http.StatusOK, user)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if !s.authEnabled(w) {
		return
	}
	userID, err := s.authenticate(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	user, err := s.deps.Users.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) issueToken(w http.ResponseWriter, status int, user *store.User) {
	exp := time.Duration(s.deps.Config.JWTExpMinutes) * time.Minute
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(exp)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.deps.Config.JWTSecret))
	if err != nil {
		writeError(w, s.logger, apperr.Wrap(apperr.Internal, "sign token", err))
		return
	}
	writeJSON(w, status, tokenResponse{AccessToken: token, TokenType: "bearer", User: user})
}

// authenticate extracts and verifies the bearer token, returning the
// user id it was issued for.
func (s *Server) authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || raw == "" {
		return "", apperr.New(apperr.Unauthorized, "missing bearer token")
	}
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.New(apperr.Unauthorized, "unexpected signing method")
		}
		return []byte(s.deps.Config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", apperr.New(apperr.Unauthorized, "invalid or expired token")
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", apperr.New(apperr.Unauthorized, "invalid token claims")
	}
	return claims.Subject, nil
}
