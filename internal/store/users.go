package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jcai27/Chessica/internal/apperr"
	"github.com/jcai27/Chessica/internal/session"
)

// User is one account row.
type User struct {
	ID             string     `json:"user_id"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Username       string     `json:"username"`
	RatingHint     *int       `json:"rating_hint,omitempty"`
	ExploitDefault string     `json:"exploit_default"`
	ShareDataOptIn bool       `json:"share_data_opt_in"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
}

// UserStore persists accounts and per-user opponent profiles.
type UserStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// NewUserStore wires the account tables.
func NewUserStore(db *sql.DB, driver string) *UserStore {
	return &UserStore{db: db, driver: driver, now: func() time.Time { return time.Now().UTC() }}
}

// CreateUser inserts an account; duplicate emails surface as Forbidden.
func (s *UserStore) CreateUser(ctx context.Context, email, passwordHash, username string) (*User, error) {
	now := s.now()
	u := &User{
		ID:             strings.ReplaceAll(uuid.NewString(), "-", ""),
		Email:          strings.ToLower(email),
		PasswordHash:   passwordHash,
		Username:       username,
		ExploitDefault: "auto",
		ShareDataOptIn: true,
		CreatedAt:      now,
	}
	query := rebind(s.driver, `INSERT INTO users
		(id, email, password_hash, username, exploit_default, share_data_opt_in, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.Username, u.ExploitDefault, boolToInt(u.ShareDataOptIn), now, now); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return nil, apperr.Newf(apperr.Forbidden, "email %s is already registered", u.Email)
		}
		return nil, apperr.Wrap(apperr.Persistence, "insert user", err)
	}
	return u, nil
}

// GetUserByEmail loads an account for sign-in.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := rebind(s.driver, `SELECT id, email, password_hash, username, rating_hint,
		exploit_default, share_data_opt_in, created_at, last_login_at
		FROM users WHERE email = ?`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, strings.ToLower(email)))
}

// GetUser loads an account by id.
func (s *UserStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := rebind(s.driver, `SELECT id, email, password_hash, username, rating_hint,
		exploit_default, share_data_opt_in, created_at, last_login_at
		FROM users WHERE id = ?`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// TouchLogin records a successful sign-in.
func (s *UserStore) TouchLogin(ctx context.Context, id string) error {
	query := rebind(s.driver, `UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`)
	now := s.now()
	if _, err := s.db.ExecContext(ctx, query, now, now, id); err != nil {
		return apperr.Wrap(apperr.Persistence, "touch login", err)
	}
	return nil
}

func (s *UserStore) scanUser(row rowScanner) (*User, error) {
	var (
		u          User
		ratingHint sql.NullInt64
		shareOptIn int
		lastLogin  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Username, &ratingHint,
		&u.ExploitDefault, &shareOptIn, &u.CreatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "user not found")
		}
		return nil, apperr.Wrap(apperr.Persistence, "load user", err)
	}
	u.ShareDataOptIn = shareOptIn != 0
	if ratingHint.Valid {
		v := int(ratingHint.Int64)
		u.RatingHint = &v
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

// GetOpponentProfile loads a user's stored opponent model, defaulting
// when none has been written yet.
func (s *UserStore) GetOpponentProfile(ctx context.Context, userID string) (session.OpponentProfile, error) {
	query := rebind(s.driver, `SELECT profile FROM opponent_profiles WHERE user_id = ?`)
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return session.DefaultOpponentProfile(), nil
	}
	if err != nil {
		return session.OpponentProfile{}, apperr.Wrap(apperr.Persistence, "load opponent profile", err)
	}
	var profile session.OpponentProfile
	if err := json.Unmarshal(payload, &profile); err != nil {
		return session.OpponentProfile{}, apperr.Wrap(apperr.Persistence, "decode opponent profile", err)
	}
	return profile, nil
}

// SaveOpponentProfile upserts the user's opponent model.
func (s *UserStore) SaveOpponentProfile(ctx context.Context, userID string, profile session.OpponentProfile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "encode opponent profile", err)
	}
	now := s.now()

	update := rebind(s.driver, `UPDATE opponent_profiles SET profile = ?, updated_at = ? WHERE user_id = ?`)
	res, err := s.db.ExecContext(ctx, update, payload, now, userID)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "save opponent profile", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	insert := rebind(s.driver, `INSERT INTO opponent_profiles (user_id, profile, updated_at) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, insert, userID, payload, now); err != nil {
		return apperr.Wrap(apperr.Persistence, "save opponent profile", err)
	}
	return nil
}
