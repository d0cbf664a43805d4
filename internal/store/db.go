// Package store persists sessions, telemetry events, and users behind
// SQL (SQLite or Postgres) with a write-through cache in front of the
// session table.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Drivers the repository speaks.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Open maps a database URL to a driver and opens the pool.
// sqlite://file.db and sqlite:///path/file.db select SQLite;
// postgres:// and postgresql:// select Postgres.
func Open(databaseURL string) (*sql.DB, string, error) {
	driver, dsn, err := parseDatabaseURL(databaseURL)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s database: %w", driver, err)
	}
	return db, driver, nil
}

func parseDatabaseURL(databaseURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" {
			path = ":memory:"
		}
		return DriverSQLite, path, nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DriverPostgres, databaseURL, nil
	default:
		return "", "", fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

// rebind rewrites ? placeholders into the driver's native form.
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	player_color TEXT NOT NULL,
	engine_color TEXT NOT NULL,
	exploit_mode TEXT NOT NULL,
	difficulty TEXT NOT NULL DEFAULT 'advanced',
	engine_depth INTEGER NOT NULL DEFAULT 3,
	engine_rating INTEGER NOT NULL DEFAULT 1200,
	status TEXT NOT NULL DEFAULT 'active',
	result TEXT,
	winner TEXT,
	fen TEXT NOT NULL,
	initial_fen TEXT NOT NULL,
	tc_initial_ms INTEGER NOT NULL DEFAULT 0,
	tc_increment_ms INTEGER NOT NULL DEFAULT 0,
	clock_player_ms INTEGER NOT NULL DEFAULT 300000,
	clock_engine_ms INTEGER NOT NULL DEFAULT 300000,
	moves TEXT NOT NULL DEFAULT '[]',
	opponent_profile TEXT NOT NULL DEFAULT '{}',
	last_eval_cp INTEGER NOT NULL DEFAULT 0,
	player_id TEXT,
	player_rating INTEGER NOT NULL DEFAULT 1200,
	player_rating_delta INTEGER NOT NULL DEFAULT 0,
	rating_applied INTEGER NOT NULL DEFAULT 0,
	is_multiplayer INTEGER NOT NULL DEFAULT 0,
	player_white_id TEXT,
	player_black_id TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

const eventsSchema = `
CREATE TABLE IF NOT EXISTS engine_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

const eventsSchemaPostgres = `
CREATE TABLE IF NOT EXISTS engine_events (
	id SERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	username TEXT NOT NULL,
	rating_hint INTEGER,
	exploit_default TEXT NOT NULL DEFAULT 'auto',
	share_data_opt_in INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	last_login_at TIMESTAMP
)`

const profilesSchema = `
CREATE TABLE IF NOT EXISTS opponent_profiles (
	user_id TEXT PRIMARY KEY,
	profile TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// Migrate creates the schema and applies the additive multiplayer
// migration for databases created before those columns existed.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	events := eventsSchema
	if driver == DriverPostgres {
		events = eventsSchemaPostgres
	}
	for _, stmt := range []string{sessionsSchema, events, usersSchema, profilesSchema,
		`CREATE INDEX IF NOT EXISTS idx_engine_events_session ON engine_events(session_id)`} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return ensureSessionColumns(ctx, db, driver)
}

// ensureSessionColumns adds any sessions columns missing from an older
// database.
func ensureSessionColumns(ctx context.Context, db *sql.DB, driver string) error {
	existing, err := sessionColumns(ctx, db, driver)
	if err != nil {
		return err
	}

	additive := []struct {
		name string
		ddl  string
	}{
		{"player_white_id", "player_white_id TEXT"},
		{"player_black_id", "player_black_id TEXT"},
		{"is_multiplayer", "is_multiplayer INTEGER NOT NULL DEFAULT 0"},
		{"result", "result TEXT"},
		{"winner", "winner TEXT"},
		{"initial_fen", "initial_fen TEXT NOT NULL DEFAULT 'rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1'"},
		{"rating_applied", "rating_applied INTEGER NOT NULL DEFAULT 0"},
		{"last_eval_cp", "last_eval_cp INTEGER NOT NULL DEFAULT 0"},
		{"tc_initial_ms", "tc_initial_ms INTEGER NOT NULL DEFAULT 0"},
		{"tc_increment_ms", "tc_increment_ms INTEGER NOT NULL DEFAULT 0"},
	}
	for _, col := range additive {
		if existing[col.name] {
			continue
		}
		if _, err := db.ExecContext(ctx, "ALTER TABLE sessions ADD COLUMN "+col.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}
	return nil
}

func sessionColumns(ctx context.Context, db *sql.DB, driver string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if driver == DriverSQLite {
		rows, err := db.QueryContext(ctx, "PRAGMA table_info(sessions)")
		if err != nil {
			return nil, fmt.Errorf("inspect sessions table: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				cid     int
				name    string
				ctype   string
				notnull int
				dflt    sql.NullString
				pk      int
			)
			if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
				return nil, err
			}
			existing[name] = true
		}
		return existing, rows.Err()
	}

	rows, err := db.QueryContext(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_name = 'sessions'")
	if err != nil {
		return nil, fmt.Errorf("inspect sessions table: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		existing[name] = true
	}
	return existing, rows.Err()
}
