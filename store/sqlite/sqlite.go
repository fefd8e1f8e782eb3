/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements engine.TxStore using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  plan:                Immutable reading schedule (seeded once)
  users:               Identity, timezone, pointer, delivery stamps
  completions:         One row per finished coordinate
  events:              Append-only event log (read, break, nudge)
  processed_callbacks: Idempotency dedup set, unbounded retention

INVARIANTS ENFORCED IN SCHEMA:
  - completions is UNIQUE(user_id, month, day): a replayed read cannot
    create a second row even if it reaches the insert
  - processed_callbacks has callback_id as PRIMARY KEY: the guard's
    insert-if-absent is a single atomic statement
  - events has no UPDATE or DELETE statements anywhere in this package

POINTER COMPARE-AND-SWAP:
  SetPointer is an UPDATE conditioned on the current pointer columns.
  Zero rows affected means another writer advanced first; the caller
  sees engine.ErrConcurrentModification and retries the submission.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency: readers don't block, single writer at a time. Writes are
  additionally serialized through a single connection so concurrent
  transactions queue instead of failing with SQLITE_BUSY.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/reading-engine/engine"
)

// Store implements engine.TxStore using SQLite.
type Store struct {
	db *sql.DB
	conn
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite allows a single writer anyway, and this
	// keeps BeginTx from ever hitting SQLITE_BUSY on our own writes.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, conn: conn{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Reading plan (immutable after seed)
	CREATE TABLE IF NOT EXISTS plan (
		month INTEGER NOT NULL,
		day INTEGER NOT NULL,
		nt1_book TEXT NOT NULL,
		nt1_chapter TEXT NOT NULL,
		nt2_book TEXT NOT NULL,
		nt2_chapter TEXT NOT NULL,
		ot1_book TEXT NOT NULL,
		ot1_chapter TEXT NOT NULL,
		ot2_book TEXT NOT NULL,
		ot2_chapter TEXT NOT NULL,
		PRIMARY KEY (month, day)
	);

	-- Users (pointer + profile)
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		platform_id INTEGER NOT NULL UNIQUE,
		username TEXT,
		first_name TEXT,
		last_name TEXT,
		timezone TEXT NOT NULL,
		current_month INTEGER NOT NULL,
		current_day INTEGER NOT NULL,
		last_daily_sent TEXT,
		last_nudge_sent TEXT,
		created_at TEXT NOT NULL
	);

	-- Completions (one row per finished coordinate)
	CREATE TABLE IF NOT EXISTS completions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		month INTEGER NOT NULL,
		day INTEGER NOT NULL,
		completed_at TEXT NOT NULL,
		UNIQUE (user_id, month, day)
	);

	CREATE INDEX IF NOT EXISTS idx_completions_user_completed_at
		ON completions(user_id, completed_at);

	-- Events (append-only audit/derivation log)
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		kind TEXT NOT NULL,
		plan_month INTEGER,
		plan_day INTEGER,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot path: trailing-window break counts and per-kind scans
	CREATE INDEX IF NOT EXISTS idx_events_user_kind_created_at
		ON events(user_id, kind, created_at);

	-- Idempotency dedup set (append-only, never expires)
	CREATE TABLE IF NOT EXISTS processed_callbacks (
		callback_id TEXT PRIMARY KEY,
		processed_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// CONN - engine.Store over either *sql.DB or *sql.Tx
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	db dbtx
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

func (c *conn) CreateUser(ctx context.Context, u engine.User) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO users
		(id, platform_id, username, first_name, last_name, timezone,
		 current_month, current_day, last_daily_sent, last_nudge_sent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.PlatformID, u.Username, u.FirstName, u.LastName, u.Timezone,
		u.Pointer.Month, u.Pointer.Day,
		nullLocalDate(u.LastDailySent), nullLocalDate(u.LastNudgeSent),
		u.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

const userColumns = `id, platform_id, username, first_name, last_name, timezone,
	current_month, current_day, last_daily_sent, last_nudge_sent, created_at`

func (c *conn) UserByID(ctx context.Context, id engine.UserID) (engine.User, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (c *conn) UserByPlatformID(ctx context.Context, platformID int64) (engine.User, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE platform_id = ?`, platformID)
	return scanUser(row)
}

func (c *conn) ListUsers(ctx context.Context) ([]engine.User, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []engine.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (c *conn) UpdateProfile(ctx context.Context, id engine.UserID, username, firstName, lastName string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE users SET username = ?, first_name = ?, last_name = ? WHERE id = ?`,
		username, firstName, lastName, id)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return requireRow(res)
}

func (c *conn) UpdateTimezone(ctx context.Context, id engine.UserID, tz string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE users SET timezone = ? WHERE id = ?`, tz, id)
	if err != nil {
		return fmt.Errorf("failed to update timezone: %w", err)
	}
	return requireRow(res)
}

// SetPointer is the pointer compare-and-swap: the UPDATE only matches
// if the stored pointer still equals expected.
func (c *conn) SetPointer(ctx context.Context, id engine.UserID, next, expected engine.Coordinate) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE users SET current_month = ?, current_day = ?
		WHERE id = ? AND current_month = ? AND current_day = ?`,
		next.Month, next.Day, id, expected.Month, expected.Day)
	if err != nil {
		return fmt.Errorf("failed to set pointer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := c.UserByID(ctx, id); err != nil {
			return err
		}
		return &engine.ConflictError{UserID: id, Expected: expected}
	}
	return nil
}

func (c *conn) MarkDailySent(ctx context.Context, id engine.UserID, day engine.LocalDate) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE users SET last_daily_sent = ? WHERE id = ?`, day.String(), id)
	if err != nil {
		return fmt.Errorf("failed to mark daily sent: %w", err)
	}
	return requireRow(res)
}

func (c *conn) MarkNudgeSent(ctx context.Context, id engine.UserID, day engine.LocalDate) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE users SET last_nudge_sent = ? WHERE id = ?`, day.String(), id)
	if err != nil {
		return fmt.Errorf("failed to mark nudge sent: %w", err)
	}
	return requireRow(res)
}

// -----------------------------------------------------------------------------
// Callbacks
// -----------------------------------------------------------------------------

func (c *conn) InsertCallback(ctx context.Context, callbackID string, processedAt time.Time) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO processed_callbacks (callback_id, processed_at) VALUES (?, ?)`,
		callbackID, processedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateCallback
		}
		return fmt.Errorf("failed to insert callback: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Completions
// -----------------------------------------------------------------------------

func (c *conn) InsertCompletion(ctx context.Context, comp engine.Completion) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO completions (id, user_id, month, day, completed_at)
		VALUES (?, ?, ?, ?, ?)`,
		comp.ID, comp.UserID, comp.Coord.Month, comp.Coord.Day,
		comp.CompletedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrAlreadyCompleted
		}
		return fmt.Errorf("failed to insert completion: %w", err)
	}
	return nil
}

func (c *conn) HasCompletion(ctx context.Context, id engine.UserID, coord engine.Coordinate) (bool, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM completions WHERE user_id = ? AND month = ? AND day = ?`,
		id, coord.Month, coord.Day).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check completion: %w", err)
	}
	return count > 0, nil
}

func (c *conn) Completions(ctx context.Context, id engine.UserID) ([]engine.Completion, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, month, day, completed_at
		FROM completions WHERE user_id = ?
		ORDER BY month ASC, day ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	var comps []engine.Completion
	for rows.Next() {
		var (
			comp        engine.Completion
			completedAt string
		)
		if err := rows.Scan(&comp.ID, &comp.UserID, &comp.Coord.Month, &comp.Coord.Day, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		comp.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		comps = append(comps, comp)
	}
	return comps, rows.Err()
}

func (c *conn) CountCompletions(ctx context.Context, id engine.UserID) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM completions WHERE user_id = ?`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completions: %w", err)
	}
	return count, nil
}

func (c *conn) HasCompletionBetween(ctx context.Context, id engine.UserID, from, to time.Time) (bool, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM completions
		WHERE user_id = ? AND completed_at >= ? AND completed_at < ?`,
		id,
		from.UTC().Format(time.RFC3339Nano),
		to.UTC().Format(time.RFC3339Nano)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check completions in range: %w", err)
	}
	return count > 0, nil
}

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

func (c *conn) AppendEvent(ctx context.Context, e engine.Event) error {
	var month, day any
	if e.Coord != nil {
		month, day = e.Coord.Month, e.Coord.Day
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO events (id, user_id, kind, plan_month, plan_day, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Kind, month, day, nullString(e.Reason),
		e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (c *conn) EventsByKind(ctx context.Context, id engine.UserID, kind engine.EventKind) ([]engine.Event, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, kind, plan_month, plan_day, reason, created_at
		FROM events WHERE user_id = ? AND kind = ?
		ORDER BY created_at ASC, id ASC`, id, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []engine.Event
	for rows.Next() {
		var (
			e          engine.Event
			month, day sql.NullInt64
			reason     sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &month, &day, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if month.Valid && day.Valid {
			coord := engine.NewCoordinate(int(month.Int64), int(day.Int64))
			e.Coord = &coord
		}
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (c *conn) CountEventsBetween(ctx context.Context, id engine.UserID, kind engine.EventKind, from, to time.Time) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events
		WHERE user_id = ? AND kind = ? AND created_at >= ? AND created_at <= ?`,
		id, kind,
		from.UTC().Format(time.RFC3339Nano),
		to.UTC().Format(time.RFC3339Nano)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// -----------------------------------------------------------------------------
// Plan
// -----------------------------------------------------------------------------

func (c *conn) SeedPlan(ctx context.Context, entries []engine.PlanEntry) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM plan`); err != nil {
		return fmt.Errorf("failed to clear plan: %w", err)
	}
	for _, e := range entries {
		_, err := c.db.ExecContext(ctx, `
			INSERT INTO plan
			(month, day, nt1_book, nt1_chapter, nt2_book, nt2_chapter,
			 ot1_book, ot1_chapter, ot2_book, ot2_chapter)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Coord.Month, e.Coord.Day,
			e.NT1.Book, e.NT1.Chapter, e.NT2.Book, e.NT2.Chapter,
			e.OT1.Book, e.OT1.Chapter, e.OT2.Book, e.OT2.Chapter)
		if err != nil {
			return fmt.Errorf("failed to seed plan entry %s: %w", e.Coord, err)
		}
	}
	return nil
}

func (c *conn) PlanEntries(ctx context.Context) ([]engine.PlanEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT month, day, nt1_book, nt1_chapter, nt2_book, nt2_chapter,
		       ot1_book, ot1_chapter, ot2_book, ot2_chapter
		FROM plan ORDER BY month ASC, day ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan: %w", err)
	}
	defer rows.Close()

	var entries []engine.PlanEntry
	for rows.Next() {
		var e engine.PlanEntry
		err := rows.Scan(&e.Coord.Month, &e.Coord.Day,
			&e.NT1.Book, &e.NT1.Chapter, &e.NT2.Book, &e.NT2.Chapter,
			&e.OT1.Book, &e.OT1.Chapter, &e.OT2.Book, &e.OT2.Chapter)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (engine.User, error) {
	var (
		u                     engine.User
		username, first, last sql.NullString
		dailySent, nudgeSent  sql.NullString
		createdAt             string
	)
	err := row.Scan(&u.ID, &u.PlatformID, &username, &first, &last, &u.Timezone,
		&u.Pointer.Month, &u.Pointer.Day, &dailySent, &nudgeSent, &createdAt)
	if err == sql.ErrNoRows {
		return engine.User{}, engine.ErrUserNotFound
	}
	if err != nil {
		return engine.User{}, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Username = username.String
	u.FirstName = first.String
	u.LastName = last.String
	if dailySent.Valid {
		u.LastDailySent, _ = engine.ParseLocalDate(dailySent.String)
	}
	if nudgeSent.Valid {
		u.LastNudgeSent, _ = engine.ParseLocalDate(nudgeSent.String)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrUserNotFound
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullLocalDate(d engine.LocalDate) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
