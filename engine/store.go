/*
store.go - Persistence interfaces for the engine

PURPOSE:
  Defines the interface between the engine and the durable store.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:   All persistence the engine needs (users, callbacks,
           completions, events, plan)
  TxStore: Store plus WithTx for atomic multi-row effects

APPEND-ONLY CONTRACT:
  Events and completions have no Update or Delete methods. Completions
  are unique per (user, coordinate); a second insert fails with
  ErrAlreadyCompleted. Processed callbacks are insert-if-absent and
  never expire.

POINTER COMPARE-AND-SWAP:
  SetPointer only succeeds if the stored pointer still equals the
  expected value, returning ErrConcurrentModification otherwise. This
  is what keeps two concurrent completions from both advancing from the
  same pre-advance pointer.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - engine/store: In-memory for testing

SEE ALSO:
  - engine.go: Runs guard-then-apply inside TxStore.WithTx
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// COMPONENT INTERFACES
// =============================================================================

// UserStore persists user identity, timezone, and the pointer.
type UserStore interface {
	// CreateUser inserts a new user. Fails with ErrUserExists if the
	// platform id is taken.
	CreateUser(ctx context.Context, u User) error

	UserByID(ctx context.Context, id UserID) (User, error)
	UserByPlatformID(ctx context.Context, platformID int64) (User, error)
	ListUsers(ctx context.Context) ([]User, error)

	// UpdateProfile refreshes the mutable identity fields.
	UpdateProfile(ctx context.Context, id UserID, username, firstName, lastName string) error

	// UpdateTimezone stores a caller-validated IANA timezone name.
	UpdateTimezone(ctx context.Context, id UserID, tz string) error

	// SetPointer moves the pointer from expected to next, failing with
	// ErrConcurrentModification if the stored pointer is not expected.
	SetPointer(ctx context.Context, id UserID, next, expected Coordinate) error

	// MarkDailySent / MarkNudgeSent record the user's local date of the
	// last delivered daily card / nudge.
	MarkDailySent(ctx context.Context, id UserID, day LocalDate) error
	MarkNudgeSent(ctx context.Context, id UserID, day LocalDate) error
}

// CallbackStore is the idempotency guard's dedup set. Append-only,
// unbounded retention.
type CallbackStore interface {
	// InsertCallback records a callback id, failing with
	// ErrDuplicateCallback if it was already recorded. Check and record
	// are a single atomic step.
	InsertCallback(ctx context.Context, callbackID string, processedAt time.Time) error
}

// CompletionStore persists one row per finished coordinate.
type CompletionStore interface {
	// InsertCompletion adds a completion, failing with
	// ErrAlreadyCompleted if the (user, coordinate) row exists.
	InsertCompletion(ctx context.Context, c Completion) error

	HasCompletion(ctx context.Context, id UserID, coord Coordinate) (bool, error)
	Completions(ctx context.Context, id UserID) ([]Completion, error)
	CountCompletions(ctx context.Context, id UserID) (int, error)

	// HasCompletionBetween reports whether any completion falls in
	// [from, to). Used for "did read today" in the user's timezone.
	HasCompletionBetween(ctx context.Context, id UserID, from, to time.Time) (bool, error)
}

// EventStore is the append-only event log.
type EventStore interface {
	AppendEvent(ctx context.Context, e Event) error

	// EventsByKind returns a user's events of one kind, oldest first.
	EventsByKind(ctx context.Context, id UserID, kind EventKind) ([]Event, error)

	// CountEventsBetween counts events of a kind with created_at in the
	// closed interval [from, to].
	CountEventsBetween(ctx context.Context, id UserID, kind EventKind, from, to time.Time) (int, error)
}

// PlanStore persists the seeded reading plan.
type PlanStore interface {
	// SeedPlan replaces the plan table atomically. Seed-time only.
	SeedPlan(ctx context.Context, entries []PlanEntry) error

	PlanEntries(ctx context.Context) ([]PlanEntry, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

// Store is everything the engine persists.
type Store interface {
	UserStore
	CallbackStore
	CompletionStore
	EventStore
	PlanStore
}

// TxStore wraps Store with transaction support.
//
// WithTx executes fn against a transactional view of the store. If fn
// returns an error, every write it made is rolled back; otherwise all
// are committed together. The engine relies on this for "either the
// whole accept-and-apply step commits or none of it does".
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
