/*
engine.go - The engine facade

PURPOSE:
  Wires the guard, tracker, budget, and streak calculator into the
  single entry point the transport calls: Submit. Also exposes the
  read-only queries for the external scheduler.

SUBMISSION FLOW:
  begin transaction
    -> insert-if-absent the callback record (idempotency guard)
    -> if inserted, apply the event (completion or break)
  commit; abort and report duplicate if the insert failed

  A lost pointer compare-and-swap aborts the transaction and is retried
  internally a bounded number of times. If retries are exhausted the
  caller sees a retryable error and may resubmit the whole event, which
  is safe under the guard.

CANCELLATION:
  All operations are synchronous calls against the store and respect
  ctx through it. There is no internal timeout; callers retry on
  transient storage failure.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries bounds the internal retry loop around pointer
// compare-and-swap conflicts.
const DefaultMaxRetries = 3

// Engine is the progress & streak engine.
type Engine struct {
	Store    TxStore
	Plan     *Plan
	Guard    IdempotencyGuard
	Progress *ProgressTracker
	Breaks   *BreakBudget
	Streaks  StreakCalculator

	// DefaultTimezone is assigned to newly registered users.
	DefaultTimezone string

	// Clock returns the current instant. Replaceable in tests.
	Clock func() time.Time

	// MaxRetries overrides DefaultMaxRetries when positive.
	MaxRetries int
}

// New creates an engine over a validated plan and a transactional store.
func New(store TxStore, plan *Plan) *Engine {
	return &Engine{
		Store:           store,
		Plan:            plan,
		Progress:        &ProgressTracker{Plan: plan},
		Breaks:          &BreakBudget{},
		DefaultTimezone: "Asia/Singapore",
		Clock:           time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Engine) maxRetries() int {
	if e.MaxRetries > 0 {
		return e.MaxRetries
	}
	return DefaultMaxRetries
}

// =============================================================================
// SUBMISSION - The single write entry point
// =============================================================================

// Submit applies one inbound event. It validates input, admits the
// callback id, and applies the effect, all within one storage
// transaction. Every outcome except an error is a committed, final
// answer; duplicate-callback is a normal no-op outcome, not an error.
func (e *Engine) Submit(ctx context.Context, sub Submission) (Outcome, error) {
	switch sub.Kind {
	case KindRead:
		if sub.Coord == nil {
			return "", ErrCoordinateRequired
		}
	case KindBreak:
		// Coordinate optional: a floating break covers one gap day.
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEventKind, sub.Kind)
	}
	if sub.Coord != nil && !sub.Coord.Valid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidCoordinate, *sub.Coord)
	}
	if sub.CallbackID == "" {
		return "", fmt.Errorf("%w: empty callback id", ErrInvalidEventKind)
	}

	// Reject unknown users before touching the callback table, so a
	// corrected resubmission with the same callback id still applies.
	if _, err := e.Store.UserByID(ctx, sub.UserID); err != nil {
		return "", err
	}

	now := e.now()

	var outcome Outcome
	for attempt := 0; attempt < e.maxRetries(); attempt++ {
		err := e.Store.WithTx(ctx, func(s Store) error {
			admit, err := e.Guard.Admit(ctx, s, sub.CallbackID, now)
			if err != nil {
				return err
			}
			if admit == AdmitDuplicate {
				return ErrDuplicateCallback
			}

			u, err := s.UserByID(ctx, sub.UserID)
			if err != nil {
				return err
			}

			switch sub.Kind {
			case KindRead:
				res, _, err := e.Progress.RecordCompletion(ctx, s, u, *sub.Coord, now)
				if err != nil {
					return err
				}
				outcome = completionOutcome(res)
			case KindBreak:
				res, err := e.Breaks.RecordBreak(ctx, s, u, sub.Coord, now)
				if err != nil {
					return err
				}
				outcome = breakOutcome(res)
			}
			return nil
		})

		switch {
		case err == nil:
			return outcome, nil
		case errors.Is(err, ErrDuplicateCallback):
			return OutcomeDuplicateCallback, nil
		case errors.Is(err, ErrConcurrentModification):
			continue
		default:
			return "", err
		}
	}
	return "", fmt.Errorf("submission retries exhausted: %w", ErrConcurrentModification)
}

func completionOutcome(r CompletionResult) Outcome {
	switch r {
	case ResultAdvanced:
		return OutcomeAdvanced
	case ResultAlreadyCompleted:
		return OutcomeAlreadyCompleted
	default:
		return OutcomeOutOfSequence
	}
}

func breakOutcome(r BreakResult) Outcome {
	if r == BreakGranted {
		return OutcomeBreakGranted
	}
	return OutcomeBreakDenied
}

// =============================================================================
// USERS
// =============================================================================

// RegisterUser creates-or-fetches a user by platform id. New users
// start at (1, 1) with the default timezone; existing users get their
// profile fields refreshed.
func (e *Engine) RegisterUser(ctx context.Context, platformID int64, username, firstName, lastName string) (User, error) {
	u, err := e.Store.UserByPlatformID(ctx, platformID)
	if err == nil {
		if err := e.Store.UpdateProfile(ctx, u.ID, username, firstName, lastName); err != nil {
			return User{}, err
		}
		u.Username, u.FirstName, u.LastName = username, firstName, lastName
		return u, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	u = User{
		ID:         UserID(uuid.NewString()),
		PlatformID: platformID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
		Timezone:   e.DefaultTimezone,
		Pointer:    NewCoordinate(1, 1),
		CreatedAt:  e.now(),
	}
	if err := e.Store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrUserExists) {
			// Concurrent registration of the same platform id.
			return e.Store.UserByPlatformID(ctx, platformID)
		}
		return User{}, err
	}
	return u, nil
}

// UpdateTimezone validates and stores an IANA timezone name.
func (e *Engine) UpdateTimezone(ctx context.Context, id UserID, tz string) error {
	if _, err := LoadTimezone(tz); err != nil {
		return err
	}
	return e.Store.UpdateTimezone(ctx, id, tz)
}

// =============================================================================
// READ-ONLY QUERIES
// =============================================================================

// CurrentStreak derives the user's streak as of asOf.
func (e *Engine) CurrentStreak(ctx context.Context, id UserID, asOf time.Time) (int, error) {
	u, err := e.Store.UserByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return e.Streaks.CurrentStreak(ctx, e.Store, u, asOf)
}

// BreaksUsed counts granted breaks in the trailing window ending asOf.
func (e *Engine) BreaksUsed(ctx context.Context, id UserID, asOf time.Time) (int, error) {
	return e.Breaks.BreaksUsed(ctx, e.Store, id, asOf)
}

// BreaksRemaining returns the unused allowance as of asOf.
func (e *Engine) BreaksRemaining(ctx context.Context, id UserID, asOf time.Time) (int, error) {
	return e.Breaks.BreaksRemaining(ctx, e.Store, id, asOf)
}

// NextReading returns the plan entry at the user's pointer. ok is false
// once the plan is complete.
func (e *Engine) NextReading(ctx context.Context, id UserID) (PlanEntry, bool, error) {
	u, err := e.Store.UserByID(ctx, id)
	if err != nil {
		return PlanEntry{}, false, err
	}
	if u.Pointer.IsComplete() {
		return PlanEntry{}, false, nil
	}
	entry, ok := e.Plan.Entry(u.Pointer)
	if !ok {
		return PlanEntry{}, false, ErrPlanEntryNotFound
	}
	return entry, true, nil
}

// PendingForToday returns users due a daily card as of now.
func (e *Engine) PendingForToday(ctx context.Context, now time.Time) ([]User, error) {
	return e.Progress.PendingForToday(ctx, e.Store, now)
}

// NotYetReadToday returns users with no completion on their local date.
func (e *Engine) NotYetReadToday(ctx context.Context, now time.Time) ([]User, error) {
	return e.Progress.NotYetReadToday(ctx, e.Store, now)
}

// =============================================================================
// SCHEDULER BOOKKEEPING
// =============================================================================

// RecordNudge appends a nudge event and stamps the user's local date so
// at most one nudge is sent per day.
func (e *Engine) RecordNudge(ctx context.Context, id UserID) error {
	u, err := e.Store.UserByID(ctx, id)
	if err != nil {
		return err
	}
	loc, err := LoadTimezone(u.Timezone)
	if err != nil {
		return err
	}
	now := e.now()
	return e.Store.WithTx(ctx, func(s Store) error {
		err := s.AppendEvent(ctx, Event{
			ID:        EventID(uuid.NewString()),
			UserID:    u.ID,
			Kind:      KindNudge,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		return s.MarkNudgeSent(ctx, u.ID, LocalDateOf(now, loc))
	})
}

// MarkDailySent stamps the user's local date after a daily card goes out.
func (e *Engine) MarkDailySent(ctx context.Context, id UserID) error {
	u, err := e.Store.UserByID(ctx, id)
	if err != nil {
		return err
	}
	loc, err := LoadTimezone(u.Timezone)
	if err != nil {
		return err
	}
	return e.Store.MarkDailySent(ctx, u.ID, LocalDateOf(e.now(), loc))
}

// WasNudgedToday reports whether a nudge already went out on the user's
// current local date.
func (e *Engine) WasNudgedToday(u User, now time.Time) bool {
	loc, err := LoadTimezone(u.Timezone)
	if err != nil {
		return false
	}
	return u.LastNudgeSent == LocalDateOf(now, loc)
}
