/*
progress.go - Pointer advancement and completion recording

PURPOSE:
  The ProgressTracker owns the per-user pointer and the set of
  completed coordinates. It advances the pointer exactly once per
  distinct completed coordinate, in plan order.

CLASSIFICATION:
  - advanced:          the coordinate equals the pointer and is new
  - alreadyCompleted:  a completion row exists; nothing is written
  - outOfSequence:     any other coordinate; logged, pointer unmoved

POINTER RULE:
  Only an on-pointer completion advances. Catch-up or read-ahead
  submissions are recorded as read events for the audit log but never
  move the pointer.

CONCURRENCY:
  The advance is a compare-and-swap on the pointer row. Two concurrent
  completions for the same user cannot both observe the same
  pre-advance pointer and both succeed; the loser gets
  ErrConcurrentModification and the engine retries the whole
  submission.
*/
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ProgressTracker records completions against the plan.
type ProgressTracker struct {
	Plan *Plan
}

// RecordCompletion applies a read for coord on behalf of u, using s for
// all writes so the caller controls atomicity. It returns the
// classification and the pointer after the call.
func (t *ProgressTracker) RecordCompletion(ctx context.Context, s Store, u User, coord Coordinate, now time.Time) (CompletionResult, Coordinate, error) {
	if !coord.Valid() {
		return "", u.Pointer, ErrInvalidCoordinate
	}
	if _, ok := t.Plan.Entry(coord); !ok {
		return "", u.Pointer, ErrPlanEntryNotFound
	}

	done, err := s.HasCompletion(ctx, u.ID, coord)
	if err != nil {
		return "", u.Pointer, err
	}
	if done {
		// Replay-safe even if the idempotency guard were bypassed:
		// no duplicate row, no pointer move.
		return ResultAlreadyCompleted, u.Pointer, nil
	}

	if coord != u.Pointer {
		err := s.AppendEvent(ctx, Event{
			ID:        EventID(uuid.NewString()),
			UserID:    u.ID,
			Kind:      KindRead,
			Coord:     &coord,
			Reason:    "out of sequence",
			CreatedAt: now,
		})
		if err != nil {
			return "", u.Pointer, err
		}
		return ResultOutOfSequence, u.Pointer, nil
	}

	err = s.InsertCompletion(ctx, Completion{
		ID:          CompletionID(uuid.NewString()),
		UserID:      u.ID,
		Coord:       coord,
		CompletedAt: now,
	})
	if errors.Is(err, ErrAlreadyCompleted) {
		// Lost a race with an identical completion in another
		// transaction that committed between our check and insert.
		return ResultAlreadyCompleted, u.Pointer, nil
	}
	if err != nil {
		return "", u.Pointer, err
	}

	err = s.AppendEvent(ctx, Event{
		ID:        EventID(uuid.NewString()),
		UserID:    u.ID,
		Kind:      KindRead,
		Coord:     &coord,
		CreatedAt: now,
	})
	if err != nil {
		return "", u.Pointer, err
	}

	next := coord.Next()
	if err := s.SetPointer(ctx, u.ID, next, u.Pointer); err != nil {
		return "", u.Pointer, err
	}
	return ResultAdvanced, next, nil
}

// =============================================================================
// SCHEDULER QUERIES - Read-only
// =============================================================================

// PendingForToday returns the users due a reading as of now: plan not
// complete and no daily card delivered on their current local date.
func (t *ProgressTracker) PendingForToday(ctx context.Context, s Store, now time.Time) ([]User, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	var due []User
	for _, u := range users {
		if u.Pointer.IsComplete() {
			continue
		}
		loc, err := LoadTimezone(u.Timezone)
		if err != nil {
			continue // skip rather than fail the whole sweep
		}
		if u.LastDailySent == LocalDateOf(now, loc) {
			continue
		}
		due = append(due, u)
	}
	return due, nil
}

// NotYetReadToday returns the users with no completion on their current
// local date as of now.
func (t *ProgressTracker) NotYetReadToday(ctx context.Context, s Store, now time.Time) ([]User, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	var unread []User
	for _, u := range users {
		if u.Pointer.IsComplete() {
			continue
		}
		loc, err := LoadTimezone(u.Timezone)
		if err != nil {
			continue
		}
		from, to := LocalDateOf(now, loc).Bounds(loc)
		read, err := s.HasCompletionBetween(ctx, u.ID, from, to)
		if err != nil {
			return nil, err
		}
		if !read {
			unread = append(unread, u)
		}
	}
	return unread, nil
}
