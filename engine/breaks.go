/*
breaks.go - Trailing-window break budget

PURPOSE:
  A break is a user-invoked exemption that preserves streak continuity
  for a skipped day. Breaks are rationed: at most 5 granted breaks in
  any trailing 30-day window. The budget is computed from the event
  log, never stored.

DENIAL AUDIT:
  A denied attempt appends a nudge-classified marker event instead of a
  break event, so denials are auditable but can never count toward a
  future window's budget.
*/
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxBreaks is the granted-break allowance per trailing window.
const DefaultMaxBreaks = 5

// BreakWindow is the length of the trailing window.
const BreakWindow = 30 * 24 * time.Hour

// BreakBudget computes break allowance from the event log.
type BreakBudget struct {
	// MaxPer30Days overrides DefaultMaxBreaks when positive.
	MaxPer30Days int
}

func (b *BreakBudget) max() int {
	if b.MaxPer30Days > 0 {
		return b.MaxPer30Days
	}
	return DefaultMaxBreaks
}

// BreaksUsed counts break events with created_at in [asOf - 30d, asOf],
// inclusive of both ends.
func (b *BreakBudget) BreaksUsed(ctx context.Context, s EventStore, id UserID, asOf time.Time) (int, error) {
	return s.CountEventsBetween(ctx, id, KindBreak, asOf.Add(-BreakWindow), asOf)
}

// BreaksRemaining returns how many breaks may still be granted.
func (b *BreakBudget) BreaksRemaining(ctx context.Context, s EventStore, id UserID, asOf time.Time) (int, error) {
	used, err := b.BreaksUsed(ctx, s, id, asOf)
	if err != nil {
		return 0, err
	}
	left := b.max() - used
	if left < 0 {
		left = 0
	}
	return left, nil
}

// CanTakeBreak reports whether a new break may be granted as of asOf.
func (b *BreakBudget) CanTakeBreak(ctx context.Context, s EventStore, id UserID, asOf time.Time) (bool, error) {
	used, err := b.BreaksUsed(ctx, s, id, asOf)
	if err != nil {
		return false, err
	}
	return used < b.max(), nil
}

// RecordBreak grants or denies a break for u. A granted break appends a
// break event (with coord when the day being covered is known) and
// nothing else: no completion row, no pointer move. Its only effect is
// to be countable as streak-preserving evidence.
func (b *BreakBudget) RecordBreak(ctx context.Context, s Store, u User, coord *Coordinate, now time.Time) (BreakResult, error) {
	if coord != nil && !coord.Valid() {
		return "", ErrInvalidCoordinate
	}

	ok, err := b.CanTakeBreak(ctx, s, u.ID, now)
	if err != nil {
		return "", err
	}
	if !ok {
		err := s.AppendEvent(ctx, Event{
			ID:        EventID(uuid.NewString()),
			UserID:    u.ID,
			Kind:      KindNudge,
			Reason:    "break denied",
			CreatedAt: now,
		})
		if err != nil {
			return "", err
		}
		return BreakDenied, nil
	}

	err = s.AppendEvent(ctx, Event{
		ID:        EventID(uuid.NewString()),
		UserID:    u.ID,
		Kind:      KindBreak,
		Coord:     coord,
		CreatedAt: now,
	})
	if err != nil {
		return "", err
	}
	return BreakGranted, nil
}
