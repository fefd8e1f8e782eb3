/*
streak.go - Streak projection

PURPOSE:
  The streak is the count of consecutive plan coordinates, up to (not
  including) the pointer, that are either completed or break-covered.
  It is never stored: every query recomputes it from the completion
  rows and the event log, so it cannot drift and is insensitive to the
  order events were inserted in.

WALK:
  Start at the coordinate immediately before the pointer and walk
  backward in plan order. A coordinate extends the streak if it has a
  completion row, or a break event naming it, or — failing both — if a
  floating break (granted with no coordinate) remains to be spent. The
  walk stops at the first coordinate that is neither completed nor
  break-covered, or at the start of the plan.
*/
package engine

import (
	"context"
	"time"
)

// StreakCalculator derives streaks from history. Stateless.
type StreakCalculator struct{}

// CurrentStreak computes u's streak as of asOf. Events and completions
// recorded after asOf are ignored, so the same history always yields
// the same value.
func (StreakCalculator) CurrentStreak(ctx context.Context, s Store, u User, asOf time.Time) (int, error) {
	start := u.Pointer.Ordinal() - 1
	if u.Pointer.IsComplete() {
		start = PlanSize
	}
	if start < 1 {
		return 0, nil
	}

	completions, err := s.Completions(ctx, u.ID)
	if err != nil {
		return 0, err
	}
	completed := make(map[Coordinate]bool, len(completions))
	for _, c := range completions {
		if !c.CompletedAt.After(asOf) {
			completed[c.Coord] = true
		}
	}

	breaks, err := s.EventsByKind(ctx, u.ID, KindBreak)
	if err != nil {
		return 0, err
	}
	covered := make(map[Coordinate]bool)
	floating := 0
	for _, e := range breaks {
		if e.CreatedAt.After(asOf) {
			continue
		}
		if e.Coord != nil {
			covered[*e.Coord] = true
		} else {
			floating++
		}
	}

	streak := 0
	for ord := start; ord >= 1; ord-- {
		c := CoordinateAt(ord)
		switch {
		case completed[c], covered[c]:
			streak++
		case floating > 0:
			floating--
			streak++
		default:
			return streak, nil
		}
	}
	return streak, nil
}
