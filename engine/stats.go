package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Stats is the derived summary shown on reading cards and the stats
// endpoint. Everything here is recomputed per query.
type Stats struct {
	Streak          int
	BreaksUsed      int
	BreaksLeft      int
	Pointer         Coordinate
	Next            Coordinate
	TotalCompleted  int
	PercentComplete decimal.Decimal
}

// Stats assembles the summary for one user as of asOf.
func (e *Engine) Stats(ctx context.Context, id UserID, asOf time.Time) (Stats, error) {
	u, err := e.Store.UserByID(ctx, id)
	if err != nil {
		return Stats{}, err
	}

	streak, err := e.Streaks.CurrentStreak(ctx, e.Store, u, asOf)
	if err != nil {
		return Stats{}, err
	}
	used, err := e.Breaks.BreaksUsed(ctx, e.Store, u.ID, asOf)
	if err != nil {
		return Stats{}, err
	}
	left, err := e.Breaks.BreaksRemaining(ctx, e.Store, u.ID, asOf)
	if err != nil {
		return Stats{}, err
	}
	total, err := e.Store.CountCompletions(ctx, u.ID)
	if err != nil {
		return Stats{}, err
	}

	percent := decimal.NewFromInt(int64(total * 100)).
		Div(decimal.NewFromInt(PlanSize)).
		Round(1)

	return Stats{
		Streak:          streak,
		BreaksUsed:      used,
		BreaksLeft:      left,
		Pointer:         u.Pointer,
		Next:            u.Pointer.Next(),
		TotalCompleted:  total,
		PercentComplete: percent,
	}, nil
}
