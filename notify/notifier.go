/*
Package notify delivers reading cards and nudges to users.

PURPOSE:
  The engine decides WHAT is due; this package is the outbound half of
  the transport glue that says it to the user. Implementations render
  user-facing text, which the engine itself never does.
*/
package notify

import (
	"context"
	"log"

	"github.com/warp/reading-engine/engine"
)

// Notifier delivers messages to one user's chat.
type Notifier interface {
	// SendDailyCard sends the day's readings with read/break actions.
	SendDailyCard(ctx context.Context, u engine.User, entry engine.PlanEntry, stats engine.Stats) error

	// SendNudge sends the evening reminder.
	SendNudge(ctx context.Context, u engine.User) error

	// AnswerCallback acknowledges an inline-button press.
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// =============================================================================
// LOG NOTIFIER - For dev runs without a bot token
// =============================================================================

type Log struct{}

func (Log) SendDailyCard(_ context.Context, u engine.User, entry engine.PlanEntry, stats engine.Stats) error {
	log.Printf("[Notify] daily card for %s: %s (streak %d)", u.ID, entry.Coord, stats.Streak)
	return nil
}

func (Log) SendNudge(_ context.Context, u engine.User) error {
	log.Printf("[Notify] nudge for %s", u.ID)
	return nil
}

func (Log) AnswerCallback(_ context.Context, callbackID, text string) error {
	log.Printf("[Notify] answer callback %s: %s", callbackID, text)
	return nil
}
