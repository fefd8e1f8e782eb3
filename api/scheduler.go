/*
scheduler.go - Reminder scheduler

PURPOSE:
  Periodically checks which users should receive a daily reading card
  (around 07:00 local time) or an evening nudge (around 20:00 local
  time) and delivers through the Notifier. The engine answers "who is
  due"; this layer owns the wall-clock side the engine deliberately
  does not.

DESIGN:
  - cron-driven sweeps every 15 minutes; per-user local hour windows
    decide who is inside the delivery window on each tick
  - sent-date stamps (MarkDailySent / RecordNudge) make repeated ticks
    within the window harmless: each message fires at most once per
    local day
  - the same sweeps back the /cron/daily and /cron/nudge endpoints for
    deployments that prefer an external cron

USAGE:
  scheduler := NewReminderScheduler(engine, notifier)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CronDaily / CronNudge endpoints
  - engine/progress.go: PendingForToday / NotYetReadToday
*/
package api

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warp/reading-engine/engine"
	"github.com/warp/reading-engine/notify"
)

// ReminderScheduler drives daily cards and nudges.
type ReminderScheduler struct {
	Engine   *engine.Engine
	Notifier notify.Notifier

	// Local delivery hours.
	DailyHour int
	NudgeHour int

	cron *cron.Cron
}

// NewReminderScheduler creates a scheduler with the default windows.
func NewReminderScheduler(eng *engine.Engine, notifier notify.Notifier) *ReminderScheduler {
	return &ReminderScheduler{
		Engine:    eng,
		Notifier:  notifier,
		DailyHour: 7,
		NudgeHour: 20,
	}
}

// Start begins the periodic sweeps.
func (rs *ReminderScheduler) Start() {
	rs.cron = cron.New()
	rs.cron.AddFunc("@every 15m", func() {
		if _, _, err := rs.RunDaily(context.Background()); err != nil {
			log.Printf("[Scheduler] daily sweep: %v", err)
		}
	})
	rs.cron.AddFunc("@every 15m", func() {
		if _, _, err := rs.RunNudge(context.Background()); err != nil {
			log.Printf("[Scheduler] nudge sweep: %v", err)
		}
	})
	rs.cron.Start()
	log.Println("[Scheduler] Started")
}

// Stop stops the sweeps, waiting for a running one to finish.
func (rs *ReminderScheduler) Stop() {
	if rs.cron != nil {
		<-rs.cron.Stop().Done()
		log.Println("[Scheduler] Stopped")
	}
}

// RunDaily sends reading cards to users inside their morning window
// who have not received one today. Returns (checked, sent).
func (rs *ReminderScheduler) RunDaily(ctx context.Context) (int, int, error) {
	now := rs.Engine.Clock()
	users, err := rs.Engine.PendingForToday(ctx, now)
	if err != nil {
		return 0, 0, err
	}

	sent := 0
	for _, u := range users {
		if !inLocalHour(now, u.Timezone, rs.DailyHour) {
			continue
		}
		entry, ok := rs.Engine.Plan.Entry(u.Pointer)
		if !ok {
			continue
		}
		stats, err := rs.Engine.Stats(ctx, u.ID, now)
		if err != nil {
			log.Printf("[Scheduler] stats for %s: %v", u.ID, err)
			continue
		}
		if err := rs.Notifier.SendDailyCard(ctx, u, entry, stats); err != nil {
			log.Printf("[Scheduler] daily card for %s: %v", u.ID, err)
			continue
		}
		if err := rs.Engine.MarkDailySent(ctx, u.ID); err != nil {
			log.Printf("[Scheduler] mark daily for %s: %v", u.ID, err)
		}
		sent++
	}
	return len(users), sent, nil
}

// RunNudge reminds users inside their evening window who have read
// nothing today and have not been nudged. Returns (checked, sent).
func (rs *ReminderScheduler) RunNudge(ctx context.Context) (int, int, error) {
	now := rs.Engine.Clock()
	users, err := rs.Engine.NotYetReadToday(ctx, now)
	if err != nil {
		return 0, 0, err
	}

	sent := 0
	for _, u := range users {
		if !inLocalHour(now, u.Timezone, rs.NudgeHour) {
			continue
		}
		if rs.Engine.WasNudgedToday(u, now) {
			continue
		}
		if err := rs.Notifier.SendNudge(ctx, u); err != nil {
			log.Printf("[Scheduler] nudge for %s: %v", u.ID, err)
			continue
		}
		if err := rs.Engine.RecordNudge(ctx, u.ID); err != nil {
			log.Printf("[Scheduler] record nudge for %s: %v", u.ID, err)
		}
		sent++
	}
	return len(users), sent, nil
}

// inLocalHour reports whether now falls inside [hour, hour+1) in the
// user's timezone.
func inLocalHour(now time.Time, tz string, hour int) bool {
	loc, err := engine.LoadTimezone(tz)
	if err != nil {
		return false
	}
	return now.In(loc).Hour() == hour
}
