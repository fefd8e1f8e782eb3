/*
engine_test.go - End-to-end submission flow tests

PURPOSE:
  Exercises the engine facade over the in-memory store: idempotent
  submission, pointer advancement, break grants and denials, and the
  derived projections, including the replay and concurrency properties
  the transport relies on.
*/
package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reading-engine/engine"
	memstore "github.com/warp/reading-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestEngine builds an engine over a fresh memory store with a
// pinned, advanceable clock.
func newTestEngine(t *testing.T) (*engine.Engine, *memstore.Memory, *testClock) {
	t.Helper()

	plan, err := engine.NewPlan(fullPlanEntries())
	require.NoError(t, err)

	store := memstore.NewMemory()
	eng := engine.New(store, plan)

	clk := &testClock{now: testBase}
	eng.Clock = clk.Now
	return eng, store, clk
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func registerTestUser(t *testing.T, eng *engine.Engine) engine.User {
	t.Helper()
	u, err := eng.RegisterUser(context.Background(), 42, "reader", "Ana", "Tan")
	require.NoError(t, err)
	return u
}

func submitRead(t *testing.T, eng *engine.Engine, id engine.UserID, callbackID string, coord engine.Coordinate) engine.Outcome {
	t.Helper()
	outcome, err := eng.Submit(context.Background(), engine.Submission{
		UserID:     id,
		CallbackID: callbackID,
		Kind:       engine.KindRead,
		Coord:      &coord,
	})
	require.NoError(t, err)
	return outcome
}

func submitBreak(t *testing.T, eng *engine.Engine, id engine.UserID, callbackID string, coord *engine.Coordinate) engine.Outcome {
	t.Helper()
	outcome, err := eng.Submit(context.Background(), engine.Submission{
		UserID:     id,
		CallbackID: callbackID,
		Kind:       engine.KindBreak,
		Coord:      coord,
	})
	require.NoError(t, err)
	return outcome
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestRegisterUser_NewUser_StartsAtPlanStart(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	// WHEN: a platform id registers for the first time
	u := registerTestUser(t, eng)

	// THEN: the pointer is at (1, 1) with the default timezone
	assert.Equal(t, engine.NewCoordinate(1, 1), u.Pointer)
	assert.Equal(t, "Asia/Singapore", u.Timezone)
	assert.NotEmpty(t, u.ID)
}

func TestRegisterUser_Twice_ReturnsSameUser(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	first := registerTestUser(t, eng)

	// WHEN: the same platform id registers again with a new username
	second, err := eng.RegisterUser(ctx, 42, "renamed", "Ana", "Tan")
	require.NoError(t, err)

	// THEN: same identity, refreshed profile
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "renamed", second.Username)
}

func TestUpdateTimezone_RejectsUnknownName(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	u := registerTestUser(t, eng)

	err := eng.UpdateTimezone(context.Background(), u.ID, "Mars/Olympus")
	require.Error(t, err)
	assert.True(t, engine.IsClientError(err))

	// A real zone is accepted.
	require.NoError(t, eng.UpdateTimezone(context.Background(), u.ID, "Europe/Lisbon"))
}

// =============================================================================
// READ SUBMISSIONS
// =============================================================================

func TestSubmit_OnPointerRead_Advances(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)

	// WHEN: the user completes the reading at the pointer
	outcome := submitRead(t, eng, u.ID, "cb-1", engine.NewCoordinate(1, 1))

	// THEN: advanced, pointer at (1, 2), streak 1
	assert.Equal(t, engine.OutcomeAdvanced, outcome)

	after, err := store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.NewCoordinate(1, 2), after.Pointer)

	streak, err := eng.CurrentStreak(ctx, u.ID, eng.Clock())
	require.NoError(t, err)
	assert.Equal(t, 1, streak)
}

func TestSubmit_DuplicateCallback_NoSecondEffect(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)

	// GIVEN: a processed submission
	first := submitRead(t, eng, u.ID, "cb-1", engine.NewCoordinate(1, 1))
	require.Equal(t, engine.OutcomeAdvanced, first)

	// WHEN: the identical callback id is redelivered five more times
	for i := 0; i < 5; i++ {
		outcome := submitRead(t, eng, u.ID, "cb-1", engine.NewCoordinate(1, 1))
		assert.Equal(t, engine.OutcomeDuplicateCallback, outcome)
	}

	// THEN: state is exactly as after one delivery
	after, err := store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.NewCoordinate(1, 2), after.Pointer)

	total, err := store.CountCompletions(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	reads, err := store.EventsByKind(ctx, u.ID, engine.KindRead)
	require.NoError(t, err)
	assert.Len(t, reads, 1)
}

func TestSubmit_SameCoordinateNewCallback_AlreadyCompleted(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)

	submitRead(t, eng, u.ID, "cb-1", engine.NewCoordinate(1, 1))

	// WHEN: a fresh callback id resubmits the completed coordinate
	outcome := submitRead(t, eng, u.ID, "cb-2", engine.NewCoordinate(1, 1))

	// THEN: acknowledged without any new rows or pointer movement
	assert.Equal(t, engine.OutcomeAlreadyCompleted, outcome)

	after, err := store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.NewCoordinate(1, 2), after.Pointer)

	total, err := store.CountCompletions(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestSubmit_OutOfSequenceRead_LoggedButNoAdvance(t *testing.T) {
	eng, store, clk := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)

	// GIVEN: (1,1)..(1,4) completed, pointer at (1,5)
	for day := 1; day <= 4; day++ {
		submitRead(t, eng, u.ID, fmt.Sprintf("cb-%d", day), engine.NewCoordinate(1, day))
		clk.Advance(24 * time.Hour)
	}

	// WHEN: the user skips (1,5) and reads (1,6)
	outcome := submitRead(t, eng, u.ID, "cb-ahead", engine.NewCoordinate(1, 6))

	// THEN: recorded for the audit log, pointer unmoved, no completion,
	// and the streak still only reflects the contiguous prefix
	assert.Equal(t, engine.OutcomeOutOfSequence, outcome)

	after, err := store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.NewCoordinate(1, 5), after.Pointer)

	total, err := store.CountCompletions(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	reads, err := store.EventsByKind(ctx, u.ID, engine.KindRead)
	require.NoError(t, err)
	require.Len(t, reads, 5)
	assert.Equal(t, "out of sequence", reads[4].Reason)

	streak, err := eng.CurrentStreak(ctx, u.ID, eng.Clock())
	require.NoError(t, err)
	assert.Equal(t, 4, streak)
}

func TestSubmit_MonthRollover(t *testing.T) {
	eng, store, clk := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)

	// GIVEN: 25 consecutive on-pointer completions
	for day := 1; day <= 25; day++ {
		outcome := submitRead(t, eng, u.ID, fmt.Sprintf("cb-%d", day), engine.NewCoordinate(1, day))
		require.Equal(t, engine.OutcomeAdvanced, outcome)
		clk.Advance(24 * time.Hour)
	}

	// THEN: the pointer rolled into month 2 and the streak is 25
	after, err := store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.NewCoordinate(2, 1), after.Pointer)

	streak, err := eng.CurrentStreak(ctx, u.ID, eng.Clock())
	require.NoError(t, err)
	assert.Equal(t, 25, streak)
}

func TestSubmit_FinalReading_CompletesPlan(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)

	// GIVEN: a pointer at the final coordinate
	require.NoError(t, store.SetPointer(ctx, u.ID, engine.NewCoordinate(12, 25), engine.NewCoordinate(1, 1)))

	// WHEN: the final reading is completed
	outcome := submitRead(t, eng, u.ID, "cb-final", engine.NewCoordinate(12, 25))
	assert.Equal(t, engine.OutcomeAdvanced, outcome)

	// THEN: the pointer is the complete sentinel and there is no next reading
	after, err := store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, after.Pointer.IsComplete())

	_, ok, err := eng.NextReading(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestSubmit_ValidationErrors(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)
	coord := engine.NewCoordinate(1, 1)
	bad := engine.NewCoordinate(13, 40)

	// Read without a coordinate
	_, err := eng.Submit(ctx, engine.Submission{UserID: u.ID, CallbackID: "v-1", Kind: engine.KindRead})
	require.ErrorIs(t, err, engine.ErrCoordinateRequired)

	// Unknown kind
	_, err = eng.Submit(ctx, engine.Submission{UserID: u.ID, CallbackID: "v-2", Kind: "vacation", Coord: &coord})
	require.ErrorIs(t, err, engine.ErrInvalidEventKind)

	// Out-of-range coordinate
	_, err = eng.Submit(ctx, engine.Submission{UserID: u.ID, CallbackID: "v-3", Kind: engine.KindRead, Coord: &bad})
	require.ErrorIs(t, err, engine.ErrInvalidCoordinate)

	// Empty callback id
	_, err = eng.Submit(ctx, engine.Submission{UserID: u.ID, Kind: engine.KindRead, Coord: &coord})
	require.Error(t, err)

	// All were rejected before the guard: the ids stay usable
	outcome := submitRead(t, eng, u.ID, "v-1", coord)
	assert.Equal(t, engine.OutcomeAdvanced, outcome)
}

func TestSubmit_UnknownUser_NotFound(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	coord := engine.NewCoordinate(1, 1)

	_, err := eng.Submit(context.Background(), engine.Submission{
		UserID:     "ghost",
		CallbackID: "cb-1",
		Kind:       engine.KindRead,
		Coord:      &coord,
	})
	require.ErrorIs(t, err, engine.ErrUserNotFound)
	assert.True(t, engine.IsNotFound(err))
}

// =============================================================================
// BREAKS
// =============================================================================

func TestSubmit_Break_GrantedWithinBudget(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)

	// WHEN: the user takes a floating break
	outcome := submitBreak(t, eng, u.ID, "br-1", nil)

	// THEN: granted; no completion, no pointer movement
	assert.Equal(t, engine.OutcomeBreakGranted, outcome)

	after, err := store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.NewCoordinate(1, 1), after.Pointer)

	total, err := store.CountCompletions(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	used, err := eng.BreaksUsed(ctx, u.ID, eng.Clock())
	require.NoError(t, err)
	assert.Equal(t, 1, used)

	left, err := eng.BreaksRemaining(ctx, u.ID, eng.Clock())
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultMaxBreaks-1, left)
}

func TestSubmit_SixthBreakIn30Days_Denied(t *testing.T) {
	eng, store, clk := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)

	// GIVEN: five granted breaks inside the window
	for i := 0; i < 5; i++ {
		outcome := submitBreak(t, eng, u.ID, fmt.Sprintf("br-%d", i), nil)
		require.Equal(t, engine.OutcomeBreakGranted, outcome)
		clk.Advance(24 * time.Hour)
	}

	// WHEN: a sixth break is requested within the same 30 days
	outcome := submitBreak(t, eng, u.ID, "br-6", nil)

	// THEN: denied, and no break event was written for it
	assert.Equal(t, engine.OutcomeBreakDenied, outcome)

	breaks, err := store.EventsByKind(ctx, u.ID, engine.KindBreak)
	require.NoError(t, err)
	assert.Len(t, breaks, 5)

	// The denial left an audit marker instead.
	nudges, err := store.EventsByKind(ctx, u.ID, engine.KindNudge)
	require.NoError(t, err)
	require.Len(t, nudges, 1)
	assert.Equal(t, "break denied", nudges[0].Reason)

	// Redelivering the denied callback stays a no-op, not a retry
	// that might now be granted.
	again := submitBreak(t, eng, u.ID, "br-6", nil)
	assert.Equal(t, engine.OutcomeDuplicateCallback, again)
}

func TestSubmit_BreakAllowance_RecoversAsWindowSlides(t *testing.T) {
	eng, _, clk := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)

	// GIVEN: the budget exhausted on day 0
	for i := 0; i < 5; i++ {
		require.Equal(t, engine.OutcomeBreakGranted, submitBreak(t, eng, u.ID, fmt.Sprintf("br-%d", i), nil))
	}

	// WHEN: 31 days pass
	clk.Advance(31 * 24 * time.Hour)

	// THEN: the old breaks fell out of the trailing window
	used, err := eng.BreaksUsed(ctx, u.ID, eng.Clock())
	require.NoError(t, err)
	assert.Equal(t, 0, used)

	outcome := submitBreak(t, eng, u.ID, "br-new", nil)
	assert.Equal(t, engine.OutcomeBreakGranted, outcome)
}

func TestSubmit_BreakPreservesStreak(t *testing.T) {
	eng, _, clk := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)

	// GIVEN: two completed days
	submitRead(t, eng, u.ID, "cb-1", engine.NewCoordinate(1, 1))
	clk.Advance(24 * time.Hour)
	submitRead(t, eng, u.ID, "cb-2", engine.NewCoordinate(1, 2))
	clk.Advance(24 * time.Hour)

	before, err := eng.CurrentStreak(ctx, u.ID, eng.Clock())
	require.NoError(t, err)
	require.Equal(t, 2, before)

	// WHEN: day three is a break instead of a reading
	coord := engine.NewCoordinate(1, 3)
	require.Equal(t, engine.OutcomeBreakGranted, submitBreak(t, eng, u.ID, "br-1", &coord))
	clk.Advance(24 * time.Hour)

	// THEN: the streak did not reset, and the next on-pointer reading
	// still advances normally
	after, err := eng.CurrentStreak(ctx, u.ID, eng.Clock())
	require.NoError(t, err)
	assert.Equal(t, 2, after)

	outcome := submitRead(t, eng, u.ID, "cb-3", engine.NewCoordinate(1, 3))
	assert.Equal(t, engine.OutcomeAdvanced, outcome)

	final, err := eng.CurrentStreak(ctx, u.ID, eng.Clock())
	require.NoError(t, err)
	assert.Equal(t, 3, final)
}

// =============================================================================
// DETERMINISM AND CONCURRENCY
// =============================================================================

func TestProjections_Deterministic(t *testing.T) {
	eng, _, clk := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)

	for day := 1; day <= 3; day++ {
		submitRead(t, eng, u.ID, fmt.Sprintf("cb-%d", day), engine.NewCoordinate(1, day))
		clk.Advance(24 * time.Hour)
	}
	submitBreak(t, eng, u.ID, "br-1", nil)

	asOf := eng.Clock()
	first, err := eng.Stats(ctx, u.ID, asOf)
	require.NoError(t, err)
	second, err := eng.Stats(ctx, u.ID, asOf)
	require.NoError(t, err)

	// Same history, same asOf, same answer.
	assert.Equal(t, first.Streak, second.Streak)
	assert.Equal(t, first.BreaksUsed, second.BreaksUsed)
	assert.Equal(t, first.TotalCompleted, second.TotalCompleted)
	assert.True(t, first.PercentComplete.Equal(second.PercentComplete))
	assert.Equal(t, "1", first.PercentComplete.String())
}

func TestSubmit_ConcurrentSameCallback_OneEffect(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)
	coord := engine.NewCoordinate(1, 1)

	// WHEN: ten deliveries of the same callback race
	const n = 10
	outcomes := make([]engine.Outcome, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = eng.Submit(ctx, engine.Submission{
				UserID:     u.ID,
				CallbackID: "cb-race",
				Kind:       engine.KindRead,
				Coord:      &coord,
			})
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}

	// THEN: exactly one submission carried the effect
	advanced := 0
	for _, o := range outcomes {
		switch o {
		case engine.OutcomeAdvanced:
			advanced++
		case engine.OutcomeDuplicateCallback:
		default:
			t.Fatalf("unexpected outcome %q", o)
		}
	}
	assert.Equal(t, 1, advanced)

	after, err := store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.NewCoordinate(1, 2), after.Pointer)

	total, err := store.CountCompletions(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestSubmit_ConcurrentDistinctCallbacks_SameCoordinate(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)
	coord := engine.NewCoordinate(1, 1)

	// WHEN: distinct callbacks for the same coordinate race
	const n = 8
	outcomes := make([]engine.Outcome, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = eng.Submit(ctx, engine.Submission{
				UserID:     u.ID,
				CallbackID: fmt.Sprintf("cb-%d", i),
				Kind:       engine.KindRead,
				Coord:      &coord,
			})
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}

	// THEN: one advanced, the rest already-completed, pointer moved once
	advanced := 0
	for _, o := range outcomes {
		switch o {
		case engine.OutcomeAdvanced:
			advanced++
		case engine.OutcomeAlreadyCompleted:
		default:
			t.Fatalf("unexpected outcome %q", o)
		}
	}
	assert.Equal(t, 1, advanced)

	after, err := store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.NewCoordinate(1, 2), after.Pointer)
}

// =============================================================================
// SCHEDULER SUPPORT
// =============================================================================

func TestRecordNudge_StampsLocalDate(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)

	require.False(t, eng.WasNudgedToday(u, eng.Clock()))

	// WHEN: a nudge is recorded
	require.NoError(t, eng.RecordNudge(ctx, u.ID))

	// THEN: a nudge event exists and the daily stamp dedups the next one
	nudges, err := store.EventsByKind(ctx, u.ID, engine.KindNudge)
	require.NoError(t, err)
	assert.Len(t, nudges, 1)

	after, err := store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, eng.WasNudgedToday(after, eng.Clock()))
}

func TestPendingForToday_SkipsCompletedAndAlreadySent(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	pending := registerTestUser(t, eng)
	done, err := eng.RegisterUser(ctx, 43, "done", "Bo", "Lim")
	require.NoError(t, err)
	require.NoError(t, store.SetPointer(ctx, done.ID, engine.PlanComplete, engine.NewCoordinate(1, 1)))

	// First sweep: only the active user is due.
	due, err := eng.PendingForToday(ctx, eng.Clock())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, pending.ID, due[0].ID)

	// After the card goes out, the same sweep finds nobody.
	require.NoError(t, eng.MarkDailySent(ctx, pending.ID))
	due, err = eng.PendingForToday(ctx, eng.Clock())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestNotYetReadToday_ClearsAfterCompletion(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()
	u := registerTestUser(t, eng)

	unread, err := eng.NotYetReadToday(ctx, eng.Clock())
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, u.ID, unread[0].ID)

	// WHEN: the user completes today's reading
	submitRead(t, eng, u.ID, "cb-1", engine.NewCoordinate(1, 1))

	// THEN: they drop out of the nudge sweep
	unread, err = eng.NotYetReadToday(ctx, eng.Clock())
	require.NoError(t, err)
	assert.Empty(t, unread)
}
