/*
breaks_test.go - Trailing-window break budget tests

PURPOSE:
  Pins the window arithmetic: the 30-day interval is closed on both
  ends, denial markers never count toward a future budget, and the
  allowance recovers as old breaks slide out.
*/
package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reading-engine/engine"
	memstore "github.com/warp/reading-engine/engine/store"
)

func seedBreakUser(t *testing.T, store *memstore.Memory) engine.User {
	t.Helper()
	u := engine.User{
		ID:         "break-user",
		PlatformID: 9,
		Timezone:   "Asia/Singapore",
		Pointer:    engine.NewCoordinate(1, 1),
		CreatedAt:  testBase,
	}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

func breaksUsed(t *testing.T, store *memstore.Memory, id engine.UserID, asOf time.Time) int {
	t.Helper()
	budget := &engine.BreakBudget{}
	used, err := budget.BreaksUsed(context.Background(), store, id, asOf)
	require.NoError(t, err)
	return used
}

// =============================================================================
// WINDOW BOUNDARIES
// =============================================================================

func TestBreaksUsed_WindowIsClosedOnBothEnds(t *testing.T) {
	store := memstore.NewMemory()
	u := seedBreakUser(t, store)

	asOf := testBase
	edge := asOf.Add(-engine.BreakWindow)

	// GIVEN: breaks exactly on both window edges and just outside each
	seedBreak(t, store, u.ID, nil, edge)                       // on the old edge: counts
	seedBreak(t, store, u.ID, nil, edge.Add(-time.Nanosecond)) // before it: does not
	seedBreak(t, store, u.ID, nil, asOf)                       // at asOf: counts
	seedBreak(t, store, u.ID, nil, asOf.Add(time.Nanosecond))  // after asOf: does not

	assert.Equal(t, 2, breaksUsed(t, store, u.ID, asOf))
}

func TestBreaksUsed_WindowSlides(t *testing.T) {
	store := memstore.NewMemory()
	u := seedBreakUser(t, store)

	for i := 0; i < 5; i++ {
		seedBreak(t, store, u.ID, nil, testBase.Add(time.Duration(i)*24*time.Hour))
	}

	// All five inside the window on day 4...
	assert.Equal(t, 5, breaksUsed(t, store, u.ID, testBase.Add(4*24*time.Hour)))
	// ...the first two gone by day 32
	assert.Equal(t, 3, breaksUsed(t, store, u.ID, testBase.Add(32*24*time.Hour)))
}

// =============================================================================
// GRANT / DENY
// =============================================================================

func TestRecordBreak_DenialWritesMarkerNotBreak(t *testing.T) {
	store := memstore.NewMemory()
	ctx := context.Background()
	u := seedBreakUser(t, store)
	budget := &engine.BreakBudget{}

	for i := 0; i < engine.DefaultMaxBreaks; i++ {
		res, err := budget.RecordBreak(ctx, store, u, nil, testBase.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		require.Equal(t, engine.BreakGranted, res)
	}

	// WHEN: one more is requested inside the window
	res, err := budget.RecordBreak(ctx, store, u, nil, testBase.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, engine.BreakDenied, res)

	// THEN: the break count is unchanged and the marker is a nudge event
	assert.Equal(t, engine.DefaultMaxBreaks, breaksUsed(t, store, u.ID, testBase.Add(6*time.Hour)))

	nudges, err := store.EventsByKind(ctx, u.ID, engine.KindNudge)
	require.NoError(t, err)
	require.Len(t, nudges, 1)
	assert.Equal(t, "break denied", nudges[0].Reason)

	// Denials can never tighten a later window: once the granted breaks
	// age out, a new request is granted again.
	later := testBase.Add(31 * 24 * time.Hour)
	res, err = budget.RecordBreak(ctx, store, u, nil, later)
	require.NoError(t, err)
	assert.Equal(t, engine.BreakGranted, res)
}

func TestRecordBreak_ConfigurableAllowance(t *testing.T) {
	store := memstore.NewMemory()
	ctx := context.Background()
	u := seedBreakUser(t, store)
	budget := &engine.BreakBudget{MaxPer30Days: 2}

	for i := 0; i < 2; i++ {
		res, err := budget.RecordBreak(ctx, store, u, nil, testBase)
		require.NoError(t, err)
		require.Equal(t, engine.BreakGranted, res)
	}

	res, err := budget.RecordBreak(ctx, store, u, nil, testBase)
	require.NoError(t, err)
	assert.Equal(t, engine.BreakDenied, res)

	left, err := budget.BreaksRemaining(ctx, store, u.ID, testBase)
	require.NoError(t, err)
	assert.Equal(t, 0, left)
}

func TestRecordBreak_RejectsInvalidCoordinate(t *testing.T) {
	store := memstore.NewMemory()
	u := seedBreakUser(t, store)
	budget := &engine.BreakBudget{}

	bad := engine.NewCoordinate(0, 99)
	_, err := budget.RecordBreak(context.Background(), store, u, &bad, testBase)
	require.ErrorIs(t, err, engine.ErrInvalidCoordinate)

	assert.Equal(t, 0, breaksUsed(t, store, u.ID, testBase))
}
