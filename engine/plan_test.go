package engine_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reading-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fullPlanEntries generates a complete, valid 300-entry plan.
func fullPlanEntries() []engine.PlanEntry {
	var entries []engine.PlanEntry
	for month := 1; month <= engine.PlanMonths; month++ {
		for day := 1; day <= engine.DaysPerMonth; day++ {
			n := fmt.Sprintf("%d", (month-1)*engine.DaysPerMonth+day)
			entries = append(entries, engine.PlanEntry{
				Coord: engine.NewCoordinate(month, day),
				NT1:   engine.Reference{Book: "Matthew", Chapter: n},
				NT2:   engine.Reference{Book: "Acts", Chapter: n},
				OT1:   engine.Reference{Book: "Genesis", Chapter: n},
				OT2:   engine.Reference{Book: "Psalms", Chapter: n},
			})
		}
	}
	return entries
}

// =============================================================================
// COORDINATE ARITHMETIC
// =============================================================================

func TestCoordinate_Next_AdvancesWithinMonth(t *testing.T) {
	next := engine.NewCoordinate(1, 1).Next()
	assert.Equal(t, engine.NewCoordinate(1, 2), next)
}

func TestCoordinate_Next_RollsIntoNextMonth(t *testing.T) {
	next := engine.NewCoordinate(1, 25).Next()
	assert.Equal(t, engine.NewCoordinate(2, 1), next)
}

func TestCoordinate_Next_CompletesAfterFinalDay(t *testing.T) {
	next := engine.NewCoordinate(12, 25).Next()
	assert.True(t, next.IsComplete())
	// And the sentinel stays put.
	assert.True(t, next.Next().IsComplete())
}

func TestCoordinate_Ordinal_RoundTrips(t *testing.T) {
	for ord := 1; ord <= engine.PlanSize; ord++ {
		c := engine.CoordinateAt(ord)
		require.True(t, c.Valid(), "ordinal %d", ord)
		require.Equal(t, ord, c.Ordinal())
	}
	assert.Equal(t, 1, engine.NewCoordinate(1, 1).Ordinal())
	assert.Equal(t, engine.PlanSize, engine.NewCoordinate(12, 25).Ordinal())
	assert.Equal(t, 0, engine.PlanComplete.Ordinal())
}

func TestCoordinate_Valid_RejectsOutOfRange(t *testing.T) {
	cases := []engine.Coordinate{
		engine.NewCoordinate(0, 1),
		engine.NewCoordinate(13, 1),
		engine.NewCoordinate(1, 0),
		engine.NewCoordinate(1, 26),
		engine.PlanComplete,
	}
	for _, c := range cases {
		assert.False(t, c.Valid(), "%v", c)
	}
}

// =============================================================================
// PLAN VALIDATION
// =============================================================================

func TestNewPlan_FullPlan_Valid(t *testing.T) {
	plan, err := engine.NewPlan(fullPlanEntries())
	require.NoError(t, err)
	assert.Equal(t, engine.PlanSize, plan.Size())

	entry, ok := plan.Entry(engine.NewCoordinate(3, 14))
	require.True(t, ok)
	assert.Equal(t, "Matthew", entry.NT1.Book)
}

func TestNewPlan_MissingEntry_Rejected(t *testing.T) {
	entries := fullPlanEntries()
	_, err := engine.NewPlan(entries[:len(entries)-1])
	require.ErrorIs(t, err, engine.ErrIncompletePlan)
}

func TestNewPlan_DuplicateEntry_Rejected(t *testing.T) {
	entries := fullPlanEntries()
	entries[5] = entries[4]
	_, err := engine.NewPlan(entries)
	require.ErrorIs(t, err, engine.ErrIncompletePlan)
}

func TestNewPlan_OutOfRangeEntry_Rejected(t *testing.T) {
	entries := fullPlanEntries()
	entries[0].Coord = engine.NewCoordinate(13, 1)
	_, err := engine.NewPlan(entries)
	require.ErrorIs(t, err, engine.ErrIncompletePlan)
}
