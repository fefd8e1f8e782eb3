package plancsv_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reading-engine/engine"
	"github.com/warp/reading-engine/plancsv"
)

const header = "Month,Day,NT1_Book,NT1_Chapter,NT2_Book,NT2_Chapter,OT1_Book,OT1_Chapter,OT2_Book,OT2_Chapter"

func planRow(month, day int) string {
	n := (month-1)*engine.DaysPerMonth + day
	return fmt.Sprintf("%d,%d,Matthew,%d,Acts,%d,Genesis,%d,Psalms,%d", month, day, n, n, n, n)
}

// fullPlanCSV renders a complete, valid 300-row plan source.
func fullPlanCSV() string {
	var b strings.Builder
	b.WriteString(header + "\n")
	for month := 1; month <= engine.PlanMonths; month++ {
		for day := 1; day <= engine.DaysPerMonth; day++ {
			b.WriteString(planRow(month, day) + "\n")
		}
	}
	return b.String()
}

// =============================================================================
// LOADING
// =============================================================================

func TestLoad_FullPlan(t *testing.T) {
	entries, err := plancsv.Load(strings.NewReader(fullPlanCSV()))
	require.NoError(t, err)
	require.Len(t, entries, engine.PlanSize)

	// The result must be accepted wholesale by the plan validator.
	plan, err := engine.NewPlan(entries)
	require.NoError(t, err)

	entry, ok := plan.Entry(engine.NewCoordinate(12, 25))
	require.True(t, ok)
	assert.Equal(t, "Matthew", entry.NT1.Book)
	assert.Equal(t, "300", entry.NT1.Chapter)
}

func TestLoad_ReorderedColumns_Accepted(t *testing.T) {
	// Columns are matched by header name, not position.
	var b strings.Builder
	b.WriteString("Day,Month,NT1_Book,NT1_Chapter,NT2_Book,NT2_Chapter,OT1_Book,OT1_Chapter,OT2_Book,OT2_Chapter\n")
	for month := 1; month <= engine.PlanMonths; month++ {
		for day := 1; day <= engine.DaysPerMonth; day++ {
			n := (month-1)*engine.DaysPerMonth + day
			fmt.Fprintf(&b, "%d,%d,Matthew,%d,Acts,%d,Genesis,%d,Psalms,%d\n", day, month, n, n, n, n)
		}
	}

	entries, err := plancsv.Load(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Len(t, entries, engine.PlanSize)
}

// =============================================================================
// REJECTION
// =============================================================================

func TestLoad_MissingColumn_Rejected(t *testing.T) {
	src := "Month,Day,NT1_Book\n1,1,Matthew\n"
	_, err := plancsv.Load(strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NT1_Chapter")
}

func TestLoad_ShortPlan_Rejected(t *testing.T) {
	// Drop the final row: 299 entries is not a plan.
	src := fullPlanCSV()
	src = src[:strings.LastIndex(strings.TrimSpace(src), "\n")+1]

	_, err := plancsv.Load(strings.NewReader(src))
	require.ErrorIs(t, err, engine.ErrIncompletePlan)
}

func TestLoad_DuplicateCoordinate_Rejected(t *testing.T) {
	src := strings.Replace(fullPlanCSV(), planRow(1, 2), planRow(1, 1), 1)
	_, err := plancsv.Load(strings.NewReader(src))
	require.ErrorIs(t, err, engine.ErrIncompletePlan)
}

func TestLoad_BadMonth_Rejected(t *testing.T) {
	src := header + "\nthirteen,1,Matthew,1,Acts,1,Genesis,1,Psalms,1\n"
	_, err := plancsv.Load(strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoad_OutOfRangeCoordinate_Rejected(t *testing.T) {
	src := header + "\n13,1,Matthew,1,Acts,1,Genesis,1,Psalms,1\n"
	_, err := plancsv.Load(strings.NewReader(src))
	require.ErrorIs(t, err, engine.ErrInvalidCoordinate)
}

func TestLoad_EmptyReference_Rejected(t *testing.T) {
	src := header + "\n1,1,,1,Acts,1,Genesis,1,Psalms,1\n"
	_, err := plancsv.Load(strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty reading reference")
}
