/*
plan.go - The immutable reading plan

PURPOSE:
  The Plan is a static lookup table: 12 months x 25 days = 300 entries,
  each holding four scripture references. It is loaded once at startup
  and read-only thereafter.

VALIDATION:
  NewPlan is all-or-nothing. A source that does not yield exactly 300
  unique, in-range coordinates is rejected with a PlanValidationError.
  There is no partial plan: either every coordinate resolves or the
  engine refuses to start.

SEE ALSO:
  - plancsv: CSV record source for seeding
  - store.go: PlanStore persistence of the seeded rows
*/
package engine

import "context"

// Plan dimensions. These are fixed by the reading schedule, not config.
const (
	PlanMonths   = 12
	DaysPerMonth = 25
	PlanSize     = PlanMonths * DaysPerMonth
)

// Plan is the immutable 300-entry reading table.
type Plan struct {
	entries map[Coordinate]PlanEntry
}

// NewPlan validates and indexes a full set of plan entries.
func NewPlan(entries []PlanEntry) (*Plan, error) {
	index := make(map[Coordinate]PlanEntry, PlanSize)
	for _, e := range entries {
		if !e.Coord.Valid() {
			c := e.Coord
			return nil, &PlanValidationError{Rows: len(entries), BadCoord: &c}
		}
		if _, dup := index[e.Coord]; dup {
			c := e.Coord
			return nil, &PlanValidationError{Rows: len(entries), Duplicate: &c}
		}
		index[e.Coord] = e
	}
	if len(index) != PlanSize {
		return nil, &PlanValidationError{Rows: len(index)}
	}
	return &Plan{entries: index}, nil
}

// LoadPlan reads the seeded plan rows from the store and validates them.
func LoadPlan(ctx context.Context, s PlanStore) (*Plan, error) {
	entries, err := s.PlanEntries(ctx)
	if err != nil {
		return nil, err
	}
	return NewPlan(entries)
}

// Entry returns the readings for a coordinate.
func (p *Plan) Entry(c Coordinate) (PlanEntry, bool) {
	e, ok := p.entries[c]
	return e, ok
}

// Size returns the number of entries. Always PlanSize for a valid plan.
func (p *Plan) Size() int {
	return len(p.entries)
}
