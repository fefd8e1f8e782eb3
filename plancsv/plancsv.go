/*
Package plancsv loads the reading plan from its CSV source.

PURPOSE:
  One-time seeding input. The source has a header row and one row per
  coordinate with columns Month, Day and four (book, chapter) pairs.
  Loading is all-or-nothing: the result is validated against the full
  300-entry plan before anything is returned.

EXPECTED HEADER:
  Month,Day,NT1_Book,NT1_Chapter,NT2_Book,NT2_Chapter,
  OT1_Book,OT1_Chapter,OT2_Book,OT2_Chapter
*/
package plancsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/warp/reading-engine/engine"
)

var columns = []string{
	"Month", "Day",
	"NT1_Book", "NT1_Chapter",
	"NT2_Book", "NT2_Chapter",
	"OT1_Book", "OT1_Chapter",
	"OT2_Book", "OT2_Chapter",
}

// LoadFile reads and validates a plan CSV from disk.
func LoadFile(path string) ([]engine.PlanEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan csv: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads and validates a plan CSV. The returned entries are
// guaranteed to form a complete plan: engine.NewPlan accepts them.
func Load(r io.Reader) ([]engine.PlanEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(columns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read plan header: %w", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var entries []engine.PlanEntry
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read plan row: %w", err)
		}

		entry, err := parseRow(record, index)
		if err != nil {
			return nil, fmt.Errorf("plan csv line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}

	// All-or-nothing: reject anything short of the full plan.
	if _, err := engine.NewPlan(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, want := range columns {
		if _, ok := index[want]; !ok {
			return nil, fmt.Errorf("plan csv missing column %q", want)
		}
	}
	return index, nil
}

func parseRow(record []string, index map[string]int) (engine.PlanEntry, error) {
	field := func(name string) string {
		return strings.TrimSpace(record[index[name]])
	}

	month, err := strconv.Atoi(field("Month"))
	if err != nil {
		return engine.PlanEntry{}, fmt.Errorf("bad month %q", field("Month"))
	}
	day, err := strconv.Atoi(field("Day"))
	if err != nil {
		return engine.PlanEntry{}, fmt.Errorf("bad day %q", field("Day"))
	}

	entry := engine.PlanEntry{
		Coord: engine.NewCoordinate(month, day),
		NT1:   engine.Reference{Book: field("NT1_Book"), Chapter: field("NT1_Chapter")},
		NT2:   engine.Reference{Book: field("NT2_Book"), Chapter: field("NT2_Chapter")},
		OT1:   engine.Reference{Book: field("OT1_Book"), Chapter: field("OT1_Chapter")},
		OT2:   engine.Reference{Book: field("OT2_Book"), Chapter: field("OT2_Chapter")},
	}
	if !entry.Coord.Valid() {
		return engine.PlanEntry{}, fmt.Errorf("%w: %s", engine.ErrInvalidCoordinate, entry.Coord)
	}
	for _, ref := range entry.References() {
		if ref.Book == "" || ref.Chapter == "" {
			return engine.PlanEntry{}, fmt.Errorf("empty reading reference at %s", entry.Coord)
		}
	}
	return entry, nil
}
