/*
Package engine implements the reading progress and streak engine.

PURPOSE:
  This package turns a stream of discrete, possibly-duplicated events
  (read, break, nudge) into consistent derived state: the user's pointer
  into a fixed 300-reading plan, a completion streak with a tolerant
  break policy, and the remaining break allowance.

KEY CONCEPTS IN THIS FILE (types.go):
  - Coordinate: A (month, day) pair identifying one of the 300 readings
  - PlanEntry:  The four scripture references scheduled for a coordinate
  - User:       Identity, timezone, and the mutable pointer
  - Event:      An immutable log entry (read, break, nudge)
  - Completion: One row per finished coordinate, unique per user

DESIGN PRINCIPLES:
  1. Immutability: Events and completions are never modified or deleted
  2. Derivation: Streak and break budget are projections over the event
     log, never stored counters
  3. Type Safety: EventKind is a closed set; exhaustive switches are
     checkable
  4. Idempotency: Every inbound callback id produces effects at most once

SEE ALSO:
  - plan.go:     Plan table and coordinate arithmetic validation
  - progress.go: Pointer advancement and completion recording
  - streak.go:   Streak projection
  - breaks.go:   Trailing-window break budget
*/
package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type EventID string
type CompletionID string

// =============================================================================
// COORDINATE - Position in the reading plan
// =============================================================================

// Coordinate identifies one of the 300 scheduled readings.
// The zero value is the "plan complete" sentinel: it is what the pointer
// becomes after the last reading, and it is never a valid plan position.
type Coordinate struct {
	Month int
	Day   int
}

// PlanComplete is the pointer value after the final reading is done.
var PlanComplete = Coordinate{}

func NewCoordinate(month, day int) Coordinate {
	return Coordinate{Month: month, Day: day}
}

// Valid reports whether c denotes an actual plan position.
func (c Coordinate) Valid() bool {
	return c.Month >= 1 && c.Month <= PlanMonths && c.Day >= 1 && c.Day <= DaysPerMonth
}

// IsComplete reports whether c is the "plan complete" sentinel.
func (c Coordinate) IsComplete() bool {
	return c == PlanComplete
}

// Next returns the coordinate that follows c in plan order: day+1,
// rolling into month+1 after day 25, and the sentinel after (12, 25).
func (c Coordinate) Next() Coordinate {
	if !c.Valid() {
		return PlanComplete
	}
	next := Coordinate{Month: c.Month, Day: c.Day + 1}
	if next.Day > DaysPerMonth {
		next = Coordinate{Month: c.Month + 1, Day: 1}
	}
	if next.Month > PlanMonths {
		return PlanComplete
	}
	return next
}

// Ordinal returns the 1-based position of c in plan order (1..300),
// or 0 for the sentinel.
func (c Coordinate) Ordinal() int {
	if !c.Valid() {
		return 0
	}
	return (c.Month-1)*DaysPerMonth + c.Day
}

// CoordinateAt is the inverse of Ordinal for n in [1, 300].
func CoordinateAt(ordinal int) Coordinate {
	if ordinal < 1 || ordinal > PlanSize {
		return PlanComplete
	}
	return Coordinate{
		Month: (ordinal-1)/DaysPerMonth + 1,
		Day:   (ordinal-1)%DaysPerMonth + 1,
	}
}

func (c Coordinate) String() string {
	if c.IsComplete() {
		return "complete"
	}
	return fmt.Sprintf("%d/%d", c.Month, c.Day)
}

// =============================================================================
// PLAN ENTRY - One day of readings
// =============================================================================

// Reference is a single (book, chapter) reading reference.
type Reference struct {
	Book    string
	Chapter string
}

func (r Reference) String() string {
	return r.Book + " " + r.Chapter
}

// PlanEntry holds the four readings scheduled for one coordinate.
type PlanEntry struct {
	Coord Coordinate
	NT1   Reference
	NT2   Reference
	OT1   Reference
	OT2   Reference
}

// References returns the four readings in display order.
func (e PlanEntry) References() []Reference {
	return []Reference{e.NT1, e.NT2, e.OT1, e.OT2}
}

// =============================================================================
// EVENT - Append-only log entry
// =============================================================================

// EventKind is the closed set of event types. Handle exhaustively.
type EventKind string

const (
	KindRead  EventKind = "read"
	KindBreak EventKind = "break"
	KindNudge EventKind = "nudge"
)

func (k EventKind) Valid() bool {
	switch k {
	case KindRead, KindBreak, KindNudge:
		return true
	}
	return false
}

// Event is one immutable entry in the per-user event log. Read and break
// events may carry a plan coordinate; nudge events never do. A break
// without a coordinate is a "floating" break that covers one gap day in
// the streak walk.
type Event struct {
	ID        EventID
	UserID    UserID
	Kind      EventKind
	Coord     *Coordinate
	Reason    string
	CreatedAt time.Time
}

// =============================================================================
// COMPLETION - One row per finished coordinate
// =============================================================================

// Completion records that a user finished a coordinate's readings.
// At most one exists per (user, coordinate); the store enforces this.
type Completion struct {
	ID          CompletionID
	UserID      UserID
	Coord       Coordinate
	CompletedAt time.Time
}

// =============================================================================
// USER
// =============================================================================

// User holds identity, timezone, and the pointer: the next pending
// coordinate (or PlanComplete). The pointer never names an
// already-completed coordinate.
type User struct {
	ID         UserID
	PlatformID int64
	Username   string
	FirstName  string
	LastName   string
	Timezone   string
	Pointer    Coordinate

	// Delivery bookkeeping for the reminder scheduler, stored as the
	// user's local date so each message fires at most once per day.
	LastDailySent LocalDate
	LastNudgeSent LocalDate

	CreatedAt time.Time
}

// =============================================================================
// OPERATION RESULTS
// =============================================================================

// CompletionResult classifies a read submission.
type CompletionResult string

const (
	ResultAdvanced         CompletionResult = "advanced"
	ResultAlreadyCompleted CompletionResult = "already_completed"
	ResultOutOfSequence    CompletionResult = "out_of_sequence"
)

// BreakResult classifies a break submission.
type BreakResult string

const (
	BreakGranted BreakResult = "granted"
	BreakDenied  BreakResult = "denied"
)

// Outcome is the engine-level result of an inbound event submission.
type Outcome string

const (
	OutcomeAdvanced          Outcome = "accepted-advanced"
	OutcomeAlreadyCompleted  Outcome = "accepted-already-completed"
	OutcomeOutOfSequence     Outcome = "accepted-out-of-sequence"
	OutcomeBreakGranted      Outcome = "accepted-break-granted"
	OutcomeBreakDenied       Outcome = "accepted-break-denied"
	OutcomeDuplicateCallback Outcome = "duplicate-callback"
)

// Submission is one inbound event, keyed by the transport's callback id.
type Submission struct {
	UserID     UserID
	CallbackID string
	Kind       EventKind
	Coord      *Coordinate
}
