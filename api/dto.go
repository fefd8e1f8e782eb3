/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the engine's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/reading-engine/engine"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RegisterUserRequest creates-or-fetches a user by platform id.
type RegisterUserRequest struct {
	PlatformID int64  `json:"platform_id"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

// UpdateTimezoneRequest sets a user's IANA timezone.
type UpdateTimezoneRequest struct {
	Timezone string `json:"timezone"`
}

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID           string `json:"id"`
	PlatformID   int64  `json:"platform_id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Timezone     string `json:"timezone"`
	CurrentMonth int    `json:"current_month"`
	CurrentDay   int    `json:"current_day"`
	PlanComplete bool   `json:"plan_complete"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// SubmitEventRequest is one inbound read/break event.
type SubmitEventRequest struct {
	UserID     string `json:"user_id"`
	CallbackID string `json:"callback_id"`
	Kind       string `json:"kind"`
	Month      *int   `json:"month,omitempty"`
	Day        *int   `json:"day,omitempty"`
}

// SubmitEventResponse carries the engine's outcome.
type SubmitEventResponse struct {
	Outcome string `json:"outcome"`
}

// StatsDTO is the derived per-user summary.
type StatsDTO struct {
	Streak          int    `json:"streak"`
	BreaksUsed      int    `json:"breaks_used"`
	BreaksLeft      int    `json:"breaks_left"`
	CurrentMonth    int    `json:"current_month"`
	CurrentDay      int    `json:"current_day"`
	NextMonth       int    `json:"next_month"`
	NextDay         int    `json:"next_day"`
	TotalCompleted  int    `json:"total_completed"`
	PercentComplete string `json:"percent_complete"`
	PlanComplete    bool   `json:"plan_complete"`
}

// ReferenceDTO is one (book, chapter) reading.
type ReferenceDTO struct {
	Book    string `json:"book"`
	Chapter string `json:"chapter"`
}

// ReadingDTO is one plan entry.
type ReadingDTO struct {
	Month    int            `json:"month"`
	Day      int            `json:"day"`
	Readings []ReferenceDTO `json:"readings"`
}

// StreakDTO answers the streak query.
type StreakDTO struct {
	Streak int    `json:"streak"`
	AsOf   string `json:"as_of"`
}

// BreaksDTO answers the break-budget query.
type BreaksDTO struct {
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
	AsOf      string `json:"as_of"`
}

// CronResultDTO reports a cron sweep.
type CronResultDTO struct {
	Checked int `json:"checked"`
	Sent    int `json:"sent"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toUserDTO(u engine.User) UserDTO {
	return UserDTO{
		ID:           string(u.ID),
		PlatformID:   u.PlatformID,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Timezone:     u.Timezone,
		CurrentMonth: u.Pointer.Month,
		CurrentDay:   u.Pointer.Day,
		PlanComplete: u.Pointer.IsComplete(),
		CreatedAt:    u.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func toStatsDTO(s engine.Stats) StatsDTO {
	return StatsDTO{
		Streak:          s.Streak,
		BreaksUsed:      s.BreaksUsed,
		BreaksLeft:      s.BreaksLeft,
		CurrentMonth:    s.Pointer.Month,
		CurrentDay:      s.Pointer.Day,
		NextMonth:       s.Next.Month,
		NextDay:         s.Next.Day,
		TotalCompleted:  s.TotalCompleted,
		PercentComplete: s.PercentComplete.String(),
		PlanComplete:    s.Pointer.IsComplete(),
	}
}

func toReadingDTO(e engine.PlanEntry) ReadingDTO {
	refs := make([]ReferenceDTO, 0, 4)
	for _, r := range e.References() {
		refs = append(refs, ReferenceDTO{Book: r.Book, Chapter: r.Chapter})
	}
	return ReadingDTO{Month: e.Coord.Month, Day: e.Coord.Day, Readings: refs}
}
