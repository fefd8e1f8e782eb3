/*
handlers.go - HTTP API handlers for the progress & streak engine

PURPOSE:
  Exposes the engine via REST. Handles HTTP request/response, JSON
  serialization, and delegates everything else to the engine.

ENDPOINTS:
  Users:
    POST   /api/users                  Create-or-fetch by platform id
    GET    /api/users/{id}             Get user
    PUT    /api/users/{id}/timezone    Update IANA timezone
    GET    /api/users/{id}/stats       Derived summary
    GET    /api/users/{id}/streak      Current streak (as_of optional)
    GET    /api/users/{id}/breaks      Break budget (as_of optional)
    GET    /api/users/{id}/next        Next pending reading

  Events:
    POST   /api/events                 Submit an inbound read/break event

  Scheduler queries:
    GET    /api/scheduler/pending      Users due a daily card
    GET    /api/scheduler/unread       Users with no completion today

ERROR HANDLING:
  Errors are returned as JSON with status derived from the engine's
  error taxonomy:
  - 400: Validation errors (coordinate, kind, timezone)
  - 404: Unknown user
  - 503: Retries exhausted on a pointer race; resubmission is safe
  - 500: Storage errors

  duplicate-callback is NOT an error: it is a 200 with its own outcome.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/reading-engine/engine"
	"github.com/warp/reading-engine/notify"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *engine.Engine
	Notifier notify.Notifier

	// CronSecret gates the /cron endpoints. Empty disables them.
	CronSecret string

	// Scheduler runs the same sweeps the cron endpoints trigger.
	Scheduler *ReminderScheduler
}

// NewHandler creates a handler around the engine.
func NewHandler(eng *engine.Engine, notifier notify.Notifier, cronSecret string) *Handler {
	h := &Handler{
		Engine:     eng,
		Notifier:   notifier,
		CronSecret: cronSecret,
	}
	h.Scheduler = NewReminderScheduler(eng, notifier)
	return h
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// RegisterUser creates-or-fetches a user by platform id.
// POST /api/users
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PlatformID == 0 {
		writeError(w, http.StatusBadRequest, "platform_id is required", nil)
		return
	}

	u, err := h.Engine.RegisterUser(r.Context(), req.PlatformID, req.Username, req.FirstName, req.LastName)
	if err != nil {
		writeEngineError(w, "Failed to register user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// GetUser returns a single user.
// GET /api/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := engine.UserID(chi.URLParam(r, "id"))

	u, err := h.Engine.Store.UserByID(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// UpdateTimezone sets a user's timezone, rejecting unknown IANA names.
// PUT /api/users/{id}/timezone
func (h *Handler) UpdateTimezone(w http.ResponseWriter, r *http.Request) {
	id := engine.UserID(chi.URLParam(r, "id"))

	var req UpdateTimezoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Engine.UpdateTimezone(r.Context(), id, req.Timezone); err != nil {
		writeEngineError(w, "Failed to update timezone", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"timezone": req.Timezone})
}

// GetStats returns the derived per-user summary.
// GET /api/users/{id}/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	id := engine.UserID(chi.URLParam(r, "id"))

	stats, err := h.Engine.Stats(r.Context(), id, h.asOf(r))
	if err != nil {
		writeEngineError(w, "Failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(stats))
}

// GetStreak returns the current streak, recomputed on demand.
// GET /api/users/{id}/streak?as_of=2026-08-29T00:00:00Z
func (h *Handler) GetStreak(w http.ResponseWriter, r *http.Request) {
	id := engine.UserID(chi.URLParam(r, "id"))
	asOf := h.asOf(r)

	streak, err := h.Engine.CurrentStreak(r.Context(), id, asOf)
	if err != nil {
		writeEngineError(w, "Failed to compute streak", err)
		return
	}
	writeJSON(w, http.StatusOK, StreakDTO{Streak: streak, AsOf: asOf.Format(time.RFC3339)})
}

// GetBreaks returns the trailing-window break budget.
// GET /api/users/{id}/breaks
func (h *Handler) GetBreaks(w http.ResponseWriter, r *http.Request) {
	id := engine.UserID(chi.URLParam(r, "id"))
	asOf := h.asOf(r)

	used, err := h.Engine.BreaksUsed(r.Context(), id, asOf)
	if err != nil {
		writeEngineError(w, "Failed to compute breaks", err)
		return
	}
	remaining, err := h.Engine.BreaksRemaining(r.Context(), id, asOf)
	if err != nil {
		writeEngineError(w, "Failed to compute breaks", err)
		return
	}
	writeJSON(w, http.StatusOK, BreaksDTO{Used: used, Remaining: remaining, AsOf: asOf.Format(time.RFC3339)})
}

// GetNextReading returns the plan entry at the user's pointer.
// GET /api/users/{id}/next
func (h *Handler) GetNextReading(w http.ResponseWriter, r *http.Request) {
	id := engine.UserID(chi.URLParam(r, "id"))

	entry, ok, err := h.Engine.NextReading(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get next reading", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"plan_complete": true})
		return
	}
	writeJSON(w, http.StatusOK, toReadingDTO(entry))
}

// =============================================================================
// EVENT SUBMISSION
// =============================================================================

// SubmitEvent applies one inbound read/break event, idempotently.
// POST /api/events
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var req SubmitEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sub := engine.Submission{
		UserID:     engine.UserID(req.UserID),
		CallbackID: req.CallbackID,
		Kind:       engine.EventKind(req.Kind),
	}
	if req.Month != nil && req.Day != nil {
		coord := engine.NewCoordinate(*req.Month, *req.Day)
		sub.Coord = &coord
	}

	outcome, err := h.Engine.Submit(r.Context(), sub)
	if err != nil {
		writeEngineError(w, "Failed to apply event", err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitEventResponse{Outcome: string(outcome)})
}

// =============================================================================
// SCHEDULER QUERIES
// =============================================================================

// ListPending returns users due a daily card as of now.
// GET /api/scheduler/pending
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	users, err := h.Engine.PendingForToday(r.Context(), h.asOf(r))
	if err != nil {
		writeEngineError(w, "Failed to list pending users", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTOs(users))
}

// ListUnread returns users with no completion on their local date.
// GET /api/scheduler/unread
func (h *Handler) ListUnread(w http.ResponseWriter, r *http.Request) {
	users, err := h.Engine.NotYetReadToday(r.Context(), h.asOf(r))
	if err != nil {
		writeEngineError(w, "Failed to list unread users", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTOs(users))
}

// =============================================================================
// CRON ENDPOINTS
// =============================================================================

// CronDaily runs the daily-card sweep.
// POST /cron/daily
func (h *Handler) CronDaily(w http.ResponseWriter, r *http.Request) {
	checked, sent, err := h.Scheduler.RunDaily(r.Context())
	if err != nil {
		writeEngineError(w, "Daily sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CronResultDTO{Checked: checked, Sent: sent})
}

// CronNudge runs the evening nudge sweep.
// POST /cron/nudge
func (h *Handler) CronNudge(w http.ResponseWriter, r *http.Request) {
	checked, sent, err := h.Scheduler.RunNudge(r.Context())
	if err != nil {
		writeEngineError(w, "Nudge sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CronResultDTO{Checked: checked, Sent: sent})
}

// requireCronSecret guards the cron endpoints.
func (h *Handler) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.CronSecret == "" || r.Header.Get("X-Cron-Secret") != h.CronSecret {
			writeError(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// asOf reads the optional as_of query parameter, defaulting to the
// engine clock so tests can pin time.
func (h *Handler) asOf(r *http.Request) time.Time {
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
	}
	return h.Engine.Clock()
}

func toUserDTOs(users []engine.User) []UserDTO {
	dtos := make([]UserDTO, 0, len(users))
	for _, u := range users {
		dtos = append(dtos, toUserDTO(u))
	}
	return dtos
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps the engine's error taxonomy to HTTP status.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
