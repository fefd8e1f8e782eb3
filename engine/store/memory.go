// Package store provides an in-memory TxStore implementation
// (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/reading-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a TxStore backed by maps. All access serializes on one
// mutex; WithTx snapshots state and restores it on failure, matching
// the all-or-nothing semantics of a database transaction.
type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	users       map[engine.UserID]engine.User
	byPlatform  map[int64]engine.UserID
	callbacks   map[string]time.Time
	completions map[engine.UserID]map[engine.Coordinate]engine.Completion
	events      map[engine.UserID][]engine.Event
	plan        []engine.PlanEntry
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

func newState() *state {
	return &state{
		users:       make(map[engine.UserID]engine.User),
		byPlatform:  make(map[int64]engine.UserID),
		callbacks:   make(map[string]time.Time),
		completions: make(map[engine.UserID]map[engine.Coordinate]engine.Completion),
		events:      make(map[engine.UserID][]engine.Event),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.byPlatform {
		c.byPlatform[k] = v
	}
	for k, v := range s.callbacks {
		c.callbacks[k] = v
	}
	for k, v := range s.completions {
		inner := make(map[engine.Coordinate]engine.Completion, len(v))
		for coord, comp := range v {
			inner[coord] = comp
		}
		c.completions[k] = inner
	}
	for k, v := range s.events {
		c.events[k] = append([]engine.Event(nil), v...)
	}
	c.plan = append([]engine.PlanEntry(nil), s.plan...)
	return c
}

// WithTx runs fn against a clone of the store. The clone replaces the
// live state only if fn succeeds, so a failed transaction leaves no
// partial writes behind.
func (m *Memory) WithTx(_ context.Context, fn func(engine.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.st.clone()
	if err := fn(&txView{st: work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

// txView exposes the state without locking; the enclosing WithTx holds
// the store mutex for the whole transaction.
type txView struct {
	st *state
}

// =============================================================================
// STATE OPERATIONS - Shared by Memory (locked) and txView (tx-scoped)
// =============================================================================

func (s *state) createUser(u engine.User) error {
	if _, exists := s.byPlatform[u.PlatformID]; exists {
		return engine.ErrUserExists
	}
	if _, exists := s.users[u.ID]; exists {
		return engine.ErrUserExists
	}
	s.users[u.ID] = u
	s.byPlatform[u.PlatformID] = u.ID
	return nil
}

func (s *state) userByID(id engine.UserID) (engine.User, error) {
	u, ok := s.users[id]
	if !ok {
		return engine.User{}, engine.ErrUserNotFound
	}
	return u, nil
}

func (s *state) userByPlatformID(platformID int64) (engine.User, error) {
	id, ok := s.byPlatform[platformID]
	if !ok {
		return engine.User{}, engine.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *state) listUsers() []engine.User {
	users := make([]engine.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (s *state) mutateUser(id engine.UserID, fn func(*engine.User) error) error {
	u, ok := s.users[id]
	if !ok {
		return engine.ErrUserNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	s.users[id] = u
	return nil
}

func (s *state) insertCallback(callbackID string, processedAt time.Time) error {
	if _, dup := s.callbacks[callbackID]; dup {
		return engine.ErrDuplicateCallback
	}
	s.callbacks[callbackID] = processedAt
	return nil
}

func (s *state) insertCompletion(c engine.Completion) error {
	byCoord := s.completions[c.UserID]
	if byCoord == nil {
		byCoord = make(map[engine.Coordinate]engine.Completion)
		s.completions[c.UserID] = byCoord
	}
	if _, dup := byCoord[c.Coord]; dup {
		return engine.ErrAlreadyCompleted
	}
	byCoord[c.Coord] = c
	return nil
}

func (s *state) completionsOf(id engine.UserID) []engine.Completion {
	var out []engine.Completion
	for _, c := range s.completions[id] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Coord.Ordinal() < out[j].Coord.Ordinal() })
	return out
}

func (s *state) hasCompletionBetween(id engine.UserID, from, to time.Time) bool {
	for _, c := range s.completions[id] {
		if !c.CompletedAt.Before(from) && c.CompletedAt.Before(to) {
			return true
		}
	}
	return false
}

func (s *state) appendEvent(e engine.Event) {
	if e.Coord != nil {
		c := *e.Coord
		e.Coord = &c
	}
	s.events[e.UserID] = append(s.events[e.UserID], e)
}

func (s *state) eventsByKind(id engine.UserID, kind engine.EventKind) []engine.Event {
	var out []engine.Event
	for _, e := range s.events[id] {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (s *state) countEventsBetween(id engine.UserID, kind engine.EventKind, from, to time.Time) int {
	count := 0
	for _, e := range s.events[id] {
		if e.Kind == kind && !e.CreatedAt.Before(from) && !e.CreatedAt.After(to) {
			count++
		}
	}
	return count
}

// =============================================================================
// MEMORY - engine.Store with locking
// =============================================================================

func (m *Memory) CreateUser(_ context.Context, u engine.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createUser(u)
}

func (m *Memory) UserByID(_ context.Context, id engine.UserID) (engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.userByID(id)
}

func (m *Memory) UserByPlatformID(_ context.Context, platformID int64) (engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.userByPlatformID(platformID)
}

func (m *Memory) ListUsers(_ context.Context) ([]engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listUsers(), nil
}

func (m *Memory) UpdateProfile(_ context.Context, id engine.UserID, username, firstName, lastName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.mutateUser(id, func(u *engine.User) error {
		u.Username, u.FirstName, u.LastName = username, firstName, lastName
		return nil
	})
}

func (m *Memory) UpdateTimezone(_ context.Context, id engine.UserID, tz string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.mutateUser(id, func(u *engine.User) error {
		u.Timezone = tz
		return nil
	})
}

func (m *Memory) SetPointer(_ context.Context, id engine.UserID, next, expected engine.Coordinate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.mutateUser(id, func(u *engine.User) error {
		if u.Pointer != expected {
			return &engine.ConflictError{UserID: id, Expected: expected}
		}
		u.Pointer = next
		return nil
	})
}

func (m *Memory) MarkDailySent(_ context.Context, id engine.UserID, day engine.LocalDate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.mutateUser(id, func(u *engine.User) error {
		u.LastDailySent = day
		return nil
	})
}

func (m *Memory) MarkNudgeSent(_ context.Context, id engine.UserID, day engine.LocalDate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.mutateUser(id, func(u *engine.User) error {
		u.LastNudgeSent = day
		return nil
	})
}

func (m *Memory) InsertCallback(_ context.Context, callbackID string, processedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertCallback(callbackID, processedAt)
}

func (m *Memory) InsertCompletion(_ context.Context, c engine.Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertCompletion(c)
}

func (m *Memory) HasCompletion(_ context.Context, id engine.UserID, coord engine.Coordinate) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.st.completions[id][coord]
	return ok, nil
}

func (m *Memory) Completions(_ context.Context, id engine.UserID) ([]engine.Completion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.completionsOf(id), nil
}

func (m *Memory) CountCompletions(_ context.Context, id engine.UserID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.st.completions[id]), nil
}

func (m *Memory) HasCompletionBetween(_ context.Context, id engine.UserID, from, to time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.hasCompletionBetween(id, from, to), nil
}

func (m *Memory) AppendEvent(_ context.Context, e engine.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.appendEvent(e)
	return nil
}

func (m *Memory) EventsByKind(_ context.Context, id engine.UserID, kind engine.EventKind) ([]engine.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.eventsByKind(id, kind), nil
}

func (m *Memory) CountEventsBetween(_ context.Context, id engine.UserID, kind engine.EventKind, from, to time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.countEventsBetween(id, kind, from, to), nil
}

func (m *Memory) SeedPlan(_ context.Context, entries []engine.PlanEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.plan = append([]engine.PlanEntry(nil), entries...)
	return nil
}

func (m *Memory) PlanEntries(_ context.Context) ([]engine.PlanEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.PlanEntry(nil), m.st.plan...), nil
}

// =============================================================================
// TX VIEW - engine.Store without locking
// =============================================================================

func (v *txView) CreateUser(_ context.Context, u engine.User) error {
	return v.st.createUser(u)
}

func (v *txView) UserByID(_ context.Context, id engine.UserID) (engine.User, error) {
	return v.st.userByID(id)
}

func (v *txView) UserByPlatformID(_ context.Context, platformID int64) (engine.User, error) {
	return v.st.userByPlatformID(platformID)
}

func (v *txView) ListUsers(_ context.Context) ([]engine.User, error) {
	return v.st.listUsers(), nil
}

func (v *txView) UpdateProfile(_ context.Context, id engine.UserID, username, firstName, lastName string) error {
	return v.st.mutateUser(id, func(u *engine.User) error {
		u.Username, u.FirstName, u.LastName = username, firstName, lastName
		return nil
	})
}

func (v *txView) UpdateTimezone(_ context.Context, id engine.UserID, tz string) error {
	return v.st.mutateUser(id, func(u *engine.User) error {
		u.Timezone = tz
		return nil
	})
}

func (v *txView) SetPointer(_ context.Context, id engine.UserID, next, expected engine.Coordinate) error {
	return v.st.mutateUser(id, func(u *engine.User) error {
		if u.Pointer != expected {
			return &engine.ConflictError{UserID: id, Expected: expected}
		}
		u.Pointer = next
		return nil
	})
}

func (v *txView) MarkDailySent(_ context.Context, id engine.UserID, day engine.LocalDate) error {
	return v.st.mutateUser(id, func(u *engine.User) error {
		u.LastDailySent = day
		return nil
	})
}

func (v *txView) MarkNudgeSent(_ context.Context, id engine.UserID, day engine.LocalDate) error {
	return v.st.mutateUser(id, func(u *engine.User) error {
		u.LastNudgeSent = day
		return nil
	})
}

func (v *txView) InsertCallback(_ context.Context, callbackID string, processedAt time.Time) error {
	return v.st.insertCallback(callbackID, processedAt)
}

func (v *txView) InsertCompletion(_ context.Context, c engine.Completion) error {
	return v.st.insertCompletion(c)
}

func (v *txView) HasCompletion(_ context.Context, id engine.UserID, coord engine.Coordinate) (bool, error) {
	_, ok := v.st.completions[id][coord]
	return ok, nil
}

func (v *txView) Completions(_ context.Context, id engine.UserID) ([]engine.Completion, error) {
	return v.st.completionsOf(id), nil
}

func (v *txView) CountCompletions(_ context.Context, id engine.UserID) (int, error) {
	return len(v.st.completions[id]), nil
}

func (v *txView) HasCompletionBetween(_ context.Context, id engine.UserID, from, to time.Time) (bool, error) {
	return v.st.hasCompletionBetween(id, from, to), nil
}

func (v *txView) AppendEvent(_ context.Context, e engine.Event) error {
	v.st.appendEvent(e)
	return nil
}

func (v *txView) EventsByKind(_ context.Context, id engine.UserID, kind engine.EventKind) ([]engine.Event, error) {
	return v.st.eventsByKind(id, kind), nil
}

func (v *txView) CountEventsBetween(_ context.Context, id engine.UserID, kind engine.EventKind, from, to time.Time) (int, error) {
	return v.st.countEventsBetween(id, kind, from, to), nil
}

func (v *txView) SeedPlan(_ context.Context, entries []engine.PlanEntry) error {
	v.st.plan = append([]engine.PlanEntry(nil), entries...)
	return nil
}

func (v *txView) PlanEntries(_ context.Context) ([]engine.PlanEntry, error) {
	return append([]engine.PlanEntry(nil), v.st.plan...), nil
}
