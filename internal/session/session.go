// Package session tracks per-user generation state: the last prompt, whether a
// generation is in flight, the current spec and the user's saved calculators.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bizmatters/calculator-studio/internal/models"
)

// State is the generation state of a session
type State string

const (
	StateIdle       State = "idle"
	StateGenerating State = "generating"
)

var (
	// ErrAlreadyGenerating is returned by Begin while a generation is in flight
	ErrAlreadyGenerating = errors.New("generation already in progress")
	// ErrEmptyPrompt is returned by Begin for a blank prompt
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrNotGenerating is returned by Complete when no generation was started
	ErrNotGenerating = errors.New("no generation in progress")
)

// Session holds one user's generation state
type Session struct {
	mu        sync.Mutex
	userID    string
	prompt    string
	state     State
	current   *models.GenerationResult
	saved     []*models.Calculator
	updatedAt time.Time
	now       func() time.Time
}

// Snapshot is a point-in-time copy of a session
type Snapshot struct {
	UserID    string                   `json:"user_id"`
	Prompt    string                   `json:"prompt"`
	State     State                    `json:"state"`
	Current   *models.GenerationResult `json:"current,omitempty"`
	Saved     []*models.Calculator     `json:"saved,omitempty"`
	UpdatedAt time.Time                `json:"updated_at"`
}

func newSession(userID string, now func() time.Time) *Session {
	return &Session{userID: userID, state: StateIdle, updatedAt: now(), now: now}
}

// Begin moves the session from idle to generating
func (s *Session) Begin(prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ErrEmptyPrompt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateGenerating {
		return ErrAlreadyGenerating
	}
	s.state = StateGenerating
	s.prompt = prompt
	s.updatedAt = s.now()
	return nil
}

// Complete stores the result and returns the session to idle
func (s *Session) Complete(result models.GenerationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateGenerating {
		return ErrNotGenerating
	}
	result.Spec = result.Spec.Clone()
	s.current = &result
	s.state = StateIdle
	s.updatedAt = s.now()
	return nil
}

// Fail returns the session to idle and keeps the previous spec
func (s *Session) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateIdle
	s.updatedAt = s.now()
}

// SetSaved replaces the saved-calculator list
func (s *Session) SetSaved(calcs []*models.Calculator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saved = append([]*models.Calculator(nil), calcs...)
	s.updatedAt = s.now()
}

// Reset clears everything but the user id. A session with a generation in
// flight is left untouched.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateGenerating {
		return ErrAlreadyGenerating
	}
	s.prompt = ""
	s.state = StateIdle
	s.current = nil
	s.saved = nil
	s.updatedAt = s.now()
	return nil
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		UserID:    s.userID,
		Prompt:    s.prompt,
		State:     s.state,
		Saved:     append([]*models.Calculator(nil), s.saved...),
		UpdatedAt: s.updatedAt,
	}
	if s.current != nil {
		cur := *s.current
		cur.Spec = cur.Spec.Clone()
		snap.Current = &cur
	}
	return snap
}

// GenerateFunc produces a generation result for a prompt
type GenerateFunc func(ctx context.Context, prompt string) models.GenerationResult

// Run guards one generation: Begin, gen, then Complete. The session returns
// to idle even if gen panics.
func (s *Session) Run(ctx context.Context, prompt string, gen GenerateFunc) (result models.GenerationResult, err error) {
	if err := s.Begin(prompt); err != nil {
		return models.GenerationResult{}, err
	}

	done := false
	defer func() {
		if !done {
			s.Fail()
		}
	}()

	result = gen(ctx, strings.TrimSpace(prompt))
	if err := s.Complete(result); err != nil {
		return models.GenerationResult{}, err
	}
	done = true
	return result, nil
}

// Manager keys sessions by user id
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewManager creates an empty session manager
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session), now: time.Now}
}

// Get returns the user's session, creating it on first use
func (m *Manager) Get(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		s = newSession(userID, m.now)
		m.sessions[userID] = s
	}
	return s
}

// Reset drops the user's session unless it is generating
func (m *Manager) Reset(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil
	}
	s.mu.Lock()
	busy := s.state == StateGenerating
	s.mu.Unlock()
	if busy {
		return ErrAlreadyGenerating
	}
	delete(m.sessions, userID)
	return nil
}

// Len returns the number of tracked sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Prune removes idle sessions not touched within maxAge and returns how many were removed
func (m *Manager) Prune(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		stale := s.state == StateIdle && s.updatedAt.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// StartPruning runs Prune every interval until ctx is done
func (m *Manager) StartPruning(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Prune(maxAge)
			}
		}
	}()
}
