package planner

import (
	"fmt"
	"time"
)

// State is a step of the per-call generation state machine.
type State string

const (
	StateIdle        State = "idle"
	StateValidating  State = "validating"
	StateRetrying    State = "retrying"
	StateNormalizing State = "normalizing"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
	StateRejected    State = "rejected"
	StateCancelled   State = "cancelled"
)

// StageState names the state of the n-th stage (1-based).
func StageState(n int) State {
	return State(fmt.Sprintf("stage_%d", n))
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateRejected, StateCancelled:
		return true
	}
	return false
}

// Progress is a snapshot handed to progress listeners.
type Progress struct {
	SessionID   string
	State       State
	Stage       string
	Percent     int
	Attempt     int
	MaxAttempts int
}

// ProgressFunc receives progress updates. It is called synchronously from
// Generate and must not block for long.
type ProgressFunc func(Progress)

// Session is the ephemeral state of one Generate call.
type Session struct {
	ID          string
	State       State
	Stage       string
	Progress    int
	Attempt     int
	StartedAt   time.Time
	Transitions []State
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:          id,
		State:       StateIdle,
		StartedAt:   now,
		Transitions: []State{StateIdle},
	}
}

func (s *Session) transition(to State) {
	s.State = to
	s.Transitions = append(s.Transitions, to)
}

// advance moves progress forward; it never goes back.
func (s *Session) advance(percent int) {
	if percent > 100 {
		percent = 100
	}
	if percent > s.Progress {
		s.Progress = percent
	}
}

func (s *Session) snapshot() Session {
	out := *s
	out.Transitions = append([]State(nil), s.Transitions...)
	return out
}
