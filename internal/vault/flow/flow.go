// Package flow implements the multi-turn capture dialogs as an explicit
// finite-state machine: a declared sequence of prompts per flow kind, pure
// step validators, and a per-user State that is advanced one raw input at
// a time. The package is independent of any transport or event loop; it
// holds only plaintext the user has typed in the current turn sequence and
// is always discarded, never persisted.
package flow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies a capture dialog.
type Kind string

const (
	KindAddPassword Kind = "add-password"
	KindAddTask     Kind = "add-task"
	KindAddFile     Kind = "add-file"
)

// SkipWord is the literal input that skips an optional step.
const SkipWord = "skip"

// ErrDeclined is returned by Apply when the user answers "no" on the
// final confirm step. The caller must discard the state.
var ErrDeclined = errors.New("flow: declined at confirmation")

// ValidationError reports malformed step input with a human-readable
// reason. The flow stays on the same step; callers re-prompt.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "flow: invalid input: " + e.Reason }

func invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Step is one prompt in a flow definition. Validate normalizes the raw
// input or returns a ValidationError; it must be a pure function.
type Step struct {
	Name     string
	Prompt   string
	Optional bool
	Validate func(input string) (string, error)
}

// Definition is the declared step sequence for one flow kind.
type Definition struct {
	Kind  Kind
	Steps []Step
}

// State is one user's in-progress capture. It is kept in the session
// record and guarded by the session's per-user exclusion.
type State struct {
	def         *Definition
	stepIndex   int
	Collected   map[string]string
	StartedAt   time.Time
	LastInputAt time.Time
}

// NewState creates a fresh state positioned at the first step.
func NewState(def *Definition, now time.Time) *State {
	return &State{
		def:         def,
		Collected:   make(map[string]string, len(def.Steps)),
		StartedAt:   now,
		LastInputAt: now,
	}
}

// Kind returns the flow kind this state belongs to.
func (s *State) Kind() Kind { return s.def.Kind }

// Step returns the current step.
func (s *State) Step() *Step { return &s.def.Steps[s.stepIndex] }

// Prompt returns the current step's prompt text.
func (s *State) Prompt() string { return s.Step().Prompt }

// Expired reports whether the state has been idle past the timeout.
func (s *State) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastInputAt) > timeout
}

// Apply validates the raw input against the current step and either stores
// it and moves on, or returns a ValidationError leaving the state in place.
// It returns done=true once the last step has been accepted. ErrDeclined is
// returned when the user rejects the confirmation step.
func (s *State) Apply(input string, now time.Time) (done bool, err error) {
	step := s.Step()

	value := input
	skipped := step.Optional && strings.EqualFold(strings.TrimSpace(input), SkipWord)
	if skipped {
		value = ""
	} else {
		value, err = step.Validate(input)
		if err != nil {
			return false, err
		}
	}

	if step.Name == stepConfirm {
		s.LastInputAt = now
		if value != confirmYes {
			return false, ErrDeclined
		}
		s.stepIndex++
		return true, nil
	}

	s.Collected[step.Name] = value
	s.LastInputAt = now
	s.stepIndex++
	return s.stepIndex >= len(s.def.Steps), nil
}
