// Package course drives a learner through a module's ordered steps: it gates
// navigation, advances on step completion, runs quiz steps and persists the
// learner's position after every change.
package course

import (
	"errors"
	"fmt"
)

// StepComplete is the terminal pseudo-step reached after the last real step.
// It is never part of a sequence.
const StepComplete = "complete"

// StepKind classifies what a step presents.
type StepKind string

const (
	KindActivity   StepKind = "activity"
	KindVideo      StepKind = "video"
	KindReflection StepKind = "reflection"
	KindQuiz       StepKind = "quiz"
)

// Valid reports whether k is a known step kind.
func (k StepKind) Valid() bool {
	switch k {
	case KindActivity, KindVideo, KindReflection, KindQuiz:
		return true
	}
	return false
}

// StepDef describes one step of a module. QuizID is set only for quiz steps.
type StepDef struct {
	ID     string   `json:"id"`
	Kind   StepKind `json:"kind"`
	Title  string   `json:"title,omitempty"`
	QuizID string   `json:"quiz_id,omitempty"`
}

var ErrInvalidSequence = errors.New("invalid step sequence")

// Sequence is a module's fixed, ordered list of steps.
type Sequence struct {
	steps []StepDef
	index map[string]int
}

// NewSequence validates steps: the list must be non-empty, ids unique and
// non-empty, kinds known, and every quiz step must name a quiz.
func NewSequence(steps ...StepDef) (*Sequence, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrInvalidSequence)
	}
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		switch {
		case s.ID == "":
			return nil, fmt.Errorf("%w: step %d has no id", ErrInvalidSequence, i)
		case s.ID == StepComplete:
			return nil, fmt.Errorf("%w: step id %q is reserved", ErrInvalidSequence, StepComplete)
		case !s.Kind.Valid():
			return nil, fmt.Errorf("%w: step %s has unknown kind %q", ErrInvalidSequence, s.ID, s.Kind)
		case s.Kind == KindQuiz && s.QuizID == "":
			return nil, fmt.Errorf("%w: quiz step %s has no quiz id", ErrInvalidSequence, s.ID)
		}
		if _, dup := index[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate step %s", ErrInvalidSequence, s.ID)
		}
		index[s.ID] = i
	}
	return &Sequence{steps: append([]StepDef(nil), steps...), index: index}, nil
}

// Steps returns the step definitions in order.
func (s *Sequence) Steps() []StepDef {
	return append([]StepDef(nil), s.steps...)
}

// Len returns the number of steps.
func (s *Sequence) Len() int { return len(s.steps) }

// First returns the id of the first step.
func (s *Sequence) First() string { return s.steps[0].ID }

// At returns the step at position i.
func (s *Sequence) At(i int) StepDef { return s.steps[i] }

// Index returns the position of a step id.
func (s *Sequence) Index(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// Step looks up a step definition by id.
func (s *Sequence) Step(id string) (StepDef, bool) {
	i, ok := s.index[id]
	if !ok {
		return StepDef{}, false
	}
	return s.steps[i], true
}

// QuizIDs returns the quiz ids referenced by quiz steps.
func (s *Sequence) QuizIDs() []string {
	var ids []string
	for _, st := range s.steps {
		if st.Kind == KindQuiz {
			ids = append(ids, st.QuizID)
		}
	}
	return ids
}
