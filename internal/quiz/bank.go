package quiz

import (
	"errors"
	"fmt"
)

// DefaultPassThreshold is the fraction of correct answers needed to pass.
const DefaultPassThreshold = 0.70

var (
	ErrNoQuestions        = errors.New("quiz has no questions")
	ErrDuplicateQuestion  = errors.New("duplicate question id")
	ErrMissingConcepts    = errors.New("question has no concept tags")
	ErrRepeatedConcept    = errors.New("question repeats a concept tag")
	ErrMissingQuestionID  = errors.New("question id is required")
	ErrInvalidThreshold   = errors.New("pass threshold must be in (0, 1]")
	ErrUnknownQuestion    = errors.New("unknown question")
	ErrInvalidCorrectness = errors.New("invalid correctness specification")
)

// Bank is a validated, ordered list of questions for one quiz.
type Bank struct {
	ID            string
	Title         string
	PassThreshold float64
	questions     []Question
	index         map[string]int
}

// NewBank validates questions and builds a bank. A zero threshold means
// DefaultPassThreshold.
func NewBank(id, title string, threshold float64, questions []Question) (*Bank, error) {
	if threshold == 0 {
		threshold = DefaultPassThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("quiz %s: %w", id, ErrInvalidThreshold)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("quiz %s: %w", id, ErrNoQuestions)
	}

	index := make(map[string]int, len(questions))
	for i, q := range questions {
		if q == nil || q.ID() == "" {
			return nil, fmt.Errorf("quiz %s question %d: %w", id, i, ErrMissingQuestionID)
		}
		if _, dup := index[q.ID()]; dup {
			return nil, fmt.Errorf("quiz %s: %w: %s", id, ErrDuplicateQuestion, q.ID())
		}
		if !hasConcept(q.Concepts()) {
			return nil, fmt.Errorf("quiz %s question %s: %w", id, q.ID(), ErrMissingConcepts)
		}
		if tag, ok := repeatedTag(q.Concepts()); ok {
			return nil, fmt.Errorf("quiz %s question %s: %w: %s", id, q.ID(), ErrRepeatedConcept, tag)
		}
		if err := checkCorrectness(q); err != nil {
			return nil, fmt.Errorf("quiz %s question %s: %w", id, q.ID(), err)
		}
		index[q.ID()] = i
	}

	return &Bank{
		ID:            id,
		Title:         title,
		PassThreshold: threshold,
		questions:     append([]Question(nil), questions...),
		index:         index,
	}, nil
}

// Questions returns the questions in order.
func (b *Bank) Questions() []Question {
	return append([]Question(nil), b.questions...)
}

// Len returns the number of questions.
func (b *Bank) Len() int { return len(b.questions) }

// Question looks up a question by id.
func (b *Bank) Question(id string) (Question, bool) {
	i, ok := b.index[id]
	if !ok {
		return nil, false
	}
	return b.questions[i], true
}

func hasConcept(tags []string) bool {
	for _, t := range tags {
		if t != "" {
			return true
		}
	}
	return false
}

func repeatedTag(tags []string) (string, bool) {
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if seen[t] {
			return t, true
		}
		seen[t] = true
	}
	return "", false
}

func checkCorrectness(q Question) error {
	switch q := q.(type) {
	case MCQ:
		if q.Correct == "" {
			return ErrInvalidCorrectness
		}
	case ImageMCQ:
		if q.Correct == "" {
			return ErrInvalidCorrectness
		}
	case SelectAll:
		if len(q.Correct) == 0 {
			return ErrInvalidCorrectness
		}
	case Numeric:
		if q.Tolerance != nil && *q.Tolerance < 0 {
			return ErrInvalidCorrectness
		}
	}
	return nil
}
