package quiz

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-course/internal/mastery"
)

// ErrSessionClosed is returned when an attempt whose result was already
// recorded is finished again.
var ErrSessionClosed = errors.New("quiz session already recorded")

// Outcome is the latest recorded submission for one question.
type Outcome struct {
	QuestionID string   `json:"question_id"`
	Answer     Answer   `json:"answer"`
	Correct    bool     `json:"correct"`
	Concepts   []string `json:"concepts"`
}

// Missed is an incorrectly answered question annotated for remediation.
type Missed struct {
	QuestionID  string   `json:"question_id"`
	Prompt      string   `json:"prompt"`
	Answer      Answer   `json:"answer"`
	Concepts    []string `json:"concepts"`
	Explanation string   `json:"explanation,omitempty"`
}

// Result summarizes a finished attempt.
type Result struct {
	QuizID     string    `json:"quiz_id"`
	Outcomes   []Outcome `json:"outcomes"`
	Score      int       `json:"score"`
	Total      int       `json:"total"`
	Percent    float64   `json:"percent"`
	Passed     bool      `json:"passed"`
	Missed     []Missed  `json:"missed"`
	Unanswered []string  `json:"unanswered,omitempty"`
}

// ConceptResults expands answered questions into one entry per concept tag.
func (r Result) ConceptResults() []mastery.ConceptResult {
	var out []mastery.ConceptResult
	for _, o := range r.Outcomes {
		for _, c := range o.Concepts {
			if c == "" {
				continue
			}
			out = append(out, mastery.ConceptResult{Concept: c, Correct: o.Correct})
		}
	}
	return out
}

// MissedConcepts returns the distinct concept tags of missed questions in
// first-seen order.
func (r Result) MissedConcepts() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range r.Missed {
		for _, c := range m.Concepts {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// Session runs one attempt over a bank. It is not safe for concurrent use.
type Session struct {
	ID        string
	StartedAt time.Time

	bank     *Bank
	current  int
	finished bool
	closed   atomic.Bool
	outcomes map[string]Outcome
}

// NewSession starts an attempt. The bank must have been built with NewBank,
// so an empty or inconsistent question list can never reach a session.
func NewSession(bank *Bank) (*Session, error) {
	if bank == nil || bank.Len() == 0 {
		return nil, ErrNoQuestions
	}
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		bank:      bank,
		outcomes:  make(map[string]Outcome, bank.Len()),
	}, nil
}

// Bank returns the bank this session runs over.
func (s *Session) Bank() *Bank { return s.bank }

// Current returns the question being presented. ok is false once the
// session has advanced past the last question.
func (s *Session) Current() (q Question, ok bool) {
	if s.finished || s.current >= s.bank.Len() {
		return nil, false
	}
	return s.bank.questions[s.current], true
}

// Position returns the zero-based index of the current question.
func (s *Session) Position() int { return s.current }

// Finished reports whether Advance has moved past the last question or
// Finalize has been called.
func (s *Session) Finished() bool { return s.finished }

// Close marks the attempt as recorded. Only the first call succeeds; later
// calls return ErrSessionClosed. Close is safe for concurrent use.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrSessionClosed
	}
	return nil
}

// Closed reports whether Close has succeeded.
func (s *Session) Closed() bool { return s.closed.Load() }

// Submit evaluates and records an answer, replacing any earlier submission
// for the same question.
func (s *Session) Submit(questionID string, a Answer) (bool, error) {
	q, ok := s.bank.Question(questionID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	correct := Evaluate(q, a)
	s.outcomes[questionID] = Outcome{
		QuestionID: questionID,
		Answer:     copyAnswer(a),
		Correct:    correct,
		Concepts:   q.Concepts(),
	}
	return correct, nil
}

// Advance moves to the next question in order. At the end of the list it
// marks the session finished and returns false.
func (s *Session) Advance() bool {
	if s.finished {
		return false
	}
	if s.current+1 >= s.bank.Len() {
		s.current = s.bank.Len()
		s.finished = true
		return false
	}
	s.current++
	return true
}

// Finalize computes the result from the recorded submissions. It has no
// effect on recorded answers, so repeated calls without new submissions
// return equal results.
func (s *Session) Finalize() Result {
	s.finished = true

	total := s.bank.Len()
	res := Result{
		QuizID:   s.bank.ID,
		Total:    total,
		Outcomes: []Outcome{},
		Missed:   []Missed{},
	}
	for _, q := range s.bank.questions {
		o, ok := s.outcomes[q.ID()]
		if !ok {
			res.Unanswered = append(res.Unanswered, q.ID())
			continue
		}
		o.Answer = copyAnswer(o.Answer)
		o.Concepts = append([]string(nil), o.Concepts...)
		res.Outcomes = append(res.Outcomes, o)
		if o.Correct {
			res.Score++
			continue
		}
		res.Missed = append(res.Missed, Missed{
			QuestionID:  q.ID(),
			Prompt:      q.Prompt(),
			Answer:      copyAnswer(o.Answer),
			Concepts:    q.Concepts(),
			Explanation: q.Explanation(),
		})
	}

	ratio := float64(res.Score) / float64(total)
	res.Percent = ratio * 100
	res.Passed = ratio >= s.bank.PassThreshold
	return res
}

func copyAnswer(a Answer) Answer {
	if a.Values != nil {
		a.Values = append([]string(nil), a.Values...)
	}
	return a
}
