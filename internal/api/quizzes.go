package api

import (
	"fmt"
	"sync"
	"time"

	"github.com/p-n-ai/pai-course/internal/quiz"
)

const defaultQuizTTL = 2 * time.Hour

// inflightQuiz is a quiz attempt between StartQuiz and FinishQuiz.
// quiz.Session is not safe for concurrent use, so every access holds mu.
type inflightQuiz struct {
	mu        sync.Mutex
	learnerID string
	moduleID  string
	step      string
	session   *quiz.Session
	touched   time.Time
}

// quizSessions holds in-flight attempts by session id. Attempts idle longer
// than ttl are dropped on the next insert.
type quizSessions struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*inflightQuiz
	now      func() time.Time
}

func newQuizSessions(ttl time.Duration) *quizSessions {
	if ttl <= 0 {
		ttl = defaultQuizTTL
	}
	return &quizSessions{
		ttl:      ttl,
		sessions: make(map[string]*inflightQuiz),
		now:      time.Now,
	}
}

func (q *quizSessions) put(learnerID, moduleID, step string, s *quiz.Session) *inflightQuiz {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for id, f := range q.sessions {
		if now.Sub(f.lastTouched()) > q.ttl {
			delete(q.sessions, id)
		}
	}

	f := &inflightQuiz{
		learnerID: learnerID,
		moduleID:  moduleID,
		step:      step,
		session:   s,
		touched:   now,
	}
	q.sessions[s.ID] = f
	return f
}

// get returns the attempt only to the learner who started it.
func (q *quizSessions) get(learnerID, id string) (*inflightQuiz, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	f, ok := q.sessions[id]
	if !ok || f.learnerID != learnerID {
		return nil, fmt.Errorf("%w: %s", errUnknownQuizSession, id)
	}
	f.touch(q.now())
	return f, nil
}

// take removes the attempt and hands it to the caller, so at most one
// request can finish it. Like get, it only answers the owning learner.
func (q *quizSessions) take(learnerID, id string) (*inflightQuiz, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	f, ok := q.sessions[id]
	if !ok || f.learnerID != learnerID {
		return nil, fmt.Errorf("%w: %s", errUnknownQuizSession, id)
	}
	delete(q.sessions, id)
	return f, nil
}

// restore puts back an attempt taken by take that could not be finished.
func (q *quizSessions) restore(f *inflightQuiz) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.sessions[f.session.ID]; !ok {
		q.sessions[f.session.ID] = f
	}
}

func (q *quizSessions) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.sessions)
}

func (f *inflightQuiz) touch(t time.Time) {
	f.mu.Lock()
	f.touched = t
	f.mu.Unlock()
}

func (f *inflightQuiz) lastTouched() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touched
}

// quizState is the client view of an in-flight attempt.
type quizState struct {
	SessionID string     `json:"session_id"`
	QuizID    string     `json:"quiz_id"`
	ModuleID  string     `json:"module_id"`
	Step      string     `json:"step"`
	Position  int        `json:"position"`
	Total     int        `json:"total"`
	Finished  bool       `json:"finished"`
	Question  *quiz.View `json:"question,omitempty"`
}

// state must be called with f.mu held.
func (f *inflightQuiz) state() quizState {
	st := quizState{
		SessionID: f.session.ID,
		QuizID:    f.session.Bank().ID,
		ModuleID:  f.moduleID,
		Step:      f.step,
		Position:  f.session.Position(),
		Total:     f.session.Bank().Len(),
		Finished:  f.session.Finished(),
	}
	if q, ok := f.session.Current(); ok {
		v := quiz.ViewOf(q)
		st.Question = &v
	}
	return st
}
