package course

import (
	"time"

	"github.com/p-n-ai/pai-course/internal/quiz"
)

// QuizAttempt is the part of a quiz result kept in module data.
type QuizAttempt struct {
	QuizID     string        `json:"quiz_id"`
	Score      int           `json:"score"`
	Total      int           `json:"total"`
	Percent    float64       `json:"percent"`
	Passed     bool          `json:"passed"`
	Missed     []quiz.Missed `json:"missed"`
	FinishedAt time.Time     `json:"finished_at"`
}

// AttemptFrom builds a QuizAttempt from a finalized result.
func AttemptFrom(r quiz.Result, at time.Time) QuizAttempt {
	missed := r.Missed
	if missed == nil {
		missed = []quiz.Missed{}
	}
	return QuizAttempt{
		QuizID:     r.QuizID,
		Score:      r.Score,
		Total:      r.Total,
		Percent:    r.Percent,
		Passed:     r.Passed,
		Missed:     missed,
		FinishedAt: at.UTC(),
	}
}

// QuizLog records the latest attempt per quiz step. Module data schemas
// embed it so finished quizzes are folded into module data.
type QuizLog struct {
	Quizzes map[string]QuizAttempt `json:"quizzes,omitempty"`
}

// RecordQuiz stores the attempt for a step, replacing any earlier one.
func (l *QuizLog) RecordQuiz(step string, a QuizAttempt) {
	if l.Quizzes == nil {
		l.Quizzes = make(map[string]QuizAttempt)
	}
	l.Quizzes[step] = a
}

// QuizAttempt returns the latest attempt recorded for a step.
func (l QuizLog) QuizAttempt(step string) (QuizAttempt, bool) {
	a, ok := l.Quizzes[step]
	return a, ok
}

// QuizRecorder is implemented by module data that embeds QuizLog.
type QuizRecorder interface {
	RecordQuiz(step string, a QuizAttempt)
}

// QuizReader is implemented by module data that embeds QuizLog.
type QuizReader interface {
	QuizAttempt(step string) (QuizAttempt, bool)
}
