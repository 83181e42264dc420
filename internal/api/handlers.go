package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/mastery"
	"github.com/p-n-ai/pai-course/internal/quiz"
	"github.com/p-n-ai/pai-course/internal/report"
)

const weakestShown = 3

type gotoRequest struct {
	Step string `json:"step" validate:"required"`
}

type completeRequest struct {
	Data json.RawMessage `json:"data"`
}

type answerRequest struct {
	QuestionID string   `json:"question_id" validate:"required"`
	Value      string   `json:"value" validate:"required_without=Values"`
	Values     []string `json:"values" validate:"required_without=Value,dive,required"`
}

type gotoResponse struct {
	Moved bool        `json:"moved"`
	View  course.View `json:"view"`
}

type stepResponse struct {
	Step  string `json:"step"`
	Input any    `json:"input"`
}

type answerResponse struct {
	QuestionID string    `json:"question_id"`
	Correct    bool      `json:"correct"`
	State      quizState `json:"state"`
}

type finishResponse struct {
	Result quiz.Result `json:"result"`
	View   course.View `json:"view"`
}

type masteryResponse struct {
	LearnerID string                 `json:"learner_id"`
	Concepts  []mastery.ConceptScore `json:"concepts"`
	Weakest   []mastery.ConceptScore `json:"weakest"`
}

func (s *Server) handleListModules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) openSession(r *http.Request, moduleID string) (course.Session, error) {
	run, err := s.registry.Get(moduleID)
	if err != nil {
		return nil, err
	}
	return run.OpenSession(r.Context(), chi.URLParam(r, "learnerID"))
}

func (s *Server) handleOpenModule(w http.ResponseWriter, r *http.Request) {
	sess, err := s.openSession(r, chi.URLParam(r, "moduleID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleStepInput(w http.ResponseWriter, r *http.Request) {
	sess, err := s.openSession(r, chi.URLParam(r, "moduleID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	step := chi.URLParam(r, "step")
	in, err := sess.StepInput(step)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stepResponse{Step: step, Input: in})
}

// handleGoTo answers 200 even when the step is not accessible; moved
// reports whether navigation happened.
func (s *Server) handleGoTo(w http.ResponseWriter, r *http.Request) {
	var req gotoRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.openSession(r, chi.URLParam(r, "moduleID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	moved := sess.GoTo(r.Context(), req.Step)
	writeJSON(w, http.StatusOK, gotoResponse{Moved: moved, View: sess.View()})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.openSession(r, chi.URLParam(r, "moduleID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := sess.CompleteCurrentStep(r.Context(), req.Data); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	sess, err := s.openSession(r, chi.URLParam(r, "moduleID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess.Restart(r.Context())
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleStartQuiz(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	sess, err := s.openSession(r, moduleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	qs, err := sess.StartQuiz()
	if err != nil {
		writeError(w, r, err)
		return
	}

	f := s.quizzes.put(chi.URLParam(r, "learnerID"), moduleID, sess.View().CurrentStep, qs)
	f.mu.Lock()
	st := f.state()
	f.mu.Unlock()
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) inflight(r *http.Request) (*inflightQuiz, error) {
	return s.quizzes.get(chi.URLParam(r, "learnerID"), chi.URLParam(r, "sessionID"))
}

func (s *Server) handleQuizState(w http.ResponseWriter, r *http.Request) {
	f, err := s.inflight(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f.mu.Lock()
	st := f.state()
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := s.inflight(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	f.mu.Lock()
	correct, err := f.session.Submit(req.QuestionID, quiz.Answer{Value: req.Value, Values: req.Values})
	st := f.state()
	f.mu.Unlock()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{QuestionID: req.QuestionID, Correct: correct, State: st})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	f, err := s.inflight(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f.mu.Lock()
	f.session.Advance()
	st := f.state()
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleFinishQuiz(w http.ResponseWriter, r *http.Request) {
	f, err := s.quizzes.take(chi.URLParam(r, "learnerID"), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.openSession(r, f.moduleID)
	if err != nil {
		s.quizzes.restore(f)
		writeError(w, r, err)
		return
	}

	f.mu.Lock()
	res, err := sess.FinishQuiz(r.Context(), f.session)
	f.mu.Unlock()
	if err != nil {
		if !f.session.Closed() {
			s.quizzes.restore(f)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, finishResponse{Result: res, View: sess.View()})
}

func (s *Server) handleMastery(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")
	scores, err := s.aggregator.Scores(r.Context(), learnerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	weakest, err := s.aggregator.Weakest(r.Context(), learnerID, weakestShown)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, masteryResponse{
		LearnerID: learnerID,
		Concepts:  mastery.Sorted(scores),
		Weakest:   weakest,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")
	scores, err := s.aggregator.Scores(r.Context(), learnerID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var rows []report.ModuleRow
	for _, info := range s.registry.List() {
		run, err := s.registry.Get(info.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		sess, err := run.OpenSession(r.Context(), learnerID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		v := sess.View()
		rows = append(rows, report.ModuleRow{
			ModuleID:    v.ModuleID,
			Title:       v.Title,
			CurrentStep: v.CurrentStep,
			Completed:   len(v.CompletedSteps),
			Total:       len(v.Steps),
			Complete:    v.Complete,
		})
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", learnerID+"-report.xlsx"))
	if err := report.WriteXLSX(w, learnerID, mastery.Sorted(scores), rows); err != nil {
		writeError(w, r, err)
	}
}
