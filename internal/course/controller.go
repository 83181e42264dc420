package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/p-n-ai/pai-course/internal/progress"
	"github.com/p-n-ai/pai-course/internal/quiz"
)

var ErrQuizRequired = errors.New("quiz steps are completed by finishing a quiz session")

// State is a learner's position and accumulated data in one module.
type State[D any] struct {
	CurrentStep    string
	CompletedSteps []string
	HighestReached int
	Data           D
}

// Controller drives one learner through one module. Every mutation is
// written through to the progress store before the call returns. It is not
// safe for concurrent use.
type Controller[D any] struct {
	engine    *Engine[D]
	learnerID string
	state     State[D]
	saveErr   error
}

// Open loads the learner's record or starts from defaults. Malformed stored
// fields fall back to their defaults individually. A failed read is logged
// and treated as a missing record.
func (e *Engine[D]) Open(ctx context.Context, learnerID string) (*Controller[D], error) {
	if learnerID == "" {
		return nil, ErrLearnerRequired
	}
	c := &Controller[D]{engine: e, learnerID: learnerID}
	var zero D
	c.state = c.initial(zero)

	rec, err := e.deps.Store.Load(ctx, learnerID, e.module.ID)
	switch {
	case err != nil:
		slog.Warn("progress load failed, starting from defaults",
			"learner_id", learnerID,
			"module_id", e.module.ID,
			"error", err,
		)
	case rec != nil:
		c.state = c.restore(*rec)
	}

	slog.Debug("module opened",
		"learner_id", learnerID,
		"module_id", e.module.ID,
		"current_step", c.state.CurrentStep,
		"resumed", rec != nil,
	)
	return c, nil
}

func (c *Controller[D]) initial(data D) State[D] {
	return State[D]{
		CurrentStep:    c.engine.module.Sequence.First(),
		CompletedSteps: []string{},
		HighestReached: 0,
		Data:           data,
	}
}

func (c *Controller[D]) restore(rec progress.Record) State[D] {
	seq := c.engine.module.Sequence
	st := c.initial(decodeData[D](rec.ModuleData))

	if rec.HighestReached > 0 {
		st.HighestReached = min(rec.HighestReached, seq.Len()-1)
	}

	seen := make(map[string]bool, len(rec.CompletedSteps))
	for _, id := range rec.CompletedSteps {
		if _, ok := seq.Index(id); ok && !seen[id] {
			seen[id] = true
			st.CompletedSteps = append(st.CompletedSteps, id)
		}
	}
	sortBySequence(seq, st.CompletedSteps)

	last := seq.At(seq.Len() - 1).ID
	switch {
	case rec.CurrentStep == StepComplete && seen[last]:
		st.CurrentStep = StepComplete
	case accessible(seq, rec.CurrentStep, st.HighestReached, seen):
		st.CurrentStep = rec.CurrentStep
	}
	return st
}

func accessible(seq *Sequence, step string, highest int, completed map[string]bool) bool {
	i, ok := seq.Index(step)
	if !ok {
		return false
	}
	return i <= highest || completed[step]
}

func sortBySequence(seq *Sequence, steps []string) {
	sort.SliceStable(steps, func(a, b int) bool {
		ia, _ := seq.Index(steps[a])
		ib, _ := seq.Index(steps[b])
		return ia < ib
	})
}

// LearnerID returns the learner this controller is bound to.
func (c *Controller[D]) LearnerID() string { return c.learnerID }

// State returns a copy of the current state. Data is shared with the
// controller and must not be mutated.
func (c *Controller[D]) State() State[D] {
	st := c.state
	st.CompletedSteps = append([]string(nil), c.state.CompletedSteps...)
	return st
}

// Data returns the typed module data.
func (c *Controller[D]) Data() D { return c.state.Data }

// IsComplete reports whether the terminal pseudo-step has been reached.
func (c *Controller[D]) IsComplete() bool { return c.state.CurrentStep == StepComplete }

// LastSaveError returns the error of the most recent dropped write, or nil
// if the last write reached the store.
func (c *Controller[D]) LastSaveError() error { return c.saveErr }

// CanAccess reports whether step is at or behind the furthest point reached,
// or was completed before.
func (c *Controller[D]) CanAccess(step string) bool {
	return accessible(c.engine.module.Sequence, step, c.state.HighestReached, c.completedSet())
}

func (c *Controller[D]) completedSet() map[string]bool {
	set := make(map[string]bool, len(c.state.CompletedSteps))
	for _, s := range c.state.CompletedSteps {
		set[s] = true
	}
	return set
}

// GoTo moves to an accessible step and reports whether it did. Requests for
// inaccessible or unknown steps are ignored.
func (c *Controller[D]) GoTo(ctx context.Context, step string) bool {
	if !c.CanAccess(step) {
		slog.Debug("ignoring navigation to locked step",
			"learner_id", c.learnerID,
			"module_id", c.engine.module.ID,
			"step", step,
		)
		return false
	}
	if c.state.CurrentStep == step {
		return true
	}
	c.state.CurrentStep = step
	c.save(ctx)
	return true
}

// CompleteCurrentStep marks the current step completed, merges result into
// module data and moves one step forward. Quiz steps are completed through
// FinishQuiz instead.
func (c *Controller[D]) CompleteCurrentStep(ctx context.Context, result json.RawMessage) error {
	if def, ok := c.currentDef(); ok && def.Kind == KindQuiz {
		return ErrQuizRequired
	}
	return c.complete(ctx, func(d D) (D, error) {
		return mergeResult(d, result)
	})
}

func (c *Controller[D]) currentDef() (StepDef, bool) {
	return c.engine.module.Sequence.Step(c.state.CurrentStep)
}

func (c *Controller[D]) complete(ctx context.Context, apply func(D) (D, error)) error {
	if c.IsComplete() {
		return ErrModuleComplete
	}
	seq := c.engine.module.Sequence
	step := c.state.CurrentStep
	idx, ok := seq.Index(step)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStep, step)
	}

	data, err := apply(c.state.Data)
	if err != nil {
		return err
	}

	next := c.State()
	next.Data = data
	if !c.completedSet()[step] {
		next.CompletedSteps = append(next.CompletedSteps, step)
		sortBySequence(seq, next.CompletedSteps)
	}
	if idx+1 < seq.Len() {
		next.CurrentStep = seq.At(idx + 1).ID
		next.HighestReached = max(next.HighestReached, idx+1)
	} else {
		next.CurrentStep = StepComplete
	}
	c.state = next
	c.save(ctx)

	c.logEvent(EventStepCompleted, map[string]any{
		"step":            step,
		"next_step":       next.CurrentStep,
		"highest_reached": next.HighestReached,
	})
	return nil
}

// Restart returns to the first step with an empty completed set. Module
// data is kept.
func (c *Controller[D]) Restart(ctx context.Context) {
	c.state = c.initial(c.state.Data)
	c.save(ctx)
	c.logEvent(EventProgressRestarted, nil)
}

// StepInput returns the context the step's activity needs from module data.
// Steps without an activity have no input.
func (c *Controller[D]) StepInput(step string) (any, error) {
	if _, ok := c.engine.module.Sequence.Index(step); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, step)
	}
	if !c.CanAccess(step) {
		return nil, ErrStepLocked
	}
	act, ok := c.engine.module.Activities[step]
	if !ok || act == nil {
		return nil, nil
	}
	return act.Input(c.state.Data), nil
}

// StartQuiz opens a quiz session over the current step's bank.
func (c *Controller[D]) StartQuiz() (*quiz.Session, error) {
	def, ok := c.currentDef()
	if !ok || def.Kind != KindQuiz {
		return nil, ErrNotQuizStep
	}
	bank, ok := c.engine.deps.Banks.Bank(def.QuizID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuiz, def.QuizID)
	}
	return quiz.NewSession(bank)
}

// FinishQuiz finalizes s, records its concept results, folds the attempt
// into module data and completes the quiz step. A failed quiz still
// completes the step; the attempt records whether it passed. A session is
// recorded once: finishing it again returns quiz.ErrSessionClosed.
func (c *Controller[D]) FinishQuiz(ctx context.Context, s *quiz.Session) (quiz.Result, error) {
	def, ok := c.currentDef()
	if !ok || def.Kind != KindQuiz {
		return quiz.Result{}, ErrNotQuizStep
	}
	if s == nil || s.Bank().ID != def.QuizID {
		return quiz.Result{}, ErrQuizMismatch
	}
	if err := s.Close(); err != nil {
		return quiz.Result{}, err
	}

	res := s.Finalize()
	if err := c.engine.deps.Aggregator.Record(ctx, c.learnerID, res.ConceptResults()); err != nil {
		slog.Warn("concept scores not recorded",
			"learner_id", c.learnerID,
			"quiz_id", res.QuizID,
			"error", err,
		)
	}

	attempt := AttemptFrom(res, time.Now())
	err := c.complete(ctx, func(d D) (D, error) {
		d, err := cloneData(d)
		if err != nil {
			return d, err
		}
		if rec, ok := any(&d).(QuizRecorder); ok {
			rec.RecordQuiz(def.ID, attempt)
		}
		return d, nil
	})
	if err != nil {
		return quiz.Result{}, err
	}

	c.logEvent(EventQuizFinished, map[string]any{
		"step":            def.ID,
		"quiz_id":         res.QuizID,
		"score":           res.Score,
		"total":           res.Total,
		"passed":          res.Passed,
		"missed_concepts": res.MissedConcepts(),
	})
	return res, nil
}

// QuizAttempt returns the latest attempt recorded for a quiz step, if the
// module data keeps a quiz log.
func (c *Controller[D]) QuizAttempt(step string) (QuizAttempt, bool) {
	if r, ok := any(c.state.Data).(QuizReader); ok {
		return r.QuizAttempt(step)
	}
	return QuizAttempt{}, false
}

// View renders the state for clients.
func (c *Controller[D]) View() View {
	seq := c.engine.module.Sequence
	done := c.completedSet()

	steps := make([]StepView, 0, seq.Len())
	for _, def := range seq.Steps() {
		steps = append(steps, StepView{
			StepDef:    def,
			Accessible: c.CanAccess(def.ID),
			Completed:  done[def.ID],
		})
	}

	data, err := encodeData(c.state.Data)
	if err != nil {
		data = json.RawMessage(`{}`)
	}

	return View{
		ModuleID:       c.engine.module.ID,
		Title:          c.engine.module.Title,
		LearnerID:      c.learnerID,
		CurrentStep:    c.state.CurrentStep,
		CompletedSteps: append([]string{}, c.state.CompletedSteps...),
		HighestReached: c.state.HighestReached,
		Complete:       c.IsComplete(),
		Steps:          steps,
		Data:           data,
	}
}

// save writes the state through to the store. Failures are logged and the
// write is dropped; the in-memory state stays authoritative.
func (c *Controller[D]) save(ctx context.Context) {
	c.saveErr = c.write(ctx)
	if c.saveErr == nil {
		return
	}
	slog.Warn("progress save dropped",
		"learner_id", c.learnerID,
		"module_id", c.engine.module.ID,
		"step", c.state.CurrentStep,
		"error", c.saveErr,
	)
	c.logEvent(EventProgressSaveDropped, map[string]any{
		"step":  c.state.CurrentStep,
		"error": c.saveErr.Error(),
	})
}

func (c *Controller[D]) write(ctx context.Context) error {
	data, err := encodeData(c.state.Data)
	if err != nil {
		return err
	}
	return c.engine.deps.Store.Save(ctx, c.learnerID, c.engine.module.ID, progress.Record{
		CurrentStep:    c.state.CurrentStep,
		CompletedSteps: append([]string{}, c.state.CompletedSteps...),
		ModuleData:     data,
		HighestReached: c.state.HighestReached,
	})
}

func (c *Controller[D]) logEvent(eventType string, data map[string]any) {
	err := c.engine.deps.Events.LogEvent(Event{
		LearnerID: c.learnerID,
		ModuleID:  c.engine.module.ID,
		EventType: eventType,
		Data:      data,
	})
	if err != nil {
		slog.Warn("failed to log course event", "type", eventType, "error", err)
	}
}
