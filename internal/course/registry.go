package course

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/p-n-ai/pai-course/internal/quiz"
)

// ModuleInfo describes a module without its typed data schema.
type ModuleInfo struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Order int       `json:"order"`
	Steps []StepDef `json:"steps"`
}

// StepView is a step with the learner's access to it.
type StepView struct {
	StepDef
	Accessible bool `json:"accessible"`
	Completed  bool `json:"completed"`
}

// View is a learner's progress in a module as rendered to clients.
type View struct {
	ModuleID       string          `json:"module_id"`
	Title          string          `json:"title"`
	LearnerID      string          `json:"learner_id"`
	CurrentStep    string          `json:"current_step"`
	CompletedSteps []string        `json:"completed_steps"`
	HighestReached int             `json:"highest_reached"`
	Complete       bool            `json:"complete"`
	Steps          []StepView      `json:"steps"`
	Data           json.RawMessage `json:"data"`
}

// Session is a learner's open controller with the module's data type erased.
type Session interface {
	View() View
	CanAccess(step string) bool
	GoTo(ctx context.Context, step string) bool
	CompleteCurrentStep(ctx context.Context, result json.RawMessage) error
	Restart(ctx context.Context)
	StepInput(step string) (any, error)
	StartQuiz() (*quiz.Session, error)
	FinishQuiz(ctx context.Context, s *quiz.Session) (quiz.Result, error)
	QuizAttempt(step string) (QuizAttempt, bool)
	LastSaveError() error
}

// Runner opens sessions for one module regardless of its data type.
type Runner interface {
	Info() ModuleInfo
	OpenSession(ctx context.Context, learnerID string) (Session, error)
}

// OpenSession is Open with the data type erased.
func (e *Engine[D]) OpenSession(ctx context.Context, learnerID string) (Session, error) {
	c, err := e.Open(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Registry holds the runnable modules by id.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// Register adds a module. Module ids must be unique.
func (r *Registry) Register(run Runner) error {
	id := run.Info().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.runners[id]; dup {
		return fmt.Errorf("module %s already registered", id)
	}
	r.runners[id] = run
	return nil
}

// Get returns the runner for a module id.
func (r *Registry) Get(id string) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runners[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, id)
	}
	return run, nil
}

// List returns every module ordered by Order, then id.
func (r *Registry) List() []ModuleInfo {
	r.mu.RLock()
	infos := make([]ModuleInfo, 0, len(r.runners))
	for _, run := range r.runners {
		infos = append(infos, run.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Order != infos[j].Order {
			return infos[i].Order < infos[j].Order
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}
