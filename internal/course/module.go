package course

import (
	"errors"
	"fmt"

	"github.com/p-n-ai/pai-course/internal/mastery"
	"github.com/p-n-ai/pai-course/internal/progress"
	"github.com/p-n-ai/pai-course/internal/quiz"
)

var (
	ErrUnknownModule   = errors.New("unknown module")
	ErrUnknownQuiz     = errors.New("unknown quiz")
	ErrNotQuizStep     = errors.New("current step is not a quiz")
	ErrQuizMismatch    = errors.New("quiz session does not belong to the current step")
	ErrModuleComplete  = errors.New("module is already complete")
	ErrStepLocked      = errors.New("step is not accessible yet")
	ErrUnknownStep     = errors.New("unknown step")
	ErrLearnerRequired = errors.New("learner id is required")
)

// Activity is the collaborator behind a step. Input returns the context the
// activity needs from module data; the activity reports back through a
// single step completion carrying its result data.
type Activity[D any] interface {
	Input(data D) any
}

// ActivityFunc adapts a function to Activity.
type ActivityFunc[D any] func(data D) any

func (f ActivityFunc[D]) Input(data D) any { return f(data) }

// BankSource resolves quiz ids to validated banks.
type BankSource interface {
	Bank(id string) (*quiz.Bank, bool)
}

// Banks is a map-backed BankSource.
type Banks map[string]*quiz.Bank

func (b Banks) Bank(id string) (*quiz.Bank, bool) {
	bank, ok := b[id]
	return bank, ok
}

// Module is one module's definition: its steps and the activities behind
// them, typed by the module's data schema D.
type Module[D any] struct {
	ID         string
	Title      string
	Order      int
	Sequence   *Sequence
	Activities map[string]Activity[D]
}

// NewModule validates that every activity is bound to a step of seq.
func NewModule[D any](id, title string, seq *Sequence, activities map[string]Activity[D]) (*Module[D], error) {
	if id == "" {
		return nil, fmt.Errorf("module id is required")
	}
	if seq == nil {
		return nil, fmt.Errorf("module %s: %w: nil sequence", id, ErrInvalidSequence)
	}
	for step := range activities {
		if _, ok := seq.Index(step); !ok {
			return nil, fmt.Errorf("module %s: activity bound to %w %q", id, ErrUnknownStep, step)
		}
	}
	if activities == nil {
		activities = map[string]Activity[D]{}
	}
	return &Module[D]{ID: id, Title: title, Sequence: seq, Activities: activities}, nil
}

// Deps are the collaborators shared by every module engine.
type Deps struct {
	Store      progress.Store
	Aggregator *mastery.Aggregator
	Banks      BankSource
	Events     EventLogger
}

func (d Deps) withDefaults() Deps {
	if d.Store == nil {
		d.Store = progress.NewMemoryStore()
	}
	if d.Aggregator == nil {
		d.Aggregator = mastery.NewAggregator(nil)
	}
	if d.Banks == nil {
		d.Banks = Banks{}
	}
	if d.Events == nil {
		d.Events = NopEventLogger{}
	}
	return d
}

// Engine binds a module definition to its collaborators and opens
// per-learner controllers.
type Engine[D any] struct {
	module *Module[D]
	deps   Deps
}

// NewEngine checks that every quiz step of the module resolves to a bank.
func NewEngine[D any](m *Module[D], deps Deps) (*Engine[D], error) {
	if m == nil {
		return nil, fmt.Errorf("module is nil")
	}
	deps = deps.withDefaults()
	for _, id := range m.Sequence.QuizIDs() {
		if _, ok := deps.Banks.Bank(id); !ok {
			return nil, fmt.Errorf("module %s: %w: %s", m.ID, ErrUnknownQuiz, id)
		}
	}
	return &Engine[D]{module: m, deps: deps}, nil
}

// Module returns the bound module definition.
func (e *Engine[D]) Module() *Module[D] { return e.module }

// Info describes the module without its typed parts.
func (e *Engine[D]) Info() ModuleInfo {
	return ModuleInfo{
		ID:    e.module.ID,
		Title: e.module.Title,
		Order: e.module.Order,
		Steps: e.module.Sequence.Steps(),
	}
}
