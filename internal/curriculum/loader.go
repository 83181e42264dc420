package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/quiz"
)

// Loader loads and caches module definitions and quiz banks from the
// filesystem. Module files live under a "modules" directory and quiz banks
// under a "quizzes" directory anywhere below the root.
type Loader struct {
	rootDir       string
	passThreshold float64
	modules       map[string]ModuleFile
	banks         map[string]*quiz.Bank
	mu            sync.RWMutex
}

// Option configures a Loader.
type Option func(*Loader)

// WithPassThreshold sets the threshold for quiz files that declare none.
func WithPassThreshold(t float64) Option {
	return func(l *Loader) {
		l.passThreshold = t
	}
}

// NewLoader creates a new curriculum loader and loads all content. Any
// invalid module or quiz file fails the load.
func NewLoader(rootDir string, opts ...Option) (*Loader, error) {
	l := &Loader{
		rootDir:       rootDir,
		passThreshold: quiz.DefaultPassThreshold,
		modules:       make(map[string]ModuleFile),
		banks:         make(map[string]*quiz.Bank),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}
	if err := l.checkReferences(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "modules", len(l.modules), "quizzes", len(l.banks))
	return l, nil
}

// Module returns a module definition by ID.
func (l *Loader) Module(id string) (ModuleFile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.modules[id]
	return m, ok
}

// Modules returns all module definitions ordered by Order, then ID.
func (l *Loader) Modules() []ModuleFile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	mods := make([]ModuleFile, 0, len(l.modules))
	for _, m := range l.modules {
		mods = append(mods, m)
	}
	sort.Slice(mods, func(i, j int) bool {
		if mods[i].Order != mods[j].Order {
			return mods[i].Order < mods[j].Order
		}
		return mods[i].ID < mods[j].ID
	})
	return mods
}

// Bank returns a quiz bank by ID.
func (l *Loader) Bank(id string) (*quiz.Bank, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.banks[id]
	return b, ok
}

// Sequence converts a module's steps into a validated step sequence.
func (m ModuleFile) Sequence() (*course.Sequence, error) {
	steps := make([]course.StepDef, len(m.Steps))
	for i, s := range m.Steps {
		steps[i] = course.StepDef{
			ID:     s.ID,
			Kind:   course.StepKind(s.Kind),
			Title:  s.Title,
			QuizID: s.Quiz,
		}
	}
	seq, err := course.NewSequence(steps...)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", m.ID, err)
	}
	return seq, nil
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !(strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")) {
			return nil
		}

		switch filepath.Base(filepath.Dir(path)) {
		case "modules":
			return l.loadModule(path)
		case "quizzes":
			return l.loadQuiz(path)
		}
		return nil
	})
}

func readYAML(path string, schemaDoc func(any) error, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := schemaDoc(doc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (l *Loader) loadModule(path string) error {
	var m ModuleFile
	err := readYAML(path, func(doc any) error { return validate(moduleValidator, doc) }, &m)
	if err != nil {
		return err
	}
	if _, err := m.Sequence(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.modules[m.ID]; dup {
		return fmt.Errorf("%s: duplicate module id %s", path, m.ID)
	}
	l.modules[m.ID] = m
	return nil
}

func (l *Loader) loadQuiz(path string) error {
	var f QuizFile
	err := readYAML(path, func(doc any) error { return validate(quizValidator, doc) }, &f)
	if err != nil {
		return err
	}
	if f.PassThreshold == 0 {
		f.PassThreshold = l.passThreshold
	}
	bank, err := f.Bank()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.banks[bank.ID]; dup {
		return fmt.Errorf("%s: duplicate quiz id %s", path, bank.ID)
	}
	l.banks[bank.ID] = bank
	return nil
}

func (l *Loader) checkReferences() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, m := range l.modules {
		for _, s := range m.Steps {
			if s.Kind != string(course.KindQuiz) {
				continue
			}
			if _, ok := l.banks[s.Quiz]; !ok {
				return fmt.Errorf("module %s step %s: %w: %s", m.ID, s.ID, course.ErrUnknownQuiz, s.Quiz)
			}
		}
	}
	return nil
}

// Bank converts the file into a validated quiz bank.
func (f QuizFile) Bank() (*quiz.Bank, error) {
	qs := make([]quiz.Question, 0, len(f.Questions))
	for _, qf := range f.Questions {
		q, err := qf.Question()
		if err != nil {
			return nil, fmt.Errorf("quiz %s: %w", f.ID, err)
		}
		qs = append(qs, q)
	}
	return quiz.NewBank(f.ID, f.Title, f.PassThreshold, qs)
}

// Question converts the file entry into its question variant.
func (qf QuestionFile) Question() (quiz.Question, error) {
	base := quiz.Base{
		QuestionID: qf.ID,
		Text:       qf.Prompt,
		Tags:       qf.Concepts,
		Explain:    qf.Explanation,
	}

	switch quiz.Kind(qf.Kind) {
	case quiz.KindMCQ:
		if err := qf.answerInOptions(); err != nil {
			return nil, err
		}
		return quiz.MCQ{Base: base, Options: qf.Options, Correct: qf.Answer}, nil
	case quiz.KindImageMCQ:
		if err := qf.answerInOptions(); err != nil {
			return nil, err
		}
		return quiz.ImageMCQ{
			Base:     base,
			Options:  qf.Options,
			Correct:  qf.Answer,
			ImageURL: qf.ImageURL,
			ImageAlt: qf.ImageAlt,
		}, nil
	case quiz.KindSelectAll:
		for _, a := range qf.Answers {
			if !slices.Contains(qf.Options, a) {
				return nil, fmt.Errorf("question %s: answer %q is not an option", qf.ID, a)
			}
		}
		return quiz.SelectAll{Base: base, Options: qf.Options, Correct: qf.Answers}, nil
	case quiz.KindNumeric:
		if qf.Target == nil {
			return nil, fmt.Errorf("question %s: numeric question has no target", qf.ID)
		}
		return quiz.Numeric{Base: base, Target: *qf.Target, Tolerance: qf.Tolerance, Unit: qf.Unit}, nil
	}
	return nil, fmt.Errorf("question %s: unknown kind %q", qf.ID, qf.Kind)
}

func (qf QuestionFile) answerInOptions() error {
	if !slices.Contains(qf.Options, qf.Answer) {
		return fmt.Errorf("question %s: answer %q is not an option", qf.ID, qf.Answer)
	}
	return nil
}
