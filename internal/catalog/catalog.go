package catalog

import (
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/curriculum"
)

type binder func(mf curriculum.ModuleFile, seq *course.Sequence, deps course.Deps) (course.Runner, error)

// bind builds a binder for schema D. Activities bound to steps the loaded
// sequence does not have are skipped, so curriculum edits never break
// startup.
func bind[D any](activities map[string]course.Activity[D]) binder {
	return func(mf curriculum.ModuleFile, seq *course.Sequence, deps course.Deps) (course.Runner, error) {
		acts := make(map[string]course.Activity[D], len(activities))
		for step, a := range activities {
			if _, ok := seq.Index(step); !ok {
				slog.Warn("activity step missing from module", "module_id", mf.ID, "step", step)
				continue
			}
			acts[step] = a
		}
		m, err := course.NewModule(mf.ID, mf.Title, seq, acts)
		if err != nil {
			return nil, err
		}
		m.Order = mf.Order
		eng, err := course.NewEngine(m, deps)
		if err != nil {
			return nil, err
		}
		return eng, nil
	}
}

// binders maps module ids to their typed schemas.
var binders = map[string]binder{
	"earning":     bind(earningActivities()),
	"budgeting":   bind(budgetingActivities()),
	"shopping":    bind(shoppingActivities()),
	"saving":      bind(savingActivities()),
	"credit":      bind[Credit](nil),
	"final-check": bind[FinalCheck](nil),
}

// Build registers every loaded module. Modules without a typed schema use
// NoData. deps.Banks defaults to the loader.
func Build(loader *curriculum.Loader, deps course.Deps) (*course.Registry, error) {
	if deps.Banks == nil {
		deps.Banks = loader
	}
	reg := course.NewRegistry()
	for _, mf := range loader.Modules() {
		seq, err := mf.Sequence()
		if err != nil {
			return nil, err
		}
		b, ok := binders[mf.ID]
		if !ok {
			b = bind[NoData](nil)
		}
		run, err := b(mf, seq, deps)
		if err != nil {
			return nil, fmt.Errorf("binding module %s: %w", mf.ID, err)
		}
		if err := reg.Register(run); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
