package progress_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/p-n-ai/pai-course/internal/platform/sqlite"
	"github.com/p-n-ai/pai-course/internal/progress"
)

func TestMemoryStore_LoadMissing(t *testing.T) {
	store := progress.NewMemoryStore()

	rec, err := store.Load(context.Background(), "learner-1", "budgeting")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec != nil {
		t.Errorf("Load() = %+v, want nil for a never-saved record", rec)
	}
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	store := progress.NewMemoryStore()
	ctx := context.Background()

	want := progress.Record{
		CurrentStep:    "tax",
		CompletedSteps: []string{"intro", "cart"},
		ModuleData:     json.RawMessage(`{"cart":[{"item":"shirt","price":12.5}]}`),
		HighestReached: 2,
	}
	if err := store.Save(ctx, "learner-1", "shopping", want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "learner-1", "shopping")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil {
		t.Fatal("Load() = nil after Save()")
	}
	if got.CurrentStep != want.CurrentStep || got.HighestReached != want.HighestReached {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
	if !reflect.DeepEqual(got.CompletedSteps, want.CompletedSteps) {
		t.Errorf("CompletedSteps = %v, want %v", got.CompletedSteps, want.CompletedSteps)
	}
	if string(got.ModuleData) != string(want.ModuleData) {
		t.Errorf("ModuleData = %s, want %s", got.ModuleData, want.ModuleData)
	}

	// Other learners and modules are isolated.
	if other, _ := store.Load(ctx, "learner-2", "shopping"); other != nil {
		t.Errorf("Load(learner-2) = %+v, want nil", other)
	}
	if other, _ := store.Load(ctx, "learner-1", "saving"); other != nil {
		t.Errorf("Load(saving) = %+v, want nil", other)
	}
}

func TestMemoryStore_CorruptRecord(t *testing.T) {
	store := progress.NewMemoryStore()
	store.Put("learner-1", "budgeting", []byte(`{"currentStep": 42, "completedSteps": "nope"`))

	rec, err := store.Load(context.Background(), "learner-1", "budgeting")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec == nil {
		t.Fatal("Load() = nil, want defaults for a corrupt record")
	}
	if rec.CurrentStep != "" || len(rec.CompletedSteps) != 0 || rec.HighestReached != 0 {
		t.Errorf("Load() = %+v, want defaults", rec)
	}
	if string(rec.ModuleData) != "{}" {
		t.Errorf("ModuleData = %s, want {}", rec.ModuleData)
	}
}

func TestSQLiteStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "course.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	defer db.Close()

	store, err := progress.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}

	if rec, err := store.Load(ctx, "learner-1", "saving"); err != nil || rec != nil {
		t.Fatalf("Load() before save = %+v, %v; want nil, nil", rec, err)
	}

	first := progress.Record{CurrentStep: "goal", CompletedSteps: []string{"intro"}, HighestReached: 1}
	if err := store.Save(ctx, "learner-1", "saving", first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second := progress.Record{
		CurrentStep:    "plan",
		CompletedSteps: []string{"intro", "goal"},
		ModuleData:     json.RawMessage(`{"goal_amount":500}`),
		HighestReached: 2,
	}
	if err := store.Save(ctx, "learner-1", "saving", second); err != nil {
		t.Fatalf("Save() overwrite error = %v", err)
	}

	got, err := store.Load(ctx, "learner-1", "saving")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.CurrentStep != "plan" || got.HighestReached != 2 {
		t.Errorf("Load() = %+v, want the last written record", got)
	}
	if !reflect.DeepEqual(got.CompletedSteps, []string{"intro", "goal"}) {
		t.Errorf("CompletedSteps = %v", got.CompletedSteps)
	}
	if string(got.ModuleData) != `{"goal_amount":500}` {
		t.Errorf("ModuleData = %s", got.ModuleData)
	}
}

func TestSQLiteStore_CorruptRow(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "course.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	defer db.Close()

	_, err = db.ExecContext(ctx,
		`INSERT INTO module_progress (module_id, learner_id, record, updated_at) VALUES (?, ?, ?, 0)`,
		"credit", "learner-1", "not json at all")
	if err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	store, _ := progress.NewSQLiteStore(db)
	rec, err := store.Load(ctx, "learner-1", "credit")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec == nil || rec.CurrentStep != "" || len(rec.CompletedSteps) != 0 {
		t.Errorf("Load() = %+v, want defaults", rec)
	}
}

func TestStoreConstructors_RejectNil(t *testing.T) {
	if _, err := progress.NewSQLiteStore(nil); err == nil {
		t.Error("NewSQLiteStore(nil) should error")
	}
	if _, err := progress.NewPostgresStore(nil); err == nil {
		t.Error("NewPostgresStore(nil) should error")
	}
	if _, err := progress.NewRedisStore(nil); err == nil {
		t.Error("NewRedisStore(nil) should error")
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		module, learner string
		want            string
	}{
		{"shopping", "learner-7", "progress:shopping:learner-7"},
		{"a", "b:c", "progress:a:b%3Ac"},
		{"a:b", "c", "progress:a%3Ab:c"},
	}
	for _, tt := range tests {
		if got := progress.Key(tt.module, tt.learner); got != tt.want {
			t.Errorf("Key(%q, %q) = %q, want %q", tt.module, tt.learner, got, tt.want)
		}
	}
}

func TestMemoryStore_ColonInIDs(t *testing.T) {
	ctx := context.Background()
	store := progress.NewMemoryStore()

	if err := store.Save(ctx, "b:c", "a", progress.Record{CurrentStep: "X"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rec, err := store.Load(ctx, "c", "a:b")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec != nil {
		t.Errorf("Load(c, a:b) = %+v, want no record", rec)
	}
	if rec, _ := store.Load(ctx, "b:c", "a"); rec == nil || rec.CurrentStep != "X" {
		t.Errorf("Load(b:c, a) = %+v, want the saved record", rec)
	}
}
