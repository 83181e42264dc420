package ai

import (
	"testing"
)

func TestInMemoryBudget_Check(t *testing.T) {
	tests := []struct {
		name   string
		limit  int64
		record []int
		want   bool
	}{
		{"no limit means unlimited", 0, []int{1_000_000}, true},
		{"within budget", 1000, []int{500}, true},
		{"over budget", 100, []int{150}, false},
		{"exact budget is exhausted", 100, []int{100}, false},
		{"accumulates", 500, []int{200, 200, 100}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewInMemoryBudget(tt.limit)
			for _, tokens := range tt.record {
				if err := b.Record(t.Context(), "learner-1", tokens); err != nil {
					t.Fatalf("Record() error = %v", err)
				}
			}
			ok, err := b.Check(t.Context(), "learner-1")
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if ok != tt.want {
				t.Errorf("Check() = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestInMemoryBudget_Usage(t *testing.T) {
	b := NewInMemoryBudget(1000)
	for _, tokens := range []int{100, 200, 300} {
		if err := b.Record(t.Context(), "learner-1", tokens); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	used, limit, err := b.Usage(t.Context(), "learner-1")
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if used != 600 || limit != 1000 {
		t.Errorf("Usage() = %d/%d, want 600/1000", used, limit)
	}
}

func TestInMemoryBudget_NegativeTokens(t *testing.T) {
	b := NewInMemoryBudget(0)
	if err := b.Record(t.Context(), "learner-1", -10); err == nil {
		t.Fatal("Record() should return error for negative tokens")
	}
}

func TestInMemoryBudget_OverridesAreIsolated(t *testing.T) {
	b := NewInMemoryBudget(100)
	b.SetLimit("learner-2", 200)

	_ = b.Record(t.Context(), "learner-1", 150)
	_ = b.Record(t.Context(), "learner-2", 150)

	ok1, _ := b.Check(t.Context(), "learner-1")
	ok2, _ := b.Check(t.Context(), "learner-2")
	if ok1 {
		t.Error("learner-1 should be over budget (150 >= 100)")
	}
	if !ok2 {
		t.Error("learner-2 should be within budget (150 < 200)")
	}
}

func TestNewRedisBudget_NilClient(t *testing.T) {
	if _, err := NewRedisBudget(nil, 100); err == nil {
		t.Fatal("NewRedisBudget(nil) should return error")
	}
}
