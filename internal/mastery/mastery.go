// Package mastery keeps per-learner, per-concept correct/attempt counters
// across quiz attempts.
package mastery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Score is the running tally for one concept.
type Score struct {
	Correct  int `json:"correct"`
	Attempts int `json:"attempts"`
}

// Ratio returns Correct/Attempts, or 0 when nothing has been attempted.
func (s Score) Ratio() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Attempts)
}

// ConceptResult is one concept-tagged outcome from a finished quiz.
type ConceptResult struct {
	Concept string
	Correct bool
}

// Store persists concept scores. Increment must add deltas to existing
// counters, creating zeroed counters for unseen concepts first.
type Store interface {
	Increment(ctx context.Context, learnerID string, deltas map[string]Score) error
	Scores(ctx context.Context, learnerID string) (map[string]Score, error)
}

// Aggregator is the only writer of concept scores.
type Aggregator struct {
	store Store
}

// NewAggregator creates an aggregator. A nil store falls back to memory.
func NewAggregator(store Store) *Aggregator {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Aggregator{store: store}
}

// Record tallies results and adds them to the learner's counters.
func (a *Aggregator) Record(ctx context.Context, learnerID string, results []ConceptResult) error {
	if learnerID == "" {
		return fmt.Errorf("learner id is required")
	}
	deltas := Tally(results)
	if len(deltas) == 0 {
		return nil
	}
	if err := a.store.Increment(ctx, learnerID, deltas); err != nil {
		return fmt.Errorf("record concept scores: %w", err)
	}
	slog.Debug("concept scores recorded",
		"learner_id", learnerID,
		"concepts", len(deltas),
	)
	return nil
}

// GetScore returns the score for one concept. Unknown concepts and read
// failures yield a zero baseline.
func (a *Aggregator) GetScore(ctx context.Context, learnerID, concept string) Score {
	scores, err := a.store.Scores(ctx, learnerID)
	if err != nil {
		slog.Warn("failed to read concept scores", "learner_id", learnerID, "error", err)
		return Score{}
	}
	return scores[concept]
}

// Scores returns every concept recorded for the learner.
func (a *Aggregator) Scores(ctx context.Context, learnerID string) (map[string]Score, error) {
	scores, err := a.store.Scores(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("read concept scores: %w", err)
	}
	if scores == nil {
		scores = map[string]Score{}
	}
	return scores, nil
}

// ConceptScore pairs a concept with its score.
type ConceptScore struct {
	Concept string `json:"concept"`
	Score
	Ratio float64 `json:"ratio"`
}

// Weakest returns up to n attempted concepts ordered by ascending ratio,
// then by most attempts, then by name.
func (a *Aggregator) Weakest(ctx context.Context, learnerID string, n int) ([]ConceptScore, error) {
	scores, err := a.Scores(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	list := Sorted(scores)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Ratio != list[j].Ratio {
			return list[i].Ratio < list[j].Ratio
		}
		return list[i].Attempts > list[j].Attempts
	})
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	return list, nil
}

// Sorted flattens scores into a list ordered by concept name.
func Sorted(scores map[string]Score) []ConceptScore {
	list := make([]ConceptScore, 0, len(scores))
	for c, s := range scores {
		if s.Attempts == 0 {
			continue
		}
		list = append(list, ConceptScore{Concept: c, Score: s, Ratio: s.Ratio()})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Concept < list[j].Concept })
	return list
}

// Tally folds results into per-concept deltas.
func Tally(results []ConceptResult) map[string]Score {
	deltas := make(map[string]Score)
	for _, r := range results {
		if r.Concept == "" {
			continue
		}
		d := deltas[r.Concept]
		d.Attempts++
		if r.Correct {
			d.Correct++
		}
		deltas[r.Concept] = d
	}
	return deltas
}
