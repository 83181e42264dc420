// Package progress persists one learner's position and accumulated data
// within one module.
package progress

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"net/url"
)

// Record is the persisted shape of a learner's progress in a module.
// ModuleData is kept as raw JSON; the course package decodes it into the
// module's typed schema.
type Record struct {
	CurrentStep    string          `json:"currentStep"`
	CompletedSteps []string        `json:"completedSteps"`
	ModuleData     json.RawMessage `json:"moduleData"`
	HighestReached int             `json:"highestReached"`
}

var emptyObject = json.RawMessage(`{}`)

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	out.CompletedSteps = append([]string(nil), r.CompletedSteps...)
	if r.ModuleData != nil {
		out.ModuleData = append(json.RawMessage(nil), r.ModuleData...)
	}
	return out
}

// Encode serializes a record. Nil fields are written as their empty forms.
func Encode(r Record) ([]byte, error) {
	if r.CompletedSteps == nil {
		r.CompletedSteps = []string{}
	}
	if len(r.ModuleData) == 0 {
		r.ModuleData = emptyObject
	}
	if r.HighestReached < 0 {
		r.HighestReached = 0
	}
	return json.Marshal(r)
}

// Decode parses a stored record field by field. Anything malformed or
// missing falls back to that field's default; Decode never fails. ok is
// false when data is not a JSON object at all.
func Decode(data []byte) (rec Record, ok bool) {
	rec = Record{CompletedSteps: []string{}, ModuleData: emptyObject}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		slog.Debug("progress record is not an object, using defaults", "error", err)
		return rec, false
	}

	if raw, found := fields["currentStep"]; found {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			rec.CurrentStep = s
		}
	}

	if raw, found := fields["completedSteps"]; found {
		rec.CompletedSteps = decodeSteps(raw)
	}

	if raw, found := fields["moduleData"]; found {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed) {
			rec.ModuleData = append(json.RawMessage(nil), trimmed...)
		}
	}

	if raw, found := fields["highestReached"]; found {
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil && f > 0 && !math.IsInf(f, 0) && f < math.MaxInt32 {
			rec.HighestReached = int(f)
		}
	}

	return rec, true
}

// decodeSteps keeps every string element of a JSON array and drops the rest.
func decodeSteps(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}
	}
	steps := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil && s != "" {
			steps = append(steps, s)
		}
	}
	return steps
}

// Key composes the storage key for a learner's record in a module. Both ids
// are escaped, so a ':' inside an id cannot collide with another pair.
func Key(moduleID, learnerID string) string {
	return "progress:" + url.QueryEscape(moduleID) + ":" + url.QueryEscape(learnerID)
}
