package quiz

import (
	"math"
	"strconv"
	"strings"
)

// DefaultTolerance applies to numeric questions that do not set their own.
const DefaultTolerance = 1e-6

// floatSlack absorbs binary rounding so a difference equal to the tolerance
// on paper (4.00 vs 3.99 at 0.01) still passes.
const floatSlack = 1e-9

// EvaluateChoice reports whether a single-choice submission matches exactly.
func EvaluateChoice(correct, submitted string) bool {
	return submitted == correct
}

// EvaluateNumeric reports whether the text submission parses to a number
// within tol of target. Unparsable input is never correct.
func EvaluateNumeric(target, tol float64, submitted string) bool {
	v, ok := ParseNumber(submitted)
	if !ok {
		return false
	}
	if tol < 0 {
		tol = 0
	}
	return math.Abs(v-target) <= tol+floatSlack
}

// EvaluateSelectAll reports whether submitted and correct are the same set.
// No partial credit is given.
func EvaluateSelectAll(correct, submitted []string) bool {
	want := toSet(correct)
	got := toSet(submitted)
	if len(want) != len(got) {
		return false
	}
	for k := range want {
		if _, ok := got[k]; !ok {
			return false
		}
	}
	return true
}

// ParseNumber coerces typed input like " $1,250.50 " or "12 %" to a float.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		fields := strings.Fields(s)
		if len(fields) == 0 {
			return 0, false
		}
		if v, err = strconv.ParseFloat(fields[0], 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}
