// Package quiz scores typed knowledge-check questions and runs quiz attempts.
package quiz

// Kind identifies a question variant.
type Kind string

const (
	KindMCQ       Kind = "mcq"
	KindNumeric   Kind = "numeric"
	KindSelectAll Kind = "select_all"
	KindImageMCQ  Kind = "image_mcq"
)

// Answer is a learner's submission. Single-choice and numeric questions read
// Value; select-all questions read Values.
type Answer struct {
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Single builds an answer for mcq, image_mcq and numeric questions.
func Single(v string) Answer {
	return Answer{Value: v}
}

// Multi builds an answer for select_all questions.
func Multi(vs ...string) Answer {
	return Answer{Values: vs}
}

// Question is the closed set of question variants. The unexported methods
// keep the set closed to this package, so every variant has to provide its
// own evaluation.
type Question interface {
	ID() string
	Kind() Kind
	Prompt() string
	Concepts() []string
	Explanation() string

	evaluate(a Answer) bool
	base() Base
}

// Base carries the fields every question shares.
type Base struct {
	QuestionID string   `json:"id"`
	Text       string   `json:"prompt"`
	Tags       []string `json:"concepts"`
	Explain    string   `json:"explanation,omitempty"`
}

func (b Base) ID() string          { return b.QuestionID }
func (b Base) Prompt() string      { return b.Text }
func (b Base) Explanation() string { return b.Explain }
func (b Base) base() Base          { return b }

// Concepts returns a copy of the concept tags.
func (b Base) Concepts() []string {
	return append([]string(nil), b.Tags...)
}

// MCQ is a single-answer multiple choice question.
type MCQ struct {
	Base
	Options []string
	Correct string
}

func (MCQ) Kind() Kind { return KindMCQ }

func (q MCQ) evaluate(a Answer) bool {
	return EvaluateChoice(q.Correct, a.Value)
}

// ImageMCQ is a multiple choice question shown alongside an image.
type ImageMCQ struct {
	Base
	Options  []string
	Correct  string
	ImageURL string
	ImageAlt string
}

func (ImageMCQ) Kind() Kind { return KindImageMCQ }

func (q ImageMCQ) evaluate(a Answer) bool {
	return EvaluateChoice(q.Correct, a.Value)
}

// Numeric is answered with a number typed as text. A nil Tolerance means
// DefaultTolerance.
type Numeric struct {
	Base
	Target    float64
	Tolerance *float64
	Unit      string
}

func (Numeric) Kind() Kind { return KindNumeric }

func (q Numeric) evaluate(a Answer) bool {
	tol := DefaultTolerance
	if q.Tolerance != nil {
		tol = *q.Tolerance
	}
	return EvaluateNumeric(q.Target, tol, a.Value)
}

// SelectAll requires exactly the correct set of options.
type SelectAll struct {
	Base
	Options []string
	Correct []string
}

func (SelectAll) Kind() Kind { return KindSelectAll }

func (q SelectAll) evaluate(a Answer) bool {
	return EvaluateSelectAll(q.Correct, a.Values)
}

// Evaluate checks an answer against a question.
func Evaluate(q Question, a Answer) bool {
	if q == nil {
		return false
	}
	return q.evaluate(a)
}

// View is the learner-facing rendering of a question, without the answer key.
type View struct {
	ID       string   `json:"id"`
	Kind     Kind     `json:"kind"`
	Prompt   string   `json:"prompt"`
	Options  []string `json:"options,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	ImageAlt string   `json:"image_alt,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Concepts []string `json:"concepts"`
}

// ViewOf renders q without its correctness specification.
func ViewOf(q Question) View {
	v := View{
		ID:       q.ID(),
		Kind:     q.Kind(),
		Prompt:   q.Prompt(),
		Concepts: q.Concepts(),
	}
	switch q := q.(type) {
	case MCQ:
		v.Options = append([]string(nil), q.Options...)
	case ImageMCQ:
		v.Options = append([]string(nil), q.Options...)
		v.ImageURL = q.ImageURL
		v.ImageAlt = q.ImageAlt
	case SelectAll:
		v.Options = append([]string(nil), q.Options...)
	case Numeric:
		v.Unit = q.Unit
	}
	return v
}
