// Package scoring estimates the long-term value of an answer as a weighted
// sum of named sub-scores. A weighted set of sub-scores is a Policy; policies
// are registered by name and selected at configuration time.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/flemzord/qaindex/internal/textproc"
)

// weightTolerance absorbs float rounding when checking that weights sum to 1.
const weightTolerance = 1e-9

// Input is the material every sub-score is computed from.
type Input struct {
	Question string
	Answer   string
	Tags     []string

	// Derived once per Score call.
	QuestionTokens []string // capped keyword set, as stored in q_tokens
	AnswerTokens   []string // uncapped distinct answer tokens
	AnswerWords    int
	folded         string // normalized question + "\n" + answer
	foldedAnswer   string
}

// SubScore computes one deterministic component in [0,1].
type SubScore func(in Input) float64

// Component is a named, weighted sub-score.
type Component struct {
	Name   string
	Weight float64
	Score  SubScore
}

// ComponentScore is one line of a score breakdown.
type ComponentScore struct {
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`
	Value    float64 `json:"value"`
	Weighted float64 `json:"weighted"`
}

// Policy is a named scoring formula. A Policy is immutable and safe for
// concurrent use.
type Policy struct {
	name       string
	components []Component
}

// NewPolicy validates and builds a policy. Weights must be non-negative and
// sum to 1; component names must be unique.
func NewPolicy(name string, components ...Component) (*Policy, error) {
	if name == "" {
		return nil, errors.New("scoring: policy name is required")
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("scoring: policy %q has no components", name)
	}

	var (
		errs  []error
		total float64
		names = make(map[string]struct{}, len(components))
	)
	for i, c := range components {
		switch {
		case c.Name == "":
			errs = append(errs, fmt.Errorf("scoring: policy %q: component %d has no name", name, i))
		case c.Score == nil:
			errs = append(errs, fmt.Errorf("scoring: policy %q: component %q has no score func", name, c.Name))
		case c.Weight < 0 || math.IsNaN(c.Weight):
			errs = append(errs, fmt.Errorf("scoring: policy %q: component %q has invalid weight %v", name, c.Name, c.Weight))
		}
		if _, dup := names[c.Name]; dup {
			errs = append(errs, fmt.Errorf("scoring: policy %q: duplicate component %q", name, c.Name))
		}
		names[c.Name] = struct{}{}
		total += c.Weight
	}
	if math.Abs(total-1) > weightTolerance {
		errs = append(errs, fmt.Errorf("scoring: policy %q: weights sum to %v, want 1", name, total))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Policy{
		name:       name,
		components: append([]Component(nil), components...),
	}, nil
}

// Name returns the policy name.
func (p *Policy) Name() string {
	return p.name
}

// Components returns a copy of the policy's components.
func (p *Policy) Components() []Component {
	return append([]Component(nil), p.components...)
}

// Score returns the weighted score in [0,1]. An empty answer scores 0.
func (p *Policy) Score(question, answer string, tags []string) float64 {
	if strings.TrimSpace(answer) == "" {
		return 0
	}
	in := newInput(question, answer, tags)

	var total float64
	for _, c := range p.components {
		total += c.Weight * clamp(c.Score(in))
	}
	return clamp(total)
}

// Breakdown returns each component's contribution. The sum of Weighted
// equals Score before the final clamp.
func (p *Policy) Breakdown(question, answer string, tags []string) []ComponentScore {
	out := make([]ComponentScore, 0, len(p.components))
	if strings.TrimSpace(answer) == "" {
		for _, c := range p.components {
			out = append(out, ComponentScore{Name: c.Name, Weight: c.Weight})
		}
		return out
	}

	in := newInput(question, answer, tags)
	for _, c := range p.components {
		v := clamp(c.Score(in))
		out = append(out, ComponentScore{
			Name:     c.Name,
			Weight:   c.Weight,
			Value:    v,
			Weighted: c.Weight * v,
		})
	}
	return out
}

func newInput(question, answer string, tags []string) Input {
	foldedAnswer := textproc.Normalize(answer)
	return Input{
		Question:       question,
		Answer:         answer,
		Tags:           tags,
		QuestionTokens: textproc.Tokenize(question),
		AnswerTokens:   textproc.Tokenizer{}.Tokenize(answer),
		AnswerWords:    textproc.CountWords(answer),
		folded:         textproc.Normalize(question) + "\n" + foldedAnswer,
		foldedAnswer:   foldedAnswer,
	}
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
