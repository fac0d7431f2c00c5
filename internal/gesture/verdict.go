// Package gesture turns classifier output into recognition verdicts.
package gesture

import (
	"fmt"
	"math"
)

// DefaultThreshold is the minimum confidence for a label to be reported.
const DefaultThreshold = 0.5

// NoAction is the verdict action when no label reached the threshold.
const NoAction = ""

// Labels is the ordered set of recognizable actions. The order must match
// the classifier's output order.
type Labels []string

// DefaultLabels returns the label set the bundled action model was trained on.
func DefaultLabels() Labels {
	return Labels{"asthma", "cold", "dizziness", "fever", "sore_throat", "vomiting"}
}

// Validate checks that the set is non-empty with unique, non-empty names.
func (l Labels) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("label set is empty")
	}
	seen := make(map[string]bool, len(l))
	for i, name := range l {
		if name == "" {
			return fmt.Errorf("label %d is empty", i)
		}
		if seen[name] {
			return fmt.Errorf("duplicate label %q", name)
		}
		seen[name] = true
	}
	return nil
}

// Verdict is the gated outcome of classifying one full window.
type Verdict struct {
	Action        string             // Winning label, or NoAction when below threshold
	Confidence    float64            // Probability of the most likely label
	Probabilities map[string]float64 // Probability of every label
}

// Recognized reports whether a label passed the threshold.
func (v Verdict) Recognized() bool {
	return v.Action != NoAction
}

// Decide selects the most probable label and applies the confidence threshold.
// Equal maxima resolve to the lowest index. When the maximum is below
// threshold the action is NoAction, but confidence and probabilities are
// still reported. Non-finite probabilities are rejected.
func Decide(probs []float64, labels Labels, threshold float64) (Verdict, error) {
	if len(probs) != len(labels) {
		return Verdict{}, fmt.Errorf("got %d probabilities for %d labels", len(probs), len(labels))
	}
	if len(probs) == 0 {
		return Verdict{}, fmt.Errorf("no probabilities")
	}

	best := 0
	all := make(map[string]float64, len(labels))
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Verdict{}, fmt.Errorf("probability %d for %q is %v", i, labels[i], p)
		}
		all[labels[i]] = p
		if p > probs[best] {
			best = i
		}
	}

	v := Verdict{
		Action:        labels[best],
		Confidence:    probs[best],
		Probabilities: all,
	}
	if v.Confidence < threshold {
		v.Action = NoAction
	}
	return v, nil
}
