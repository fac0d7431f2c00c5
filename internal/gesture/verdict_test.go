package gesture

import (
	"math"
	"testing"
)

func TestDecide(t *testing.T) {
	labels := DefaultLabels()

	tests := []struct {
		name           string
		probs          []float64
		threshold      float64
		wantAction     string
		wantConfidence float64
	}{
		{
			name:           "clear winner",
			probs:          []float64{0.05, 0.05, 0.8, 0.05, 0.03, 0.02},
			threshold:      0.5,
			wantAction:     "dizziness",
			wantConfidence: 0.8,
		},
		{
			name:           "below threshold",
			probs:          []float64{0.2, 0.2, 0.2, 0.2, 0.1, 0.1},
			threshold:      0.5,
			wantAction:     NoAction,
			wantConfidence: 0.2,
		},
		{
			name:           "threshold is inclusive",
			probs:          []float64{0, 0, 0, 0.5, 0.25, 0.25},
			threshold:      0.5,
			wantAction:     "fever",
			wantConfidence: 0.5,
		},
		{
			name:           "tie resolves to lowest index",
			probs:          []float64{0.5, 0.5, 0, 0, 0, 0},
			threshold:      0.5,
			wantAction:     "asthma",
			wantConfidence: 0.5,
		},
		{
			name:           "later tie still lowest index",
			probs:          []float64{0.1, 0.1, 0.4, 0, 0.4, 0},
			threshold:      0.3,
			wantAction:     "dizziness",
			wantConfidence: 0.4,
		},
		{
			name:           "all zero",
			probs:          []float64{0, 0, 0, 0, 0, 0},
			threshold:      0.01,
			wantAction:     NoAction,
			wantConfidence: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Decide(tt.probs, labels, tt.threshold)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", v.Action, tt.wantAction)
			}
			if math.Abs(v.Confidence-tt.wantConfidence) > 1e-12 {
				t.Errorf("Confidence = %f, want %f", v.Confidence, tt.wantConfidence)
			}
			if v.Recognized() != (tt.wantAction != NoAction) {
				t.Errorf("Recognized() = %v", v.Recognized())
			}
			if len(v.Probabilities) != len(labels) {
				t.Errorf("expected %d probabilities, got %d", len(labels), len(v.Probabilities))
			}
			for i, label := range labels {
				if v.Probabilities[label] != tt.probs[i] {
					t.Errorf("probability of %s = %f, want %f", label, v.Probabilities[label], tt.probs[i])
				}
			}
		})
	}
}

func TestDecide_AllZeroAnyPositiveThreshold(t *testing.T) {
	labels := DefaultLabels()
	zero := make([]float64, len(labels))

	for _, threshold := range []float64{1e-9, 0.1, 0.5, 0.99, 1} {
		v, err := Decide(zero, labels, threshold)
		if err != nil {
			t.Fatalf("threshold %f: unexpected error: %v", threshold, err)
		}
		if v.Recognized() {
			t.Errorf("threshold %f: expected NoAction, got %q", threshold, v.Action)
		}
	}
}

func TestDecide_Errors(t *testing.T) {
	if _, err := Decide([]float64{1}, DefaultLabels(), 0.5); err == nil {
		t.Error("expected error for length mismatch")
	}
	if _, err := Decide(nil, nil, 0.5); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestDecide_NonFinite(t *testing.T) {
	labels := Labels{"a", "b", "c"}
	tests := []struct {
		name  string
		probs []float64
	}{
		{"NaN first", []float64{math.NaN(), 0.2, 0.1}},
		{"NaN last", []float64{0.6, 0.3, math.NaN()}},
		{"positive infinity", []float64{0.1, math.Inf(1), 0.1}},
		{"negative infinity", []float64{math.Inf(-1), 0.9, 0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Decide(tt.probs, labels, 0.5)
			if err == nil {
				t.Fatalf("Decide() = %+v, want error", v)
			}
		})
	}
}

func TestLabels(t *testing.T) {
	t.Run("default labels are valid", func(t *testing.T) {
		if err := DefaultLabels().Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	invalid := map[string]Labels{
		"empty":     {},
		"blank":     {"a", ""},
		"duplicate": {"a", "b", "a"},
	}
	for name, labels := range invalid {
		t.Run(name, func(t *testing.T) {
			if err := labels.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
