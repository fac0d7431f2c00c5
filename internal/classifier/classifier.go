// Package classifier provides adapters to the trained action model.
//
// A Classifier maps a full window of feature vectors ([window][feature.Dim])
// to a probability distribution aligned with the label set. Adapters do not
// retry and never substitute a default distribution: every failure is
// reported as a *FatalError.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/mudra/internal/feature"
)

// Tolerances applied when validating classifier output.
const (
	probEpsilon  = 1e-6
	sumTolerance = 1e-3
)

// Classifier is the narrow boundary to the action model.
type Classifier interface {
	// Predict returns one probability per label for the given tensor.
	Predict(ctx context.Context, tensor []feature.Vector) ([]float64, error)

	// Close releases any resources held by the classifier.
	Close() error
}

// ErrUnavailable is returned when no backing model can serve predictions.
var ErrUnavailable = errors.New("model unavailable")

// FatalError reports a classifier failure or malformed output.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("classifier %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as a *FatalError unless it already is one.
func Fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Op: op, Err: err}
}

// Validate checks that probs is a distribution over n labels: every value
// within [0,1] and the total close to 1.
func Validate(probs []float64, n int) error {
	if len(probs) != n {
		return fmt.Errorf("expected %d probabilities, got %d", n, len(probs))
	}
	var sum float64
	for i, p := range probs {
		if math.IsNaN(p) || p < -probEpsilon || p > 1+probEpsilon {
			return fmt.Errorf("probability %d out of range: %v", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > sumTolerance {
		return fmt.Errorf("probabilities sum to %v", sum)
	}
	return nil
}

// Checked wraps a classifier so that its output is validated against the
// number of labels and all errors are reported as *FatalError.
func Checked(c Classifier, labels int) Classifier {
	return &checked{inner: c, labels: labels}
}

type checked struct {
	inner  Classifier
	labels int
}

func (c *checked) Predict(ctx context.Context, tensor []feature.Vector) ([]float64, error) {
	probs, err := c.inner.Predict(ctx, tensor)
	if err != nil {
		return nil, Fatal("predict", err)
	}
	if err := Validate(probs, c.labels); err != nil {
		return nil, Fatal("validate", err)
	}
	return probs, nil
}

func (c *checked) Close() error {
	return c.inner.Close()
}

// Func adapts a function into a Classifier. Useful for tests and stubs.
type Func func(ctx context.Context, tensor []feature.Vector) ([]float64, error)

// Predict calls f.
func (f Func) Predict(ctx context.Context, tensor []feature.Vector) ([]float64, error) {
	return f(ctx, tensor)
}

// Close is a no-op.
func (f Func) Close() error {
	return nil
}

// Static returns a classifier that always answers probs.
func Static(probs ...float64) Classifier {
	return Func(func(ctx context.Context, tensor []feature.Vector) ([]float64, error) {
		out := make([]float64, len(probs))
		copy(out, probs)
		return out, nil
	})
}

// Unavailable returns a classifier that always fails with ErrUnavailable.
func Unavailable() Classifier {
	return Func(func(ctx context.Context, tensor []feature.Vector) ([]float64, error) {
		return nil, ErrUnavailable
	})
}
