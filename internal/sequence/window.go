// Package sequence implements the fixed-capacity window of feature vectors
// that is fed to the classifier.
package sequence

import (
	"errors"

	"github.com/ayusman/mudra/internal/feature"
)

// DefaultCapacity is the number of frames the classifier expects.
const DefaultCapacity = 30

// ErrShape is returned when the tensor is requested from a window that is not full.
var ErrShape = errors.New("sequence window is not full")

// Window is an ordered buffer holding the most recent feature vectors.
// Its length never exceeds its capacity.
type Window struct {
	capacity int
	vectors  []feature.Vector
}

// New creates a window with the given capacity seeded with copies of
// initial, so later changes to the caller's slices do not reach the window.
// Only the last capacity entries of initial are kept.
// A capacity <= 0 uses DefaultCapacity.
func New(capacity int, initial []feature.Vector) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	w := &Window{
		capacity: capacity,
		vectors:  make([]feature.Vector, 0, capacity+1),
	}
	if over := len(initial) - capacity; over > 0 {
		initial = initial[over:]
	}
	for _, v := range initial {
		w.Push(v.Clone())
	}
	return w
}

// Push appends v, dropping the oldest entries when capacity is exceeded.
func (w *Window) Push(v feature.Vector) {
	w.vectors = append(w.vectors, v)
	if over := len(w.vectors) - w.capacity; over > 0 {
		copy(w.vectors, w.vectors[over:])
		w.vectors = w.vectors[:w.capacity]
	}
}

// Len returns the number of vectors held.
func (w *Window) Len() int {
	return len(w.vectors)
}

// Capacity returns the window capacity.
func (w *Window) Capacity() int {
	return w.capacity
}

// IsReady reports whether the window holds exactly capacity vectors.
func (w *Window) IsReady() bool {
	return len(w.vectors) == w.capacity
}

// Tensor returns the ordered vectors for classification.
// It fails with ErrShape unless the window is ready.
func (w *Window) Tensor() ([]feature.Vector, error) {
	if !w.IsReady() {
		return nil, ErrShape
	}
	return w.Vectors(), nil
}

// Vectors returns a copy of the held vectors, oldest first.
func (w *Window) Vectors() []feature.Vector {
	out := make([]feature.Vector, len(w.vectors))
	copy(out, w.vectors)
	return out
}
