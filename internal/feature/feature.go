// Package feature turns holistic detections into fixed-length feature vectors.
package feature

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
)

// Dim is the dimension of every feature vector:
// face(468) + pose(33) + left hand(21) + right hand(21) landmarks, 3 coordinates each.
const Dim = (detector.NumFaceLandmarks + detector.NumPoseLandmarks + 2*detector.NumHandLandmarks) * detector.CoordsPerLandmark

// Vector is the encoding of one frame's keypoints. It always has length Dim.
type Vector []float32

// Zero returns an all-zero vector.
func Zero() Vector {
	return make(Vector, Dim)
}

// Clone returns a copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// FromLandmarks flattens a detection into a vector.
// Each group occupies a fixed segment; undetected or partially reported
// groups are zero-filled so the result always has length Dim.
func FromLandmarks(h *detector.Holistic) Vector {
	v := Zero()
	if h.Empty() {
		return v
	}
	offset := 0
	for _, g := range detector.Groups {
		points := h.Group(g.Name)
		for i := 0; i < g.Size && i < len(points); i++ {
			base := offset + i*detector.CoordsPerLandmark
			v[base] = float32(points[i].X)
			v[base+1] = float32(points[i].Y)
			v[base+2] = float32(points[i].Z)
		}
		offset += g.Size * detector.CoordsPerLandmark
	}
	return v
}

// Extractor converts decoded images into feature vectors.
type Extractor struct {
	detector detector.Detector
}

// NewExtractor creates an Extractor backed by the given detector.
func NewExtractor(d detector.Detector) *Extractor {
	return &Extractor{detector: d}
}

// Extract runs landmark detection on frame and returns its vector.
// A frame with no detections yields an all-zero vector; an error is only
// returned when the detector itself fails.
func (e *Extractor) Extract(frame *gocv.Mat) (Vector, error) {
	h, err := e.detector.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("detect landmarks: %w", err)
	}
	return FromLandmarks(h), nil
}

// Close releases the underlying detector.
func (e *Extractor) Close() error {
	return e.detector.Close()
}
