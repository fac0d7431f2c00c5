package detector

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Detector defines the interface for holistic landmark detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the detected landmarks.
	// Groups that are not visible are left nil; an error is returned only
	// when the detector itself fails.
	Detect(frame *gocv.Mat) (*Holistic, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for holistic detection.
type Config struct {
	// Script is the path to the MediaPipe service script. Empty means search
	// the default locations.
	Script string

	// Python is the interpreter used to run the script. Empty means a local
	// virtualenv or python3.
	Python string

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}

// Unavailable returns a Detector whose Detect always fails with cause. It
// stands in when the landmark service cannot be configured so that requests
// fail loudly instead of classifying empty frames.
func Unavailable(cause error) Detector {
	return unavailable{cause: cause}
}

type unavailable struct {
	cause error
}

func (u unavailable) Detect(*gocv.Mat) (*Holistic, error) {
	return nil, fmt.Errorf("landmark detector unavailable: %w", u.cause)
}

func (unavailable) Close() error { return nil }
