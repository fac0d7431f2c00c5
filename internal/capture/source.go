// Package capture normalizes the ways frames enter the recognizer (uploaded
// video files, single live frames and local cameras) into a common Source.
package capture

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/feature"
)

// Mode identifies how a source obtained its frames.
type Mode string

const (
	// ModeBatch is an uploaded video file sampled down to one window.
	ModeBatch Mode = "batch"
	// ModeLive is a single client frame appended to a client-held sequence.
	ModeLive Mode = "live"
	// ModeCamera is a frame read from a local capture device.
	ModeCamera Mode = "camera"
)

// Source produces decoded frames together with the sequence they extend.
type Source interface {
	// Mode reports the input variant.
	Mode() Mode

	// Initial returns the sequence the frames are appended to.
	Initial() []feature.Vector

	// Frames calls fn for each frame in order. The Mat is only valid for
	// the duration of the call. Iteration stops at the first error from fn.
	Frames(fn func(frame *gocv.Mat) error) error

	// Close releases resources held by the source, such as temporary files.
	Close() error
}

// ErrNoFrames is returned when an input yields no decodable frame.
var ErrNoFrames = errors.New("no decodable frames")

// DecodeError reports malformed input. It is recoverable: the caller may
// resubmit with the same or an empty sequence.
type DecodeError struct {
	Input string // what was being decoded, e.g. "frame", "video"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Input, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(input string, err error) error {
	return &DecodeError{Input: input, Err: err}
}
