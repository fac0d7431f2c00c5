package capture

import (
	"encoding/base64"
	"fmt"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/feature"
)

// LiveSource is one frame appended to a sequence held by the caller.
// It never keeps history of its own: prev is taken as the complete state.
type LiveSource struct {
	data  []byte
	frame *gocv.Mat
	prev  []feature.Vector
	mode  Mode
}

// NewLiveSource decodes a base64 frame, optionally prefixed with a data URL
// header ("data:image/jpeg;base64,"), and validates prev.
func NewLiveSource(frame string, prev []feature.Vector) (*LiveSource, error) {
	data, err := DecodeFrame(frame)
	if err != nil {
		return nil, err
	}
	if err := validateSequence(prev); err != nil {
		return nil, err
	}
	return &LiveSource{data: data, prev: prev, mode: ModeLive}, nil
}

// NewFrameSource wraps an already decoded frame, such as one read from a
// camera. The caller keeps ownership of frame.
func NewFrameSource(frame *gocv.Mat, prev []feature.Vector) *LiveSource {
	return &LiveSource{frame: frame, prev: prev, mode: ModeCamera}
}

// DecodeFrame strips an optional data URL prefix and base64-decodes the rest.
func DecodeFrame(frame string) ([]byte, error) {
	if i := strings.IndexByte(frame, ','); i >= 0 {
		frame = frame[i+1:]
	}
	frame = strings.TrimSpace(frame)
	if frame == "" {
		return nil, decodeErr("frame", fmt.Errorf("empty payload"))
	}

	data, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(frame)
		if rawErr != nil {
			return nil, decodeErr("frame", err)
		}
	}
	return data, nil
}

func validateSequence(seq []feature.Vector) error {
	for i, v := range seq {
		if len(v) != feature.Dim {
			return decodeErr("sequence", fmt.Errorf("entry %d has %d values, expected %d", i, len(v), feature.Dim))
		}
	}
	return nil
}

// Mode returns ModeLive, or ModeCamera for sources built with NewFrameSource.
func (s *LiveSource) Mode() Mode {
	return s.mode
}

// Initial returns the caller-supplied sequence.
func (s *LiveSource) Initial() []feature.Vector {
	return s.prev
}

// Frames decodes the image and yields it once.
func (s *LiveSource) Frames(fn func(frame *gocv.Mat) error) error {
	if s.frame != nil {
		return fn(s.frame)
	}

	mat, err := gocv.IMDecode(s.data, gocv.IMReadColor)
	if err != nil {
		return decodeErr("frame", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return decodeErr("frame", fmt.Errorf("not an image"))
	}
	return fn(&mat)
}

// Close is a no-op; a LiveSource holds no external resources.
func (s *LiveSource) Close() error {
	return nil
}
