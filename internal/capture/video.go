package capture

import (
	"fmt"
	"io"
	"os"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/feature"
)

// VideoSource samples a video file down to at most window frames.
type VideoSource struct {
	path   string
	window int
	owned  bool
}

// NewVideoUpload spools r to a temporary file and returns a source over it.
// The temporary file is removed by Close.
func NewVideoUpload(r io.Reader, window int) (*VideoSource, error) {
	f, err := os.CreateTemp("", "mudra-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(f.Name())
		if copyErr != nil {
			return nil, decodeErr("video", fmt.Errorf("read upload: %w", copyErr))
		}
		return nil, fmt.Errorf("write temp file: %w", closeErr)
	}

	return &VideoSource{path: f.Name(), window: window, owned: true}, nil
}

// OpenVideoFile returns a source over an existing file. Close leaves the file in place.
func OpenVideoFile(path string, window int) *VideoSource {
	return &VideoSource{path: path, window: window}
}

// Path returns the file backing the source.
func (s *VideoSource) Path() string {
	return s.path
}

// Mode returns ModeBatch.
func (s *VideoSource) Mode() Mode {
	return ModeBatch
}

// Initial returns an empty sequence: a video always starts a new one.
func (s *VideoSource) Initial() []feature.Vector {
	return nil
}

// Frames decodes the video and yields every stride-th frame, where stride
// is SampleStride(frame count, window), until window frames were yielded.
func (s *VideoSource) Frames(fn func(frame *gocv.Mat) error) error {
	vc, err := gocv.VideoCaptureFile(s.path)
	if err != nil {
		return decodeErr("video", err)
	}
	defer vc.Close()

	if !vc.IsOpened() {
		return decodeErr("video", fmt.Errorf("cannot open container"))
	}

	total := int(vc.Get(gocv.VideoCaptureFrameCount))
	stride := SampleStride(total, s.window)

	mat := gocv.NewMat()
	defer mat.Close()

	n, err := sampleFrames(vc, &mat, stride, s.window, fn)
	if err != nil {
		return err
	}
	if n == 0 {
		return decodeErr("video", ErrNoFrames)
	}
	return nil
}

// Close removes the temporary file if the source owns it.
func (s *VideoSource) Close() error {
	if !s.owned {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp video: %w", err)
	}
	return nil
}

// SampleStride returns the frame-skip stride used to spread window samples
// across a video of total frames: max(1, total/window) with integer division.
func SampleStride(total, window int) int {
	if window <= 0 {
		return 1
	}
	return max(1, total/window)
}

// frameReader is the subset of gocv.VideoCapture used for sampling.
type frameReader interface {
	Read(m *gocv.Mat) bool
}

// sampleFrames reads frames into mat and calls fn on frame indices that are
// multiples of stride, stopping after limit calls or at end of stream.
// It returns the number of frames passed to fn.
func sampleFrames(r frameReader, mat *gocv.Mat, stride, limit int, fn func(*gocv.Mat) error) (int, error) {
	sampled := 0
	for idx := 0; sampled < limit; idx++ {
		if !r.Read(mat) || mat.Empty() {
			break
		}
		if idx%stride != 0 {
			continue
		}
		if err := fn(mat); err != nil {
			return sampled, err
		}
		sampled++
	}
	return sampled, nil
}
