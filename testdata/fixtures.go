// Package testdata generates images and clips for tests. Nothing here is
// checked in as binary data: every fixture is rendered with OpenCV.
package testdata

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// ErrNoVideoWriter is returned when the local OpenCV build cannot write MJPG.
var ErrNoVideoWriter = errors.New("MJPG video writer unavailable")

// Frame renders a width x height BGR frame with a bright square whose
// position depends on step, so consecutive steps differ.
func Frame(width, height, step int) gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), height, width, gocv.MatTypeCV8UC3)
	side := min(width, height) / 4
	x := (step * 7) % max(1, width-side)
	y := (step * 5) % max(1, height-side)
	gocv.Rectangle(&m, image.Rect(x, y, x+side, y+side), color.RGBA{R: 230, G: 200, B: 180}, -1)
	return m
}

// Frames renders n frames. The caller closes them.
func Frames(n, width, height int) []*gocv.Mat {
	out := make([]*gocv.Mat, n)
	for i := range out {
		m := Frame(width, height, i)
		out[i] = &m
	}
	return out
}

// CloseAll closes every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

// JPEG encodes one rendered frame.
func JPEG(width, height, step int) ([]byte, error) {
	m := Frame(width, height, step)
	defer m.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, m)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

// DataURL wraps JPEG bytes the way a browser canvas exports them.
func DataURL(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}

// WriteClip writes an MJPG AVI of n rendered frames to path.
func WriteClip(path string, n, width, height int) error {
	w, err := gocv.VideoWriterFile(path, "MJPG", 25, width, height, true)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoVideoWriter, err)
	}
	defer w.Close()

	if !w.IsOpened() {
		return ErrNoVideoWriter
	}

	for i := 0; i < n; i++ {
		m := Frame(width, height, i)
		err := w.Write(m)
		m.Close()
		if err != nil {
			return fmt.Errorf("write frame %d: %w", i, err)
		}
	}
	return nil
}
