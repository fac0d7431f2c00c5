package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	motionBlurKernel = 21
	motionPixelDelta = 25
)

// StillnessGate watches a frame stream and reports when the scene has been
// still for a number of consecutive frames. The camera watcher uses it to
// drop a stale sequence once the signer stops moving.
type StillnessGate struct {
	mu        sync.Mutex
	threshold float64 // percent of changed pixels that counts as motion
	idleAfter int
	stillRun  int
	prev      gocv.Mat
	primed    bool
}

// NewStillnessGate returns a gate that reports idle after idleAfter
// consecutive frames with at most threshold percent of pixels changed.
func NewStillnessGate(threshold float64, idleAfter int) *StillnessGate {
	if idleAfter <= 0 {
		idleAfter = 1
	}
	return &StillnessGate{
		threshold: threshold,
		idleAfter: idleAfter,
		prev:      gocv.NewMat(),
	}
}

// Observe records frame and reports whether the scene is now idle along
// with the percentage of pixels that changed since the previous frame.
// The first frame only primes the gate.
func (g *StillnessGate) Observe(frame *gocv.Mat) (idle bool, changed float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(motionBlurKernel, motionBlurKernel), 0, 0, gocv.BorderDefault)

	if !g.primed || blurred.Rows() != g.prev.Rows() || blurred.Cols() != g.prev.Cols() {
		blurred.CopyTo(&g.prev)
		g.primed = true
		g.stillRun = 0
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prev, &diff)
	gocv.Threshold(diff, &diff, motionPixelDelta, 255, gocv.ThresholdBinary)

	total := diff.Rows() * diff.Cols()
	if total > 0 {
		changed = float64(gocv.CountNonZero(diff)) / float64(total) * 100
	}
	blurred.CopyTo(&g.prev)

	if changed > g.threshold {
		g.stillRun = 0
		return false, changed
	}
	g.stillRun++
	return g.stillRun >= g.idleAfter, changed
}

// Reset forgets the reference frame and the current still run.
func (g *StillnessGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.primed = false
	g.stillRun = 0
}

// Close releases the reference frame.
func (g *StillnessGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prev.Close()
	g.prev = gocv.NewMat()
	g.primed = false
}
