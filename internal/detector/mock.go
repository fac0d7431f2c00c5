package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	result *Holistic
	script []*Holistic
	err    error
	calls  int
	closed bool
}

// NewMockDetector creates a new MockDetector instance that detects nothing.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetResult sets the landmarks returned by every Detect call.
func (m *MockDetector) SetResult(h *Holistic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = h
}

// SetScript queues results returned one per Detect call, in order.
// Once the queue is drained Detect falls back to the result set by SetResult.
func (m *MockDetector) SetScript(results []*Holistic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append([]*Holistic(nil), results...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close has been called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Detect returns the pre-configured landmarks or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (*Holistic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		return next, nil
	}
	if m.result == nil {
		return &Holistic{}, nil
	}
	return m.result, nil
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// HandsOnlyLandmarks returns a preset detection where only both hands are
// visible, with the right hand raised above the left.
func HandsOnlyLandmarks() *Holistic {
	h := &Holistic{
		LeftHand:  make([]Point3D, NumHandLandmarks),
		RightHand: make([]Point3D, NumHandLandmarks),
	}
	for i := 0; i < NumHandLandmarks; i++ {
		h.LeftHand[i] = Point3D{X: 0.30 + float64(i)*0.005, Y: 0.70 - float64(i)*0.01, Z: -0.01}
		h.RightHand[i] = Point3D{X: 0.70 - float64(i)*0.005, Y: 0.40 - float64(i)*0.01, Z: -0.02}
	}
	return h
}

// FullBodyLandmarks returns a preset detection where every group is visible.
// Coordinates are derived from seed so different seeds give different frames.
func FullBodyLandmarks(seed float64) *Holistic {
	h := HandsOnlyLandmarks()
	h.Face = make([]Point3D, NumFaceLandmarks)
	for i := range h.Face {
		h.Face[i] = Point3D{X: 0.5 + seed*0.001, Y: 0.2 + float64(i%20)*0.002, Z: 0.01}
	}
	h.Pose = make([]Point3D, NumPoseLandmarks)
	for i := range h.Pose {
		h.Pose[i] = Point3D{X: 0.5, Y: 0.3 + float64(i)*0.015, Z: seed * 0.01}
	}
	return h
}
