package feature

import (
	"errors"
	"testing"

	"github.com/ayusman/mudra/internal/detector"
)

func TestDim(t *testing.T) {
	if Dim != 1629 {
		t.Errorf("expected Dim 1629, got %d", Dim)
	}
}

func TestFromLandmarks(t *testing.T) {
	t.Run("no detections yields all-zero vector", func(t *testing.T) {
		for _, h := range []*detector.Holistic{nil, {}} {
			v := FromLandmarks(h)
			if len(v) != Dim {
				t.Fatalf("expected length %d, got %d", Dim, len(v))
			}
			for i, x := range v {
				if x != 0 {
					t.Fatalf("expected zero at %d, got %f", i, x)
				}
			}
		}
	})

	t.Run("hands only leaves face and pose zero", func(t *testing.T) {
		h := detector.HandsOnlyLandmarks()
		v := FromLandmarks(h)

		handsStart := (detector.NumFaceLandmarks + detector.NumPoseLandmarks) * 3
		for i := 0; i < handsStart; i++ {
			if v[i] != 0 {
				t.Fatalf("expected zero face/pose segment at %d, got %f", i, v[i])
			}
		}

		if v[handsStart] != float32(h.LeftHand[0].X) {
			t.Errorf("expected left hand x at %d, got %f", handsStart, v[handsStart])
		}

		rightStart := handsStart + detector.NumHandLandmarks*3
		last := h.RightHand[detector.NumHandLandmarks-1]
		if v[Dim-1] != float32(last.Z) {
			t.Errorf("expected last right hand z, got %f", v[Dim-1])
		}
		if v[rightStart+1] != float32(h.RightHand[0].Y) {
			t.Errorf("expected right hand y at %d, got %f", rightStart+1, v[rightStart+1])
		}
	})

	t.Run("partial group is zero padded", func(t *testing.T) {
		h := &detector.Holistic{
			Pose: []detector.Point3D{{X: 1, Y: 2, Z: 3}},
		}
		v := FromLandmarks(h)

		poseStart := detector.NumFaceLandmarks * 3
		if v[poseStart] != 1 || v[poseStart+1] != 2 || v[poseStart+2] != 3 {
			t.Errorf("unexpected first pose point: %v", v[poseStart:poseStart+3])
		}
		if v[poseStart+3] != 0 {
			t.Errorf("expected zero padding, got %f", v[poseStart+3])
		}
	})

	t.Run("full body fills every segment", func(t *testing.T) {
		v := FromLandmarks(detector.FullBodyLandmarks(3))
		if len(v) != Dim {
			t.Fatalf("expected length %d, got %d", Dim, len(v))
		}
		if v[0] == 0 {
			t.Error("expected non-zero face segment")
		}
	})
}

func TestExtractor_Extract(t *testing.T) {
	t.Run("zero detections", func(t *testing.T) {
		e := NewExtractor(detector.NewMockDetector())

		v, err := e.Extract(nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(v) != Dim {
			t.Errorf("expected length %d, got %d", Dim, len(v))
		}
	})

	t.Run("detector failure is wrapped", func(t *testing.T) {
		mock := detector.NewMockDetector()
		cause := errors.New("process exited")
		mock.SetError(cause)
		e := NewExtractor(mock)

		_, err := e.Extract(nil)
		if !errors.Is(err, cause) {
			t.Errorf("expected wrapped %v, got %v", cause, err)
		}
	})

	t.Run("Close closes detector", func(t *testing.T) {
		mock := detector.NewMockDetector()
		e := NewExtractor(mock)

		if err := e.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !mock.Closed() {
			t.Error("expected detector to be closed")
		}
	})
}

func TestVector_Clone(t *testing.T) {
	v := Zero()
	c := v.Clone()
	c[0] = 1
	if v[0] != 0 {
		t.Error("clone shares backing array")
	}
}
