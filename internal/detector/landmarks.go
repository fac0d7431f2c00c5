// Package detector provides holistic (face, pose and hand) landmark detection
// for sign recognition.
package detector

// Landmark counts per keypoint group, following the MediaPipe Holistic model.
// See: https://developers.google.com/mediapipe/solutions/vision/holistic_landmarker
const (
	NumFaceLandmarks = 468
	NumPoseLandmarks = 33
	NumHandLandmarks = 21

	// CoordsPerLandmark is the number of values emitted per landmark (x, y, z).
	CoordsPerLandmark = 3
)

// Group identifies one keypoint group of a holistic detection.
type Group struct {
	Name string
	Size int
}

// Groups lists the keypoint groups in feature order.
var Groups = []Group{
	{Name: "face", Size: NumFaceLandmarks},
	{Name: "pose", Size: NumPoseLandmarks},
	{Name: "left_hand", Size: NumHandLandmarks},
	{Name: "right_hand", Size: NumHandLandmarks},
}

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Holistic holds the landmarks detected in a single frame.
// A nil slice means the group was not detected.
type Holistic struct {
	Face      []Point3D `json:"face,omitempty"`
	Pose      []Point3D `json:"pose,omitempty"`
	LeftHand  []Point3D `json:"left_hand,omitempty"`
	RightHand []Point3D `json:"right_hand,omitempty"`
}

// Group returns the points detected for the named group, or nil.
func (h *Holistic) Group(name string) []Point3D {
	if h == nil {
		return nil
	}
	switch name {
	case "face":
		return h.Face
	case "pose":
		return h.Pose
	case "left_hand":
		return h.LeftHand
	case "right_hand":
		return h.RightHand
	}
	return nil
}

// Empty reports whether no group was detected.
func (h *Holistic) Empty() bool {
	return h == nil || (len(h.Face) == 0 && len(h.Pose) == 0 && len(h.LeftHand) == 0 && len(h.RightHand) == 0)
}
