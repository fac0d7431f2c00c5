package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Camera defaults. The recognizer needs far fewer pixels than a preview,
// so capture is kept small.
const (
	DefaultFPS    = 10
	DefaultWidth  = 640
	DefaultHeight = 480
)

// ErrCameraNotOpen is returned when reading from a camera that is not open.
var ErrCameraNotOpen = errors.New("camera is not open")

// Camera is a local capture device.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller closes the returned Mat.
	ReadFrame() (*gocv.Mat, error)
	FPS() int
	IsOpen() bool
}

// CameraConfig selects and sizes a capture device.
type CameraConfig struct {
	DeviceID int
	FPS      int
	Width    int
	Height   int
}

func (c CameraConfig) withDefaults() CameraConfig {
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	return c
}

type deviceCamera struct {
	cfg CameraConfig

	mu      sync.Mutex
	capture *gocv.VideoCapture
}

// NewCamera returns a Camera for cfg.DeviceID. Zero fields take defaults.
func NewCamera(cfg CameraConfig) Camera {
	return &deviceCamera{cfg: cfg.withDefaults()}
}

func (c *deviceCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(c.cfg.DeviceID)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.cfg.DeviceID, err)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(c.cfg.FPS))

	c.capture = vc
	return nil
}

func (c *deviceCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}

func (c *deviceCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if !c.capture.Read(&mat) || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("camera %d: no frame", c.cfg.DeviceID)
	}
	return &mat, nil
}

func (c *deviceCamera) FPS() int {
	return c.cfg.FPS
}

func (c *deviceCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil
}
