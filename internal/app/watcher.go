package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/feature"
	"github.com/ayusman/mudra/internal/session"
)

// Watcher feeds a local camera through the session handler at the camera
// frame rate. It plays the client's role for the live protocol: it holds
// the returned sequence and sends it back with the next frame.
//
// Loop:
//  1. read a frame
//  2. drop the held sequence once the stillness gate reports idle
//  3. otherwise handle the frame with the held sequence as prevSequence
//  4. keep the returned sequence, or start over after a verdict
type Watcher struct {
	camera  capture.Camera
	session *session.Handler
	gate    *capture.StillnessGate

	mu     sync.Mutex
	held   []feature.Vector
	stopCh chan struct{}
	done   chan struct{}
}

// NewWatcher returns a watcher reading from cam. A nil gate disables idle
// detection.
func NewWatcher(cam capture.Camera, h *session.Handler, gate *capture.StillnessGate) *Watcher {
	return &Watcher{camera: cam, session: h, gate: gate}
}

// Start opens the camera and begins the loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopCh != nil {
		return nil
	}
	if err := w.camera.Open(); err != nil {
		return err
	}

	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	go w.run(ctx, w.stopCh, w.done)

	slog.Info("camera watcher started", "fps", w.camera.FPS())
	return nil
}

// Stop ends the loop and closes the camera.
func (w *Watcher) Stop() {
	w.mu.Lock()
	stop, done := w.stopCh, w.done
	w.stopCh, w.done = nil, nil
	w.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done

	if err := w.camera.Close(); err != nil {
		slog.Warn("close camera", "error", err)
	}
	if w.gate != nil {
		w.gate.Close()
	}
	slog.Info("camera watcher stopped")
}

// Held returns the number of vectors currently accumulated.
func (w *Watcher) Held() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.held)
}

func (w *Watcher) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	fps := w.camera.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := w.Step(ctx)
			switch {
			case errors.Is(err, capture.ErrEndOfFrames), errors.Is(err, capture.ErrCameraNotOpen):
				slog.Info("camera watcher: no more frames", "error", err)
				return
			case err != nil:
				slog.Warn("camera frame failed", "error", err)
			}
		}
	}
}

// Step processes one camera frame. It returns nil without a response when
// the scene is idle.
func (w *Watcher) Step(ctx context.Context) (*session.Response, error) {
	frame, err := w.camera.ReadFrame()
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.gate != nil {
		if idle, _ := w.gate.Observe(frame); idle {
			if len(w.held) > 0 {
				slog.Debug("scene idle, dropping sequence", "length", len(w.held))
				w.held = nil
			}
			return nil, nil
		}
	}

	resp, err := w.session.Handle(ctx, capture.NewFrameSource(frame, w.held))
	if err != nil {
		// A failed frame breaks the run of consecutive frames.
		w.held = nil
		return nil, err
	}
	if resp.Ready() {
		w.held = nil
		// Stillness before the verdict does not count toward the next sequence.
		if w.gate != nil {
			w.gate.Reset()
		}
	} else {
		w.held = resp.Sequence
	}
	return resp, nil
}
