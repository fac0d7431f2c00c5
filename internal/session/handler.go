// Package session runs one recognition request end to end: it builds the
// sequence window from a frame source, classifies it once full and gates
// the result by confidence.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/feature"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/sequence"
)

var (
	// ErrNoClassifier is returned when no model is loaded.
	ErrNoClassifier = errors.New("model not loaded")
	// ErrExtract wraps failures of the landmark detector.
	ErrExtract = errors.New("feature extraction failed")
)

// Extractor turns one frame into a feature vector. *feature.Extractor implements it.
type Extractor interface {
	Extract(frame *gocv.Mat) (feature.Vector, error)
}

// Config configures a Handler.
type Config struct {
	Extractor  Extractor
	Classifier classifier.Classifier // nil means no model is loaded
	Labels     gesture.Labels
	Threshold  float64
	Window     int
	Sinks      []Sink
}

// Handler processes requests. It holds no per-client state and is safe
// for concurrent use as long as its collaborators are.
type Handler struct {
	extractor  Extractor
	classifier classifier.Classifier
	labels     gesture.Labels
	threshold  float64
	window     int
	sinks      []Sink
}

// NewHandler validates cfg and returns a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if cfg.Labels == nil {
		cfg.Labels = gesture.DefaultLabels()
	}
	if err := cfg.Labels.Validate(); err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("threshold %v outside [0,1]", cfg.Threshold)
	}
	if cfg.Window <= 0 {
		cfg.Window = sequence.DefaultCapacity
	}

	h := &Handler{
		extractor: cfg.Extractor,
		labels:    cfg.Labels,
		threshold: cfg.Threshold,
		window:    cfg.Window,
		sinks:     cfg.Sinks,
	}
	if cfg.Classifier != nil {
		h.classifier = classifier.Checked(cfg.Classifier, len(cfg.Labels))
	}
	return h, nil
}

// Labels returns the label set verdicts are drawn from.
func (h *Handler) Labels() gesture.Labels {
	return h.labels
}

// Window returns the sequence length that triggers classification.
func (h *Handler) Window() int {
	return h.window
}

// ModelLoaded reports whether a classifier is configured.
func (h *Handler) ModelLoaded() bool {
	return h.classifier != nil
}

// AddSink registers s to receive future outcomes. Not safe to call while
// requests are in flight.
func (h *Handler) AddSink(s Sink) {
	h.sinks = append(h.sinks, s)
}

// Handle consumes src and returns the response for it. The source is
// always closed before Handle returns.
//
// Errors are *capture.DecodeError for bad input, ErrExtract when the
// detector fails, *classifier.FatalError when the model fails and
// ErrNoClassifier when there is no model.
func (h *Handler) Handle(ctx context.Context, src capture.Source) (*Response, error) {
	defer func() {
		if err := src.Close(); err != nil {
			slog.Warn("release input", "mode", src.Mode(), "error", err)
		}
	}()

	if h.classifier == nil {
		return nil, ErrNoClassifier
	}

	win := sequence.New(h.window, src.Initial())
	frames := 0
	err := src.Frames(func(frame *gocv.Mat) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := h.extractor.Extract(frame)
		if err != nil {
			return fmt.Errorf("%w: frame %d: %w", ErrExtract, frames, err)
		}
		frames++
		win.Push(v)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !win.IsReady() {
		slog.Debug("sequence pending", "mode", src.Mode(), "length", win.Len(), "frames", frames)
		return pending(win), nil
	}

	tensor, err := win.Tensor()
	if err != nil {
		return nil, err
	}
	probs, err := h.classifier.Predict(ctx, tensor)
	if err != nil {
		return nil, err
	}
	verdict, err := gesture.Decide(probs, h.labels, h.threshold)
	if err != nil {
		return nil, classifier.Fatal("decide", err)
	}

	out := Outcome{
		ID:      uuid.NewString(),
		Mode:    src.Mode(),
		Verdict: verdict,
		At:      time.Now().UTC(),
	}
	slog.Info("verdict", "id", out.ID, "mode", out.Mode, "action", verdict.Action, "confidence", verdict.Confidence)
	h.notify(ctx, out)

	return classified(win.Len(), verdict), nil
}

func (h *Handler) notify(ctx context.Context, out Outcome) {
	ctx = context.WithoutCancel(ctx)
	for _, s := range h.sinks {
		if err := s.Observe(ctx, out); err != nil {
			slog.Warn("sink failed", "id", out.ID, "error", err)
		}
	}
}
