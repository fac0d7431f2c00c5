// Package app builds the recognizer from configuration and runs its
// background loops.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/emitter"
	"github.com/ayusman/mudra/internal/feature"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

const (
	// pruneInterval is how often expired predictions are removed.
	pruneInterval = time.Hour
	// classifierIdle stops the worker process after this long without requests.
	classifierIdle = 10 * time.Minute
)

// Options replaces collaborators that are otherwise built from the
// configuration. Zero fields are built as usual.
type Options struct {
	Detector   detector.Detector
	Classifier classifier.Classifier
	Camera     capture.Camera
}

// App owns every long-lived component of the service.
type App struct {
	cfg *config.Config

	extractor  *feature.Extractor
	classifier classifier.Classifier
	session    *session.Handler
	store      *store.Store
	emitter    *emitter.MQTTEmitter
	hub        *server.VerdictHub
	server     *server.Server
	watcher    *Watcher

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds the application. Missing optional services (model, landmark
// service, broker) are logged and degrade the affected routes instead of
// failing startup.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{cfg: cfg}

	det := opts.Detector
	if det == nil {
		det = newDetector(cfg.Detector)
	}
	a.extractor = feature.NewExtractor(det)

	a.classifier = opts.Classifier
	if a.classifier == nil {
		a.classifier = newClassifier(cfg.Classifier)
	}

	sess, err := session.NewHandler(session.Config{
		Extractor:  a.extractor,
		Classifier: a.classifier,
		Labels:     cfg.Recognition.Labels,
		Threshold:  cfg.Recognition.Threshold,
		Window:     cfg.Recognition.Window,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("session: %w", err)
	}
	a.session = sess

	if cfg.Store.Path != "" {
		st, err := store.New(cfg.Store.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = st
		sess.AddSink(StoreSink(st))
		slog.Info("prediction log opened", "path", st.Path())
	}

	if cfg.MQTT.Broker != "" {
		a.emitter = emitter.NewMQTTEmitter(emitter.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
		})
		if err := a.emitter.Connect(ctx); err != nil {
			slog.Warn("mqtt unavailable, verdicts will not be published until it connects", "error", err)
		}
		sess.AddSink(a.emitter)
	}

	a.hub = server.NewVerdictHub()
	sess.AddSink(a.hub)

	a.server = server.New(server.Config{
		StaticDir:      cfg.Server.StaticDir,
		Session:        sess,
		Store:          a.store,
		Hub:            a.hub,
		Emitter:        a.emitter,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
	})

	if cfg.Camera.Enabled || opts.Camera != nil {
		cam := opts.Camera
		if cam == nil {
			cam = capture.NewCamera(capture.CameraConfig{
				DeviceID: cfg.Camera.DeviceID,
				FPS:      cfg.Camera.FPS,
			})
		}
		gate := capture.NewStillnessGate(cfg.Camera.MotionPercent, cfg.Camera.IdleFrames)
		a.watcher = NewWatcher(cam, sess, gate)
	}

	slog.Info("recognizer ready",
		"labels", len(sess.Labels()),
		"window", sess.Window(),
		"threshold", cfg.Recognition.Threshold,
		"model_loaded", sess.ModelLoaded(),
		"store", a.store != nil,
		"mqtt", a.emitter != nil,
		"camera", a.watcher != nil,
	)
	return a, nil
}

func newDetector(cfg config.DetectorConfig) detector.Detector {
	mp, err := detector.NewMediaPipeDetector(detector.Config{
		Script:          cfg.Script,
		Python:          cfg.Python,
		MinConfidence:   cfg.MinConfidence,
		MinTrackingConf: cfg.MinTrackingConfidence,
	})
	if err != nil {
		slog.Error("landmark detector unavailable, predictions will fail", "error", err)
		return detector.Unavailable(err)
	}
	return mp
}

func newClassifier(cfg config.ClassifierConfig) classifier.Classifier {
	switch cfg.Kind {
	case config.ClassifierProcess:
		c, err := classifier.NewProcessClassifier(classifier.ProcessConfig{
			Python:  cfg.Python,
			Script:  cfg.Script,
			Model:   cfg.Model,
			Timeout: cfg.Timeout(),
			Idle:    classifierIdle,
		})
		if err != nil {
			slog.Warn("model not loaded", "kind", cfg.Kind, "error", err)
			return nil
		}
		return c
	case config.ClassifierREST:
		c, err := classifier.NewRESTClassifier(cfg.URL, cfg.Timeout())
		if err != nil {
			slog.Warn("model not loaded", "kind", cfg.Kind, "error", err)
			return nil
		}
		return c
	default:
		slog.Warn("model not loaded", "kind", cfg.Kind)
		return nil
	}
}

// StoreSink logs every outcome to st.
func StoreSink(st *store.Store) session.Sink {
	return session.SinkFunc(func(ctx context.Context, out session.Outcome) error {
		return st.Predictions().Create(&store.Prediction{
			ID:            out.ID,
			Mode:          string(out.Mode),
			Action:        out.Verdict.Action,
			Confidence:    out.Verdict.Confidence,
			Probabilities: out.Verdict.Probabilities,
			CreatedAt:     out.At,
		})
	})
}

// ClassifyFile runs the batch pipeline over a video file on disk. The file
// is left in place.
func (a *App) ClassifyFile(ctx context.Context, path string) (*session.Response, error) {
	return a.session.Handle(ctx, capture.OpenVideoFile(path, a.session.Window()))
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.server
}

// Server returns the API server.
func (a *App) Server() *server.Server {
	return a.server
}

// Session returns the request handler.
func (a *App) Session() *session.Handler {
	return a.session
}

// Store returns the prediction log, or nil when it is disabled.
func (a *App) Store() *store.Store {
	return a.store
}

// Hub returns the verdict broadcast hub.
func (a *App) Hub() *server.VerdictHub {
	return a.hub
}

// Watcher returns the camera watcher, or nil when the camera is disabled.
func (a *App) Watcher() *Watcher {
	return a.watcher
}

// Start launches the background loops. It is a no-op when already running.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			return fmt.Errorf("start camera watcher: %w", err)
		}
	}

	a.stopCh = make(chan struct{})
	if a.store != nil && a.cfg.Store.RetentionDays > 0 {
		a.wg.Add(1)
		go a.pruneLoop(a.stopCh, time.Duration(a.cfg.Store.RetentionDays)*24*time.Hour)
	}
	return nil
}

// Stop halts the background loops started by Start.
func (a *App) Stop() {
	a.mu.Lock()
	if a.stopCh != nil {
		close(a.stopCh)
		a.stopCh = nil
	}
	a.mu.Unlock()

	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.wg.Wait()
}

// Close stops the loops and releases every component.
func (a *App) Close() error {
	a.Stop()

	var errs []error
	if a.hub != nil {
		a.hub.Close()
	}
	if a.emitter != nil {
		a.emitter.Disconnect()
	}
	if a.classifier != nil {
		if err := a.classifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close classifier: %w", err))
		}
	}
	if a.extractor != nil {
		if err := a.extractor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close detector: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) pruneLoop(stop <-chan struct{}, retention time.Duration) {
	defer a.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		a.prune(retention)
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func (a *App) prune(retention time.Duration) {
	n, err := a.store.Predictions().Prune(time.Now().Add(-retention))
	if err != nil {
		slog.Warn("prune predictions", "error", err)
		return
	}
	if n > 0 {
		slog.Info("pruned predictions", "count", n, "retention", retention)
	}
}
