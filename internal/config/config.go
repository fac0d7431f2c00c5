// Package config loads the service configuration from YAML with
// MUDRA_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Detector    DetectorConfig    `yaml:"detector"`
	Store       StoreConfig       `yaml:"store"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Camera      CameraConfig      `yaml:"camera"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	StaticDir   string `yaml:"static_dir"`    // optional web client, served at /
	MaxUploadMB int    `yaml:"max_upload_mb"` // cap for multipart video uploads
}

// RecognitionConfig holds the window and decision settings.
type RecognitionConfig struct {
	Window    int      `yaml:"window"`
	Threshold float64  `yaml:"threshold"`
	Labels    []string `yaml:"labels"`
}

// Classifier kinds.
const (
	ClassifierProcess = "process"
	ClassifierREST    = "rest"
	ClassifierNone    = "none"
)

// ClassifierConfig selects and configures the model backend.
type ClassifierConfig struct {
	Kind      string `yaml:"kind"` // process, rest or none
	Python    string `yaml:"python"`
	Script    string `yaml:"script"`
	Model     string `yaml:"model"`
	URL       string `yaml:"url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Timeout returns TimeoutMs as a duration.
func (c ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// DetectorConfig configures the landmark detector subprocess.
type DetectorConfig struct {
	Python                string  `yaml:"python"`
	Script                string  `yaml:"script"`
	MinConfidence         float64 `yaml:"min_confidence"`
	MinTrackingConfidence float64 `yaml:"min_tracking_confidence"`
}

// StoreConfig locates the prediction log. An empty path disables it.
type StoreConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"` // 0 keeps everything
}

// MQTTConfig configures the verdict emitter. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// CameraConfig configures the optional local camera watcher.
type CameraConfig struct {
	Enabled       bool    `yaml:"enabled"`
	DeviceID      int     `yaml:"device_id"`
	FPS           int     `yaml:"fps"`
	IdleFrames    int     `yaml:"idle_frames"`    // still frames before the sequence is dropped
	MotionPercent float64 `yaml:"motion_percent"` // changed pixels that count as motion
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":5000",
			MaxUploadMB: 64,
		},
		Recognition: RecognitionConfig{
			Window:    30,
			Threshold: 0.5,
			Labels:    []string{"asthma", "cold", "dizziness", "fever", "sore_throat", "vomiting"},
		},
		Classifier: ClassifierConfig{
			Kind:      ClassifierProcess,
			Script:    "scripts/classify_worker.py",
			Model:     "action.h5",
			TimeoutMs: 10000,
		},
		Detector: DetectorConfig{
			MinConfidence:         0.5,
			MinTrackingConfidence: 0.5,
		},
		Store: StoreConfig{
			Path: "mudra.db",
		},
		MQTT: MQTTConfig{
			ClientID:    "mudra",
			TopicPrefix: "mudra",
		},
		Camera: CameraConfig{
			FPS:           10,
			IdleFrames:    20,
			MotionPercent: 1.0,
		},
	}
}

// Load reads path on top of the defaults, applies environment overrides
// and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks cfg.
func Validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if cfg.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be > 0")
	}

	if cfg.Recognition.Window <= 0 {
		return fmt.Errorf("recognition.window must be > 0")
	}
	if cfg.Recognition.Threshold < 0 || cfg.Recognition.Threshold > 1 {
		return fmt.Errorf("recognition.threshold must be in [0,1]")
	}
	if len(cfg.Recognition.Labels) == 0 {
		return fmt.Errorf("recognition.labels must not be empty")
	}

	switch cfg.Classifier.Kind {
	case ClassifierProcess:
	case ClassifierREST:
		if cfg.Classifier.URL == "" {
			return fmt.Errorf("classifier.url is required for kind %q", ClassifierREST)
		}
	case ClassifierNone:
	default:
		return fmt.Errorf("classifier.kind %q unknown (must be process, rest or none)", cfg.Classifier.Kind)
	}
	if cfg.Classifier.TimeoutMs <= 0 {
		return fmt.Errorf("classifier.timeout_ms must be > 0")
	}

	for name, v := range map[string]float64{
		"detector.min_confidence":          cfg.Detector.MinConfidence,
		"detector.min_tracking_confidence": cfg.Detector.MinTrackingConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1]", name)
		}
	}

	if cfg.Store.RetentionDays < 0 {
		return fmt.Errorf("store.retention_days must be >= 0")
	}

	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	if cfg.Camera.Enabled && cfg.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be > 0")
	}
	return nil
}

// applyEnv overrides fields from MUDRA_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	float := func(key string, dst *float64) error {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
		return nil
	}
	boolean := func(key string, dst *bool) error {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
		return nil
	}

	str("MUDRA_ADDR", &cfg.Server.Addr)
	str("MUDRA_STATIC_DIR", &cfg.Server.StaticDir)
	str("MUDRA_CLASSIFIER_KIND", &cfg.Classifier.Kind)
	str("MUDRA_CLASSIFIER_URL", &cfg.Classifier.URL)
	str("MUDRA_CLASSIFIER_SCRIPT", &cfg.Classifier.Script)
	str("MUDRA_MODEL", &cfg.Classifier.Model)
	str("MUDRA_PYTHON", &cfg.Classifier.Python)
	str("MUDRA_PYTHON", &cfg.Detector.Python)
	str("MUDRA_DETECTOR_SCRIPT", &cfg.Detector.Script)
	str("MUDRA_DB", &cfg.Store.Path)
	str("MUDRA_MQTT_BROKER", &cfg.MQTT.Broker)
	str("MUDRA_MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	str("MUDRA_MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)
	str("MUDRA_MQTT_USERNAME", &cfg.MQTT.Username)
	str("MUDRA_MQTT_PASSWORD", &cfg.MQTT.Password)

	if v, ok := lookup("MUDRA_LABELS"); ok && v != "" {
		var labels []string
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				labels = append(labels, l)
			}
		}
		cfg.Recognition.Labels = labels
	}

	return errors.Join(
		num("MUDRA_MAX_UPLOAD_MB", &cfg.Server.MaxUploadMB),
		num("MUDRA_WINDOW", &cfg.Recognition.Window),
		float("MUDRA_THRESHOLD", &cfg.Recognition.Threshold),
		num("MUDRA_CLASSIFIER_TIMEOUT_MS", &cfg.Classifier.TimeoutMs),
		num("MUDRA_RETENTION_DAYS", &cfg.Store.RetentionDays),
		boolean("MUDRA_CAMERA", &cfg.Camera.Enabled),
		num("MUDRA_CAMERA_DEVICE", &cfg.Camera.DeviceID),
	)
}
