package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mudra.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if cfg.Recognition.Window != 30 || cfg.Recognition.Threshold != 0.5 {
		t.Errorf("unexpected recognition defaults %+v", cfg.Recognition)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8080"
recognition:
  threshold: 0.7
  labels: [hello, thanks]
classifier:
  kind: rest
  url: http://localhost:8501/v1/models/action:predict
  timeout_ms: 2500
mqtt:
  broker: localhost:1883
  qos: 1
camera:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.MaxUploadMB != 64 {
		t.Errorf("unset field should keep default, got %d", cfg.Server.MaxUploadMB)
	}
	if cfg.Recognition.Threshold != 0.7 || !reflect.DeepEqual(cfg.Recognition.Labels, []string{"hello", "thanks"}) {
		t.Errorf("unexpected recognition %+v", cfg.Recognition)
	}
	if cfg.Recognition.Window != 30 {
		t.Errorf("window = %d, want default 30", cfg.Recognition.Window)
	}
	if cfg.Classifier.Kind != ClassifierREST || cfg.Classifier.Timeout() != 2500*time.Millisecond {
		t.Errorf("unexpected classifier %+v", cfg.Classifier)
	}
	if cfg.MQTT.Broker != "localhost:1883" || cfg.MQTT.QoS != 1 || cfg.MQTT.TopicPrefix != "mudra" {
		t.Errorf("unexpected mqtt %+v", cfg.MQTT)
	}
	if !cfg.Camera.Enabled || cfg.Camera.FPS != 10 {
		t.Errorf("unexpected camera %+v", cfg.Camera)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":8080\"\n")

	t.Setenv("MUDRA_ADDR", ":9090")
	t.Setenv("MUDRA_THRESHOLD", "0.9")
	t.Setenv("MUDRA_LABELS", "a, b ,c")
	t.Setenv("MUDRA_CAMERA", "true")
	t.Setenv("MUDRA_MQTT_BROKER", "ssl://broker:8883")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("env should win over file, addr = %q", cfg.Server.Addr)
	}
	if cfg.Recognition.Threshold != 0.9 {
		t.Errorf("threshold = %v", cfg.Recognition.Threshold)
	}
	if !reflect.DeepEqual(cfg.Recognition.Labels, []string{"a", "b", "c"}) {
		t.Errorf("labels = %v", cfg.Recognition.Labels)
	}
	if !cfg.Camera.Enabled || cfg.MQTT.Broker != "ssl://broker:8883" {
		t.Errorf("unexpected overrides %+v %+v", cfg.Camera, cfg.MQTT)
	}
}

func TestApplyEnv_BadValues(t *testing.T) {
	env := map[string]string{
		"MUDRA_WINDOW":    "thirty",
		"MUDRA_THRESHOLD": "high",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	err := applyEnv(Default(), lookup)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"MUDRA_WINDOW", "MUDRA_THRESHOLD"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should mention %s: %v", key, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "empty addr", mutate: func(c *Config) { c.Server.Addr = "" }, wantErr: "server.addr"},
		{name: "zero upload cap", mutate: func(c *Config) { c.Server.MaxUploadMB = 0 }, wantErr: "max_upload_mb"},
		{name: "zero window", mutate: func(c *Config) { c.Recognition.Window = 0 }, wantErr: "recognition.window"},
		{name: "threshold above one", mutate: func(c *Config) { c.Recognition.Threshold = 1.2 }, wantErr: "threshold"},
		{name: "no labels", mutate: func(c *Config) { c.Recognition.Labels = nil }, wantErr: "labels"},
		{name: "unknown classifier", mutate: func(c *Config) { c.Classifier.Kind = "onnx" }, wantErr: "classifier.kind"},
		{name: "rest without url", mutate: func(c *Config) { c.Classifier.Kind = ClassifierREST }, wantErr: "classifier.url"},
		{name: "no classifier is allowed", mutate: func(c *Config) { c.Classifier.Kind = ClassifierNone }},
		{name: "zero timeout", mutate: func(c *Config) { c.Classifier.TimeoutMs = 0 }, wantErr: "timeout_ms"},
		{name: "detector confidence", mutate: func(c *Config) { c.Detector.MinConfidence = 2 }, wantErr: "detector.min_confidence"},
		{name: "negative retention", mutate: func(c *Config) { c.Store.RetentionDays = -1 }, wantErr: "retention_days"},
		{name: "qos out of range", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "camera without fps", mutate: func(c *Config) { c.Camera.Enabled = true; c.Camera.FPS = 0 }, wantErr: "camera.fps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
