package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moodcam.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
instance_id: cam-lab-1
camera:
  device: /dev/video1
  width: 1280
  height: 720
  fps: 30
  auto_start: true
detection:
  period_ms: 50
  input_size: 320
  score_threshold: 0.6
models:
  base_path: /opt/moodcam/weights
  command: /opt/moodcam/analyzer.py
  names: [ssd_mobilenetv1, face_expression]
mqtt:
  broker: broker.local:1883
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.InstanceID != "cam-lab-1" {
		t.Errorf("instance_id = %q, want cam-lab-1", cfg.InstanceID)
	}
	if cfg.Camera.Device != "/dev/video1" || cfg.Camera.Width != 1280 || cfg.Camera.FPS != 30 {
		t.Errorf("camera config mismatch: %+v", cfg.Camera)
	}
	if !cfg.Camera.AutoStart {
		t.Error("auto_start not parsed")
	}
	if cfg.Detection.PeriodMS != 50 || cfg.Detection.InputSize != 320 {
		t.Errorf("detection config mismatch: %+v", cfg.Detection)
	}
	if len(cfg.Models.Names) != 2 || cfg.Models.Names[0] != "ssd_mobilenetv1" {
		t.Errorf("model names mismatch: %v", cfg.Models.Names)
	}
	if cfg.MQTT.Topics.Detections != "moodcam/detections/cam-lab-1" {
		t.Errorf("detections topic = %q, want instance-derived default", cfg.MQTT.Topics.Detections)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.InstanceID != "moodcam" {
		t.Errorf("default instance_id = %q", cfg.InstanceID)
	}
	if cfg.Camera.Width != 640 || cfg.Camera.Height != 480 || cfg.Camera.FPS != 15 {
		t.Errorf("camera defaults mismatch: %+v", cfg.Camera)
	}
	if cfg.Detection.PeriodMS != 100 {
		t.Errorf("default period_ms = %d, want 100", cfg.Detection.PeriodMS)
	}
	if cfg.Detection.ScoreThreshold != 0.5 {
		t.Errorf("default score_threshold = %v, want 0.5", cfg.Detection.ScoreThreshold)
	}
	if cfg.Detection.DisplayWidth != 720 || cfg.Detection.DisplayHeight != 560 {
		t.Errorf("display defaults mismatch: %+v", cfg.Detection)
	}
	if cfg.HTTP.Port != "8080" {
		t.Errorf("default http port = %q, want 8080", cfg.HTTP.Port)
	}

	want := DefaultModelNames
	if len(cfg.Models.Names) != len(want) {
		t.Fatalf("default model names = %v, want %v", cfg.Models.Names, want)
	}
	for i := range want {
		if cfg.Models.Names[i] != want[i] {
			t.Errorf("model name %d = %q, want %q (order matters)", i, cfg.Models.Names[i], want[i])
		}
	}

	// No broker: MQTT stays disabled, no topic defaults
	if cfg.MQTT.Topics.Detections != "" {
		t.Errorf("topic default filled without a broker: %q", cfg.MQTT.Topics.Detections)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad instance id", `instance_id: "Bad ID!"`},
		{"threshold too high", "detection:\n  score_threshold: 1.5"},
		{"duplicate model names", "models:\n  names: [face_expression, face_expression]"},
		{"empty model name", "models:\n  names: [ssd_mobilenetv1, \"\"]"},
		{"malformed yaml", "camera: [not: a: map"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Errorf("Load() accepted invalid config:\n%s", tc.content)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() succeeded on a missing file")
	}
}
