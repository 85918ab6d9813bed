package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// DefaultModelNames is the ordered load sequence used when the config
// does not override it. Order matters: progress increments follow it.
var DefaultModelNames = []string{
	"ssd_mobilenetv1",
	"face_landmark_68",
	"face_recognition",
	"face_expression",
}

// Validate checks the configuration and fills defaults in place
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		cfg.InstanceID = "moodcam"
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	// Camera defaults: fixed resolution, modest rate
	if cfg.Camera.Width <= 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Camera.Height <= 0 {
		cfg.Camera.Height = 480
	}
	if cfg.Camera.FPS <= 0 {
		cfg.Camera.FPS = 15
	}

	// Detection cycle defaults
	if cfg.Detection.PeriodMS <= 0 {
		cfg.Detection.PeriodMS = 100
	}
	if cfg.Detection.InputSize <= 0 {
		cfg.Detection.InputSize = 416
	}
	if cfg.Detection.ScoreThreshold <= 0 {
		cfg.Detection.ScoreThreshold = 0.5
	}
	if cfg.Detection.ScoreThreshold >= 1 {
		return fmt.Errorf("detection.score_threshold must be < 1.0, got %v", cfg.Detection.ScoreThreshold)
	}
	if cfg.Detection.DisplayWidth <= 0 {
		cfg.Detection.DisplayWidth = 720
	}
	if cfg.Detection.DisplayHeight <= 0 {
		cfg.Detection.DisplayHeight = 560
	}

	// Model assets
	if cfg.Models.BasePath == "" {
		cfg.Models.BasePath = "models/weights"
	}
	if cfg.Models.Command == "" {
		cfg.Models.Command = "models/run_analyzer.sh"
	}
	if len(cfg.Models.Names) == 0 {
		cfg.Models.Names = append([]string(nil), DefaultModelNames...)
	}
	seen := make(map[string]bool, len(cfg.Models.Names))
	for _, name := range cfg.Models.Names {
		if name == "" {
			return fmt.Errorf("models.names must not contain empty entries")
		}
		if seen[name] {
			return fmt.Errorf("models.names contains duplicate %q", name)
		}
		seen[name] = true
	}

	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8080"
	}

	// MQTT is optional; only fill topic defaults when a broker is set
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topics.Detections == "" {
			cfg.MQTT.Topics.Detections = fmt.Sprintf("moodcam/detections/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Health == "" {
			cfg.MQTT.Topics.Health = fmt.Sprintf("moodcam/health/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"detections": 0,
				"health":     0,
			}
		}
	}

	return nil
}
