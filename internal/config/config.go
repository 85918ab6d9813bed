package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete moodcam configuration
type Config struct {
	InstanceID       string          `yaml:"instance_id"`
	ShutdownTimeoutS int             `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Camera           CameraConfig    `yaml:"camera"`
	Detection        DetectionConfig `yaml:"detection"`
	Models           ModelsConfig    `yaml:"models"`
	HTTP             HTTPConfig      `yaml:"http"`
	MQTT             MQTTConfig      `yaml:"mqtt"`
}

// CameraConfig contains camera acquisition settings
type CameraConfig struct {
	// Device is the V4L2 device path. Empty means "pick the first
	// available front-facing device"; "mock" selects the synthetic source.
	Device    string `yaml:"device"`
	Width     int    `yaml:"width"`      // fixed capture width (default: 640)
	Height    int    `yaml:"height"`     // fixed capture height (default: 480)
	FPS       int    `yaml:"fps"`        // capture rate (default: 15)
	AutoStart bool   `yaml:"auto_start"` // start the session on daemon startup
}

// DetectionConfig contains detection cycle settings
type DetectionConfig struct {
	PeriodMS       int     `yaml:"period_ms"`       // tick period (default: 100)
	InputSize      int     `yaml:"input_size"`      // analyzer input size (default: 416)
	ScoreThreshold float64 `yaml:"score_threshold"` // minimum face score (default: 0.5)
	DisplayWidth   int     `yaml:"display_width"`   // overlay surface width (default: 720)
	DisplayHeight  int     `yaml:"display_height"`  // overlay surface height (default: 560)
}

// ModelsConfig describes the analyzer process and its model assets
type ModelsConfig struct {
	// BasePath is where the per-model manifest + shard files live
	BasePath string `yaml:"base_path"`
	// Command launches the analyzer worker process
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// Names is the ordered load sequence; order determines progress
	Names []string `yaml:"names"`
}

// HTTPConfig contains the UI-facing HTTP surface settings
type HTTPConfig struct {
	Port string `yaml:"port"`
}

// MQTTConfig contains optional MQTT broker settings. An empty broker
// disables the emitter entirely.
type MQTTConfig struct {
	// Broker is host:port; the emitter dials it over tcp
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Detections string `yaml:"detections"`
	Health     string `yaml:"health"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
