// Package config loads the runtime configuration shared by the commands and
// the shared library: camera settings, backend choice and the optional
// monitor, recorder, WebRTC and MQTT services.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dj-oyu/structure-camera/internal/session"
)

// Backend names
const (
	BackendSim       = "sim"
	BackendStructure = "structure"
)

// Environment variables read by FromEnv
const (
	EnvBackend     = "SC_BACKEND"
	EnvConfig      = "SC_CONFIG"
	EnvLogLevel    = "SC_LOG_LEVEL"
	EnvMetricsAddr = "SC_METRICS_ADDR"
)

// Config is the complete runtime configuration
type Config struct {
	InstanceID string `yaml:"instance_id"`
	Backend    string `yaml:"backend"` // sim, structure
	LogLevel   string `yaml:"log_level"`
	LogColor   bool   `yaml:"log_color"`

	Camera   session.Settings `yaml:"camera"`
	Sim      SimConfig        `yaml:"sim"`
	Monitor  MonitorConfig    `yaml:"monitor"`
	WebRTC   WebRTCConfig     `yaml:"webrtc"`
	Recorder RecorderConfig   `yaml:"recorder"`
	MQTT     MQTTConfig       `yaml:"mqtt"`
}

// SimConfig tunes the simulated backend
type SimConfig struct {
	FrameRate    int `yaml:"frame_rate"`
	IMURateLimit int `yaml:"imu_rate_limit"`
}

// MonitorConfig configures the HTTP monitor and metrics listeners
type MonitorConfig struct {
	Addr           string        `yaml:"addr"`
	MetricsAddr    string        `yaml:"metrics_addr"` // empty disables the metrics listener
	MJPEGInterval  time.Duration `yaml:"mjpeg_interval"`
	IMUInterval    time.Duration `yaml:"imu_interval"`
	StatusInterval time.Duration `yaml:"status_interval"`
	JPEGQuality    int           `yaml:"jpeg_quality"`
	PreviewWidth   int           `yaml:"preview_width"`
}

// WebRTCConfig configures the telemetry data channel server
type WebRTCConfig struct {
	Enabled           bool          `yaml:"enabled"`
	STUNServers       []string      `yaml:"stun_servers"`
	MaxClients        int           `yaml:"max_clients"`
	TelemetryInterval time.Duration `yaml:"telemetry_interval"`
}

// RecorderConfig configures sample recording
type RecorderConfig struct {
	OutputPath    string        `yaml:"output_path"`
	Interval      time.Duration `yaml:"interval"`
	IncludeFrames bool          `yaml:"include_frames"`
}

// MQTTConfig configures the status emitter. An empty broker disables it.
type MQTTConfig struct {
	Broker      string        `yaml:"broker"`
	TopicPrefix string        `yaml:"topic_prefix"`
	QoS         byte          `yaml:"qos"`
	Interval    time.Duration `yaml:"interval"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() Config {
	return Config{
		InstanceID: uuid.NewString(),
		Backend:    BackendSim,
		LogLevel:   "info",
		LogColor:   true,
		Camera:     session.DefaultSettings(),
		Sim: SimConfig{
			FrameRate:    30,
			IMURateLimit: 200,
		},
		Monitor: MonitorConfig{
			Addr:           ":8080",
			MetricsAddr:    ":9090",
			MJPEGInterval:  66 * time.Millisecond,
			IMUInterval:    50 * time.Millisecond,
			StatusInterval: 2 * time.Second,
			JPEGQuality:    80,
			PreviewWidth:   640,
		},
		WebRTC: WebRTCConfig{
			Enabled:           true,
			STUNServers:       []string{"stun:stun.l.google.com:19302"},
			MaxClients:        10,
			TelemetryInterval: 100 * time.Millisecond,
		},
		Recorder: RecorderConfig{
			OutputPath: "./recordings",
			Interval:   100 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "structure",
			QoS:         0,
			Interval:    time.Second,
		},
	}
}

// Load reads a YAML file on top of DefaultConfig. Keys absent from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// FromEnv builds the configuration for the shared library: the file named by
// SC_CONFIG if set, then SC_BACKEND, SC_LOG_LEVEL and SC_METRICS_ADDR.
func FromEnv() (*Config, error) {
	return fromLookup(os.Getenv)
}

func fromLookup(getenv func(string) string) (*Config, error) {
	var cfg *Config
	if path := getenv(EnvConfig); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		def := DefaultConfig()
		cfg = &def
	}

	if v := getenv(EnvBackend); v != "" {
		cfg.Backend = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv(EnvMetricsAddr); v != "" {
		cfg.Monitor.MetricsAddr = v
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the service settings. Camera settings are forwarded to the
// session unvalidated.
func Validate(cfg *Config) error {
	switch cfg.Backend {
	case BackendSim, BackendStructure:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendSim, BackendStructure, cfg.Backend)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.Sim.FrameRate <= 0 {
		return fmt.Errorf("sim.frame_rate must be positive")
	}
	if cfg.Monitor.JPEGQuality < 1 || cfg.Monitor.JPEGQuality > 100 {
		return fmt.Errorf("monitor.jpeg_quality must be in 1..100")
	}
	if cfg.Monitor.MJPEGInterval <= 0 || cfg.Monitor.IMUInterval <= 0 || cfg.Monitor.StatusInterval <= 0 {
		return fmt.Errorf("monitor intervals must be positive")
	}
	if cfg.WebRTC.MaxClients < 0 {
		return fmt.Errorf("webrtc.max_clients must not be negative")
	}
	if cfg.Recorder.Interval <= 0 {
		return fmt.Errorf("recorder.interval must be positive")
	}
	if cfg.MQTT.Interval <= 0 {
		return fmt.Errorf("mqtt.interval must be positive")
	}
	if cfg.WebRTC.TelemetryInterval < 0 {
		return fmt.Errorf("webrtc.telemetry_interval must not be negative")
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	return nil
}
