// Package config loads the rangefinder configuration: defaults, then an
// optional JSON file, then environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"rangefinder/lib/measure"
	"rangefinder/lib/telemetry"
)

// Environment variables that override file values.
const (
	EnvCamera  = "RANGEFINDER_CAMERA"
	EnvSerial  = "RANGEFINDER_SERIAL"
	EnvWebPort = "RANGEFINDER_WEB_PORT"
	EnvDB      = "RANGEFINDER_DB"
	EnvLevel   = "RANGEFINDER_LOG_LEVEL"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// CameraConfig selects the capture device and preview encoding.
type CameraConfig struct {
	ID           int     `json:"id"`
	DisplayScale float64 `json:"display_scale"`
	JPEGQuality  int     `json:"jpeg_quality"`
}

// CalibrationConfig is the reference observation and target size the
// tracker starts with.
type CalibrationConfig struct {
	ReferencePixelHeight float64 `json:"reference_pixel_height"`
	ReferenceDistance    float64 `json:"reference_distance"`
	KnownWidth           float64 `json:"known_width"`
	KnownHeight          float64 `json:"known_height"`
}

// Calibration converts the config into a measure.Calibration.
func (c CalibrationConfig) Calibration() (measure.Calibration, error) {
	return measure.NewCalibration(c.ReferencePixelHeight, c.ReferenceDistance, c.KnownWidth, c.KnownHeight)
}

// SerialConfig configures the telemetry link. An empty Port disables it.
type SerialConfig struct {
	Port           string                `json:"port"`
	Options        telemetry.PortOptions `json:"options"`
	UpdateInterval string                `json:"update_interval"` // duration string like "50ms"
}

// Interval parses UpdateInterval, falling back to the telemetry default.
func (s SerialConfig) Interval() (time.Duration, error) {
	if s.UpdateInterval == "" {
		return telemetry.DefaultConfig().UpdateInterval, nil
	}
	d, err := time.ParseDuration(s.UpdateInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid serial update_interval %q: %w", s.UpdateInterval, err)
	}
	return d, nil
}

// WebConfig configures the control panel. An empty Port disables it.
type WebConfig struct {
	Port string `json:"port"`
}

// RecordConfig configures the measurement log. An empty Path disables it.
type RecordConfig struct {
	Path string `json:"path"`
}

// Config is the root configuration.
type Config struct {
	LogLevel    string            `json:"log_level"`
	Camera      CameraConfig      `json:"camera"`
	Bounds      measure.HSVBounds `json:"bounds"`
	Calibration CalibrationConfig `json:"calibration"`
	Serial      SerialConfig      `json:"serial"`
	Web         WebConfig         `json:"web"`
	Record      RecordConfig      `json:"record"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Camera: CameraConfig{
			ID:           0,
			DisplayScale: 0.35,
			JPEGQuality:  80,
		},
		Bounds: measure.DefaultHSVBounds(),
		Calibration: CalibrationConfig{
			ReferencePixelHeight: 1,
			ReferenceDistance:    1,
			KnownWidth:           1,
			KnownHeight:          1,
		},
		Serial: SerialConfig{
			Options: telemetry.PortOptions{BaudRate: telemetry.DefaultBaudRate},
		},
		Web: WebConfig{Port: "8080"},
	}
}

// Load builds a Config from defaults, the JSON file at path (skipped when
// path is empty) and the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFile overlays the JSON file onto cfg. Fields the file omits keep their
// current values.
func (c *Config) loadFile(path string) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvCamera); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", EnvCamera, v)
		}
		c.Camera.ID = id
	}
	if v := os.Getenv(EnvSerial); v != "" {
		c.Serial.Port = v
	}
	if v := os.Getenv(EnvWebPort); v != "" {
		c.Web.Port = v
	}
	if v := os.Getenv(EnvDB); v != "" {
		c.Record.Path = v
	}
	if v := os.Getenv(EnvLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var errs []error

	if c.Camera.ID < 0 {
		errs = append(errs, fmt.Errorf("camera id must be >= 0, got %d", c.Camera.ID))
	}
	if c.Camera.DisplayScale <= 0 || c.Camera.DisplayScale > 1 {
		errs = append(errs, fmt.Errorf("camera display_scale must be in (0, 1], got %g", c.Camera.DisplayScale))
	}
	if c.Camera.JPEGQuality < 1 || c.Camera.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("camera jpeg_quality must be in [1, 100], got %d", c.Camera.JPEGQuality))
	}

	if _, err := c.Calibration.Calibration(); err != nil {
		errs = append(errs, err)
	}

	if c.Serial.Port != "" {
		if _, err := c.Serial.Options.Normalize(); err != nil {
			errs = append(errs, fmt.Errorf("serial: %w", err))
		}
		if _, err := c.Serial.Interval(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Web.Port != "" {
		if p, err := strconv.Atoi(c.Web.Port); err != nil || p <= 0 || p > 65535 {
			errs = append(errs, fmt.Errorf("web port must be 1-65535, got %q", c.Web.Port))
		}
	}

	return errors.Join(errs...)
}
