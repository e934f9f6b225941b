package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rangefinder/lib/measure"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvCamera, EnvSerial, EnvWebPort, EnvDB, EnvLevel} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("Load(\"\") mismatch (-want +got):\n%s", diff)
	}

	cal, err := cfg.Calibration.Calibration()
	require.NoError(t, err)
	assert.Equal(t, 1.0, cal.FocalLength)
}

func TestLoad_PartialFile(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "rangefinder.json", `{
		"camera": {"id": 2},
		"bounds": {"low_h": 50, "low_s": 100, "low_v": 100, "high_h": 70, "high_s": 255, "high_v": 255},
		"calibration": {"reference_pixel_height": 100, "reference_distance": 24, "known_width": 4, "known_height": 4},
		"serial": {"port": "/dev/ttyUSB0", "update_interval": "20ms"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Camera.ID)
	assert.Equal(t, 0.35, cfg.Camera.DisplayScale, "omitted fields keep defaults")
	assert.Equal(t, measure.HSVBounds{LowH: 50, LowS: 100, LowV: 100, HighH: 70, HighS: 255, HighV: 255}, cfg.Bounds)

	cal, err := cfg.Calibration.Calibration()
	require.NoError(t, err)
	assert.Equal(t, 600.0, cal.FocalLength)

	interval, err := cfg.Serial.Interval()
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, interval)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvCamera, "3")
	t.Setenv(EnvSerial, "/dev/ttyACM0")
	t.Setenv(EnvWebPort, "9090")
	t.Setenv(EnvDB, "/tmp/measurements.db")
	t.Setenv(EnvLevel, "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Camera.ID)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, "9090", cfg.Web.Port)
	assert.Equal(t, "/tmp/measurements.db", cfg.Record.Path)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		file    string
		content string
		env     map[string]string
		wantErr string
	}{
		{name: "wrong extension", file: "config.yaml", content: "{}", wantErr: ".json extension"},
		{name: "bad json", file: "bad.json", content: "{", wantErr: "failed to parse config JSON"},
		{
			name:    "zero known height",
			file:    "cal.json",
			content: `{"calibration": {"reference_pixel_height": 1, "reference_distance": 1, "known_width": 1, "known_height": 0}}`,
			wantErr: "known height must be non-zero",
		},
		{
			name:    "bad scale",
			file:    "scale.json",
			content: `{"camera": {"display_scale": 2}}`,
			wantErr: "display_scale",
		},
		{
			name:    "bad serial options",
			file:    "serial.json",
			content: `{"serial": {"port": "/dev/ttyUSB0", "options": {"parity": "Q"}}}`,
			wantErr: "unsupported parity",
		},
		{
			name:    "bad interval",
			file:    "interval.json",
			content: `{"serial": {"port": "/dev/ttyUSB0", "update_interval": "soon"}}`,
			wantErr: "update_interval",
		},
		{
			name:    "bad web port",
			file:    "web.json",
			content: `{"web": {"port": "http"}}`,
			wantErr: "web port",
		},
		{
			name:    "bad camera env",
			file:    "ok.json",
			content: `{}`,
			env:     map[string]string{EnvCamera: "front"},
			wantErr: EnvCamera,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeFile(t, tt.file, tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat config file")
}

func TestValidate_SerialIgnoredWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Serial.Options.Parity = "Q"
	assert.NoError(t, cfg.Validate())
}
