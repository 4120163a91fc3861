package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

var envVars = []string{
	"CONFIG_FILE", "HTTP_ADDR", "GRPC_ADDR", "DATA_DIR", "STORAGE_ROOT",
	"POLL_INTERVAL", "SETTLE_DELAY", "DRAIN_DELAY", "TEARDOWN_DELAY",
	"COUNTDOWN", "FOREGROUND_WINDOW", "JPEG_QUALITY", "CAPTURE_BACKEND",
	"DISPLAY_INDEX", "DISPLAY_DENSITY", "DESKTOP_NOTIFICATIONS", "THUMBNAILS",
	"LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(v, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8000")
	}
	if cfg.GRPCAddr != ":50061" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":50061")
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", cfg.PollInterval)
	}
	if cfg.SettleDelay != 200*time.Millisecond {
		t.Errorf("SettleDelay = %v, want 200ms", cfg.SettleDelay)
	}
	if cfg.DrainDelay != 50*time.Millisecond {
		t.Errorf("DrainDelay = %v, want 50ms", cfg.DrainDelay)
	}
	if cfg.TeardownDelay != 100*time.Millisecond {
		t.Errorf("TeardownDelay = %v, want 100ms", cfg.TeardownDelay)
	}
	if cfg.Countdown != 3*time.Second {
		t.Errorf("Countdown = %v, want 3s", cfg.Countdown)
	}
	if cfg.ForegroundWindow != time.Minute {
		t.Errorf("ForegroundWindow = %v, want 1m", cfg.ForegroundWindow)
	}
	if cfg.JPEGQuality != 85 {
		t.Errorf("JPEGQuality = %d, want 85", cfg.JPEGQuality)
	}
	if cfg.CaptureBackend != BackendScreen {
		t.Errorf("CaptureBackend = %q, want %q", cfg.CaptureBackend, BackendScreen)
	}
	if !cfg.DesktopNotifications {
		t.Error("DesktopNotifications should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("SETTLE_DELAY", "300")
	t.Setenv("JPEG_QUALITY", "70")
	t.Setenv("CAPTURE_BACKEND", "Synthetic")
	t.Setenv("DESKTOP_NOTIFICATIONS", "false")
	t.Setenv("DISPLAY_DENSITY", "320")

	cfg := Load()

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9000")
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.PollInterval)
	}
	if cfg.SettleDelay != 300*time.Millisecond {
		t.Errorf("SettleDelay = %v, want 300ms", cfg.SettleDelay)
	}
	if cfg.JPEGQuality != 70 {
		t.Errorf("JPEGQuality = %d, want 70", cfg.JPEGQuality)
	}
	if cfg.CaptureBackend != BackendSynthetic {
		t.Errorf("CaptureBackend = %q, want %q", cfg.CaptureBackend, BackendSynthetic)
	}
	if cfg.DesktopNotifications {
		t.Error("DesktopNotifications should be false")
	}
	if cfg.DisplayDensity != 320 {
		t.Errorf("DisplayDensity = %f, want 320", cfg.DisplayDensity)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "oneshot.yaml")
	data := []byte("http_addr: \":7000\"\npoll_interval: 1s\njpeg_quality: 60\nthumbnails: false\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JPEG_QUALITY", "90")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":7000")
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval)
	}
	if cfg.JPEGQuality != 90 {
		t.Errorf("JPEGQuality = %d, want env override 90", cfg.JPEGQuality)
	}
	if cfg.Thumbnails {
		t.Error("Thumbnails should be false from file")
	}
	if cfg.SettleDelay != 200*time.Millisecond {
		t.Errorf("SettleDelay = %v, want default 200ms", cfg.SettleDelay)
	}
}

func TestLoadFileErrors(t *testing.T) {
	clearEnv(t)
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !apperrors.IsCode(err, apperrors.CodeConfigInvalid) {
		t.Errorf("missing file error = %v, want CONFIG_INVALID", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("poll_interval: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); !apperrors.IsCode(err, apperrors.CodeConfigInvalid) {
		t.Errorf("bad yaml error = %v, want CONFIG_INVALID", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero poll", func(c *Config) { c.PollInterval = 0 }},
		{"zero settle", func(c *Config) { c.SettleDelay = 0 }},
		{"negative drain", func(c *Config) { c.DrainDelay = -time.Millisecond }},
		{"quality high", func(c *Config) { c.JPEGQuality = 101 }},
		{"quality low", func(c *Config) { c.JPEGQuality = 0 }},
		{"backend", func(c *Config) { c.CaptureBackend = "vnc" }},
		{"data dir", func(c *Config) { c.DataDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !apperrors.IsCode(err, apperrors.CodeConfigInvalid) {
				t.Errorf("Validate() = %v, want CONFIG_INVALID", err)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	if v := getEnv("TEST_STRING", "default"); v != "hello" {
		t.Errorf("getEnv = %q, want %q", v, "hello")
	}
	if v := getEnv("NONEXISTENT_ONESHOT", "default"); v != "default" {
		t.Errorf("getEnv = %q, want %q", v, "default")
	}

	t.Setenv("TEST_INT_INVALID", "not-a-number")
	if v := getEnvInt("TEST_INT_INVALID", 100); v != 100 {
		t.Errorf("getEnvInt with invalid = %d, want %d", v, 100)
	}

	t.Setenv("TEST_BOOL_ONE", "1")
	if !getEnvBool("TEST_BOOL_ONE", false) {
		t.Error("getEnvBool should return true for '1'")
	}

	t.Setenv("TEST_DURATION_BAD", "soon")
	if v := getEnvDuration("TEST_DURATION_BAD", time.Second); v != time.Second {
		t.Errorf("getEnvDuration with invalid = %v, want 1s", v)
	}
}
