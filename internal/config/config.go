// Package config handles service configuration: defaults, an optional YAML
// file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

// Capture backends.
const (
	BackendScreen    = "screen"
	BackendSynthetic = "synthetic"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	DataDir     string `yaml:"data_dir"`     // relay mailbox + gallery index
	StorageRoot string `yaml:"storage_root"` // parent of the Pictures/Screenshots folder

	PollInterval     time.Duration `yaml:"poll_interval"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	DrainDelay       time.Duration `yaml:"drain_delay"`
	TeardownDelay    time.Duration `yaml:"teardown_delay"`
	Countdown        time.Duration `yaml:"countdown"`
	ForegroundWindow time.Duration `yaml:"foreground_window"`

	JPEGQuality    int     `yaml:"jpeg_quality"`
	CaptureBackend string  `yaml:"capture_backend"`
	DisplayIndex   int     `yaml:"display_index"`
	DisplayDensity float64 `yaml:"display_density"` // dpi reported for the mirror

	DesktopNotifications bool `yaml:"desktop_notifications"`
	Thumbnails           bool `yaml:"thumbnails"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return &Config{
		HTTPAddr:             ":8000",
		GRPCAddr:             ":50061",
		DataDir:              filepath.Join(home, ".oneshot"),
		StorageRoot:          home,
		PollInterval:         500 * time.Millisecond,
		SettleDelay:          200 * time.Millisecond,
		DrainDelay:           50 * time.Millisecond,
		TeardownDelay:        100 * time.Millisecond,
		Countdown:            3 * time.Second,
		ForegroundWindow:     60 * time.Second,
		JPEGQuality:          85,
		CaptureBackend:       BackendScreen,
		DisplayIndex:         0,
		DisplayDensity:       160,
		DesktopNotifications: true,
		Thumbnails:           true,
		LogLevel:             "debug",
		LogFormat:            "text",
	}
}

// Load returns defaults overlaid with CONFIG_FILE (if set and readable) and
// the environment. File errors are reported on stderr and otherwise ignored.
func Load() *Config {
	cfg, err := LoadFile(getEnv("CONFIG_FILE", ""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		cfg = Default()
		cfg.applyEnv()
	}
	return cfg
}

// LoadFile reads a YAML file (empty path skips it) then applies the environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "read config file %q", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "parse config file %q", path)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getEnv("GRPC_ADDR", c.GRPCAddr)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.StorageRoot = getEnv("STORAGE_ROOT", c.StorageRoot)
	c.PollInterval = getEnvDuration("POLL_INTERVAL", c.PollInterval)
	c.SettleDelay = getEnvDuration("SETTLE_DELAY", c.SettleDelay)
	c.DrainDelay = getEnvDuration("DRAIN_DELAY", c.DrainDelay)
	c.TeardownDelay = getEnvDuration("TEARDOWN_DELAY", c.TeardownDelay)
	c.Countdown = getEnvDuration("COUNTDOWN", c.Countdown)
	c.ForegroundWindow = getEnvDuration("FOREGROUND_WINDOW", c.ForegroundWindow)
	c.JPEGQuality = getEnvInt("JPEG_QUALITY", c.JPEGQuality)
	c.CaptureBackend = strings.ToLower(getEnv("CAPTURE_BACKEND", c.CaptureBackend))
	c.DisplayIndex = getEnvInt("DISPLAY_INDEX", c.DisplayIndex)
	c.DisplayDensity = getEnvFloat("DISPLAY_DENSITY", c.DisplayDensity)
	c.DesktopNotifications = getEnvBool("DESKTOP_NOTIFICATIONS", c.DesktopNotifications)
	c.Thumbnails = getEnvBool("THUMBNAILS", c.Thumbnails)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.PollInterval <= 0:
		return apperrors.New(apperrors.CodeConfigInvalid, "poll_interval must be positive")
	case c.SettleDelay <= 0:
		return apperrors.New(apperrors.CodeConfigInvalid, "settle_delay must be positive")
	case c.DrainDelay < 0 || c.TeardownDelay < 0 || c.Countdown < 0:
		return apperrors.New(apperrors.CodeConfigInvalid, "delays must not be negative")
	case c.ForegroundWindow <= 0:
		return apperrors.New(apperrors.CodeConfigInvalid, "foreground_window must be positive")
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "jpeg_quality %d out of range 1-100", c.JPEGQuality)
	case c.CaptureBackend != BackendScreen && c.CaptureBackend != BackendSynthetic:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "unknown capture_backend %q", c.CaptureBackend)
	case c.DataDir == "":
		return apperrors.New(apperrors.CodeConfigInvalid, "data_dir must not be empty")
	case c.StorageRoot == "":
		return apperrors.New(apperrors.CodeConfigInvalid, "storage_root must not be empty")
	}
	return nil
}

// DatabasePath is the SQLite file backing the relay mailbox and gallery.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "oneshot.db")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

// getEnvDuration accepts Go durations ("250ms") or bare milliseconds ("250").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
