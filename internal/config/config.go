// Package config loads and validates the host's on-disk configuration:
// layered file/env precedence via viper and mapstructure, with two-tier
// (fatal/warning) validation over the host's ports, bitrate bounds, and
// cadences.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the host streaming engine.
type Config struct {
	HostName string `mapstructure:"host_name"`

	// Advertisement / sockets (§6).
	ControlPort int `mapstructure:"control_port"` // 0 = ephemeral
	DataPort    int `mapstructure:"data_port"`    // 0 = ephemeral

	// Bitrate bounds and quality defaults (§4.F).
	MinBitrateBps          int     `mapstructure:"min_bitrate_bps"`
	MaxBitrateBps          int     `mapstructure:"max_bitrate_bps"`
	DefaultBitrateBps      int     `mapstructure:"default_bitrate_bps"`
	DefaultStreamScale     float64 `mapstructure:"default_stream_scale"`
	FrameQuality           float64 `mapstructure:"frame_quality"`
	KeyframeQuality        float64 `mapstructure:"keyframe_quality"`
	KeyframeIntervalFrames int     `mapstructure:"keyframe_interval_frames"`
	CaptureQueueDepth      int     `mapstructure:"capture_queue_depth"`
	DefaultFrameRate       int     `mapstructure:"default_frame_rate"`

	// Trust gate (§4.C).
	TrustGateTimeoutSeconds int    `mapstructure:"trust_gate_timeout_seconds"`
	TrustStoreKey           string `mapstructure:"trust_store_key"`

	// Session-state tracker (§4.D).
	SessionPollIntervalSeconds int `mapstructure:"session_poll_interval_seconds"`
	UnlockMaxRetries           int `mapstructure:"unlock_max_retries"`

	// Login-display controller (§4.H).
	LoginDisplayWatchdogIntervalSeconds int `mapstructure:"login_display_watchdog_interval_seconds"`
	LoginDisplayStaleSeconds            int `mapstructure:"login_display_stale_seconds"`
	LoginDisplayGraceSeconds            int `mapstructure:"login_display_grace_seconds"`
	LoginDisplayRestartCooldownSeconds  int `mapstructure:"login_display_restart_cooldown_seconds"`
	LoginDisplayMaxRetries              int `mapstructure:"login_display_max_retries"`
	LoginDisplayRetryDelaySeconds       int `mapstructure:"login_display_retry_delay_seconds"`

	// App-stream orchestrator (§4.I).
	WindowCooldownSeconds int `mapstructure:"window_cooldown_seconds"`

	// Monitoring (§4.L).
	CursorPollHz           int `mapstructure:"cursor_poll_hz"`
	WindowActivityFPS      int `mapstructure:"window_activity_fps"`

	// Logging.
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

func Default() *Config {
	return &Config{
		HostName:    hostNameOrDefault(),
		ControlPort: 9847,
		DataPort:    9848,

		MinBitrateBps:          500_000,
		MaxBitrateBps:          25_000_000,
		DefaultBitrateBps:      8_000_000,
		DefaultStreamScale:     1.0,
		FrameQuality:           0.8,
		KeyframeQuality:        0.9,
		KeyframeIntervalFrames: 120,
		CaptureQueueDepth:      3,
		DefaultFrameRate:       60,

		TrustGateTimeoutSeconds: 30,
		TrustStoreKey:           "mirage.trustedDevices",

		SessionPollIntervalSeconds: 3,
		UnlockMaxRetries:           5,

		LoginDisplayWatchdogIntervalSeconds: 2,
		LoginDisplayStaleSeconds:            6,
		LoginDisplayGraceSeconds:            4,
		LoginDisplayRestartCooldownSeconds:  8,
		LoginDisplayMaxRetries:              5,
		LoginDisplayRetryDelaySeconds:       2,

		WindowCooldownSeconds: 10,

		CursorPollHz:      30,
		WindowActivityFPS: 1,

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,
	}
}

// SessionPollIntervalDuration, WindowCooldownDuration, and
// TrustGateTimeoutDuration convert the on-disk second-granularity
// tunables into the time.Duration internal/host.Config wants, keeping
// the YAML schema (and its mapstructure tags) in whole seconds.
func (c *Config) SessionPollIntervalDuration() time.Duration {
	return time.Duration(c.SessionPollIntervalSeconds) * time.Second
}

func (c *Config) WindowCooldownDuration() time.Duration {
	return time.Duration(c.WindowCooldownSeconds) * time.Second
}

func (c *Config) TrustGateTimeoutDuration() time.Duration {
	return time.Duration(c.TrustGateTimeoutSeconds) * time.Second
}

func hostNameOrDefault() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "mirage-host"
}

// Load reads the config file (if any), overlays MIRAGE_* environment
// variables, unmarshals into a Config, and runs tiered validation. Fatal
// validation errors abort startup; warnings are logged and clamped.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("host")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MIRAGE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		slog.Warn("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			slog.Error("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("host_name", cfg.HostName)
	viper.Set("control_port", cfg.ControlPort)
	viper.Set("data_port", cfg.DataPort)
	viper.Set("min_bitrate_bps", cfg.MinBitrateBps)
	viper.Set("max_bitrate_bps", cfg.MaxBitrateBps)
	viper.Set("default_bitrate_bps", cfg.DefaultBitrateBps)
	viper.Set("default_stream_scale", cfg.DefaultStreamScale)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		if dir := filepath.Dir(cfgPath); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "host.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}
	return os.Chmod(cfgPath, 0600)
}

// GetDataDir returns the platform-specific data directory for persisted
// state (trusted-device list, encoder-benchmark record).
func GetDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return "/Library/Application Support/Mirage/data"
	default:
		return "/var/lib/mirage"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "darwin":
		return "/Library/Application Support/Mirage"
	default:
		return "/etc/mirage"
	}
}
