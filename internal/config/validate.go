package config

import "fmt"

// TieredResult separates validation problems that must abort startup
// (Fatals) from ones that are logged and silently clamped (Warnings).
type TieredResult struct {
	Fatals   []error
	Warnings []error
}

func (r *TieredResult) HasFatals() bool { return len(r.Fatals) > 0 }

// AllErrors returns fatals followed by warnings, for callers that just
// want to log everything found.
func (r *TieredResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

func (r *TieredResult) fatal(format string, args ...any) {
	r.Fatals = append(r.Fatals, fmt.Errorf(format, args...))
}

func (r *TieredResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Errorf(format, args...))
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// ValidateTiered checks the config for invalid values. Clearly unusable
// configuration (ports out of range, bitrate bounds inverted) is fatal.
// Everything else is a warning and gets clamped to a safe default in place.
func (c *Config) ValidateTiered() TieredResult {
	var r TieredResult

	if c.ControlPort < 0 || c.ControlPort > 65535 {
		r.fatal("control_port %d out of range [0,65535]", c.ControlPort)
	}
	if c.DataPort < 0 || c.DataPort > 65535 {
		r.fatal("data_port %d out of range [0,65535]", c.DataPort)
	}
	if c.ControlPort != 0 && c.DataPort != 0 && c.ControlPort == c.DataPort {
		r.fatal("control_port and data_port must differ, both are %d", c.ControlPort)
	}

	if c.MinBitrateBps <= 0 {
		r.fatal("min_bitrate_bps must be positive, got %d", c.MinBitrateBps)
	}
	if c.MaxBitrateBps <= 0 {
		r.fatal("max_bitrate_bps must be positive, got %d", c.MaxBitrateBps)
	}
	if c.MinBitrateBps > 0 && c.MaxBitrateBps > 0 && c.MinBitrateBps > c.MaxBitrateBps {
		r.fatal("min_bitrate_bps %d exceeds max_bitrate_bps %d", c.MinBitrateBps, c.MaxBitrateBps)
	}
	if c.DefaultBitrateBps > 0 && c.MaxBitrateBps > 0 && c.DefaultBitrateBps > c.MaxBitrateBps {
		r.warn("default_bitrate_bps %d exceeds max_bitrate_bps %d, clamping", c.DefaultBitrateBps, c.MaxBitrateBps)
		c.DefaultBitrateBps = c.MaxBitrateBps
	}

	if c.DefaultStreamScale < 0.1 || c.DefaultStreamScale > 1.0 {
		r.warn("default_stream_scale %.2f out of [0.1,1.0], clamping", c.DefaultStreamScale)
		c.DefaultStreamScale = clampF(c.DefaultStreamScale, 0.1, 1.0)
	}
	if c.FrameQuality < 0 || c.FrameQuality > 1 {
		r.warn("frame_quality %.2f out of [0,1], clamping", c.FrameQuality)
		c.FrameQuality = clampF(c.FrameQuality, 0, 1)
	}
	if c.KeyframeQuality < 0 || c.KeyframeQuality > 1 {
		r.warn("keyframe_quality %.2f out of [0,1], clamping", c.KeyframeQuality)
		c.KeyframeQuality = clampF(c.KeyframeQuality, 0, 1)
	}
	if c.KeyframeIntervalFrames < 1 {
		r.warn("keyframe_interval_frames %d below minimum 1, clamping", c.KeyframeIntervalFrames)
		c.KeyframeIntervalFrames = 1
	}
	if c.CaptureQueueDepth < 1 {
		r.warn("capture_queue_depth %d below minimum 1, clamping", c.CaptureQueueDepth)
		c.CaptureQueueDepth = 1
	}
	if c.DefaultFrameRate < 1 || c.DefaultFrameRate > 240 {
		r.warn("default_frame_rate %d out of [1,240], clamping", c.DefaultFrameRate)
		c.DefaultFrameRate = clampI(c.DefaultFrameRate, 1, 240)
	}

	if c.TrustGateTimeoutSeconds < 1 {
		r.warn("trust_gate_timeout_seconds %d below minimum 1, clamping", c.TrustGateTimeoutSeconds)
		c.TrustGateTimeoutSeconds = 30
	}

	if c.SessionPollIntervalSeconds < 1 {
		r.warn("session_poll_interval_seconds %d below minimum 1, clamping", c.SessionPollIntervalSeconds)
		c.SessionPollIntervalSeconds = 3
	}
	if c.UnlockMaxRetries < 1 {
		r.warn("unlock_max_retries %d below minimum 1, clamping", c.UnlockMaxRetries)
		c.UnlockMaxRetries = 5
	}

	if c.LoginDisplayWatchdogIntervalSeconds < 1 {
		r.warn("login_display_watchdog_interval_seconds %d below minimum 1, clamping", c.LoginDisplayWatchdogIntervalSeconds)
		c.LoginDisplayWatchdogIntervalSeconds = 2
	}
	if c.LoginDisplayStaleSeconds < 1 {
		r.warn("login_display_stale_seconds %d below minimum 1, clamping", c.LoginDisplayStaleSeconds)
		c.LoginDisplayStaleSeconds = 6
	}
	if c.LoginDisplayMaxRetries < 0 {
		r.warn("login_display_max_retries %d negative, clamping to 0", c.LoginDisplayMaxRetries)
		c.LoginDisplayMaxRetries = 0
	}

	if c.WindowCooldownSeconds < 0 {
		r.warn("window_cooldown_seconds %d negative, clamping to 0", c.WindowCooldownSeconds)
		c.WindowCooldownSeconds = 0
	}

	if c.CursorPollHz < 1 || c.CursorPollHz > 240 {
		r.warn("cursor_poll_hz %d out of [1,240], clamping", c.CursorPollHz)
		c.CursorPollHz = clampI(c.CursorPollHz, 1, 240)
	}

	if c.LogLevel != "" && !validLogLevels[c.LogLevel] {
		r.warn("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel)
		c.LogLevel = "info"
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.warn("log_format %q is not valid (use text or json)", c.LogFormat)
		c.LogFormat = "text"
	}

	return r
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
