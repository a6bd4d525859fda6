package config

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidateTieredInvertedBitrateBoundsIsFatal(t *testing.T) {
	cfg := Default()
	cfg.MinBitrateBps = 10_000_000
	cfg.MaxBitrateBps = 1_000_000
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("min exceeding max bitrate should be fatal")
	}
}

func TestValidateTieredBadControlPortIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ControlPort = 70000
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("out-of-range control_port should be fatal")
	}
}

func TestValidateTieredSamePortsIsFatal(t *testing.T) {
	cfg := Default()
	cfg.DataPort = cfg.ControlPort
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("control_port == data_port should be fatal")
	}
}

func TestValidateTieredStreamScaleClampingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.DefaultStreamScale = 5.0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped stream scale should be warning, not fatal: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for out-of-range stream scale")
	}
	if cfg.DefaultStreamScale != 1.0 {
		t.Fatalf("DefaultStreamScale = %v, want 1.0 (clamped)", cfg.DefaultStreamScale)
	}
}

func TestValidateTieredFrameRateClamping(t *testing.T) {
	cfg := Default()
	cfg.DefaultFrameRate = 9999
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped frame rate should be warning: %v", result.Fatals)
	}
	if cfg.DefaultFrameRate != 240 {
		t.Fatalf("DefaultFrameRate = %d, want 240", cfg.DefaultFrameRate)
	}
}

func TestValidateTieredTrustGateTimeoutClamping(t *testing.T) {
	cfg := Default()
	cfg.TrustGateTimeoutSeconds = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped trust gate timeout should be warning: %v", result.Fatals)
	}
	if cfg.TrustGateTimeoutSeconds != 30 {
		t.Fatalf("TrustGateTimeoutSeconds = %d, want 30", cfg.TrustGateTimeoutSeconds)
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	found := false
	for _, err := range result.Warnings {
		if strings.Contains(err.Error(), "log_level") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected warning for unknown log level")
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for invalid log format")
	}
}

func TestHasFatals(t *testing.T) {
	r := TieredResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.MinBitrateBps = 10_000_000
	cfg.MaxBitrateBps = 1_000_000 // fatal
	cfg.LogFormat = "xml"         // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("default config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("default config has warnings: %v", result.Warnings)
	}
}
