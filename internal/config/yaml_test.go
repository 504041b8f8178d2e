// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Visualizer.SilenceWindow != DefaultSilenceWindow {
		t.Errorf("silence window = %v, want %v", cfg.Visualizer.SilenceWindow, DefaultSilenceWindow)
	}
	if cfg.Visualizer.SoundThreshold != DefaultSoundThreshold {
		t.Errorf("sound threshold = %v, want %v", cfg.Visualizer.SoundThreshold, DefaultSoundThreshold)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
audio:
  input_device: 2
  sample_rate: 48000
  frames_per_buffer: 256
analysis:
  fft_window: Hann
visualizer:
  refresh_rate: 30
  silence_window: 4s
  sound_threshold: 7.5
transport:
  websocket_address: "127.0.0.1:9000"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Audio.InputDevice != 2 || cfg.Audio.SampleRate != 48000 || cfg.Audio.FramesPerBuffer != 256 {
		t.Errorf("audio section not applied: %+v", cfg.Audio)
	}
	if cfg.Analysis.FFTWindow != "Hann" {
		t.Errorf("fft_window = %q, want Hann", cfg.Analysis.FFTWindow)
	}
	// Untouched keys keep their defaults.
	if cfg.Analysis.Smoothing != DefaultSmoothing {
		t.Errorf("smoothing = %v, want default %v", cfg.Analysis.Smoothing, DefaultSmoothing)
	}
	if cfg.Visualizer.SilenceWindow != 4*time.Second {
		t.Errorf("silence_window = %v, want 4s", cfg.Visualizer.SilenceWindow)
	}
	if got := cfg.FrameInterval(); got != time.Second/30 {
		t.Errorf("FrameInterval() = %v, want %v", got, time.Second/30)
	}
	if cfg.Transport.WebSocketAddress != "127.0.0.1:9000" {
		t.Errorf("websocket_address = %q", cfg.Transport.WebSocketAddress)
	}
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
	}{
		{"Sample rate too low", "audio:\n  sample_rate: 100\n"},
		{"Device below default", "audio:\n  input_device: -5\n"},
		{"Smoothing out of range", "analysis:\n  smoothing: 1.5\n"},
		{"Inverted decibels", "analysis:\n  min_decibels: -20\n  max_decibels: -80\n"},
		{"Zero refresh rate", "visualizer:\n  refresh_rate: 0\n"},
		{"Unknown log level", "log_level: chatty\n"},
		{"UDP without target", "transport:\n  udp_enabled: true\n  udp_target_address: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeTempConfig(t, tt.content)
			_, err := LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestValidate_RoundsFramesPerBuffer(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Audio.FramesPerBuffer = 500

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Audio.FramesPerBuffer != 512 {
		t.Errorf("frames_per_buffer = %d, want 512", cfg.Audio.FramesPerBuffer)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV_DEBUG", "true")
	t.Setenv("ENV_WS_ADDRESS", ":7000")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "10.0.0.1:9999")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "50ms")

	cfg, err := LoadConfig(writeTempConfig(t, "log_level: warn\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if !cfg.Debug || cfg.EffectiveLogLevel() != "debug" {
		t.Errorf("debug override not applied: debug=%v level=%s", cfg.Debug, cfg.EffectiveLogLevel())
	}
	if cfg.Transport.WebSocketAddress != ":7000" {
		t.Errorf("websocket address = %q, want :7000", cfg.Transport.WebSocketAddress)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "10.0.0.1:9999" {
		t.Errorf("udp overrides not applied: %+v", cfg.Transport)
	}
	if cfg.Transport.UDPSendInterval != 50*time.Millisecond {
		t.Errorf("udp interval = %v, want 50ms", cfg.Transport.UDPSendInterval)
	}
}

func TestEnvOverrides_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("ENV_UDP_ENABLED", "sometimes")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "soon")

	cfg, err := LoadConfig(writeTempConfig(t, "debug: false\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Transport.UDPEnabled {
		t.Error("malformed ENV_UDP_ENABLED should be ignored")
	}
	if cfg.Transport.UDPSendInterval != DefaultUDPSendInterval {
		t.Errorf("udp interval = %v, want default", cfg.Transport.UDPSendInterval)
	}
}
