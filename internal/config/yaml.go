// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	applog "voiceviz/internal/log"
	"voiceviz/pkg/bitint"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug      bool             `yaml:"debug"`                                         // Enable debug logging.
	LogLevel   string           `yaml:"log_level" validate:"oneof=debug info warn error"` // Logging level.
	LogFile    string           `yaml:"log_file"`                                      // Log destination while the TUI owns the terminal.
	Command    string           `yaml:"command,omitempty"`                             // A one-off command to execute instead of running the visualizer (e.g., "list").
	TUIMode    bool             `yaml:"tui"`                                           // Render the terminal visualizer.
	PickDevice bool             `yaml:"-"`                                             // Choose the input device interactively at startup.
	Audio      AudioConfig      `yaml:"audio"`                                         // Audio capture settings.
	Analysis   AnalysisConfig   `yaml:"analysis"`                                      // Spectral analyzer settings.
	Visualizer VisualizerConfig `yaml:"visualizer"`                                    // Frame loop and hysteresis settings.
	Transport  TransportConfig  `yaml:"transport"`                                     // State publishing settings.
}

// AudioConfig holds settings related to audio input.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device" validate:"gte=-1"`                  // PortAudio device index for audio input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate" validate:"gte=8000,lte=192000"`      // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer" validate:"gte=32,lte=8192"`    // Frames per capture callback.
	LowLatency      bool    `yaml:"low_latency"`                                     // Request low latency settings from PortAudio device.
	InputChannels   int     `yaml:"input_channels" validate:"gte=1,lte=8"`           // Channels captured and downmixed to mono.
	File            string  `yaml:"file,omitempty"`                                  // Replay this WAV file instead of opening a microphone.
}

// AnalysisConfig holds the spectral analyzer settings.
type AnalysisConfig struct {
	FFTWindow   string  `yaml:"fft_window"`                                 // Window function name (e.g., "Blackman", "Hann").
	Smoothing   float64 `yaml:"smoothing" validate:"gte=0,lt=1"`            // Temporal smoothing constant.
	MinDecibels float64 `yaml:"min_decibels" validate:"ltfield=MaxDecibels"` // Level mapped to bin value 0.
	MaxDecibels float64 `yaml:"max_decibels"`                               // Level mapped to bin value 255.
}

// VisualizerConfig holds frame loop and silence hysteresis settings.
type VisualizerConfig struct {
	RefreshRate    float64       `yaml:"refresh_rate" validate:"gt=0,lte=240"`       // Frames per second.
	SilenceWindow  time.Duration `yaml:"silence_window" validate:"gt=0"`             // Quiet time before the visualizer goes idle.
	SoundThreshold float64       `yaml:"sound_threshold" validate:"gte=0,lt=100"`    // Band value above which a frame counts as sound.
}

// TransportConfig holds settings related to publishing visualizer state.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`                                     // Serve /ws, /state, /start and /stop.
	WebSocketAddress string        `yaml:"websocket_address" validate:"required_if=WebSocketEnabled true"` // Listen address (e.g., ":8080").
	UDPEnabled       bool          `yaml:"udp_enabled"`                                           // Enable sending state over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address" validate:"required_if=UDPEnabled true"`     // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval" validate:"gt=0"`                     // Interval between sending UDP packets.
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		TUIMode:  true,
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			InputChannels:   DefaultChannels,
		},
		Analysis: AnalysisConfig{
			FFTWindow:   DefaultFFTWindow,
			Smoothing:   DefaultSmoothing,
			MinDecibels: DefaultMinDecibels,
			MaxDecibels: DefaultMaxDecibels,
		},
		Visualizer: VisualizerConfig{
			RefreshRate:    DefaultRefreshRate,
			SilenceWindow:  DefaultSilenceWindow,
			SoundThreshold: DefaultSoundThreshold,
		},
		Transport: TransportConfig{
			WebSocketEnabled: true,
			WebSocketAddress: DefaultWebSocketAddress,
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults.  After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"config.yaml", "voiceviz.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks field constraints and normalizes the capture buffer size
// to a power of two.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if !bitint.IsPowerOfTwo(c.Audio.FramesPerBuffer) {
		rounded := bitint.NextPowerOfTwo(c.Audio.FramesPerBuffer)
		if rounded > MaxBufferFrames {
			rounded = MaxBufferFrames
		}
		applog.Warnf("configuration: frames_per_buffer %d is not a power of two, using %d",
			c.Audio.FramesPerBuffer, rounded)
		c.Audio.FramesPerBuffer = rounded
	}

	return nil
}

// applyEnvOverrides applies ENV_* variables on top of file values.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			applog.Infof("configuration: Overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Infof("configuration: Overriding log_level from env: %s", val)
	}

	// ENV_WS_ADDRESS
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WebSocketAddress = val
		applog.Infof("configuration: Overriding transport.websocket_address from env: %s", val)
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
			applog.Infof("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Infof("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
			applog.Infof("configuration: Overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}

// FrameInterval returns the time between display frames.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.Visualizer.RefreshRate)
}

// EffectiveLogLevel returns "debug" when Debug is set, LogLevel otherwise.
func (c *Config) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}
