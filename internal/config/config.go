package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the visualizer.
const (
	// Audio capture defaults
	DefaultChannels        = 1           // Mono capture
	DefaultDeviceID        = MinDeviceID // System default device
	DefaultFramesPerBuffer = 512         // Balanced latency/performance
	DefaultLowLatency      = true        // The visualizer wants fresh samples
	DefaultSampleRate      = 44100       // CD-quality audio

	// Analysis defaults
	DefaultFFTWindow   = "Blackman"
	DefaultSmoothing   = 0.8
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0

	// Visualizer defaults
	DefaultRefreshRate    = 60.0             // Frames per second
	DefaultSilenceWindow  = 10 * time.Second // Quiet time before going idle
	DefaultSoundThreshold = 5.0              // On the 0-100 band scale

	// Transport defaults
	DefaultWebSocketAddress = ":8080"
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30Hz

	// Debug defaults
	DefaultLogLevel  = "info"
	DefaultVerbosity = false

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer
)
