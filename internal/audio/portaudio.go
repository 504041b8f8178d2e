// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"voiceviz/internal/analysis"
	applog "voiceviz/internal/log"

	"github.com/gordonklaus/portaudio"
)

// PortAudioConfig selects and configures the capture device.
type PortAudioConfig struct {
	DeviceID        int // -1 selects the system default input
	SampleRate      float64
	FramesPerBuffer int
	Channels        int
	LowLatency      bool
}

// PortAudioSource captures from a PortAudio input device. PortAudio must be
// initialized for the lifetime of the source.
type PortAudioSource struct {
	cfg          PortAudioConfig
	newTransform TransformFactory
}

var _ Source = (*PortAudioSource)(nil)

// NewPortAudioSource creates a microphone source. Every acquired session
// gets a transform built by newTransform.
func NewPortAudioSource(cfg PortAudioConfig, newTransform TransformFactory) *PortAudioSource {
	if cfg.Channels < 1 {
		cfg.Channels = 1
	}
	return &PortAudioSource{cfg: cfg, newTransform: newTransform}
}

// Acquire opens and starts an input stream.
func (p *PortAudioSource) Acquire(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	device, err := InputDevice(p.cfg.DeviceID)
	if err != nil {
		return nil, classify(err)
	}
	if device.MaxInputChannels < p.cfg.Channels {
		return nil, fmt.Errorf("%w: %s has %d input channels, %d requested",
			ErrDeviceUnavailable, device.Name, device.MaxInputChannels, p.cfg.Channels)
	}

	transform, err := p.newTransform()
	if err != nil {
		return nil, fmt.Errorf("failed to create transform: %w", err)
	}

	latency := device.DefaultHighInputLatency
	if p.cfg.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	node := newStreamNode(transform, p.cfg.Channels, p.cfg.FramesPerBuffer)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: p.cfg.Channels,
			Device:   device,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: p.cfg.FramesPerBuffer,
		SampleRate:      p.cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, node.process)
	if err != nil {
		transform.Close()
		return nil, classify(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		transform.Close()
		return nil, classify(err)
	}

	applog.Infof("Audio: capturing from %q at %.0f Hz, %d channel(s), latency %v",
		device.Name, p.cfg.SampleRate, p.cfg.Channels, latency.Round(time.Microsecond))

	return NewSession(transform, node, &deviceTrack{stream: stream, name: device.Name}), nil
}

// classify maps PortAudio failures onto the capture error kinds. The host
// refusing a device outright is how OS privacy denials surface.
func classify(err error) error {
	var hostErr portaudio.UnanticipatedHostError
	if errors.As(err, &hostErr) {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
}

// streamNode downmixes device callbacks into the transform until it is
// disconnected.
type streamNode struct {
	sink         analysis.SampleSink
	channels     int
	mono         []float32
	disconnected atomic.Bool
}

func newStreamNode(sink analysis.SampleSink, channels, framesPerBuffer int) *streamNode {
	return &streamNode{
		sink:     sink,
		channels: channels,
		mono:     make([]float32, framesPerBuffer),
	}
}

// process is the PortAudio callback. It must not allocate on the steady
// state path.
func (n *streamNode) process(in []float32) {
	if n.disconnected.Load() {
		return
	}
	frames := len(in) / n.channels
	if cap(n.mono) < frames {
		n.mono = make([]float32, frames)
	}
	n.sink.Write(downmixInto(n.mono[:frames], in, n.channels))
}

func (n *streamNode) Disconnect() error {
	n.disconnected.Store(true)
	return nil
}

type deviceTrack struct {
	stream *portaudio.Stream
	name   string
}

func (t *deviceTrack) Stop() error {
	var errs []error
	if err := t.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop stream on %q: %w", t.name, err))
	}
	if err := t.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close stream on %q: %w", t.name, err))
	}
	return errors.Join(errs...)
}

// downmixInterleaved averages interleaved channels into a new mono slice.
func downmixInterleaved(in []float32, channels, frames int) []float32 {
	return downmixInto(make([]float32, frames), in, channels)
}

// downmixInto averages interleaved channels into dst and returns it.
func downmixInto(dst, in []float32, channels int) []float32 {
	if channels <= 1 {
		copy(dst, in)
		return dst
	}
	scale := 1 / float32(channels)
	for i := range dst {
		base := i * channels
		if base+channels > len(in) {
			dst[i] = 0
			continue
		}
		var sum float32
		for c := range channels {
			sum += in[base+c]
		}
		dst[i] = sum * scale
	}
	return dst
}
