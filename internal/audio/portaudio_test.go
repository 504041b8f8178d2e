// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gordonklaus/portaudio"
)

func TestDownmixInterleavedMono(t *testing.T) {
	input := []float32{0.1, 0.2, 0.3, 0.4}
	got := downmixInterleaved(input, 1, len(input))

	if len(got) != len(input) {
		t.Fatalf("expected %d samples, got %d", len(input), len(got))
	}
	for i := range input {
		if got[i] != input[i] {
			t.Fatalf("expected element %d to be %f, got %f", i, input[i], got[i])
		}
	}
	if &got[0] == &input[0] {
		t.Fatal("expected mono result to be copied into a new slice")
	}
}

func TestDownmixInterleavedStereo(t *testing.T) {
	input := []float32{
		0.0, 1.0,
		0.5, 0.5,
		1.0, 0.0,
		-0.5, 0.5,
	}
	expected := []float32{0.5, 0.5, 0.5, 0.0}

	got := downmixInterleaved(input, 2, 4)
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("frame %d mismatch: expected %f, got %f", i, expected[i], got[i])
		}
	}
}

func TestDownmixShortInput(t *testing.T) {
	// A trailing partial frame reads as silence.
	got := downmixInterleaved([]float32{1, 1, 1}, 2, 2)
	if got[0] != 1 || got[1] != 0 {
		t.Errorf("got %v, want [1 0]", got)
	}
}

func TestStreamNodeProcess(t *testing.T) {
	sink := &fakeTransform{}
	node := newStreamNode(sink, 2, 4)

	node.process(make([]float32, 8))
	node.process(make([]float32, 8))
	if sink.Writes() != 2 {
		t.Fatalf("writes = %d, want 2", sink.Writes())
	}

	if err := node.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	node.process(make([]float32, 8))
	if sink.Writes() != 2 {
		t.Errorf("write after Disconnect reached the sink")
	}
}

func TestStreamNodeNoAllocs(t *testing.T) {
	node := newStreamNode(&fakeTransform{}, 2, 512)
	in := make([]float32, 1024)

	allocs := testing.AllocsPerRun(100, func() { node.process(in) })
	if allocs > 0 {
		t.Errorf("process allocated %.1f times per call", allocs)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"Host refused", portaudio.UnanticipatedHostError{Text: "access denied"}, ErrPermissionDenied},
		{"Device unavailable", portaudio.DeviceUnavailable, ErrDeviceUnavailable},
		{"Invalid device", portaudio.InvalidDevice, ErrDeviceUnavailable},
		{"Invalid channel count", portaudio.InvalidChannelCount, ErrDeviceUnavailable},
		{"Invalid sample rate", portaudio.InvalidSampleRate, ErrDeviceUnavailable},
		{"No default device", fmt.Errorf("no default input device"), ErrDeviceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classify(%v) lost the cause", tt.err)
			}
		})
	}
}
