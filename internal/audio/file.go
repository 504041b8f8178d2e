// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"voiceviz/internal/analysis"
	applog "voiceviz/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// FileSource replays a WAV file as if it were a live microphone, in
// FramesPerBuffer chunks at the file's sample rate, looping at the end.
type FileSource struct {
	path            string
	framesPerBuffer int
	newTransform    TransformFactory
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a replay source for the WAV file at path.
func NewFileSource(path string, framesPerBuffer int, newTransform TransformFactory) *FileSource {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 512
	}
	return &FileSource{path: path, framesPerBuffer: framesPerBuffer, newTransform: newTransform}
}

// Acquire decodes the file and starts replaying it.
func (f *FileSource) Acquire(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples, sampleRate, err := ReadWAV(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	transform, err := f.newTransform()
	if err != nil {
		return nil, fmt.Errorf("failed to create transform: %w", err)
	}

	chunk := time.Duration(float64(f.framesPerBuffer) / float64(sampleRate) * float64(time.Second))
	p := &player{
		sink:    transform,
		samples: samples,
		frames:  f.framesPerBuffer,
		period:  chunk,
		done:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()

	applog.Infof("Audio: replaying %s (%d samples at %d Hz)", f.path, len(samples), sampleRate)

	return NewSession(transform, p), nil
}

// ReadWAV decodes a PCM WAV file into mono samples in [-1, 1].
func ReadWAV(path string) ([]float32, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s is not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 || buf.Format.SampleRate <= 0 {
		return nil, 0, fmt.Errorf("%s contains no audio", path)
	}

	channels := max(buf.Format.NumChannels, 1)
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	scale := float32(1)
	if bitDepth > 0 {
		scale = 1 / float32(int64(1)<<(bitDepth-1))
	}

	interleaved := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		interleaved[i] = float32(v) * scale
	}

	return downmixInterleaved(interleaved, channels, len(interleaved)/channels), buf.Format.SampleRate, nil
}

// WriteWAV encodes mono samples in [-1, 1] as a 16-bit PCM WAV stream.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		s = max(-1, min(1, s))
		buf.Data[i] = int(s * 32767)
	}

	if err := enc.Write(buf); err != nil {
		return errors.Join(fmt.Errorf("failed to write WAV data: %w", err), enc.Close())
	}
	return enc.Close()
}

// player paces samples into the sink on a ticker.
type player struct {
	sink    analysis.SampleSink
	samples []float32
	frames  int
	period  time.Duration

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

func (p *player) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	pos := 0
	for {
		end := min(pos+p.frames, len(p.samples))
		p.sink.Write(p.samples[pos:end])
		pos = end
		if pos >= len(p.samples) {
			pos = 0
		}

		select {
		case <-p.done:
			return
		case <-ticker.C:
		}
	}
}

// Disconnect stops the replay and waits for the last write to finish.
func (p *player) Disconnect() error {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
	return nil
}
