// SPDX-License-Identifier: MIT
package analysis

// SampleSink receives raw mono audio samples in the range [-1, 1]. It is
// called from the capture goroutine, so implementations must not block.
type SampleSink interface {
	Write(samples []float32)
}

// BinReader exposes the most recent frequency-bin magnitudes. Each call
// returns the latest frame only; nothing is queued between calls.
type BinReader interface {
	ReadFrequencyBins() ([]byte, error)
}

// Transform is a frequency-domain transform bound to a capture stream. It
// accepts samples on one side and serves per-frame bins on the other.
type Transform interface {
	SampleSink
	BinReader
	Close() error // Close releases the transform; later reads fail with ErrClosed.
}
