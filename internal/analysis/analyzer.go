// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	applog "voiceviz/internal/log"
	"voiceviz/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// FFTSize is fixed and small: only coarse band energies are needed, and
	// a short transform keeps the analysis latency at a few milliseconds.
	FFTSize = 32
	// BinCount is the number of frequency bins served per frame.
	BinCount = FFTSize / 2

	DefaultSmoothing   = 0.8
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
)

var (
	// ErrNoData is returned by ReadFrequencyBins before any sample arrived.
	ErrNoData = errors.New("analysis: no frequency data available")
	// ErrClosed is returned by ReadFrequencyBins after Close.
	ErrClosed = errors.New("analysis: analyzer closed")
)

// AnalyzerConfig controls how raw magnitudes are mapped to byte bins.
type AnalyzerConfig struct {
	Window      WindowFunc // Window applied to the time-domain block.
	Smoothing   float64    // Temporal smoothing constant in [0, 1).
	MinDecibels float64    // Level mapped to byte 0.
	MaxDecibels float64    // Level mapped to byte 255.
}

// DefaultAnalyzerConfig returns the standard analyser settings.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		Window:      Blackman,
		Smoothing:   DefaultSmoothing,
		MinDecibels: DefaultMinDecibels,
		MaxDecibels: DefaultMaxDecibels,
	}
}

// Pre-allocated buffers for the read path. Owned by the single reader.
type analyzerWorkspace struct {
	input     []float64    // Windowed block, oldest sample first.
	fftOutput []complex128 // FFT complex results (FFTSize/2 + 1).
	smoothed  []float64    // Smoothed linear magnitudes per bin.
	bins      []byte       // Byte magnitudes handed to the reader.
	window    []float64    // Pre-calculated window coefficients.
}

// Analyzer is the spectral analyzer bound to a capture stream. The capture
// goroutine writes samples into a ring holding the latest FFTSize samples;
// the frame loop reads bins computed from whatever is in the ring at that
// moment.
type Analyzer struct {
	cfg           AnalyzerConfig
	fftCalculator *fourier.FFT
	scale         float64 // 255 / (MaxDecibels - MinDecibels)

	mu      sync.Mutex // Protects ring, pos, hasData, closed.
	ring    [FFTSize]float32
	pos     int
	hasData bool
	closed  bool

	workspace analyzerWorkspace
}

var _ Transform = (*Analyzer)(nil)

// NewAnalyzer creates an analyzer with the fixed FFTSize transform.
func NewAnalyzer(cfg AnalyzerConfig) (*Analyzer, error) {
	if !bitint.IsPowerOfTwo(FFTSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", FFTSize)
	}
	if cfg.Smoothing < 0 || cfg.Smoothing >= 1 {
		return nil, fmt.Errorf("smoothing must be in [0, 1), got %f", cfg.Smoothing)
	}
	if cfg.MinDecibels >= cfg.MaxDecibels {
		return nil, fmt.Errorf("min decibels (%.1f) must be below max decibels (%.1f)",
			cfg.MinDecibels, cfg.MaxDecibels)
	}

	windowCoeffs := make([]float64, FFTSize)
	applyWindow(windowCoeffs, cfg.Window)

	applog.Debugf("Analysis: Initializing Analyzer (Size: %d, Window: %v, Smoothing: %.2f, Range: %.0f..%.0f dB)",
		FFTSize, cfg.Window, cfg.Smoothing, cfg.MinDecibels, cfg.MaxDecibels)

	return &Analyzer{
		cfg:           cfg,
		fftCalculator: fourier.NewFFT(FFTSize),
		scale:         255 / (cfg.MaxDecibels - cfg.MinDecibels),
		workspace: analyzerWorkspace{
			input:     make([]float64, FFTSize),
			fftOutput: make([]complex128, FFTSize/2+1),
			smoothed:  make([]float64, BinCount),
			bins:      make([]byte, BinCount),
			window:    windowCoeffs,
		},
	}, nil
}

// Write appends samples to the ring, keeping only the latest FFTSize.
// Safe to call from the capture callback; never blocks on the reader for
// longer than a copy.
func (a *Analyzer) Write(samples []float32) {
	if len(samples) > FFTSize {
		samples = samples[len(samples)-FFTSize:]
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || len(samples) == 0 {
		return
	}
	for _, s := range samples {
		a.ring[a.pos] = s
		a.pos = (a.pos + 1) & (FFTSize - 1)
	}
	a.hasData = true
}

// ReadFrequencyBins computes the byte magnitude of each of the BinCount
// bins from the latest samples. The returned slice is reused by the next
// call. Only one goroutine may read.
func (a *Analyzer) ReadFrequencyBins() ([]byte, error) {
	ws := &a.workspace

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrClosed
	}
	if !a.hasData {
		a.mu.Unlock()
		return nil, ErrNoData
	}
	// Unroll the ring oldest-first while applying the window.
	for i := range FFTSize {
		s := a.ring[(a.pos+i)&(FFTSize-1)]
		ws.input[i] = float64(s) * ws.window[i]
	}
	a.mu.Unlock()

	a.fftCalculator.Coefficients(ws.fftOutput, ws.input)

	tau := a.cfg.Smoothing
	for k := range BinCount {
		magnitude := cmplx.Abs(ws.fftOutput[k]) / FFTSize
		ws.smoothed[k] = tau*ws.smoothed[k] + (1-tau)*magnitude
		ws.bins[k] = a.toByte(ws.smoothed[k])
	}

	return ws.bins, nil
}

// toByte maps a linear magnitude onto [0, 255] across the decibel range.
func (a *Analyzer) toByte(magnitude float64) byte {
	if magnitude <= 0 {
		return 0
	}
	db := 20 * math.Log10(magnitude)
	scaled := math.Floor(a.scale * (db - a.cfg.MinDecibels))
	switch {
	case scaled <= 0:
		return 0
	case scaled >= 255:
		return 255
	default:
		return byte(scaled)
	}
}

// Config returns the analyzer configuration.
func (a *Analyzer) Config() AnalyzerConfig {
	return a.cfg
}

// Close marks the analyzer closed. Further writes are dropped and reads
// return ErrClosed. Safe to call more than once.
func (a *Analyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		applog.Debugf("Analysis: Closing Analyzer")
	}
	return nil
}
