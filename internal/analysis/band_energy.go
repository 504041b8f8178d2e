// SPDX-License-Identifier: MIT
package analysis

import "fmt"

// Representative bins for the three visualized bands. With the 32-point
// transform each bin spans sampleRate/32 Hz.
const (
	LowBin  = 1
	MidBin  = 5
	HighBin = 10

	maxMagnitude = 255.0
	fullScale    = 100.0
)

// MinBandValue is the smallest value a band can take while a session is
// open. Bins are floored at 1 so a live but silent stream never reads
// identical to no stream at all.
const MinBandValue = fullScale / maxMagnitude

// Snapshot holds the normalized low/mid/high intensities of one frame, each
// in [0, 100]. The zero Snapshot is what an idle or stopped visualizer
// shows.
type Snapshot struct {
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

// Extract samples the low, mid and high bins and normalizes them to the
// 0-100 scale. Bins missing from a short slice read as zero. Extract is a
// pure function of bins[LowBin], bins[MidBin] and bins[HighBin].
func Extract(bins []byte) Snapshot {
	return Snapshot{
		Low:  normalizeBin(bins, LowBin),
		Mid:  normalizeBin(bins, MidBin),
		High: normalizeBin(bins, HighBin),
	}
}

func normalizeBin(bins []byte, idx int) float64 {
	var v byte
	if idx < len(bins) {
		v = bins[idx]
	}
	if v < 1 {
		v = 1
	}
	return float64(v) * fullScale / maxMagnitude
}

// Max returns the loudest of the three bands.
func (s Snapshot) Max() float64 {
	return max(s.Low, s.Mid, s.High)
}

// HasSound reports whether any band exceeds threshold.
func (s Snapshot) HasSound(threshold float64) bool {
	return s.Max() > threshold
}

// Values returns the bands in low, mid, high order.
func (s Snapshot) Values() [3]float64 {
	return [3]float64{s.Low, s.Mid, s.High}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", s.Low, s.Mid, s.High)
}
