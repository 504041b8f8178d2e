// SPDX-License-Identifier: MIT
// Package silence implements the sound/idle hysteresis that keeps the
// visualizer from flickering to idle on momentary dips.
package silence

import (
	"time"

	"voiceviz/internal/analysis"
	"voiceviz/internal/sched"
)

const (
	DefaultWindow    = 10 * time.Second
	DefaultThreshold = 5.0
)

// Config holds the hysteresis thresholds.
type Config struct {
	Window    time.Duration // quiet time before idle is confirmed
	Threshold float64       // band value a frame must exceed to count as sound
}

// DefaultConfig returns a 10 second window with a threshold of 5.
func DefaultConfig() Config {
	return Config{Window: DefaultWindow, Threshold: DefaultThreshold}
}

// Tracker records the last time sound was observed and confirms idle with a
// single deferred timer. It is owned by the scheduler goroutine and is not
// safe for concurrent use.
type Tracker struct {
	sched  sched.Scheduler
	cfg    Config
	onIdle func()

	lastSound time.Time
	confirmed bool
	pending   sched.CancelFunc
}

// New creates a tracker. onIdle, if non-nil, runs on the scheduler when the
// idle timer confirms silence.
func New(s sched.Scheduler, cfg Config, onIdle func()) *Tracker {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Tracker{sched: s, cfg: cfg, onIdle: onIdle}
}

// Reset starts a fresh window at now, as if sound had just been heard.
func (t *Tracker) Reset(now time.Time) {
	t.Stop()
	t.lastSound = now
	t.confirmed = false
}

// Observe feeds one frame's snapshot and reports whether the tracker is idle
// at now.
func (t *Tracker) Observe(s analysis.Snapshot, now time.Time) bool {
	if s.HasSound(t.cfg.Threshold) {
		if now.After(t.lastSound) {
			t.lastSound = now
		}
		t.confirmed = false
		t.cancel()
		return false
	}

	if t.pending == nil && !t.confirmed {
		t.pending = t.sched.AfterFunc(t.cfg.Window, t.fire)
	}
	return t.Idle(now)
}

func (t *Tracker) fire() {
	t.pending = nil
	if t.sched.Now().Sub(t.lastSound) < t.cfg.Window {
		return
	}
	t.confirmed = true
	if t.onIdle != nil {
		t.onIdle()
	}
}

// Idle reports whether at least one window has passed since the last sound.
func (t *Tracker) Idle(now time.Time) bool {
	return t.confirmed || now.Sub(t.lastSound) >= t.cfg.Window
}

// Silenced reports whether the idle timer has confirmed silence. It stays
// true until sound returns or the tracker is reset.
func (t *Tracker) Silenced() bool { return t.confirmed }

// Pending reports whether an idle confirmation timer is armed.
func (t *Tracker) Pending() bool { return t.pending != nil }

// LastSound returns the time sound was last observed.
func (t *Tracker) LastSound() time.Time { return t.lastSound }

// Stop cancels the pending timer, if any.
func (t *Tracker) Stop() {
	t.cancel()
}

func (t *Tracker) cancel() {
	if t.pending != nil {
		t.pending()
		t.pending = nil
	}
}
