// SPDX-License-Identifier: MIT
package silence

import (
	"testing"
	"time"

	"voiceviz/internal/analysis"
	"voiceviz/internal/sched"
)

const frame = 16 * time.Millisecond

var (
	loud  = analysis.Snapshot{Low: 40, Mid: 12, High: 3}
	quiet = analysis.Snapshot{Low: 2, Mid: 1, High: 0.4}
)

func newTracker(t *testing.T) (*Tracker, *sched.Manual, *int) {
	t.Helper()
	m := sched.NewManual(time.Unix(1000, 0))
	fired := 0
	tr := New(m, DefaultConfig(), func() { fired++ })
	tr.Reset(m.Now())
	return tr, m, &fired
}

func TestIdleAtFirstFrameAfterWindow(t *testing.T) {
	tr, m, _ := newTracker(t)
	start := m.Now()

	if tr.Observe(loud, start) {
		t.Fatal("idle on a loud frame")
	}

	for {
		m.Advance(frame)
		now := m.Now()
		idle := tr.Observe(quiet, now)
		elapsed := now.Sub(start)

		if elapsed < DefaultWindow && idle {
			t.Fatalf("idle after %v, before the window elapsed", elapsed)
		}
		if elapsed >= DefaultWindow {
			if !idle {
				t.Fatalf("not idle after %v", elapsed)
			}
			break
		}
	}
}

func TestSingleTimerWhileQuiet(t *testing.T) {
	tr, m, _ := newTracker(t)

	for range 50 {
		tr.Observe(quiet, m.Now())
		m.Advance(frame)
	}

	if got := m.PendingTimers(); got != 1 {
		t.Errorf("pending timers = %d, want 1", got)
	}
	if !tr.Pending() {
		t.Error("Pending() = false with an armed timer")
	}
}

func TestTimerConfirmsIdle(t *testing.T) {
	tr, m, fired := newTracker(t)

	tr.Observe(quiet, m.Now())
	m.Advance(DefaultWindow - time.Millisecond)
	if tr.Silenced() || *fired != 0 {
		t.Fatal("confirmed before the window elapsed")
	}

	m.Advance(time.Millisecond)
	if !tr.Silenced() {
		t.Fatal("timer did not confirm idle")
	}
	if *fired != 1 {
		t.Errorf("onIdle fired %d times, want 1", *fired)
	}

	// Confirmed idle does not re-arm on further quiet frames.
	for range 10 {
		m.Advance(frame)
		tr.Observe(quiet, m.Now())
	}
	if m.PendingTimers() != 0 {
		t.Errorf("timer re-armed while idle was confirmed")
	}
	if *fired != 1 {
		t.Errorf("onIdle fired %d times, want 1", *fired)
	}
}

func TestSoundCancelsPendingTimer(t *testing.T) {
	tr, m, fired := newTracker(t)

	tr.Observe(quiet, m.Now())
	m.Advance(5 * time.Second)

	soundAt := m.Now()
	tr.Observe(loud, soundAt)
	if m.PendingTimers() != 0 {
		t.Fatal("sound did not cancel the timer")
	}

	// The window restarts from the new last-sound time.
	m.Advance(frame)
	tr.Observe(quiet, m.Now())
	m.Advance(DefaultWindow - 2*frame)
	if tr.Idle(m.Now()) || *fired != 0 {
		t.Fatalf("idle %v after the last sound", m.Now().Sub(soundAt))
	}

	m.Advance(2 * frame)
	if !tr.Silenced() || *fired != 1 {
		t.Errorf("silenced=%v fired=%d, want true/1", tr.Silenced(), *fired)
	}
	if got := tr.LastSound(); !got.Equal(soundAt) {
		t.Errorf("LastSound() = %v, want %v", got, soundAt)
	}
}

func TestSoundLeavesConfirmedIdle(t *testing.T) {
	tr, m, _ := newTracker(t)

	tr.Observe(quiet, m.Now())
	m.Advance(DefaultWindow)
	if !tr.Silenced() {
		t.Fatal("expected confirmed idle")
	}

	if tr.Observe(loud, m.Now()) {
		t.Error("still idle after sound")
	}
	if tr.Silenced() {
		t.Error("Silenced() stayed true after sound")
	}
}

func TestLastSoundNeverDecreases(t *testing.T) {
	tr, m, _ := newTracker(t)
	now := m.Now()

	tr.Observe(loud, now)
	tr.Observe(loud, now.Add(-time.Second))

	if got := tr.LastSound(); !got.Equal(now) {
		t.Errorf("LastSound() = %v, want %v", got, now)
	}
}

func TestThresholdIsExclusive(t *testing.T) {
	tr, m, _ := newTracker(t)

	edge := analysis.Snapshot{Low: DefaultThreshold}
	tr.Observe(edge, m.Now())
	if !tr.Pending() {
		t.Error("a band exactly at the threshold should count as quiet")
	}
}

func TestStopCancelsTimer(t *testing.T) {
	tr, m, fired := newTracker(t)

	tr.Observe(quiet, m.Now())
	tr.Stop()
	tr.Stop()

	m.Advance(2 * DefaultWindow)
	if *fired != 0 {
		t.Errorf("onIdle fired after Stop")
	}
	if m.PendingTimers() != 0 {
		t.Errorf("pending timers = %d after Stop", m.PendingTimers())
	}
}

func TestResetClearsConfirmation(t *testing.T) {
	tr, m, _ := newTracker(t)

	tr.Observe(quiet, m.Now())
	m.Advance(DefaultWindow)
	if !tr.Silenced() {
		t.Fatal("expected confirmed idle")
	}

	tr.Reset(m.Now())
	if tr.Silenced() || tr.Idle(m.Now()) {
		t.Error("Reset did not start a fresh window")
	}
}
