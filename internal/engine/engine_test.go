// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voiceviz/internal/analysis"
	"voiceviz/internal/audio"
	"voiceviz/internal/sched"
	"voiceviz/internal/silence"
	"voiceviz/pkg/utils"
)

const awaitTimeout = 2 * time.Second

// scriptedTransform returns fixed bins on every read.
type scriptedTransform struct {
	mu     sync.Mutex
	bins   []byte
	err    error
	closed bool
}

func (s *scriptedTransform) Write([]float32) {}

func (s *scriptedTransform) ReadFrequencyBins() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, analysis.ErrClosed
	}
	return s.bins, s.err
}

func (s *scriptedTransform) set(bins []byte) {
	s.mu.Lock()
	s.bins = bins
	s.mu.Unlock()
}

func (s *scriptedTransform) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *scriptedTransform) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func scenarioBins() []byte {
	bins := make([]byte, analysis.BinCount)
	bins[1], bins[5], bins[10] = 200, 30, 10
	return bins
}

type fixture struct {
	m         *sched.Manual
	eng       *Engine
	transform *scriptedTransform
	sink      *utils.MockTransport
	acquires  atomic.Int32
}

func newFixture(t *testing.T, bins []byte) *fixture {
	t.Helper()
	f := &fixture{
		m:         sched.NewManual(time.Unix(1_700_000_000, 0)),
		transform: &scriptedTransform{bins: bins},
		sink:      &utils.MockTransport{},
	}
	src := audio.SourceFunc(func(ctx context.Context) (*audio.Session, error) {
		f.acquires.Add(1)
		return audio.NewSession(f.transform, nil), nil
	})
	f.eng = New(f.m, src, silence.DefaultConfig(), f.sink)
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.eng.Start()
	if !f.m.AwaitPost(awaitTimeout) {
		t.Fatal("acquisition result never arrived")
	}
}

func near(got, want float64) bool { return math.Abs(got-want) < 0.05 }

func TestScenarioSnapshot(t *testing.T) {
	f := newFixture(t, scenarioBins())
	f.start(t)

	st := f.eng.State()
	if !st.Listening {
		t.Fatal("not listening after acquisition")
	}
	if st.Idle {
		t.Error("idle on a loud frame")
	}
	if !near(st.Bands.Low, 78.4) || !near(st.Bands.Mid, 11.8) || !near(st.Bands.High, 3.9) {
		t.Errorf("bands = %v, want ~(78.4, 11.8, 3.9)", st.Bands)
	}
	if f.m.PendingFrames() != 1 {
		t.Errorf("pending frames = %d, want 1", f.m.PendingFrames())
	}
}

func TestFirstFrameRunsOnAcquire(t *testing.T) {
	f := newFixture(t, scenarioBins())
	f.start(t)

	if f.sink.Count() != 1 {
		t.Errorf("publications after acquire = %d, want 1", f.sink.Count())
	}
	if st, ok := f.sink.Last().(State); !ok || !st.Timestamp.Equal(f.m.Now()) {
		t.Errorf("first state = %#v, want a State stamped at acquisition", f.sink.Last())
	}
}

func TestSilentFramesZeroTheSnapshot(t *testing.T) {
	f := newFixture(t, make([]byte, analysis.BinCount))
	f.start(t)

	for range 9 {
		f.m.Advance(1250 * time.Millisecond)
		f.m.Frame()
	}

	st := f.eng.State()
	if st.Bands != (analysis.Snapshot{}) {
		t.Errorf("bands = %v, want exactly (0, 0, 0)", st.Bands)
	}
	if !st.Idle {
		t.Error("idle = false after more than one silence window")
	}
	if !st.Listening {
		t.Error("listening dropped while idle")
	}
}

func TestIdleNotBeforeWindow(t *testing.T) {
	f := newFixture(t, scenarioBins())
	f.start(t)
	start := f.m.Now()
	f.transform.set(nil)

	for {
		f.m.Advance(sched.DefaultFrameInterval)
		f.m.Frame()
		st := f.eng.State()
		elapsed := f.m.Now().Sub(start)

		if elapsed < silence.DefaultWindow && st.Idle {
			t.Fatalf("idle after %v", elapsed)
		}
		if elapsed >= silence.DefaultWindow {
			if !st.Idle {
				t.Fatalf("not idle at %v", elapsed)
			}
			return
		}
	}
}

func TestSoundAfterIdleRestoresBands(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)

	f.m.Advance(silence.DefaultWindow)
	f.m.Frame()
	if !f.eng.State().Idle {
		t.Fatal("expected idle")
	}

	f.transform.set(scenarioBins())
	f.m.Advance(sched.DefaultFrameInterval)
	f.m.Frame()

	st := f.eng.State()
	if st.Idle || !near(st.Bands.Low, 78.4) {
		t.Errorf("state after sound = %+v, want bars", st)
	}
}

func TestReadFailureIsNoSound(t *testing.T) {
	f := newFixture(t, nil)
	f.transform.err = analysis.ErrNoData
	f.start(t)

	st := f.eng.State()
	if !st.Listening {
		t.Fatal("read failure stopped the loop")
	}
	if math.Abs(st.Bands.Max()-analysis.MinBandValue) > 1e-9 {
		t.Errorf("bands = %v, want the floor value", st.Bands)
	}
	if f.m.PendingFrames() != 1 {
		t.Error("next frame not requested after a read failure")
	}
}

func TestStopBeforeStart(t *testing.T) {
	f := newFixture(t, nil)

	f.eng.Stop()
	f.eng.Stop()

	if f.eng.State().Listening {
		t.Error("listening after Stop")
	}
	if f.sink.Count() != 0 {
		t.Errorf("Stop before Start published %d states", f.sink.Count())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	f := newFixture(t, scenarioBins())
	f.start(t)

	f.eng.Stop()
	published := f.sink.Count()
	f.eng.Stop()

	if f.sink.Count() != published {
		t.Error("second Stop published again")
	}
	if f.eng.State().Listening || f.eng.Listening() {
		t.Error("listening after Stop")
	}
	if !f.transform.isClosed() {
		t.Error("transform not closed by Stop")
	}
}

func TestNoPublicationAfterStop(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	for range 5 {
		f.m.Advance(sched.DefaultFrameInterval)
		f.m.Frame()
	}

	f.eng.Stop()
	published := f.sink.Count()
	if last, _ := f.sink.Last().(State); last.Listening {
		t.Error("final state still listening")
	}

	for range 10 {
		f.m.Advance(2 * time.Second)
		f.m.Frame()
	}

	if f.sink.Count() != published {
		t.Errorf("published %d states after Stop", f.sink.Count()-published)
	}
	if f.m.PendingFrames() != 0 || f.m.PendingTimers() != 0 {
		t.Errorf("pending frames=%d timers=%d after Stop", f.m.PendingFrames(), f.m.PendingTimers())
	}
}

func TestStartWhileListeningIsNoop(t *testing.T) {
	f := newFixture(t, scenarioBins())
	f.start(t)

	f.eng.Start()
	if f.m.AwaitPost(50 * time.Millisecond) {
		t.Error("second Start began another acquisition")
	}
	if n := f.acquires.Load(); n != 1 {
		t.Errorf("acquires = %d, want 1", n)
	}
}

func TestAcquireFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"Permission denied", fmt.Errorf("%w: host refused", audio.ErrPermissionDenied)},
		{"Device unavailable", fmt.Errorf("%w: no default input", audio.ErrDeviceUnavailable)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sched.NewManual(time.Unix(0, 0))
			var calls atomic.Int32
			src := audio.SourceFunc(func(ctx context.Context) (*audio.Session, error) {
				calls.Add(1)
				return nil, tt.err
			})
			eng := New(m, src, silence.DefaultConfig())

			eng.Start()
			if !m.AwaitPost(awaitTimeout) {
				t.Fatal("acquisition result never arrived")
			}

			st := eng.State()
			if st.Listening {
				t.Error("listening after a failed acquisition")
			}
			if !strings.Contains(st.Error, tt.err.Error()) {
				t.Errorf("state error = %q, want %q", st.Error, tt.err)
			}

			m.Advance(time.Minute)
			m.Frame()
			if calls.Load() != 1 {
				t.Errorf("acquisition retried %d times", calls.Load()-1)
			}
			if m.PendingFrames() != 0 {
				t.Error("frame loop scheduled without a session")
			}
		})
	}
}

func TestStopDuringAcquireReleasesLateSession(t *testing.T) {
	m := sched.NewManual(time.Unix(0, 0))
	transform := &scriptedTransform{bins: scenarioBins()}
	unblock := make(chan struct{})
	sawCancel := make(chan bool, 1)

	src := audio.SourceFunc(func(ctx context.Context) (*audio.Session, error) {
		<-unblock
		sawCancel <- errors.Is(ctx.Err(), context.Canceled)
		return audio.NewSession(transform, nil), nil
	})
	eng := New(m, src, silence.DefaultConfig())

	eng.Start()
	eng.Stop()
	close(unblock)

	if !m.AwaitPost(awaitTimeout) {
		t.Fatal("acquisition result never arrived")
	}
	if !<-sawCancel {
		t.Error("acquisition context not cancelled by Stop")
	}
	if !transform.isClosed() {
		t.Error("late session was not released")
	}
	if eng.State().Listening || eng.Listening() {
		t.Error("listening after Stop")
	}
	if m.PendingFrames() != 0 {
		t.Error("frame loop started for a late session")
	}
}

func TestRequestStartStopFromOtherGoroutine(t *testing.T) {
	f := newFixture(t, scenarioBins())

	go f.eng.RequestStart()
	if !f.m.AwaitPost(awaitTimeout) { // runs Start
		t.Fatal("RequestStart never posted")
	}
	if !f.m.AwaitPost(awaitTimeout) { // runs the acquisition result
		t.Fatal("acquisition result never arrived")
	}
	if !f.eng.State().Listening {
		t.Fatal("not listening")
	}

	go f.eng.RequestStop()
	if !f.m.AwaitPost(awaitTimeout) {
		t.Fatal("RequestStop never posted")
	}
	if f.eng.State().Listening {
		t.Error("still listening")
	}
}

func TestCloseClosesTransports(t *testing.T) {
	f := newFixture(t, scenarioBins())
	f.start(t)

	if err := f.eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !f.sink.Closed() {
		t.Error("transport not closed")
	}
	if _, ok := f.eng.CurrentState().(State); !ok {
		t.Error("CurrentState does not return a State")
	}
}

func BenchmarkFrame(b *testing.B) {
	m := sched.NewManual(time.Unix(0, 0))
	transform := &scriptedTransform{bins: scenarioBins()}
	src := audio.SourceFunc(func(ctx context.Context) (*audio.Session, error) {
		return audio.NewSession(transform, nil), nil
	})
	eng := New(m, src, silence.DefaultConfig())
	eng.Start()
	m.AwaitPost(awaitTimeout)

	for b.Loop() {
		m.Advance(sched.DefaultFrameInterval)
		m.Frame()
	}
}
