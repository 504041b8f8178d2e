// SPDX-License-Identifier: MIT
/*
Package engine drives the per-frame analysis loop: read the latest bins,
extract the band snapshot, feed the silence tracker, publish the state and
reschedule.

Thread Safety:
  - Start, Stop and the frame callback run on the scheduler goroutine
  - RequestStart and RequestStop post to the scheduler from any goroutine
  - State is safe from any goroutine
*/
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"voiceviz/internal/analysis"
	"voiceviz/internal/audio"
	applog "voiceviz/internal/log"
	"voiceviz/internal/sched"
	"voiceviz/internal/silence"
	"voiceviz/internal/transport"
)

// State is what the engine publishes on every frame.
type State struct {
	Bands     analysis.Snapshot `json:"bands"`
	Listening bool              `json:"listening"`
	Idle      bool              `json:"idle"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"ts"`
}

// Engine owns the capture session, the band snapshot, the silence tracker
// and the listening flag. Only the scheduler goroutine mutates them.
type Engine struct {
	sched      sched.Scheduler
	source     audio.Source
	threshold  float64
	transports []transport.Transport

	tracker   *silence.Tracker
	session   *audio.Session
	frame     sched.CancelFunc
	acquiring context.CancelFunc
	gen       uint64

	state atomic.Pointer[State]
}

// New creates an engine that acquires from source and publishes to the
// given transports.
func New(s sched.Scheduler, source audio.Source, cfg silence.Config, transports ...transport.Transport) *Engine {
	e := &Engine{
		sched:      s,
		source:     source,
		threshold:  cfg.Threshold,
		transports: transports,
	}
	e.tracker = silence.New(s, cfg, e.onIdle)
	e.state.Store(&State{Timestamp: s.Now()})
	return e
}

// AddTransport attaches another consumer. It must be called before the
// scheduler starts running.
func (e *Engine) AddTransport(t transport.Transport) {
	e.transports = append(e.transports, t)
}

// State returns the last published state.
func (e *Engine) State() State {
	return *e.state.Load()
}

// CurrentState is State for consumers that do not know the State type.
func (e *Engine) CurrentState() any {
	return e.State()
}

// RequestStart schedules Start on the scheduler.
func (e *Engine) RequestStart() { e.sched.Post(e.Start) }

// RequestStop schedules Stop on the scheduler.
func (e *Engine) RequestStop() { e.sched.Post(e.Stop) }

// Listening reports whether a session is open and the frame loop is scheduled.
func (e *Engine) Listening() bool {
	return e.session != nil
}

// Start begins acquiring an input session without blocking the scheduler.
// It is a no-op while already acquiring or listening.
func (e *Engine) Start() {
	if e.session != nil || e.acquiring != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.gen++
	gen := e.gen
	e.acquiring = cancel

	applog.Infof("Engine: acquiring audio input")
	go func() {
		session, err := e.source.Acquire(ctx)
		e.sched.Post(func() { e.acquired(gen, session, err) })
	}()
}

func (e *Engine) acquired(gen uint64, session *audio.Session, err error) {
	if gen != e.gen {
		// Stop ran while the acquisition was pending.
		if session != nil {
			if rerr := session.Release(); rerr != nil {
				applog.Warnf("Engine: failed to release late session: %v", rerr)
			}
			applog.Debugf("Engine: released session acquired after stop")
		}
		return
	}

	e.acquiring()
	e.acquiring = nil

	if err != nil {
		applog.Errorf("Engine: failed to acquire audio input: %v", err)
		e.publish(State{Error: err.Error(), Timestamp: e.sched.Now()})
		return
	}

	e.session = session
	now := e.sched.Now()
	e.tracker.Reset(now)
	applog.Infof("Engine: listening")
	e.onFrame(now)
}

// onFrame runs one analysis step and requests the next frame.
func (e *Engine) onFrame(now time.Time) {
	e.frame = nil

	transform := e.session.Transform()
	if transform == nil {
		return
	}

	bins, err := transform.ReadFrequencyBins()
	if err != nil {
		bins = nil
	}

	snap := analysis.Extract(bins)
	if e.tracker.Silenced() && !snap.HasSound(e.threshold) {
		snap = analysis.Snapshot{}
	}
	idle := e.tracker.Observe(snap, now)
	e.publish(State{Bands: snap, Listening: true, Idle: idle, Timestamp: now})

	e.frame = e.sched.RequestFrame(e.onFrame)
}

// onIdle runs when the tracker confirms silence.
func (e *Engine) onIdle() {
	if e.session == nil {
		return
	}
	applog.Debugf("Engine: silence confirmed, clearing bands")
	e.publish(State{Listening: true, Idle: true, Timestamp: e.sched.Now()})
}

// Stop cancels any pending acquisition, frame and idle timer, releases the
// session and publishes a final state with listening false. It is safe to
// call repeatedly and before Start.
func (e *Engine) Stop() {
	active := e.session != nil || e.acquiring != nil
	e.gen++

	if e.acquiring != nil {
		e.acquiring()
		e.acquiring = nil
	}
	if e.frame != nil {
		e.frame()
		e.frame = nil
	}
	e.tracker.Stop()

	if e.session != nil {
		if err := e.session.Release(); err != nil {
			applog.Warnf("Engine: failed to release session: %v", err)
		}
		e.session = nil
	}
	if active {
		applog.Infof("Engine: stopped listening")
		e.publish(State{Timestamp: e.sched.Now()})
	}
}

func (e *Engine) publish(st State) {
	e.state.Store(&st)
	for _, t := range e.transports {
		if err := t.Send(st); err != nil {
			applog.Debugf("Engine: transport send failed: %v", err)
		}
	}
}

// Close stops the engine and closes every transport. It must only be
// called once the scheduler is no longer running.
func (e *Engine) Close() error {
	e.Stop()
	for _, t := range e.transports {
		if err := t.Close(); err != nil {
			applog.Warnf("Engine: failed to close transport: %v", err)
		}
	}
	return nil
}
