// SPDX-License-Identifier: MIT
package sched

import (
	"sort"
	"sync"
	"time"
)

type manualTimer struct {
	at   time.Time
	seq  int
	fn   func()
	done bool
}

// Manual is a deterministic Scheduler driven explicitly by the caller.
// Time only moves on Advance and frames only run on Frame, which makes
// frame/timer interleavings reproducible in tests.
type Manual struct {
	mu  sync.Mutex
	now time.Time

	seq    int
	timers []*manualTimer
	frames frameQueue
	posts  chan func()
}

var _ Scheduler = (*Manual)(nil)

// NewManual creates a manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:   start,
		posts: make(chan func(), 256),
	}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) setNow(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

func (m *Manual) RequestFrame(fn FrameFunc) CancelFunc {
	return m.frames.add(fn)
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) CancelFunc {
	m.seq++
	t := &manualTimer{at: m.Now().Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	return func() { t.done = true }
}

// Post may be called from any goroutine. Posted work runs on the next
// RunPending, Advance, Frame or AwaitPost.
func (m *Manual) Post(fn func()) {
	m.posts <- fn
}

// Advance moves the clock forward by d, firing due timers in deadline
// order. The clock reads each timer's deadline while it fires.
func (m *Manual) Advance(d time.Duration) {
	target := m.Now().Add(d)
	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		m.setNow(t.at)
		t.done = true
		t.fn()
		m.RunPending()
	}
	m.setNow(target)
	m.RunPending()
}

func (m *Manual) nextDue(target time.Time) *manualTimer {
	for len(m.timers) > 0 {
		t := m.timers[0]
		if t.done {
			m.timers = m.timers[1:]
			continue
		}
		if t.at.After(target) {
			return nil
		}
		m.timers = m.timers[1:]
		return t
	}
	return nil
}

// Frame runs every frame callback requested so far at the current time and
// returns how many ran.
func (m *Manual) Frame() int {
	m.RunPending()
	n := m.frames.run(m.Now())
	m.RunPending()
	return n
}

// RunPending runs posted work without blocking and returns how many ran.
func (m *Manual) RunPending() int {
	n := 0
	for {
		select {
		case fn := <-m.posts:
			fn()
			n++
		default:
			return n
		}
	}
}

// AwaitPost blocks until one piece of posted work arrives or timeout
// elapses. It runs that work and anything queued behind it.
func (m *Manual) AwaitPost(timeout time.Duration) bool {
	select {
	case fn := <-m.posts:
		fn()
		m.RunPending()
		return true
	case <-time.After(timeout):
		return false
	}
}

// PendingTimers reports the number of armed, uncancelled timers.
func (m *Manual) PendingTimers() int {
	n := 0
	for _, t := range m.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// PendingFrames reports the number of outstanding frame requests.
func (m *Manual) PendingFrames() int {
	return m.frames.len()
}
