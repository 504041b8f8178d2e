// SPDX-License-Identifier: MIT
package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrRunning is returned when Run is called on a loop that already ran.
var ErrRunning = errors.New("sched: loop already running")

// Loop is the real-time Scheduler. Frames are paced by a ticker at the
// configured refresh interval; timers are backed by time.AfterFunc and
// delivered through the post queue so they never run concurrently with a
// frame.
type Loop struct {
	interval time.Duration
	posts    chan func()
	done     chan struct{}
	started  atomic.Bool
	frames   frameQueue
}

var _ Scheduler = (*Loop)(nil)

// NewLoop creates a loop ticking at interval. Non-positive intervals fall
// back to DefaultFrameInterval.
func NewLoop(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Loop{
		interval: interval,
		posts:    make(chan func(), 256),
		done:     make(chan struct{}),
	}
}

// Interval returns the frame interval.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

func (l *Loop) Now() time.Time {
	return time.Now()
}

func (l *Loop) RequestFrame(fn FrameFunc) CancelFunc {
	return l.frames.add(fn)
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) CancelFunc {
	// fired and cancelled are only touched on the loop goroutine.
	fired := false
	cancelled := false
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if fired || cancelled {
				return
			}
			fired = true
			fn()
		})
	})
	return func() {
		cancelled = true
		t.Stop()
	}
}

// Post queues fn for the loop. After Run has returned, posted work is
// dropped.
func (l *Loop) Post(fn func()) {
	select {
	case l.posts <- fn:
	case <-l.done:
	}
}

// Run executes callbacks until ctx is cancelled. Work already posted when
// ctx is cancelled still runs before Run returns, so a posted teardown is
// never lost on shutdown.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case fn := <-l.posts:
			fn()
		case now := <-ticker.C:
			l.frames.run(now)
		case <-ctx.Done():
			l.drain()
			return nil
		}
	}
}

func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.posts:
			fn()
		default:
			return
		}
	}
}
