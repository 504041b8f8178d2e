// SPDX-License-Identifier: MIT
/*
Package sched provides the cooperative execution model the visualizer core
runs on: a single goroutine that executes display-frame callbacks, one-shot
timers and work posted from other goroutines, one at a time.

Thread Safety:
  - Post is safe from any goroutine
  - RequestFrame, AfterFunc and the returned CancelFunc must only be called
    from callbacks already running on the scheduler
  - No two callbacks ever overlap, so state owned by them needs no locks
*/
package sched

import "time"

// DefaultFrameInterval approximates a 60 Hz display refresh.
const DefaultFrameInterval = time.Second / 60

// FrameFunc is invoked once for a frame request with the frame timestamp.
type FrameFunc func(now time.Time)

// CancelFunc cancels a pending frame request or timer. Calling it after the
// callback ran, or more than once, is a no-op.
type CancelFunc func()

// Scheduler is the host environment the analysis loop is driven by.
type Scheduler interface {
	// Now returns the scheduler's current monotonic time.
	Now() time.Time
	// RequestFrame schedules fn for the next display frame only. A callback
	// that wants to keep running must request again.
	RequestFrame(fn FrameFunc) CancelFunc
	// AfterFunc runs fn once on the scheduler after d has elapsed.
	AfterFunc(d time.Duration, fn func()) CancelFunc
	// Post queues fn to run on the scheduler goroutine.
	Post(fn func())
}

type frameRequest struct {
	fn   FrameFunc
	done bool
}

// frameQueue holds the requests for the upcoming frame. Requests made while
// a frame is running land in the following frame.
type frameQueue struct {
	pending []*frameRequest
	spare   []*frameRequest
}

func (q *frameQueue) add(fn FrameFunc) CancelFunc {
	r := &frameRequest{fn: fn}
	q.pending = append(q.pending, r)
	return func() { r.done = true }
}

func (q *frameQueue) run(now time.Time) int {
	batch := q.pending
	q.pending = q.spare[:0]

	ran := 0
	for _, r := range batch {
		if r.done {
			continue
		}
		r.done = true
		r.fn(now)
		ran++
	}

	clear(batch)
	q.spare = batch[:0]
	return ran
}

func (q *frameQueue) len() int {
	n := 0
	for _, r := range q.pending {
		if !r.done {
			n++
		}
	}
	return n
}
