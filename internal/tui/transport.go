// SPDX-License-Identifier: MIT
package tui

import (
	"sync"

	"voiceviz/internal/engine"

	tea "github.com/charmbracelet/bubbletea"
)

// ProgramTransport forwards engine states to a running bubbletea program.
// Only the latest state is kept, so a slow renderer never stalls the
// sender.
type ProgramTransport struct {
	send func(tea.Msg)

	mu      sync.Mutex
	latest  *engine.State
	notify  chan struct{}
	done    chan struct{}
	closing sync.Once
}

// NewProgramTransport creates a transport delivering to p.
func NewProgramTransport(p *tea.Program) *ProgramTransport {
	return newProgramTransport(p.Send)
}

func newProgramTransport(send func(tea.Msg)) *ProgramTransport {
	t := &ProgramTransport{
		send:   send,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go t.forward()
	return t
}

func (t *ProgramTransport) forward() {
	for {
		select {
		case <-t.done:
			return
		case <-t.notify:
		}

		t.mu.Lock()
		st := t.latest
		t.latest = nil
		t.mu.Unlock()

		if st != nil {
			t.send(StateMsg(*st))
		}
	}
}

// Send queues data if it is an engine.State; other values are ignored.
func (t *ProgramTransport) Send(data any) error {
	st, ok := data.(engine.State)
	if !ok {
		return nil
	}

	t.mu.Lock()
	t.latest = &st
	t.mu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close stops forwarding. It does not wait for a send blocked on a program
// that never started.
func (t *ProgramTransport) Close() error {
	t.closing.Do(func() { close(t.done) })
	return nil
}
