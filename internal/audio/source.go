// SPDX-License-Identifier: MIT
/*
Package audio acquires live sample streams for the visualizer:
  - PortAudio microphone capture with channel downmix
  - WAV file replay at real-time pace
  - Capture sessions that release their resources in a fixed order

Thread Safety:
  - Sources may be called from any goroutine; Acquire blocks until the
    device is open or the context is done
  - Capture callbacks only write into the session's transform
  - Session.Release is idempotent and safe for concurrent use
*/
package audio

import (
	"context"
	"errors"
	"sync"

	"voiceviz/internal/analysis"
)

var (
	// ErrPermissionDenied reports that the host refused access to the input device.
	ErrPermissionDenied = errors.New("audio: permission denied")
	// ErrDeviceUnavailable reports that no usable input device could be opened.
	ErrDeviceUnavailable = errors.New("audio: device unavailable")
)

// Source opens capture sessions.
type Source interface {
	Acquire(ctx context.Context) (*Session, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (*Session, error)

func (f SourceFunc) Acquire(ctx context.Context) (*Session, error) { return f(ctx) }

// TransformFactory builds the transform a new session feeds.
type TransformFactory func() (analysis.Transform, error)

// Stream is the node that moves samples from the device into the transform.
type Stream interface {
	Disconnect() error
}

// Track is an underlying device track.
type Track interface {
	Stop() error
}

// Session binds a transform to the stream feeding it and the device
// tracks behind that stream.
type Session struct {
	mu        sync.Mutex
	transform analysis.Transform
	stream    Stream
	tracks    []Track
	released  bool
}

// NewSession creates a session. Any of the parts may be nil.
func NewSession(transform analysis.Transform, stream Stream, tracks ...Track) *Session {
	return &Session{transform: transform, stream: stream, tracks: tracks}
}

// Transform returns the session's transform, or nil once released.
func (s *Session) Transform() analysis.Transform {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	return s.transform
}

// Released reports whether Release has been called.
func (s *Session) Released() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Release closes the transform, disconnects the stream and stops every
// track. Only the first call does work; its errors are joined.
func (s *Session) Release() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	transform, stream, tracks := s.transform, s.stream, s.tracks
	s.transform, s.stream, s.tracks = nil, nil, nil
	s.mu.Unlock()

	var errs []error
	if transform != nil {
		errs = append(errs, transform.Close())
	}
	if stream != nil {
		errs = append(errs, stream.Disconnect())
	}
	for _, t := range tracks {
		if t != nil {
			errs = append(errs, t.Stop())
		}
	}
	return errors.Join(errs...)
}
