// SPDX-License-Identifier: MIT
package transport

import "errors"

// ErrClosed is returned by Send after a transport has been closed.
var ErrClosed = errors.New("transport: closed")

// Transport defines a generic interface for sending published state.
// Implementations must be thread-safe and must not block the caller.
type Transport interface {
	Send(data any) error
	Close() error
}

// Controller is the control surface a transport exposes to remote clients.
// Implementations must be safe to call from any goroutine.
type Controller interface {
	RequestStart()
	RequestStop()
	CurrentState() any
}
