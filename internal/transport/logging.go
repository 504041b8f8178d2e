// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	applog "voiceviz/internal/log"
)

// LoggingTransport implements the Transport interface by logging every
// Nth message at debug level.
type LoggingTransport struct {
	every uint64
	seen  atomic.Uint64
}

// NewLoggingTransport creates a new LoggingTransport. every <= 1 logs each message.
func NewLoggingTransport(every int) *LoggingTransport {
	if every < 1 {
		every = 1
	}
	applog.Infof("Transport: Using LoggingTransport (every %d)", every)
	return &LoggingTransport{every: uint64(every)}
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	n := lt.seen.Add(1)
	if (n-1)%lt.every == 0 {
		applog.Debugf("LoggingTransport: #%d %+v", n, data)
	}
	return nil
}

// Seen returns how many messages were received.
func (lt *LoggingTransport) Seen() uint64 {
	return lt.seen.Load()
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LoggingTransport: Close called after %d messages", lt.seen.Load())
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
