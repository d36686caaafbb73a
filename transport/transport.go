// Package transport provides the byte transports the protocol engine runs
// over: a serial link for real hardware and an in-process loopback for tests
// and offline development. The engine borrows a Transport; the caller owns
// its lifecycle.
package transport

import "sync"

// DataHandler receives raw inbound bytes as they arrive
type DataHandler func(data []byte)

// StateHandler is notified when the link connects or disconnects
type StateHandler func(connected bool)

// ErrorHandler receives transport-level failures that have no caller to
// return to, such as read loop errors
type ErrorHandler func(err error)

// Transport is the abstract byte link beneath the protocol engine
type Transport interface {
	// Open establishes the link. Opening an already-open transport is a no-op.
	Open() error

	// Close tears the link down and stops delivery of callbacks
	Close() error

	// IsOpen reports whether the link is currently established
	IsOpen() bool

	// Send writes one outbound buffer completely or fails
	Send(data []byte) error

	// Description returns a human-readable link summary
	Description() string

	// Kind returns the transport family name
	Kind() string

	// OnDataReceived registers the inbound byte callback
	OnDataReceived(handler DataHandler)

	// OnStateChanged registers the connection state callback
	OnStateChanged(handler StateHandler)

	// OnError registers the asynchronous error callback
	OnError(handler ErrorHandler)
}

// callbacks holds the three handler slots shared by every transport
// implementation. Emission is nil-safe so implementations can fire
// unconditionally.
type callbacks struct {
	mu      sync.RWMutex
	onData  DataHandler
	onState StateHandler
	onError ErrorHandler
}

func (c *callbacks) OnDataReceived(handler DataHandler) {
	c.mu.Lock()
	c.onData = handler
	c.mu.Unlock()
}

func (c *callbacks) OnStateChanged(handler StateHandler) {
	c.mu.Lock()
	c.onState = handler
	c.mu.Unlock()
}

func (c *callbacks) OnError(handler ErrorHandler) {
	c.mu.Lock()
	c.onError = handler
	c.mu.Unlock()
}

func (c *callbacks) emitData(data []byte) {
	c.mu.RLock()
	handler := c.onData
	c.mu.RUnlock()
	if handler != nil {
		handler(data)
	}
}

func (c *callbacks) emitState(connected bool) {
	c.mu.RLock()
	handler := c.onState
	c.mu.RUnlock()
	if handler != nil {
		handler(connected)
	}
}

func (c *callbacks) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}
