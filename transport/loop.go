package transport

import (
	"fmt"
	"sync"

	"github.com/ancware/tunelink/pkg/errors"
)

// LoopTransport is an in-process transport for tests and offline use. A
// standalone instance records everything sent and lets the caller inject
// inbound bytes; a pair created with NewLoopPair delivers each side's sends
// to the other side's data callback synchronously.
type LoopTransport struct {
	callbacks

	mu            sync.Mutex
	name          string
	opened        bool
	peer          *LoopTransport
	sent          [][]byte
	failRemaining int
}

// NewLoopTransport creates a standalone loopback transport
func NewLoopTransport(name string) *LoopTransport {
	return &LoopTransport{name: name}
}

// NewLoopPair creates two connected loopback transports. Bytes sent on one
// side arrive at the other side's data callback.
func NewLoopPair() (*LoopTransport, *LoopTransport) {
	a := NewLoopTransport("loop-a")
	b := NewLoopTransport("loop-b")
	a.peer = b
	b.peer = a
	return a, b
}

// Open marks the transport connected
func (t *LoopTransport) Open() error {
	t.mu.Lock()
	already := t.opened
	t.opened = true
	t.mu.Unlock()

	if !already {
		t.emitState(true)
	}
	return nil
}

// Close marks the transport disconnected
func (t *LoopTransport) Close() error {
	t.mu.Lock()
	was := t.opened
	t.opened = false
	t.mu.Unlock()

	if was {
		t.emitState(false)
	}
	return nil
}

// IsOpen reports the connected flag
func (t *LoopTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened
}

// Send records the buffer and forwards it to the peer when one is attached.
// Pending injected failures consume one send each.
func (t *LoopTransport) Send(data []byte) error {
	t.mu.Lock()
	if !t.opened {
		t.mu.Unlock()
		err := errors.New(ErrNotConnected, "loopback transport is not open", nil)
		t.emitError(err)
		return err
	}
	if t.failRemaining > 0 {
		t.failRemaining--
		t.mu.Unlock()
		err := errors.New(ErrSendFailed, "injected send failure", nil)
		t.emitError(err)
		return err
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	t.sent = append(t.sent, buf)
	peer := t.peer
	t.mu.Unlock()

	if peer != nil && peer.IsOpen() {
		peer.emitData(buf)
	}
	return nil
}

// Description returns the loopback summary
func (t *LoopTransport) Description() string {
	return fmt.Sprintf("loopback %s", t.name)
}

// Kind returns the transport family name
func (t *LoopTransport) Kind() string {
	return "loopback"
}

// InjectReceive delivers bytes to this side's data callback as if the wire
// produced them
func (t *LoopTransport) InjectReceive(data []byte) {
	t.emitData(data)
}

// FailNextSends makes the next n sends fail with a send error
func (t *LoopTransport) FailNextSends(n int) {
	t.mu.Lock()
	t.failRemaining = n
	t.mu.Unlock()
}

// Sent returns a copy of every buffer accepted so far
func (t *LoopTransport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([][]byte, len(t.sent))
	for i, buf := range t.sent {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		out[i] = cp
	}
	return out
}

// ClearSent drops the recorded send history
func (t *LoopTransport) ClearSent() {
	t.mu.Lock()
	t.sent = nil
	t.mu.Unlock()
}
