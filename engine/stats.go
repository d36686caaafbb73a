package engine

import (
	"sync"
	"time"

	"github.com/ancware/tunelink/protocol"
)

// TypeStats counts traffic for one message type.
type TypeStats struct {
	Sent         uint64 `json:"sent"`
	Received     uint64 `json:"received"`
	EncodeErrors uint64 `json:"encode_errors"`
	DecodeErrors uint64 `json:"decode_errors"`
}

// Stats is a point-in-time snapshot of link and pipeline counters.
type Stats struct {
	BytesSent      uint64 `json:"bytes_sent"`
	BytesReceived  uint64 `json:"bytes_received"`
	FramesSent     uint64 `json:"frames_sent"`
	FramesReceived uint64 `json:"frames_received"`
	Resyncs        uint64 `json:"resyncs"`
	BytesDiscarded uint64 `json:"bytes_discarded"`
	DecodeErrors   uint64 `json:"decode_errors"`
	EncodeErrors   uint64 `json:"encode_errors"`
	SendErrors     uint64 `json:"send_errors"`
	Retries        uint64 `json:"retries"`
	Exhausted      uint64 `json:"exhausted"`
	Rejected       uint64 `json:"rejected"`

	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`

	ByType map[protocol.MessageType]TypeStats `json:"by_type,omitempty"`
}

// statsCollector accumulates counters behind one mutex. The retry timer and
// transport goroutines record into it next to engine calls, so snapshots must
// not race.
type statsCollector struct {
	mu     sync.Mutex
	stats  Stats
	byType map[protocol.MessageType]TypeStats

	// Framer counters are monotonic; rebasing stores their values at the
	// last reset so snapshots report deltas.
	baseResyncs   uint64
	baseDiscarded uint64
}

func newStatsCollector() *statsCollector {
	return &statsCollector{byType: make(map[protocol.MessageType]TypeStats)}
}

func (c *statsCollector) bytesReceived(n int) {
	c.mu.Lock()
	c.stats.BytesReceived += uint64(n)
	c.mu.Unlock()
}

func (c *statsCollector) frameSent(t protocol.MessageType, n int) {
	c.mu.Lock()
	c.stats.BytesSent += uint64(n)
	c.stats.FramesSent++
	ts := c.byType[t]
	ts.Sent++
	c.byType[t] = ts
	c.mu.Unlock()
}

// frameResent counts a retry-path send, whose frame is opaque bytes with no
// message type attached.
func (c *statsCollector) frameResent(n int) {
	c.mu.Lock()
	c.stats.BytesSent += uint64(n)
	c.stats.FramesSent++
	c.stats.Retries++
	c.mu.Unlock()
}

func (c *statsCollector) frameReceived(t protocol.MessageType) {
	c.mu.Lock()
	c.stats.FramesReceived++
	ts := c.byType[t]
	ts.Received++
	c.byType[t] = ts
	c.mu.Unlock()
}

func (c *statsCollector) encodeError(t protocol.MessageType, err error) {
	c.mu.Lock()
	c.stats.EncodeErrors++
	ts := c.byType[t]
	ts.EncodeErrors++
	c.byType[t] = ts
	c.noteErrorLocked(err)
	c.mu.Unlock()
}

// decodeError records a failed inbound frame. Failures before the envelope
// resolves a type pass typeKnown false.
func (c *statsCollector) decodeError(t protocol.MessageType, typeKnown bool, err error) {
	c.mu.Lock()
	c.stats.DecodeErrors++
	if typeKnown {
		ts := c.byType[t]
		ts.DecodeErrors++
		c.byType[t] = ts
	}
	c.noteErrorLocked(err)
	c.mu.Unlock()
}

func (c *statsCollector) sendError(err error) {
	c.mu.Lock()
	c.stats.SendErrors++
	c.noteErrorLocked(err)
	c.mu.Unlock()
}

func (c *statsCollector) exhausted(err error) {
	c.mu.Lock()
	c.stats.Exhausted++
	c.noteErrorLocked(err)
	c.mu.Unlock()
}

func (c *statsCollector) rejected(reason string) {
	c.mu.Lock()
	c.stats.Rejected++
	c.stats.LastError = reason
	c.stats.LastErrorAt = time.Now()
	c.mu.Unlock()
}

func (c *statsCollector) noteErrorLocked(err error) {
	if err == nil {
		return
	}
	c.stats.LastError = err.Error()
	c.stats.LastErrorAt = time.Now()
}

// snapshot copies the counters, folding in the framer's live resync numbers.
func (c *statsCollector) snapshot(resyncs, discarded uint64) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.stats
	out.Resyncs = resyncs - c.baseResyncs
	out.BytesDiscarded = discarded - c.baseDiscarded
	out.ByType = make(map[protocol.MessageType]TypeStats, len(c.byType))
	for t, ts := range c.byType {
		out.ByType[t] = ts
	}
	return out
}

// rebase zeroes the counters and records the framer's current totals as the
// new baseline.
func (c *statsCollector) rebase(resyncs, discarded uint64) {
	c.mu.Lock()
	c.stats = Stats{}
	c.byType = make(map[protocol.MessageType]TypeStats)
	c.baseResyncs = resyncs
	c.baseDiscarded = discarded
	c.mu.Unlock()
}
