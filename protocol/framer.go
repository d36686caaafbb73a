package protocol

import (
	"bytes"

	"github.com/ancware/tunelink/pkg/errors"
)

// PacketFramer reassembles `0xAA | LEN | payload | 0x55` frames from an
// arbitrarily chunked byte stream. The only state is the accumulation
// buffer, so a frame split across any number of reads is handled the same
// as one delivered whole. Not safe for concurrent use; the owner serializes
// access.
type PacketFramer struct {
	buf       []byte
	maxBuffer int
	resyncs   uint64
	discarded uint64
}

// NewPacketFramer creates a framer with the default buffer bound.
func NewPacketFramer() *PacketFramer {
	return NewPacketFramerWithLimit(DefaultMaxBuffer)
}

// NewPacketFramerWithLimit creates a framer with a custom buffer bound.
// Limits below MinFrameSize are raised to the default.
func NewPacketFramerWithLimit(limit int) *PacketFramer {
	if limit < MinFrameSize {
		limit = DefaultMaxBuffer
	}
	return &PacketFramer{maxBuffer: limit}
}

// Feed appends received bytes and extracts every complete frame now
// available, in arrival order. Payloads are copies; callers may retain them.
// When the buffer bound is exceeded the whole buffer is dropped and an
// overflow error returned; the framer stays usable.
func (f *PacketFramer) Feed(p []byte) ([][]byte, error) {
	f.buf = append(f.buf, p...)

	if len(f.buf) > f.maxBuffer {
		dropped := len(f.buf)
		f.discarded += uint64(dropped)
		f.buf = f.buf[:0]
		return nil, errors.Newf(ErrFrameBufferOverflow, "frame buffer exceeded %d bytes, dropped %d", f.maxBuffer, dropped)
	}

	var frames [][]byte
	for {
		idx := bytes.IndexByte(f.buf, FrameHeader)
		if idx < 0 {
			// No header anywhere: nothing in the buffer can start a frame.
			f.discarded += uint64(len(f.buf))
			f.buf = f.buf[:0]
			break
		}
		if idx > 0 {
			f.discarded += uint64(idx)
			f.consume(idx)
		}

		if len(f.buf) < 2 {
			// Header seen, length byte still in flight.
			break
		}
		payloadLen := int(f.buf[1])
		if len(f.buf) < MinFrameSize+payloadLen {
			break
		}

		if f.buf[2+payloadLen] == FrameFooter {
			payload := make([]byte, payloadLen)
			copy(payload, f.buf[2:2+payloadLen])
			frames = append(frames, payload)
			f.consume(MinFrameSize + payloadLen)
			continue
		}

		// Footer mismatch: the header byte was payload of some other stream
		// position. Skip exactly one byte and rescan.
		f.resyncs++
		f.discarded++
		f.consume(1)
	}

	return frames, nil
}

// Reset clears the accumulation buffer, e.g. after a reconnect.
func (f *PacketFramer) Reset() {
	f.buf = f.buf[:0]
}

// Buffered returns the number of bytes waiting for frame completion.
func (f *PacketFramer) Buffered() int {
	return len(f.buf)
}

// Resyncs returns how many single-byte skips bad footers have forced.
func (f *PacketFramer) Resyncs() uint64 {
	return f.resyncs
}

// BytesDiscarded returns the total bytes dropped as noise, resync skips or
// overflow.
func (f *PacketFramer) BytesDiscarded() uint64 {
	return f.discarded
}

func (f *PacketFramer) consume(n int) {
	f.buf = f.buf[:copy(f.buf, f.buf[n:])]
}

// AppendFrame appends a complete frame around payload. Payloads beyond
// MaxFramePayload cannot be represented in the one-byte length field and are
// rejected; nothing is appended in that case.
func AppendFrame(dst []byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxFramePayload {
		return dst, errors.Newf(ErrFrameTooLarge, "payload of %d bytes exceeds frame capacity %d", len(payload), MaxFramePayload)
	}
	dst = append(dst, FrameHeader, byte(len(payload)))
	dst = append(dst, payload...)
	return append(dst, FrameFooter), nil
}

// BuildFrame returns a freshly allocated frame around payload.
func BuildFrame(payload []byte) ([]byte, error) {
	return AppendFrame(make([]byte, 0, MinFrameSize+len(payload)), payload)
}
