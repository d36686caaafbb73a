package sdk

import (
	"github.com/ancware/tunelink/protocol"
)

// defaultSubscribeBuffer is the channel depth used when the caller passes
// zero or less
const defaultSubscribeBuffer = 16

// Subscribe registers a channel receiving every decoded inbound message.
// A slow receiver loses messages rather than stalling the link; size the
// buffer for the expected burst. The cancel function unregisters and closes
// the channel, as does Close.
func (c *Client) Subscribe(buffer int) (<-chan *protocol.DecodedMessage, func()) {
	return c.subscribe(subscriber{all: true}, buffer)
}

// SubscribeType is Subscribe restricted to one message type
func (c *Client) SubscribeType(t protocol.MessageType, buffer int) (<-chan *protocol.DecodedMessage, func()) {
	return c.subscribe(subscriber{filter: t}, buffer)
}

func (c *Client) subscribe(sub subscriber, buffer int) (<-chan *protocol.DecodedMessage, func()) {
	if buffer <= 0 {
		buffer = defaultSubscribeBuffer
	}
	sub.ch = make(chan *protocol.DecodedMessage, buffer)

	c.subMu.Lock()
	c.subSeq++
	id := c.subSeq
	c.subs[id] = sub
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		if s, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(s.ch)
		}
		c.subMu.Unlock()
	}
	return sub.ch, cancel
}

// broadcast fans a message out to matching subscribers without blocking.
// Sends happen under the mutex so cancellation cannot close a channel
// mid-send.
func (c *Client) broadcast(msg *protocol.DecodedMessage) {
	c.subMu.Lock()
	for _, sub := range c.subs {
		if !sub.all && sub.filter != msg.Type {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
	c.subMu.Unlock()
}
