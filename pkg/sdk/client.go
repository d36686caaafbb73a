// Package sdk is the embedding API for the tuning link. It owns a transport
// and a protocol engine, serializes access to them, and exposes typed
// parameter setters, a last-known-value cache and a subscription channel for
// inbound messages. Programs that want the full daemon surface (history,
// captures, gateway) should run the bench instead; the SDK is the thin
// in-process client.
package sdk

import (
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"github.com/ancware/tunelink/engine"
	"github.com/ancware/tunelink/protocol"
	"github.com/ancware/tunelink/transport"
)

// Options represents client options
type Options struct {
	// Link selection. Transport wins when set; otherwise Loopback selects the
	// in-process link and Port selects a serial device.
	Transport transport.Transport
	Loopback  bool
	Port      string

	// Serial link tuning
	BaudRate      int           // default 115200
	AutoReconnect bool          // redial the device when the link drops
	SendTimeout   time.Duration // write deadline, default 3 seconds
	CheckInterval time.Duration // link watchdog period, default 5 seconds

	// Protocol
	LocalVersion  string // version offered to peers, default 1.0.0
	Compatibility string // minor (default), strict, backward or forward
	DisableRetry  bool
	MaxRetries    int           // resend attempts per queued frame
	RetryInterval time.Duration // pause between resend sweeps
	MappingFile   string        // parameter mapping overlay, optional

	// Logging
	Logger *zap.Logger
}

// SetDefaults sets default values for options
func (o *Options) SetDefaults() *Options {
	if o.BaudRate == 0 {
		o.BaudRate = transport.DefaultBaudRate
	}

	if o.SendTimeout == 0 {
		o.SendTimeout = transport.DefaultSendTimeout
	}

	if o.CheckInterval == 0 {
		o.CheckInterval = transport.DefaultCheckInterval
	}

	if o.LocalVersion == "" {
		o.LocalVersion = engine.ProtocolVersion
	}

	if o.Compatibility == "" {
		o.Compatibility = "minor"
	}

	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	return o
}

// ParseDSN parses a link DSN into Options. Two schemes are understood:
//
//	serial:///dev/ttyUSB0?baud=230400&reconnect=1
//	serial://COM3
//	loop://
//
// Both schemes accept version= and compat= to tune the protocol gate.
func ParseDSN(dsn string) (*Options, error) {
	opt := &Options{}
	return opt, opt.fromDSN(dsn)
}

// fromDSN parses a DSN string
func (o *Options) fromDSN(dsn string) error {
	u, err := url.Parse(dsn)
	if err != nil {
		return errors.Wrap(err, "parse dsn")
	}

	q := u.Query()

	switch u.Scheme {
	case "serial":
		port := u.Path
		if port == "" {
			port = u.Host
		}
		if port == "" {
			return ErrMissingDevice
		}
		o.Port = port

		if v := q.Get("baud"); v != "" {
			baud, err := strconv.Atoi(v)
			if err != nil {
				return errors.Wrap(err, "parse baud rate")
			}
			o.BaudRate = baud
		}
		if v := q.Get("reconnect"); v != "" {
			o.AutoReconnect = v == "1" || strings.EqualFold(v, "true")
		}
	case "loop":
		o.Loopback = true
	case "":
		return errors.New("dsn needs a scheme, serial:// or loop://")
	default:
		return errors.Errorf("unknown dsn scheme %q", u.Scheme)
	}

	if v := q.Get("version"); v != "" {
		o.LocalVersion = v
	}
	if v := q.Get("compat"); v != "" {
		o.Compatibility = v
	}

	return nil
}

// subscriber is one registered message channel, optionally type-filtered
type subscriber struct {
	ch     chan *protocol.DecodedMessage
	filter protocol.MessageType
	all    bool
}

// Client is a tuning link client. It owns the transport lifecycle and holds
// the engine's serialization contract: every send and every inbound byte
// batch passes through one mutex.
type Client struct {
	opt    *Options
	tr     transport.Transport
	eng    *engine.Engine
	logger *zap.Logger

	engMu sync.Mutex

	valMu  sync.RWMutex
	values map[string]protocol.Value

	subMu  sync.Mutex
	subs   map[uint64]subscriber
	subSeq uint64

	cbMu    sync.RWMutex
	onSend  func(engine.SendEvent)
	onError func(error)

	mu     sync.RWMutex
	closed bool
}

// NewClient creates a client without opening the link. Call Open on the
// returned client, or use the package-level Open to do both.
func NewClient(opt *Options) (*Client, error) {
	if opt == nil {
		opt = &Options{}
	}

	o := opt.SetDefaults()

	tr := o.Transport
	if tr == nil {
		if o.Loopback {
			tr = transport.NewLoopTransport("sdk")
		} else {
			if o.Port == "" {
				return nil, ErrMissingDevice
			}
			tr = transport.NewSerialTransport(&transport.SerialConfig{
				PortName:      o.Port,
				BaudRate:      o.BaudRate,
				SendTimeout:   o.SendTimeout,
				AutoReconnect: o.AutoReconnect,
				CheckInterval: o.CheckInterval,
			}, zerolog.Nop())
		}
	}

	mode, err := engine.ParseCompatibilityMode(o.Compatibility)
	if err != nil {
		return nil, errors.Wrap(err, "compatibility mode")
	}

	eng, err := engine.New(engine.Config{
		LocalVersion:  o.LocalVersion,
		Compatibility: mode,
		DisableRetry:  o.DisableRetry,
		Retry: engine.RetryConfig{
			MaxAttempts: o.MaxRetries,
			Interval:    o.RetryInterval,
		},
	}, tr, zerolog.Nop())
	if err != nil {
		return nil, errors.Wrap(err, "build protocol engine")
	}

	if o.MappingFile != "" {
		if err := eng.Params().LoadFile(o.MappingFile); err != nil {
			return nil, errors.Wrap(err, "load parameter mapping")
		}
	}

	c := &Client{
		opt:    o,
		tr:     tr,
		eng:    eng,
		logger: o.Logger,
		values: make(map[string]protocol.Value),
		subs:   make(map[uint64]subscriber),
	}

	tr.OnDataReceived(c.handleData)
	tr.OnStateChanged(c.handleLinkState)
	tr.OnError(c.handleLinkError)
	eng.OnMessage(c.handleMessage)
	eng.OnSend(c.handleSendEvent)
	eng.OnError(c.handleEngineError)

	return c, nil
}

// Open is a convenience function to create a client and open its link
func Open(opt *Options) (*Client, error) {
	client, err := NewClient(opt)
	if err != nil {
		return nil, err
	}

	if err := client.Open(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// Open establishes the link. Opening an already-open client is a no-op.
func (c *Client) Open() error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClientClosed
	}

	if err := c.tr.Open(); err != nil {
		return errors.Wrap(err, "open link")
	}

	c.logger.Info("tunelink client open",
		zap.String("link", c.tr.Description()),
		zap.String("version", c.eng.Gate().Local().String()))
	return nil
}

// Close tears the link down and releases the client. Closing twice is a
// no-op. Sends issued after Close fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.tr.Close()

	c.engMu.Lock()
	c.eng.Close()
	c.engMu.Unlock()

	c.subMu.Lock()
	for id, sub := range c.subs {
		delete(c.subs, id)
		close(sub.ch)
	}
	c.subMu.Unlock()

	c.logger.Info("tunelink client closed")
	return err
}

// Connected reports whether the link is currently established
func (c *Client) Connected() bool {
	return c.tr.IsOpen()
}

// Description returns a human-readable link summary
func (c *Client) Description() string {
	return c.tr.Description()
}

// Stats returns a snapshot of link and pipeline counters
func (c *Client) Stats() engine.Stats {
	return c.eng.Stats()
}

// State returns the most recent outbound operation state
func (c *Client) State() engine.SendState {
	return c.eng.State()
}

// PendingRetries returns the number of frames waiting in the retry queue
func (c *Client) PendingRetries() int {
	return c.eng.PendingRetries()
}

// OnSendEvent registers a callback observing outbound frame outcomes,
// including those decided later by the retry timer
func (c *Client) OnSendEvent(fn func(engine.SendEvent)) {
	c.cbMu.Lock()
	c.onSend = fn
	c.cbMu.Unlock()
}

// OnError registers a callback for link and decode failures that have no
// caller to return to
func (c *Client) OnError(fn func(error)) {
	c.cbMu.Lock()
	c.onError = fn
	c.cbMu.Unlock()
}

// isClosed reports the closed flag
func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// handleData feeds inbound transport bytes to the engine. Decoding runs on
// the transport's delivery goroutine; the mutex keeps it exclusive with
// sends.
func (c *Client) handleData(data []byte) {
	c.engMu.Lock()
	c.eng.OnBytesReceived(data)
	c.engMu.Unlock()
}

// handleLinkState reacts to connection changes
func (c *Client) handleLinkState(connected bool) {
	if connected {
		c.logger.Info("tunelink link up", zap.String("link", c.tr.Description()))
		return
	}

	c.logger.Warn("tunelink link down", zap.String("link", c.tr.Description()))

	if c.isClosed() {
		return
	}

	// A frame split across the disconnect cannot resume on the next
	// connection, and queued retries would replay against stale state.
	c.engMu.Lock()
	c.eng.Reset()
	c.engMu.Unlock()
}

// handleLinkError logs and forwards asynchronous transport failures
func (c *Client) handleLinkError(err error) {
	c.logger.Warn("tunelink link error", zap.Error(err))
	c.forwardError(err)
}

// handleEngineError logs and forwards inbound pipeline failures
func (c *Client) handleEngineError(err error) {
	c.logger.Warn("tunelink inbound frame rejected", zap.Error(err))
	c.forwardError(err)
}

func (c *Client) forwardError(err error) {
	c.cbMu.RLock()
	fn := c.onError
	c.cbMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// handleMessage caches reported values and fans the message out
func (c *Client) handleMessage(msg *protocol.DecodedMessage) {
	c.logger.Debug("tunelink message received",
		zap.String("type", protocol.MessageTypeName(msg.Type)),
		zap.String("function", protocol.FunctionCodeName(msg.Function)),
		zap.Int("params", len(msg.Params)))

	c.rememberValues(msg.Params)
	c.broadcast(msg)
}

// handleSendEvent logs outcomes and forwards them to the registered observer
func (c *Client) handleSendEvent(ev engine.SendEvent) {
	switch ev.Outcome {
	case engine.OutcomeFailed, engine.OutcomeExhausted:
		c.logger.Warn("tunelink send failed",
			zap.String("id", ev.ID),
			zap.String("type", protocol.MessageTypeName(ev.Type)),
			zap.String("outcome", ev.Outcome.String()),
			zap.Error(ev.Err))
	default:
		c.logger.Debug("tunelink send",
			zap.String("id", ev.ID),
			zap.String("type", protocol.MessageTypeName(ev.Type)),
			zap.String("outcome", ev.Outcome.String()),
			zap.Int("frame_len", ev.FrameLen))
	}

	c.cbMu.RLock()
	fn := c.onSend
	c.cbMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// rememberValues merges params into the last-known-value cache
func (c *Client) rememberValues(values protocol.ParamMap) {
	if len(values) == 0 {
		return
	}
	c.valMu.Lock()
	for path, v := range values {
		c.values[path] = v
	}
	c.valMu.Unlock()
}

// Errors
var (
	ErrClientClosed  = errors.New("tunelink: client is closed")
	ErrMissingDevice = errors.New("tunelink: no serial device specified")
)
