// Package bench hosts the tuning bench daemon. It owns the link to the
// control unit, drives the protocol engine through one bounded run loop,
// keeps session history, records stream captures and serves the
// diagnostics gateway.
package bench

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ancware/tunelink/bench/capture"
	"github.com/ancware/tunelink/bench/config"
	"github.com/ancware/tunelink/bench/gateway"
	"github.com/ancware/tunelink/bench/history"
	"github.com/ancware/tunelink/engine"
	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
	"github.com/ancware/tunelink/transport"
	"github.com/ancware/tunelink/utils"
)

const shutdownTimeout = 10 * time.Second

// Bench is the daemon. All engine access funnels through the run loop,
// which satisfies the engine's single-goroutine contract; the public
// send methods block until the loop has executed their command.
type Bench struct {
	cfg    *config.Config
	logger zerolog.Logger

	link    transport.Transport
	engine  *engine.Engine
	history *history.Store
	capture *capture.Recorder
	gateway *gateway.Server

	sessionID string
	startTime time.Time

	rx   chan []byte
	cmds chan func()

	rxDropped atomic.Uint64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	subMu  sync.Mutex
	subs   map[uint64]chan *protocol.DecodedMessage
	subSeq uint64

	mu      sync.Mutex
	started bool
}

// New builds the daemon from configuration. Nothing runs until Start.
func New(cfg *config.Config, logger zerolog.Logger) (*Bench, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bench{
		cfg:       cfg,
		logger:    logger.With().Str("component", "bench").Logger(),
		sessionID: utils.GenerateULIDString(),
		rx:        make(chan []byte, cfg.Queue.RxCapacity),
		cmds:      make(chan func(), cfg.Queue.CmdCapacity),
		subs:      make(map[uint64]chan *protocol.DecodedMessage),
		ctx:       ctx,
		cancel:    cancel,
	}

	switch cfg.Link.Kind {
	case config.LINK_KIND_LOOPBACK:
		b.link = transport.NewLoopTransport("bench")
	default:
		b.link = transport.NewSerialTransport(cfg.Link.Serial.Build(), logger)
	}

	engineCfg, err := cfg.Engine.Build()
	if err != nil {
		cancel()
		return nil, err
	}
	eng, err := engine.New(engineCfg, b.link, logger)
	if err != nil {
		cancel()
		return nil, err
	}
	b.engine = eng

	if cfg.Engine.MappingFile != "" {
		if err := eng.Params().LoadFile(cfg.Engine.MappingFile); err != nil {
			cancel()
			return nil, err
		}
	}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path, logger)
		if err != nil {
			cancel()
			return nil, err
		}
		b.history = store
	}

	if cfg.Capture.Enabled {
		b.capture = capture.NewRecorder(cfg.Capture.Dir, logger)
	}

	if cfg.Gateway.Enabled {
		gw, err := gateway.New(cfg.Gateway.ListenAddress(), gateway.Deps{
			Engine:  eng,
			History: b.history,
			Capture: b.capture,
			Status:  b.Status,
		}, logger)
		if err != nil {
			cancel()
			if b.history != nil {
				b.history.Close()
			}
			return nil, err
		}
		b.gateway = gw
	}

	return b, nil
}

// SessionID identifies this daemon run in history records.
func (b *Bench) SessionID() string {
	return b.sessionID
}

// Engine exposes the protocol engine for read-only diagnostics. Sends
// must go through the daemon methods.
func (b *Bench) Engine() *engine.Engine {
	return b.engine
}

// Start opens the link, wires the callbacks and launches the run loop.
func (b *Bench) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errors.New(ErrAlreadyStarted, "daemon is already started", nil)
	}
	b.started = true
	b.startTime = time.Now()
	b.mu.Unlock()

	b.logger.Info().
		Str("session_id", b.sessionID).
		Str("link", b.link.Description()).
		Msg("Starting bench daemon")

	b.link.OnDataReceived(b.enqueueRx)
	b.link.OnStateChanged(b.handleLinkState)
	b.link.OnError(func(err error) {
		b.logger.Warn().Err(err).Msg("Link error")
	})

	b.engine.OnMessage(b.handleMessage)
	b.engine.OnSend(b.handleSendEvent)
	b.engine.OnError(func(err error) {
		b.logger.Warn().Err(err).Msg("Inbound frame rejected")
	})

	if err := b.link.Open(); err != nil {
		// With reconnection on, the watchdog keeps dialing; without it
		// a dead link at startup is fatal.
		if b.cfg.Link.Kind == config.LINK_KIND_SERIAL && b.cfg.Link.Serial.AutoReconnect {
			b.logger.Warn().Err(err).Msg("Link not available yet, waiting for reconnect")
		} else {
			return errors.New(ErrLinkOpenFailed, "failed to open link", err).
				AddContext("link", b.link.Description())
		}
	}

	b.wg.Add(1)
	go b.run()

	if b.gateway != nil {
		if err := b.gateway.Start(ctx); err != nil {
			b.logger.Error().Err(err).Msg("Failed to start gateway")
		}
	}

	b.logger.Info().
		Bool("gateway", b.gateway != nil).
		Bool("history", b.history != nil).
		Bool("capture", b.capture != nil).
		Msg("Bench daemon started")
	return nil
}

// run is the only goroutine that touches the engine.
func (b *Bench) run() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case data := <-b.rx:
			b.engine.OnBytesReceived(data)
		case fn := <-b.cmds:
			fn()
		}
	}
}

// enqueueRx hands inbound bytes to the run loop. When the queue is full
// the oldest chunk is dropped so fresh telemetry wins.
func (b *Bench) enqueueRx(data []byte) {
	// The transport may reuse its read buffer after the callback returns
	buf := make([]byte, len(data))
	copy(buf, data)

	for {
		select {
		case b.rx <- buf:
			return
		default:
		}
		select {
		case <-b.rx:
			dropped := b.rxDropped.Add(1)
			if dropped == 1 || dropped%100 == 0 {
				b.logger.Warn().Uint64("dropped", dropped).Msg("Rx queue full, dropping oldest chunk")
			}
		default:
		}
	}
}

// enqueueCmd schedules a command on the run loop. Unlike inbound data,
// a full queue rejects the new command instead of dropping pending ones.
func (b *Bench) enqueueCmd(fn func()) error {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if !started {
		return errors.New(ErrNotStarted, "daemon is not started", nil)
	}

	select {
	case b.cmds <- fn:
		return nil
	case <-b.ctx.Done():
		return errors.New(ErrStopped, "daemon is stopped", nil)
	default:
		return errors.New(ErrCmdQueueFull, "command queue is full", nil)
	}
}

// do runs fn on the loop and waits for its result.
func (b *Bench) do(fn func() error) error {
	reply := make(chan error, 1)
	if err := b.enqueueCmd(func() { reply <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-b.ctx.Done():
		return errors.New(ErrStopped, "daemon is stopped", nil)
	}
}

// SetParameter sends one parameter to the unit.
func (b *Bench) SetParameter(path string, value protocol.Value) error {
	return b.do(func() error {
		return b.engine.SendParameter(path, value)
	})
}

// SetParameters sends a set of parameters belonging to one message type.
func (b *Bench) SetParameters(values protocol.ParamMap) error {
	return b.do(func() error {
		return b.engine.SendParameterValues(values)
	})
}

// SetParameterGroup sends parameters spanning several message types and
// reports per-type results.
func (b *Bench) SetParameterGroup(values protocol.ParamMap) (*engine.GroupReport, error) {
	var report *engine.GroupReport
	err := b.do(func() error {
		var innerErr error
		report, innerErr = b.engine.SendParameterGroup(values)
		return innerErr
	})
	return report, err
}

// SetPeerVersion records the unit's announced protocol version.
func (b *Bench) SetPeerVersion(version string) error {
	return b.do(func() error {
		return b.engine.SetPeerVersion(version)
	})
}

// StartCapture begins recording stream reports to a new capture file.
func (b *Bench) StartCapture() (string, error) {
	if b.capture == nil {
		return "", errors.New(ErrCaptureOff, "capture is disabled", nil)
	}
	return b.capture.Start()
}

// StopCapture finishes the running capture and optionally exports it.
func (b *Bench) StopCapture(ctx context.Context) (capture.Info, error) {
	if b.capture == nil {
		return capture.Info{}, errors.New(ErrCaptureOff, "capture is disabled", nil)
	}

	info, err := b.capture.Stop()
	if err != nil {
		return info, err
	}

	exp := b.cfg.Capture.Export
	if exp.Enabled {
		exporter, err := capture.NewExporter(capture.ExportSettings{
			Endpoint:  exp.Endpoint,
			AccessKey: exp.AccessKey,
			SecretKey: exp.SecretKey,
			Bucket:    exp.Bucket,
			UseSSL:    exp.UseSSL,
		}, b.logger)
		if err != nil {
			b.logger.Error().Err(err).Msg("Capture export setup failed")
			return info, nil
		}
		if _, err := exporter.Export(ctx, info); err != nil {
			b.logger.Error().Err(err).Str("capture_id", info.ID).Msg("Capture export failed")
		}
	}
	return info, nil
}

// History exposes the session history store, nil when disabled.
func (b *Bench) History() *history.Store {
	return b.history
}

// Status snapshots daemon-level state for the gateway.
func (b *Bench) Status() gateway.Status {
	b.mu.Lock()
	started := b.startTime
	b.mu.Unlock()

	return gateway.Status{
		SessionID:       b.sessionID,
		StartedAt:       started,
		LinkKind:        b.link.Kind(),
		LinkDescription: b.link.Description(),
		LinkConnected:   b.link.IsOpen(),
		RxQueueDepth:    len(b.rx),
		RxDropped:       b.rxDropped.Load(),
	}
}

// handleLinkState reacts to connect and disconnect edges on the loop.
func (b *Bench) handleLinkState(connected bool) {
	if connected {
		b.logger.Info().Str("link", b.link.Description()).Msg("Link connected")
		return
	}

	b.logger.Warn().Str("link", b.link.Description()).Msg("Link disconnected")
	// Half-received frames are worthless after a link drop; queued
	// retries would only replay against a stale connection.
	if err := b.enqueueCmd(func() { b.engine.Reset() }); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to schedule engine reset")
	}
}

// Subscribe registers a consumer of decoded inbound messages. Slow
// consumers lose messages rather than stall the loop. The returned
// function cancels the subscription and closes the channel.
func (b *Bench) Subscribe(buffer int) (<-chan *protocol.DecodedMessage, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan *protocol.DecodedMessage, buffer)

	b.subMu.Lock()
	b.subSeq++
	id := b.subSeq
	b.subs[id] = ch
	b.subMu.Unlock()

	cancel := func() {
		b.subMu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.subMu.Unlock()
	}
	return ch, cancel
}

func (b *Bench) broadcast(msg *protocol.DecodedMessage) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// handleMessage runs on the loop for every decoded inbound message.
func (b *Bench) handleMessage(msg *protocol.DecodedMessage) {
	b.logger.Debug().
		Str("message_type", protocol.MessageTypeName(msg.Type)).
		Str("function", protocol.FunctionCodeName(msg.Function)).
		Int("params", len(msg.Params)).
		Msg("Message received")

	if b.capture != nil {
		b.capture.Record(msg)
	}

	if b.history != nil && msg.Type != protocol.StreamCheck {
		// Stream reports arrive continuously; captures hold those
		rec := history.FromMessage(b.sessionID, msg)
		if err := b.history.Insert(b.ctx, rec); err != nil {
			b.logger.Warn().Err(err).Msg("Failed to record inbound message")
		}
	}

	b.broadcast(msg)
}

// handleSendEvent records outbound outcomes.
func (b *Bench) handleSendEvent(ev engine.SendEvent) {
	if b.history == nil {
		return
	}
	rec := history.FromSendEvent(b.sessionID, ev)
	if err := b.history.Insert(b.ctx, rec); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to record send event")
	}
}

// Shutdown stops everything in reverse start order.
func (b *Bench) Shutdown() error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return errors.New(ErrNotStarted, "daemon is not started", nil)
	}
	b.started = false
	b.mu.Unlock()

	b.logger.Info().Msg("Shutting down bench daemon")

	if b.gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := b.gateway.Shutdown(ctx); err != nil {
			b.logger.Error().Err(err).Msg("Error stopping gateway")
		}
		cancel()
	}

	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		b.logger.Warn().Msg("Run loop did not stop in time")
	}

	b.subMu.Lock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.subMu.Unlock()

	if b.capture != nil && b.capture.Active() {
		if info, err := b.capture.Stop(); err == nil {
			b.logger.Info().Str("capture_id", info.ID).Msg("Closed running capture")
		}
	}

	b.engine.Close()
	if err := b.link.Close(); err != nil {
		b.logger.Error().Err(err).Msg("Error closing link")
	}
	if b.history != nil {
		if err := b.history.Close(); err != nil {
			b.logger.Error().Err(err).Msg("Error closing history store")
		}
	}

	b.logger.Info().Msg("Bench daemon stopped")
	return nil
}

// Uptime reports how long the daemon has been running.
func (b *Bench) Uptime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startTime.IsZero() {
		return 0
	}
	return time.Since(b.startTime)
}
