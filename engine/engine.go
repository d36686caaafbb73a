// Package engine orchestrates the tuning protocol: it resolves logical
// parameter paths, runs the codec and envelope layers, frames the result and
// hands it to a transport, and walks the same pipeline in reverse for
// inbound bytes. Encode and decode paths are unsynchronized; callers must
// serialize Send* and OnBytesReceived externally. The retry timer is the one
// internal source of concurrency and keeps its own locking.
package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ancware/tunelink/params"
	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
	"github.com/ancware/tunelink/protocol/messages"
	"github.com/ancware/tunelink/transport"
)

// SendState tracks the most recent outbound operation.
type SendState uint8

const (
	StateIdle SendState = iota
	StateSending
	StateAcked
	StateFailed
	StateRetrying
	StateExhausted
)

func (s SendState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAcked:
		return "acked"
	case StateFailed:
		return "failed"
	case StateRetrying:
		return "retrying"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// SendOutcome classifies what happened to one outbound frame.
type SendOutcome uint8

const (
	// OutcomeSent means the transport accepted the frame.
	OutcomeSent SendOutcome = iota
	// OutcomeQueued means the first send failed and the frame entered the
	// retry queue.
	OutcomeQueued
	// OutcomeFailed means the send failed with retry disabled.
	OutcomeFailed
	// OutcomeRetried means a queued frame went out on a later attempt.
	OutcomeRetried
	// OutcomeExhausted means a queued frame was dropped after its last
	// attempt.
	OutcomeExhausted
)

func (o SendOutcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeQueued:
		return "queued"
	case OutcomeFailed:
		return "failed"
	case OutcomeRetried:
		return "retried"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// SendEvent describes the outcome of one outbound frame, correlated across
// retries by ID.
type SendEvent struct {
	ID       string
	Type     protocol.MessageType
	Function protocol.FunctionCode
	Paths    []string
	FrameLen int
	Outcome  SendOutcome
	Err      error
	At       time.Time
}

// GroupReport summarizes a multi-type send: which message groups went out and
// which failed.
type GroupReport struct {
	Sent   []protocol.MessageType
	Failed map[protocol.MessageType]error
}

// MessageHandler receives decoded inbound messages.
type MessageHandler func(msg *protocol.DecodedMessage)

// SendEventHandler observes outbound frame outcomes, including those decided
// later by the retry timer.
type SendEventHandler func(ev SendEvent)

// ErrorHandler receives inbound pipeline errors, which have no caller to
// return to.
type ErrorHandler func(err error)

// Config tunes an Engine.
type Config struct {
	// LocalVersion is the protocol version offered to peers. Empty selects
	// ProtocolVersion.
	LocalVersion string `yaml:"local_version" json:"local_version"`
	// Compatibility selects the version gate mode.
	Compatibility CompatibilityMode `yaml:"-" json:"-"`
	// Retry tunes the resend policy.
	Retry RetryConfig `yaml:"retry" json:"retry"`
	// DisableRetry turns failed sends into immediate failures.
	DisableRetry bool `yaml:"disable_retry" json:"disable_retry"`
	// FramerLimit bounds the receive accumulation buffer.
	FramerLimit int `yaml:"framer_limit" json:"framer_limit"`
}

// DefaultConfig returns the stock engine tuning.
func DefaultConfig() Config {
	return Config{
		LocalVersion:  ProtocolVersion,
		Compatibility: ModeMinor,
		Retry:         DefaultRetryConfig(),
		FramerLimit:   protocol.DefaultMaxBuffer,
	}
}

// sendMeta remembers what a queued frame carried so retry outcomes can be
// reported with full context.
type sendMeta struct {
	msgType  protocol.MessageType
	function protocol.FunctionCode
	paths    []string
	frameLen int
}

// Engine is the protocol orchestrator. It borrows the transport; opening and
// closing the link stays with the caller.
type Engine struct {
	cfg       Config
	transport transport.Transport
	params    *params.Registry
	packager  *protocol.Packager
	framer    *protocol.PacketFramer
	retry     *RetryManager
	gate      *VersionGate
	stats     *statsCollector
	logger    zerolog.Logger

	stateMu sync.Mutex
	state   SendState

	peerMu      sync.RWMutex
	peerVersion string
	peerOK      bool
	peerReason  string

	pendMu  sync.Mutex
	pending map[string]sendMeta

	cbMu      sync.RWMutex
	onMessage MessageHandler
	onSend    SendEventHandler
	onError   ErrorHandler
}

// New builds an engine over tr with the stock codecs registered and the
// built-in parameter mappings loaded.
func New(cfg Config, tr transport.Transport, logger zerolog.Logger) (*Engine, error) {
	if tr == nil {
		return nil, errors.New(ErrInvalidConfig, "engine requires a transport", nil)
	}

	local := cfg.LocalVersion
	if local == "" {
		local = ProtocolVersion
	}
	gate, err := NewVersionGate(local, cfg.Compatibility, logger)
	if err != nil {
		return nil, err
	}

	packager, err := messages.NewDefaultPackager()
	if err != nil {
		return nil, err
	}

	limit := cfg.FramerLimit
	if limit <= 0 {
		limit = protocol.DefaultMaxBuffer
	}

	e := &Engine{
		cfg:       cfg,
		transport: tr,
		params:    params.NewRegistry(logger),
		packager:  packager,
		framer:    protocol.NewPacketFramerWithLimit(limit),
		gate:      gate,
		stats:     newStatsCollector(),
		logger:    logger.With().Str("component", "protocol-engine").Logger(),
		state:     StateIdle,
		pending:   make(map[string]sendMeta),
	}

	if !cfg.DisableRetry {
		e.retry = NewRetryManager(cfg.Retry, e.resend, logger)
		e.retry.OnRetried(e.handleRetried)
		e.retry.OnExhausted(e.handleExhausted)
	}
	return e, nil
}

// Params exposes the parameter registry for mapping overlays and listings.
func (e *Engine) Params() *params.Registry { return e.params }

// Gate exposes the version gate.
func (e *Engine) Gate() *VersionGate { return e.gate }

// Transport returns the borrowed transport.
func (e *Engine) Transport() transport.Transport { return e.transport }

// PendingRetries returns the retry queue depth.
func (e *Engine) PendingRetries() int {
	if e.retry == nil {
		return 0
	}
	return e.retry.Pending()
}

// State returns the most recent send state.
func (e *Engine) State() SendState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// OnMessage registers the handler for decoded inbound messages.
func (e *Engine) OnMessage(fn MessageHandler) {
	e.cbMu.Lock()
	e.onMessage = fn
	e.cbMu.Unlock()
}

// OnSend registers the handler for outbound frame outcomes.
func (e *Engine) OnSend(fn SendEventHandler) {
	e.cbMu.Lock()
	e.onSend = fn
	e.cbMu.Unlock()
}

// OnError registers the handler for inbound pipeline errors.
func (e *Engine) OnError(fn ErrorHandler) {
	e.cbMu.Lock()
	e.onError = fn
	e.cbMu.Unlock()
}

// SendParameter encodes a single parameter and sends it as a request frame.
// Deprecated paths are rewritten to their replacement before encoding.
func (e *Engine) SendParameter(path string, value protocol.Value) error {
	info, err := e.params.ResolveActive(path)
	if err != nil {
		return err
	}
	values := protocol.ParamMap{info.LogicalPath: value}
	return e.send(info.Type, values, []string{info.LogicalPath})
}

// SendParameterValues sends a map of parameters that must all resolve to one
// message type. Mixed maps are refused; use SendParameterGroup for those.
func (e *Engine) SendParameterValues(values protocol.ParamMap) error {
	if len(values) == 0 {
		return errors.New(ErrNoParameters, "no parameter values given", nil)
	}

	groups, order, err := e.partition(values)
	if err != nil {
		return err
	}
	if len(order) > 1 {
		return errors.Newf(ErrMixedMessageTypes,
			"values span %d message types, use SendParameterGroup", len(order))
	}

	t := order[0]
	return e.send(t, groups[t].values, groups[t].paths)
}

// SendParameterGroup partitions a mixed parameter map by message type and
// sends one request frame per group. The report records per-group outcomes;
// the error distinguishes a partial failure from a total one. Resolution
// failures abort before anything is sent.
func (e *Engine) SendParameterGroup(values protocol.ParamMap) (*GroupReport, error) {
	if len(values) == 0 {
		return nil, errors.New(ErrNoParameters, "no parameter values given", nil)
	}

	groups, order, err := e.partition(values)
	if err != nil {
		return nil, err
	}

	report := &GroupReport{Failed: make(map[protocol.MessageType]error)}
	for _, t := range order {
		g := groups[t]
		if err := e.send(t, g.values, g.paths); err != nil {
			report.Failed[t] = err
		} else {
			report.Sent = append(report.Sent, t)
		}
	}

	if len(report.Failed) == 0 {
		return report, nil
	}
	if len(report.Sent) == 0 {
		return report, errors.Newf(ErrGroupFailure, "all %d message groups failed", len(report.Failed))
	}
	return report, errors.Newf(ErrGroupPartialFailure,
		"%d of %d message groups failed", len(report.Failed), len(report.Failed)+len(report.Sent))
}

// group collects the values and paths bound for one message type.
type group struct {
	values protocol.ParamMap
	paths  []string
}

// partition resolves every path and buckets the values by message type.
// Iteration over sorted paths keeps group contents and send order
// deterministic.
func (e *Engine) partition(values protocol.ParamMap) (map[protocol.MessageType]*group, []protocol.MessageType, error) {
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	groups := make(map[protocol.MessageType]*group)
	var order []protocol.MessageType
	for _, p := range paths {
		info, err := e.params.ResolveActive(p)
		if err != nil {
			return nil, nil, err
		}

		g := groups[info.Type]
		if g == nil {
			g = &group{values: make(protocol.ParamMap)}
			groups[info.Type] = g
			order = append(order, info.Type)
		}
		if _, exists := g.values[info.LogicalPath]; !exists {
			g.paths = append(g.paths, info.LogicalPath)
		}
		g.values[info.LogicalPath] = values[p]
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return groups, order, nil
}

// send runs the outbound pipeline for one message type: codec, envelope,
// frame, transport. A transport failure hands the frame to the retry queue
// unless retry is disabled.
func (e *Engine) send(t protocol.MessageType, values protocol.ParamMap, paths []string) error {
	id := uuid.NewString()

	env, err := e.packager.EncodeParams(t, protocol.FunctionRequest, values)
	if err != nil {
		e.stats.encodeError(t, err)
		return err
	}
	frame, err := protocol.BuildFrame(env)
	if err != nil {
		e.stats.encodeError(t, err)
		return err
	}

	e.setState(StateSending)
	e.logger.Debug().
		Str("id", id).
		Str("type", protocol.MessageTypeName(t)).
		Int("frame_len", len(frame)).
		Strs("paths", paths).
		Msg("Sending parameter frame")

	if err := e.transport.Send(frame); err != nil {
		e.stats.sendError(err)
		e.setState(StateFailed)

		if e.retry == nil {
			e.emitSend(SendEvent{
				ID: id, Type: t, Function: protocol.FunctionRequest,
				Paths: paths, FrameLen: len(frame),
				Outcome: OutcomeFailed, Err: err, At: time.Now(),
			})
			return err
		}

		e.trackPending(id, sendMeta{msgType: t, function: protocol.FunctionRequest, paths: paths, frameLen: len(frame)})
		e.retry.Schedule(id, frame)
		e.setState(StateRetrying)
		e.emitSend(SendEvent{
			ID: id, Type: t, Function: protocol.FunctionRequest,
			Paths: paths, FrameLen: len(frame),
			Outcome: OutcomeQueued, Err: err, At: time.Now(),
		})
		return err
	}

	e.stats.frameSent(t, len(frame))
	e.setState(StateAcked)
	e.emitSend(SendEvent{
		ID: id, Type: t, Function: protocol.FunctionRequest,
		Paths: paths, FrameLen: len(frame),
		Outcome: OutcomeSent, At: time.Now(),
	})
	return nil
}

// OnBytesReceived feeds raw transport bytes through framer, envelope and
// codec. Failures on one frame are reported and the rest of the batch still
// decodes.
func (e *Engine) OnBytesReceived(p []byte) {
	if len(p) == 0 {
		return
	}
	e.stats.bytesReceived(len(p))

	frames, err := e.framer.Feed(p)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Receive buffer overflowed, stream dropped")
		e.reportError(err)
	}
	for _, payload := range frames {
		e.handleFrame(payload)
	}
}

func (e *Engine) handleFrame(payload []byte) {
	env, err := protocol.UnpackEnvelope(payload)
	if err != nil {
		e.stats.decodeError(0, false, err)
		e.logger.Warn().Err(err).Int("len", len(payload)).Msg("Envelope rejected")
		e.reportError(err)
		return
	}

	if ok, reason := e.inboundAllowed(); !ok {
		e.stats.rejected(reason)
		e.logger.Warn().
			Str("type", protocol.MessageTypeName(env.Type)).
			Str("reason", reason).
			Msg("Envelope dropped, peer version incompatible")
		e.reportError(errors.New(ErrVersionRejected, reason, nil))
		return
	}

	msg, err := e.packager.DecodePayload(env)
	if err != nil {
		e.stats.decodeError(env.Type, true, err)
		e.logger.Warn().
			Err(err).
			Str("type", protocol.MessageTypeName(env.Type)).
			Msg("Payload decode failed")
		e.reportError(err)
		return
	}

	e.stats.frameReceived(msg.Type)
	e.logger.Debug().
		Str("type", protocol.MessageTypeName(msg.Type)).
		Str("function", protocol.FunctionCodeName(msg.Function)).
		Int("params", len(msg.Params)).
		Msg("Frame decoded")

	e.cbMu.RLock()
	fn := e.onMessage
	e.cbMu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}

// SetPeerVersion records the peer's announced protocol version and judges it
// through the gate. While an incompatible version is recorded, inbound
// envelopes are dropped with the gate's reason.
func (e *Engine) SetPeerVersion(version string) error {
	ok, reason := e.gate.Check(version)

	e.peerMu.Lock()
	e.peerVersion = version
	e.peerOK = ok
	e.peerReason = reason
	e.peerMu.Unlock()

	if !ok {
		e.logger.Warn().Str("peer", version).Str("reason", reason).Msg("Peer version rejected")
		return errors.New(ErrVersionRejected, reason, nil)
	}
	e.logger.Info().Str("peer", version).Str("reason", reason).Msg("Peer version accepted")
	return nil
}

// ClearPeerVersion forgets the peer's version; inbound envelopes pass the
// gate again until the next announcement.
func (e *Engine) ClearPeerVersion() {
	e.peerMu.Lock()
	e.peerVersion = ""
	e.peerOK = false
	e.peerReason = ""
	e.peerMu.Unlock()
}

// PeerVersion returns the recorded peer version and whether it passed.
func (e *Engine) PeerVersion() (string, bool) {
	e.peerMu.RLock()
	defer e.peerMu.RUnlock()
	return e.peerVersion, e.peerOK
}

func (e *Engine) inboundAllowed() (bool, string) {
	e.peerMu.RLock()
	defer e.peerMu.RUnlock()
	if e.peerVersion == "" {
		return true, ""
	}
	return e.peerOK, e.peerReason
}

// Stats returns a snapshot of link and pipeline counters.
func (e *Engine) Stats() Stats {
	return e.stats.snapshot(e.framer.Resyncs(), e.framer.BytesDiscarded())
}

// ResetStats zeroes the counters. Framer resync totals are rebased so the
// next snapshot starts from zero as well.
func (e *Engine) ResetStats() {
	e.stats.rebase(e.framer.Resyncs(), e.framer.BytesDiscarded())
}

// Reset clears stream and retry state after a transport drop: the partial
// receive buffer, the retry queue and the pending send records go together.
func (e *Engine) Reset() {
	e.framer.Reset()
	if e.retry != nil {
		e.retry.Clear()
	}
	e.clearPending()
	e.setState(StateIdle)
	e.logger.Debug().Msg("Engine reset")
}

// Close shuts down the retry timer. The borrowed transport is untouched.
func (e *Engine) Close() {
	if e.retry != nil {
		e.retry.Close()
	}
	e.clearPending()
}

// resend is the retry manager's path back to the transport.
func (e *Engine) resend(payload []byte) error {
	if err := e.transport.Send(payload); err != nil {
		e.stats.sendError(err)
		return err
	}
	e.stats.frameResent(len(payload))
	return nil
}

func (e *Engine) handleRetried(item RetryItem) {
	meta, _ := e.takePending(item.ID)

	if e.retry.Pending() == 0 {
		e.setState(StateAcked)
	}
	e.emitSend(SendEvent{
		ID: item.ID, Type: meta.msgType, Function: meta.function,
		Paths: meta.paths, FrameLen: len(item.Payload),
		Outcome: OutcomeRetried, At: time.Now(),
	})
}

func (e *Engine) handleExhausted(item RetryItem, err error) {
	meta, _ := e.takePending(item.ID)

	e.stats.exhausted(err)
	e.setState(StateExhausted)
	e.emitSend(SendEvent{
		ID: item.ID, Type: meta.msgType, Function: meta.function,
		Paths: meta.paths, FrameLen: len(item.Payload),
		Outcome: OutcomeExhausted, Err: err, At: time.Now(),
	})
	e.reportError(err)
}

func (e *Engine) trackPending(id string, meta sendMeta) {
	e.pendMu.Lock()
	e.pending[id] = meta
	e.pendMu.Unlock()
}

func (e *Engine) takePending(id string) (sendMeta, bool) {
	e.pendMu.Lock()
	defer e.pendMu.Unlock()
	meta, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
	}
	return meta, ok
}

func (e *Engine) clearPending() {
	e.pendMu.Lock()
	e.pending = make(map[string]sendMeta)
	e.pendMu.Unlock()
}

func (e *Engine) setState(s SendState) {
	e.stateMu.Lock()
	prev := e.state
	e.state = s
	e.stateMu.Unlock()

	if prev != s {
		e.logger.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("Send state changed")
	}
}

func (e *Engine) emitSend(ev SendEvent) {
	e.cbMu.RLock()
	fn := e.onSend
	e.cbMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

func (e *Engine) reportError(err error) {
	e.cbMu.RLock()
	fn := e.onError
	e.cbMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
