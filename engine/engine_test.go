package engine

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ancware/tunelink/params"
	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
	"github.com/ancware/tunelink/protocol/messages"
	"github.com/ancware/tunelink/transport"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *transport.LoopTransport) {
	t.Helper()

	loop := transport.NewLoopTransport("engine-test")
	if err := loop.Open(); err != nil {
		t.Fatalf("Failed to open loop transport: %v", err)
	}
	e, err := New(cfg, loop, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to build engine: %v", err)
	}
	t.Cleanup(func() {
		e.Close()
		loop.Close()
	})
	return e, loop
}

// AncSwitch request carrying anc.enabled=true: ProtoID 151 then function 0,
// payload under field 7. The enable flag inverts to 0x00 on the wire.
var ancRequestFrame = []byte{0xAA, 0x09, 0x08, 0x97, 0x01, 0x10, 0x00, 0x3A, 0x02, 0x08, 0x00, 0x55}

// Same payload marked as a unit response.
var ancResponseFrame = []byte{0xAA, 0x09, 0x08, 0x97, 0x01, 0x10, 0x01, 0x3A, 0x02, 0x08, 0x00, 0x55}

func TestEngineRequiresTransport(t *testing.T) {
	if _, err := New(DefaultConfig(), nil, zerolog.Nop()); !errors.HasCode(err, ErrInvalidConfig) {
		t.Errorf("Expected invalid_config, got %v", err)
	}
}

func TestSendParameterFrameBytes(t *testing.T) {
	e, loop := newTestEngine(t, DefaultConfig())

	var events []SendEvent
	e.OnSend(func(ev SendEvent) { events = append(events, ev) })

	if err := e.SendParameter(messages.PathAncEnabled, protocol.BoolValue(true)); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}

	sent := loop.Sent()
	if len(sent) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(sent))
	}
	if !bytes.Equal(sent[0], ancRequestFrame) {
		t.Errorf("Expected frame % X, got % X", ancRequestFrame, sent[0])
	}

	if e.State() != StateAcked {
		t.Errorf("Expected acked state, got %s", e.State())
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 send event, got %d", len(events))
	}
	ev := events[0]
	if ev.Outcome != OutcomeSent || ev.Type != protocol.AncSwitch || ev.ID == "" {
		t.Errorf("Expected sent AncSwitch event with an id, got %+v", ev)
	}
	if len(ev.Paths) != 1 || ev.Paths[0] != messages.PathAncEnabled {
		t.Errorf("Expected paths [anc.enabled], got %v", ev.Paths)
	}

	stats := e.Stats()
	if stats.FramesSent != 1 || stats.BytesSent != uint64(len(ancRequestFrame)) {
		t.Errorf("Expected 1 frame / %d bytes sent, got %d / %d",
			len(ancRequestFrame), stats.FramesSent, stats.BytesSent)
	}
	if stats.ByType[protocol.AncSwitch].Sent != 1 {
		t.Errorf("Expected 1 AncSwitch frame counted, got %d", stats.ByType[protocol.AncSwitch].Sent)
	}
}

func TestSendParameterUnknownPath(t *testing.T) {
	e, loop := newTestEngine(t, DefaultConfig())

	err := e.SendParameter("no.such.path", protocol.BoolValue(true))
	if !errors.HasCode(err, params.ErrUnknownParameter) {
		t.Errorf("Expected unknown_parameter, got %v", err)
	}
	if len(loop.Sent()) != 0 {
		t.Error("Expected nothing sent for an unknown path")
	}
}

func TestSendParameterValidationFailure(t *testing.T) {
	e, loop := newTestEngine(t, DefaultConfig())

	// Speed above the codec's ceiling never reaches the transport.
	if err := e.SendParameter(messages.PathVehicleSpeed, protocol.Uint32Value(301)); err == nil {
		t.Fatal("Expected a validation error")
	}
	if len(loop.Sent()) != 0 {
		t.Error("Expected nothing sent after a validation failure")
	}

	stats := e.Stats()
	if stats.EncodeErrors != 1 {
		t.Errorf("Expected 1 encode error, got %d", stats.EncodeErrors)
	}
	if stats.ByType[protocol.VehicleState].EncodeErrors != 1 {
		t.Errorf("Expected the encode error counted for VehicleState, got %+v", stats.ByType)
	}
}

func TestSendParameterValuesSingleType(t *testing.T) {
	e, loop := newTestEngine(t, DefaultConfig())

	values := protocol.ParamMap{
		messages.PathAncEnabled: protocol.BoolValue(true),
		messages.PathEncEnabled: protocol.BoolValue(false),
	}
	if err := e.SendParameterValues(values); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}

	sent := loop.Sent()
	if len(sent) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(sent))
	}

	packager, err := messages.NewDefaultPackager()
	if err != nil {
		t.Fatalf("Failed to build packager: %v", err)
	}
	frame := sent[0]
	msg, err := packager.DecodeParams(frame[2 : len(frame)-1])
	if err != nil {
		t.Fatalf("Failed to decode the sent frame: %v", err)
	}
	if msg.Type != protocol.AncSwitch || msg.Function != protocol.FunctionRequest {
		t.Errorf("Expected an AncSwitch request, got %s %s",
			protocol.MessageTypeName(msg.Type), protocol.FunctionCodeName(msg.Function))
	}
	if v := msg.Params[messages.PathAncEnabled]; !v.Bool {
		t.Error("Expected anc.enabled true in the decoded frame")
	}
	if v := msg.Params[messages.PathEncEnabled]; v.Bool {
		t.Error("Expected enc.enabled false in the decoded frame")
	}
}

func TestSendParameterValuesMixedTypes(t *testing.T) {
	e, loop := newTestEngine(t, DefaultConfig())

	values := protocol.ParamMap{
		messages.PathAncEnabled:   protocol.BoolValue(true),
		messages.PathVehicleSpeed: protocol.Uint32Value(80),
	}
	if err := e.SendParameterValues(values); !errors.HasCode(err, ErrMixedMessageTypes) {
		t.Errorf("Expected mixed_message_types, got %v", err)
	}
	if len(loop.Sent()) != 0 {
		t.Error("Expected nothing sent for a mixed map")
	}

	if err := e.SendParameterValues(protocol.ParamMap{}); !errors.HasCode(err, ErrNoParameters) {
		t.Errorf("Expected no_parameters for an empty map, got %v", err)
	}
}

func TestSendParameterGroup(t *testing.T) {
	e, loop := newTestEngine(t, DefaultConfig())

	values := protocol.ParamMap{
		messages.PathAncEnabled:   protocol.BoolValue(true),
		messages.PathVehicleSpeed: protocol.Uint32Value(80),
		messages.PathVehicleAC:    protocol.Uint32Value(1),
	}
	report, err := e.SendParameterGroup(values)
	if err != nil {
		t.Fatalf("Failed to send group: %v", err)
	}
	if len(report.Sent) != 2 || len(report.Failed) != 0 {
		t.Errorf("Expected 2 groups sent, got %+v", report)
	}
	if len(loop.Sent()) != 2 {
		t.Errorf("Expected 2 frames, got %d", len(loop.Sent()))
	}
}

func TestSendParameterGroupPartialFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DisableRetry = true
	e, loop := newTestEngine(t, cfg)

	// Groups go out in message type order: AncSwitch first, VehicleState
	// second. Failing exactly one send leaves a split outcome.
	loop.FailNextSends(1)

	values := protocol.ParamMap{
		messages.PathAncEnabled:   protocol.BoolValue(true),
		messages.PathVehicleSpeed: protocol.Uint32Value(80),
	}
	report, err := e.SendParameterGroup(values)
	if !errors.HasCode(err, ErrGroupPartialFailure) {
		t.Errorf("Expected group_partial_failure, got %v", err)
	}
	if len(report.Sent) != 1 || report.Sent[0] != protocol.VehicleState {
		t.Errorf("Expected VehicleState sent, got %v", report.Sent)
	}
	failedErr, ok := report.Failed[protocol.AncSwitch]
	if !ok || !errors.HasCode(failedErr, transport.ErrSendFailed) {
		t.Errorf("Expected AncSwitch send failure recorded, got %+v", report.Failed)
	}
	if len(loop.Sent()) != 1 {
		t.Errorf("Expected 1 delivered frame, got %d", len(loop.Sent()))
	}
}

func TestSendParameterGroupTotalFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DisableRetry = true
	e, loop := newTestEngine(t, cfg)

	loop.FailNextSends(2)

	values := protocol.ParamMap{
		messages.PathAncEnabled:   protocol.BoolValue(true),
		messages.PathVehicleSpeed: protocol.Uint32Value(80),
	}
	report, err := e.SendParameterGroup(values)
	if !errors.HasCode(err, ErrGroupFailure) {
		t.Errorf("Expected group_failure, got %v", err)
	}
	if len(report.Sent) != 0 || len(report.Failed) != 2 {
		t.Errorf("Expected both groups failed, got %+v", report)
	}
}

func TestEngineRetryRecovers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = RetryConfig{MaxAttempts: 3, Interval: 2 * time.Millisecond, MaxQueued: 8}
	e, loop := newTestEngine(t, cfg)

	events := make(chan SendEvent, 8)
	e.OnSend(func(ev SendEvent) { events <- ev })

	// Direct send and the first resend fail, the second resend lands.
	loop.FailNextSends(2)

	err := e.SendParameter(messages.PathAncEnabled, protocol.BoolValue(true))
	if !errors.HasCode(err, transport.ErrSendFailed) {
		t.Fatalf("Expected send_failed from the direct attempt, got %v", err)
	}
	if e.State() != StateRetrying {
		t.Errorf("Expected retrying state, got %s", e.State())
	}

	var queued SendEvent
	select {
	case queued = <-events:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for the queued event")
	}
	if queued.Outcome != OutcomeQueued || queued.Type != protocol.AncSwitch {
		t.Fatalf("Expected a queued AncSwitch event, got %+v", queued)
	}

	select {
	case ev := <-events:
		if ev.Outcome != OutcomeRetried {
			t.Errorf("Expected a retried event, got %+v", ev)
		}
		if ev.ID != queued.ID {
			t.Errorf("Expected the same correlation id across retries, got %s and %s", queued.ID, ev.ID)
		}
		if len(ev.Paths) != 1 || ev.Paths[0] != messages.PathAncEnabled {
			t.Errorf("Expected paths carried through the retry, got %v", ev.Paths)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the retried event")
	}

	if e.State() != StateAcked {
		t.Errorf("Expected acked state after the resend, got %s", e.State())
	}
	if n := e.PendingRetries(); n != 0 {
		t.Errorf("Expected empty retry queue, got %d", n)
	}
	if got := loop.Sent(); len(got) != 1 || !bytes.Equal(got[0], ancRequestFrame) {
		t.Errorf("Expected exactly the original frame delivered, got %d frames", len(got))
	}

	stats := e.Stats()
	if stats.Retries != 1 || stats.SendErrors != 2 {
		t.Errorf("Expected 1 retry and 2 send errors, got %d and %d", stats.Retries, stats.SendErrors)
	}
}

func TestEngineRetryExhausts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = RetryConfig{MaxAttempts: 3, Interval: 2 * time.Millisecond, MaxQueued: 8}
	e, loop := newTestEngine(t, cfg)

	events := make(chan SendEvent, 8)
	errc := make(chan error, 8)
	e.OnSend(func(ev SendEvent) { events <- ev })
	e.OnError(func(err error) { errc <- err })

	loop.FailNextSends(10)

	if err := e.SendParameter(messages.PathAncEnabled, protocol.BoolValue(true)); err == nil {
		t.Fatal("Expected the direct send to fail")
	}

	deadline := time.After(2 * time.Second)
	var last SendEvent
	for last.Outcome != OutcomeExhausted {
		select {
		case last = <-events:
		case <-deadline:
			t.Fatal("Timed out waiting for exhaustion")
		}
	}
	if !errors.HasCode(last.Err, ErrRetryExhausted) {
		t.Errorf("Expected retry_exhausted on the event, got %v", last.Err)
	}
	if last.Type != protocol.AncSwitch || len(last.Paths) != 1 {
		t.Errorf("Expected send context on the exhausted event, got %+v", last)
	}

	select {
	case err := <-errc:
		if !errors.HasCode(err, ErrRetryExhausted) {
			t.Errorf("Expected retry_exhausted on the error callback, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for the error callback")
	}

	if e.State() != StateExhausted {
		t.Errorf("Expected exhausted state, got %s", e.State())
	}
	if n := e.PendingRetries(); n != 0 {
		t.Errorf("Expected empty retry queue after exhaustion, got %d", n)
	}

	stats := e.Stats()
	if stats.Exhausted != 1 {
		t.Errorf("Expected 1 exhausted send, got %d", stats.Exhausted)
	}
	// Direct send plus three resends.
	if stats.SendErrors != 4 {
		t.Errorf("Expected 4 send errors, got %d", stats.SendErrors)
	}

	// The engine stays usable once the link recovers.
	loop.FailNextSends(0)
	if err := e.SendParameter(messages.PathAncEnabled, protocol.BoolValue(false)); err != nil {
		t.Errorf("Expected a later send to succeed, got %v", err)
	}
	if e.State() != StateAcked {
		t.Errorf("Expected acked state after recovery, got %s", e.State())
	}
}

func TestOnBytesReceivedSplitDelivery(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig())

	var msgs []*protocol.DecodedMessage
	e.OnMessage(func(msg *protocol.DecodedMessage) { msgs = append(msgs, msg) })

	e.OnBytesReceived(ancResponseFrame[:5])
	if len(msgs) != 0 {
		t.Fatal("Expected no message from a partial frame")
	}
	e.OnBytesReceived(ancResponseFrame[5:])

	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.Type != protocol.AncSwitch || msg.Function != protocol.FunctionResponse {
		t.Errorf("Expected an AncSwitch response, got %s %s",
			protocol.MessageTypeName(msg.Type), protocol.FunctionCodeName(msg.Function))
	}
	if v := msg.Params[messages.PathAncEnabled]; !v.Bool {
		t.Error("Expected anc.enabled true")
	}

	stats := e.Stats()
	if stats.FramesReceived != 1 || stats.BytesReceived != uint64(len(ancResponseFrame)) {
		t.Errorf("Expected 1 frame / %d bytes received, got %d / %d",
			len(ancResponseFrame), stats.FramesReceived, stats.BytesReceived)
	}
	if stats.ByType[protocol.AncSwitch].Received != 1 {
		t.Errorf("Expected 1 AncSwitch frame counted, got %+v", stats.ByType)
	}
}

func TestOnBytesReceivedBadFrameContinues(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig())

	var msgs []*protocol.DecodedMessage
	var errs []error
	e.OnMessage(func(msg *protocol.DecodedMessage) { msgs = append(msgs, msg) })
	e.OnError(func(err error) { errs = append(errs, err) })

	// A framed but unparseable envelope followed by a good frame in one
	// batch. The bad frame is reported, the good one still decodes.
	batch := append([]byte{0xAA, 0x01, 0xFF, 0x55}, ancResponseFrame...)
	e.OnBytesReceived(batch)

	if len(errs) != 1 {
		t.Fatalf("Expected 1 error, got %d", len(errs))
	}
	if !errors.HasCode(errs[0], protocol.ErrEnvelopeDecodeFailed) {
		t.Errorf("Expected envelope_decode_failed, got %v", errs[0])
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected the good frame decoded, got %d messages", len(msgs))
	}

	stats := e.Stats()
	if stats.DecodeErrors != 1 || stats.FramesReceived != 1 {
		t.Errorf("Expected 1 decode error and 1 good frame, got %d and %d",
			stats.DecodeErrors, stats.FramesReceived)
	}
}

func TestPeerVersionGate(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig())

	var msgs []*protocol.DecodedMessage
	var errs []error
	e.OnMessage(func(msg *protocol.DecodedMessage) { msgs = append(msgs, msg) })
	e.OnError(func(err error) { errs = append(errs, err) })

	if err := e.SetPeerVersion("1.1.0"); err != nil {
		t.Fatalf("Expected 1.1.0 accepted in minor mode, got %v", err)
	}
	e.OnBytesReceived(ancResponseFrame)
	if len(msgs) != 1 {
		t.Fatalf("Expected a message from a compatible peer, got %d", len(msgs))
	}

	if err := e.SetPeerVersion("2.0.0"); !errors.HasCode(err, ErrVersionRejected) {
		t.Fatalf("Expected version_rejected for 2.0.0, got %v", err)
	}
	e.OnBytesReceived(ancResponseFrame)
	if len(msgs) != 1 {
		t.Error("Expected envelopes dropped while the peer is incompatible")
	}
	if len(errs) == 0 || !errors.HasCode(errs[len(errs)-1], ErrVersionRejected) {
		t.Errorf("Expected version_rejected reported, got %v", errs)
	}
	if got := e.Stats().Rejected; got != 1 {
		t.Errorf("Expected 1 rejected envelope, got %d", got)
	}

	version, ok := e.PeerVersion()
	if version != "2.0.0" || ok {
		t.Errorf("Expected recorded incompatible peer 2.0.0, got %s %v", version, ok)
	}

	e.ClearPeerVersion()
	e.OnBytesReceived(ancResponseFrame)
	if len(msgs) != 2 {
		t.Errorf("Expected decoding to resume after clearing the peer version, got %d messages", len(msgs))
	}
}

func TestDeprecatedPathRewrite(t *testing.T) {
	e, loop := newTestEngine(t, DefaultConfig())

	overlay := []byte(`{
		"mappings": {
			"rnc.alpha1": {
				"protobufPath": "alpha_value",
				"fieldType": "float",
				"defaultValue": 0.5,
				"messageType": "AlphaParams",
				"deprecated": true,
				"replacedBy": "processing.alpha",
				"description": "renamed in the 1.0 mapping cleanup"
			}
		}
	}`)
	if err := e.Params().Load(overlay); err != nil {
		t.Fatalf("Failed to load the mapping overlay: %v", err)
	}

	var events []SendEvent
	e.OnSend(func(ev SendEvent) { events = append(events, ev) })

	if err := e.SendParameter("rnc.alpha1", protocol.Float32Value(0.25)); err != nil {
		t.Fatalf("Failed to send through a deprecated path: %v", err)
	}

	sent := loop.Sent()
	if len(sent) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(sent))
	}
	packager, err := messages.NewDefaultPackager()
	if err != nil {
		t.Fatalf("Failed to build packager: %v", err)
	}
	frame := sent[0]
	msg, err := packager.DecodeParams(frame[2 : len(frame)-1])
	if err != nil {
		t.Fatalf("Failed to decode the sent frame: %v", err)
	}
	if msg.Type != protocol.AlphaParams {
		t.Errorf("Expected AlphaParams, got %s", protocol.MessageTypeName(msg.Type))
	}
	if v, ok := msg.Params[messages.PathProcessingAlpha]; !ok || v.Float32 != 0.25 {
		t.Errorf("Expected processing.alpha 0.25 on the wire, got %+v", msg.Params)
	}
	if _, ok := msg.Params["rnc.alpha1"]; ok {
		t.Error("Expected the deprecated path rewritten, not sent")
	}

	if len(events) != 1 || len(events[0].Paths) != 1 || events[0].Paths[0] != messages.PathProcessingAlpha {
		t.Errorf("Expected the event to carry the replacement path, got %+v", events)
	}
}

func TestEngineReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = RetryConfig{MaxAttempts: 3, Interval: time.Hour, MaxQueued: 8}
	e, loop := newTestEngine(t, cfg)

	var msgs []*protocol.DecodedMessage
	e.OnMessage(func(msg *protocol.DecodedMessage) { msgs = append(msgs, msg) })

	loop.FailNextSends(1)
	if err := e.SendParameter(messages.PathAncEnabled, protocol.BoolValue(true)); err == nil {
		t.Fatal("Expected the send to fail")
	}
	if n := e.PendingRetries(); n != 1 {
		t.Fatalf("Expected 1 queued retry, got %d", n)
	}

	// Half a frame sits in the accumulation buffer when the link drops.
	e.OnBytesReceived(ancResponseFrame[:4])

	e.Reset()

	if n := e.PendingRetries(); n != 0 {
		t.Errorf("Expected the retry queue cleared, got %d", n)
	}
	if e.State() != StateIdle {
		t.Errorf("Expected idle state, got %s", e.State())
	}

	// The stale partial frame is gone: its tail is noise, the next full
	// frame still decodes.
	e.OnBytesReceived(ancResponseFrame[4:])
	e.OnBytesReceived(ancResponseFrame)
	if len(msgs) != 1 {
		t.Errorf("Expected exactly the fresh frame decoded, got %d messages", len(msgs))
	}
}

func TestEngineStatsRebase(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig())

	if err := e.SendParameter(messages.PathAncEnabled, protocol.BoolValue(true)); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	e.OnBytesReceived(ancResponseFrame)

	stats := e.Stats()
	if stats.FramesSent != 1 || stats.FramesReceived != 1 {
		t.Fatalf("Expected traffic recorded, got %+v", stats)
	}

	e.ResetStats()
	stats = e.Stats()
	if stats.FramesSent != 0 || stats.FramesReceived != 0 || stats.BytesSent != 0 ||
		stats.Resyncs != 0 || len(stats.ByType) != 0 {
		t.Errorf("Expected zeroed counters after reset, got %+v", stats)
	}
}
