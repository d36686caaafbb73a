package sdk_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancware/tunelink/engine"
	"github.com/ancware/tunelink/params"
	tlerrors "github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/pkg/sdk"
	"github.com/ancware/tunelink/protocol"
	"github.com/ancware/tunelink/protocol/messages"
)

func TestSendFailureWithRetryDisabled(t *testing.T) {
	client, loop := newLoopClient(t, nil)

	var events []engine.SendEvent
	client.OnSendEvent(func(ev engine.SendEvent) {
		events = append(events, ev)
	})

	loop.FailNextSends(1)
	err := client.SetANCEnabled(true)
	require.Error(t, err)

	assert.Equal(t, engine.StateFailed, client.State())
	assert.Equal(t, uint64(1), client.Stats().SendErrors)
	assert.Equal(t, 0, client.PendingRetries())

	require.Len(t, events, 1)
	assert.Equal(t, engine.OutcomeFailed, events[0].Outcome)
	assert.Error(t, events[0].Err)

	// The failed value must not enter the cache
	_, ok := client.GetBool(messages.PathAncEnabled)
	assert.False(t, ok)

	// The link itself still works afterwards
	require.NoError(t, client.SetANCEnabled(true))
	assert.Len(t, loop.Sent(), 1)
}

func TestSendFailureQueuesWithRetry(t *testing.T) {
	client, loop := newLoopClient(t, func(opt *sdk.Options) {
		opt.DisableRetry = false
		opt.MaxRetries = 3
		opt.RetryInterval = time.Hour
	})

	var events []engine.SendEvent
	client.OnSendEvent(func(ev engine.SendEvent) {
		events = append(events, ev)
	})

	loop.FailNextSends(1)
	err := client.SetVehicleSpeed(90)
	require.Error(t, err)

	assert.Equal(t, engine.StateRetrying, client.State())
	assert.Equal(t, 1, client.PendingRetries())

	require.Len(t, events, 1)
	assert.Equal(t, engine.OutcomeQueued, events[0].Outcome)
}

func TestUnknownPathRejected(t *testing.T) {
	client, loop := newLoopClient(t, nil)

	err := client.Set("made.up", protocol.BoolValue(true))
	require.Error(t, err)
	assert.True(t, tlerrors.HasCode(err, params.ErrUnknownParameter))
	assert.Empty(t, loop.Sent())
}

func TestValidationFailureRejected(t *testing.T) {
	client, loop := newLoopClient(t, nil)

	// Speed tops out at 300 km/h
	err := client.SetVehicleSpeed(900)
	require.Error(t, err)
	assert.True(t, tlerrors.HasCode(err, messages.ErrValidationFailed))
	assert.Empty(t, loop.Sent())
	assert.Equal(t, uint64(1), client.Stats().EncodeErrors)
}

func TestMixedTypesRefusedBySetMany(t *testing.T) {
	client, _ := newLoopClient(t, nil)

	err := client.SetMany(protocol.ParamMap{
		messages.PathAncEnabled:   protocol.BoolValue(true),
		messages.PathVehicleSpeed: protocol.Uint32Value(50),
	})
	require.Error(t, err)
	assert.True(t, tlerrors.HasCode(err, engine.ErrMixedMessageTypes))
}

func TestSetGroupPartialFailure(t *testing.T) {
	client, loop := newLoopClient(t, nil)

	// Two groups, one transport failure. Group order follows message type
	// numbers, so AncSwitch goes first and takes the hit.
	loop.FailNextSends(1)
	report, err := client.SetGroup(protocol.ParamMap{
		messages.PathAncEnabled:   protocol.BoolValue(true),
		messages.PathVehicleSpeed: protocol.Uint32Value(60),
	})
	require.Error(t, err)
	assert.True(t, tlerrors.HasCode(err, engine.ErrGroupPartialFailure))

	require.NotNil(t, report)
	assert.Len(t, report.Sent, 1)
	assert.Len(t, report.Failed, 1)
	assert.Contains(t, report.Sent, protocol.VehicleState)
	assert.Contains(t, report.Failed, protocol.AncSwitch)

	// Only the delivered group's value lands in the cache
	_, ok := client.GetBool(messages.PathAncEnabled)
	assert.False(t, ok)
	speed, ok := client.GetUint32(messages.PathVehicleSpeed)
	require.True(t, ok)
	assert.Equal(t, uint32(60), speed)
}

func TestDecodeErrorsSurface(t *testing.T) {
	client, loop := newLoopClient(t, nil)

	var errs []error
	client.OnError(func(err error) {
		errs = append(errs, err)
	})

	// A well-framed payload that is too short to hold an envelope
	frame, err := protocol.BuildFrame([]byte{0x01})
	require.NoError(t, err)
	loop.InjectReceive(frame)

	require.Len(t, errs, 1)
	assert.Equal(t, uint64(1), client.Stats().DecodeErrors)
	assert.Equal(t, uint64(0), client.Stats().FramesReceived)
}

func TestIncompatiblePeerBlocksInbound(t *testing.T) {
	client, loop := newLoopClient(t, nil)

	msgs, cancel := client.Subscribe(4)
	defer cancel()

	err := client.SetPeerVersion("2.0.0")
	require.Error(t, err)
	assert.True(t, tlerrors.HasCode(err, engine.ErrVersionRejected))

	peer, ok := client.PeerVersion()
	assert.Equal(t, "2.0.0", peer)
	assert.False(t, ok)

	frame := responseFrame(t, protocol.AncSwitch, protocol.ParamMap{
		messages.PathAncEnabled: protocol.BoolValue(true),
	})
	loop.InjectReceive(frame)

	select {
	case msg := <-msgs:
		t.Fatalf("Expected no delivery while gated, got type %d", msg.Type)
	default:
	}
	assert.Equal(t, uint64(1), client.Stats().Rejected)

	// Forgetting the peer reopens the gate
	client.ClearPeerVersion()
	loop.InjectReceive(frame)

	select {
	case msg := <-msgs:
		assert.Equal(t, protocol.AncSwitch, msg.Type)
	default:
		t.Fatal("Expected delivery after clearing the peer version")
	}
}

func TestSlowSubscriberDropsInsteadOfStalling(t *testing.T) {
	client, loop := newLoopClient(t, nil)

	msgs, cancel := client.Subscribe(1)
	defer cancel()

	frame := responseFrame(t, protocol.AncSwitch, protocol.ParamMap{
		messages.PathAncEnabled: protocol.BoolValue(true),
	})
	loop.InjectReceive(frame)
	loop.InjectReceive(frame)
	loop.InjectReceive(frame)

	// One buffered, two dropped, link never blocked
	assert.Equal(t, uint64(3), client.Stats().FramesReceived)
	<-msgs
	select {
	case <-msgs:
		t.Fatal("Expected the overflow messages to be dropped")
	default:
	}
}
