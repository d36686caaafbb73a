package messages

import (
	"testing"

	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
)

func streamTestParams() protocol.ParamMap {
	return protocol.ParamMap{
		PathStreamChannelCount: protocol.Uint32Value(2),
		PathStreamSampleRate:   protocol.Uint32Value(48000),
		PathStreamDataFormat:   protocol.Uint32Value(1),
		PathStreamChannels: protocol.ListValue(
			protocol.MapValue(map[string]protocol.Value{
				"channel_id": protocol.Uint32Value(0),
				"amplitude":  protocol.Float32Value(-3.5),
				"frequency":  protocol.Float32Value(120.0),
			}),
			protocol.MapValue(map[string]protocol.Value{
				"channel_id": protocol.Uint32Value(1),
				"amplitude":  protocol.Float32Value(0.25),
				"frequency":  protocol.Float32Value(240.0),
			}),
		),
		PathStreamTimestamp: protocol.Float64Value(1700000000000),
	}
}

func TestStreamCheck(t *testing.T) {
	codec := NewStreamCheckCodec()

	// Test Type method
	if codec.Type() != protocol.StreamCheck {
		t.Errorf("Expected Type() to return StreamCheck, got %d", codec.Type())
	}

	// Test Serialize, header plus two records plus timestamp
	payload, err := codec.Serialize(streamTestParams())
	if err != nil {
		t.Fatalf("Serialize() failed: %v", err)
	}
	if len(payload) != 48 {
		t.Errorf("Expected 48 byte payload, got %d", len(payload))
	}

	// Header words are little endian
	if payload[0] != 2 || payload[1] != 0 {
		t.Errorf("Expected channel_count word to start 02 00, got %02X %02X", payload[0], payload[1])
	}
	if payload[4] != 0x80 || payload[5] != 0xBB {
		t.Errorf("Expected sample_rate word to start 80 BB, got %02X %02X", payload[4], payload[5])
	}

	// Test Deserialize round trip
	decoded, err := codec.Deserialize(payload)
	if err != nil {
		t.Fatalf("Deserialize() failed: %v", err)
	}
	if decoded[PathStreamSampleRate].Uint32 != 48000 {
		t.Errorf("Expected sample rate 48000, got %d", decoded[PathStreamSampleRate].Uint32)
	}
	channels := decoded[PathStreamChannels].List
	if len(channels) != 2 {
		t.Fatalf("Expected 2 channel records, got %d", len(channels))
	}
	first := channels[0].Map
	if first["channel_id"].Uint32 != 0 {
		t.Errorf("Expected channel_id 0, got %d", first["channel_id"].Uint32)
	}
	if first["amplitude"].Float32 != -3.5 {
		t.Errorf("Expected amplitude -3.5, got %f", first["amplitude"].Float32)
	}
	if first["frequency"].Float32 != 120.0 {
		t.Errorf("Expected frequency 120.0, got %f", first["frequency"].Float32)
	}
	if decoded[PathStreamTimestamp].Float64 != 1700000000000 {
		t.Errorf("Expected timestamp 1700000000000, got %f", decoded[PathStreamTimestamp].Float64)
	}
}

func TestStreamCheckWithoutTimestamp(t *testing.T) {
	codec := NewStreamCheckCodec()

	params := streamTestParams()
	delete(params, PathStreamTimestamp)

	payload, err := codec.Serialize(params)
	if err != nil {
		t.Fatalf("Serialize() failed: %v", err)
	}
	if len(payload) != 40 {
		t.Errorf("Expected 40 byte payload without timestamp, got %d", len(payload))
	}

	decoded, err := codec.Deserialize(payload)
	if err != nil {
		t.Fatalf("Deserialize() failed: %v", err)
	}
	if _, ok := decoded[PathStreamTimestamp]; ok {
		t.Error("Expected no timestamp path after decoding untimed payload")
	}
}

func TestStreamCheckOversizedPayload(t *testing.T) {
	codec := NewStreamCheckCodec()

	_, err := codec.Deserialize(make([]byte, 513))
	if err == nil {
		t.Fatal("Expected error for 513 byte payload")
	}
	if !errors.HasCode(err, ErrPayloadOversized) {
		t.Errorf("Expected oversized payload code, got %v", err)
	}
}

func TestStreamCheckShortHeader(t *testing.T) {
	codec := NewStreamCheckCodec()

	_, err := codec.Deserialize(make([]byte, 15))
	if err == nil {
		t.Error("Expected error for payload shorter than the header")
	}
}

func TestStreamCheckTruncatedRecords(t *testing.T) {
	codec := NewStreamCheckCodec()

	// Header claims two records but only one follows
	params := streamTestParams()
	delete(params, PathStreamTimestamp)
	payload, err := codec.Serialize(params)
	if err != nil {
		t.Fatalf("Serialize() failed: %v", err)
	}

	_, err = codec.Deserialize(payload[:len(payload)-12])
	if err == nil {
		t.Error("Expected error for truncated channel records")
	}
}

func TestStreamCheckTrailingGarbage(t *testing.T) {
	codec := NewStreamCheckCodec()

	params := streamTestParams()
	delete(params, PathStreamTimestamp)
	payload, err := codec.Serialize(params)
	if err != nil {
		t.Fatalf("Serialize() failed: %v", err)
	}

	// Three trailing bytes are neither empty nor a timestamp
	_, err = codec.Deserialize(append(payload, 0x01, 0x02, 0x03))
	if err == nil {
		t.Error("Expected error for three trailing bytes")
	}
}

func TestStreamCheckValidateBounds(t *testing.T) {
	codec := NewStreamCheckCodec()

	// Sample rate zero
	params := streamTestParams()
	params[PathStreamSampleRate] = protocol.Uint32Value(0)
	if err := codec.Validate(params); err == nil {
		t.Error("Expected error for sample rate 0")
	}

	// Data format above 3
	params = streamTestParams()
	params[PathStreamDataFormat] = protocol.Uint32Value(4)
	if err := codec.Validate(params); err == nil {
		t.Error("Expected error for data format 4")
	}

	// Amplitude out of range
	params = streamTestParams()
	params[PathStreamChannels] = protocol.ListValue(
		protocol.MapValue(map[string]protocol.Value{
			"channel_id": protocol.Uint32Value(0),
			"amplitude":  protocol.Float32Value(150.0),
			"frequency":  protocol.Float32Value(60.0),
		}),
	)
	if err := codec.Validate(params); err == nil {
		t.Error("Expected error for amplitude above 100")
	}

	// Channel record missing frequency
	params = streamTestParams()
	params[PathStreamChannels] = protocol.ListValue(
		protocol.MapValue(map[string]protocol.Value{
			"channel_id": protocol.Uint32Value(0),
			"amplitude":  protocol.Float32Value(1.0),
		}),
	)
	if err := codec.Validate(params); err == nil {
		t.Error("Expected error for channel record without frequency")
	}
}

func TestStreamCheckMissingHeader(t *testing.T) {
	codec := NewStreamCheckCodec()

	// The raw record layout makes header paths mandatory
	err := codec.Validate(protocol.ParamMap{
		PathStreamChannels: protocol.ListValue(),
	})
	if err == nil {
		t.Error("Expected error when header paths are missing")
	}
}
