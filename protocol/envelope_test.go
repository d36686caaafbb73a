package protocol

import (
	"bytes"
	"testing"

	"github.com/ancware/tunelink/pkg/errors"
)

func TestPackEnvelopeAncSwitch(t *testing.T) {
	// AncSwitch: ProtoID 151 (varint 97 01), payload field 7 (tag 3A)
	packed, err := PackEnvelope(AncSwitch, FunctionRequest, []byte{0x01})
	if err != nil {
		t.Fatalf("PackEnvelope failed: %v", err)
	}

	expected := []byte{0x08, 0x97, 0x01, 0x10, 0x00, 0x3A, 0x01, 0x01}
	if !bytes.Equal(packed, expected) {
		t.Errorf("Expected % X, got % X", expected, packed)
	}
}

func TestPackEnvelopeTwoByteTag(t *testing.T) {
	// AlphaParams: ProtoID 158 (varint 9E 01), payload field 17 (tag 8A 01)
	packed, err := PackEnvelope(AlphaParams, FunctionResponse, []byte{0xCA, 0xFE})
	if err != nil {
		t.Fatalf("PackEnvelope failed: %v", err)
	}

	expected := []byte{0x08, 0x9E, 0x01, 0x10, 0x01, 0x8A, 0x01, 0x02, 0xCA, 0xFE}
	if !bytes.Equal(packed, expected) {
		t.Errorf("Expected % X, got % X", expected, packed)
	}
}

func TestEnvelopeRoundTripAllPackableTypes(t *testing.T) {
	payload := []byte{0xDE, 0xAD}

	for _, msgType := range MessageTypes() {
		if msgType == GraphData {
			continue
		}

		packed, err := PackEnvelope(msgType, FunctionRequest, payload)
		if err != nil {
			t.Fatalf("PackEnvelope(%s) failed: %v", MessageTypeName(msgType), err)
		}

		env, err := UnpackEnvelope(packed)
		if err != nil {
			t.Fatalf("UnpackEnvelope(%s) failed: %v", MessageTypeName(msgType), err)
		}

		if env.Type != msgType {
			t.Errorf("Expected type %s, got %s", MessageTypeName(msgType), MessageTypeName(env.Type))
		}
		if env.Function != FunctionRequest {
			t.Errorf("%s: expected function Request, got %s", MessageTypeName(msgType), FunctionCodeName(env.Function))
		}
		if !bytes.Equal(env.Payload, payload) {
			t.Errorf("%s: expected payload % X, got % X", MessageTypeName(msgType), payload, env.Payload)
		}

		expectedID, _ := ProtoIDForType(msgType)
		if env.ProtoID != expectedID {
			t.Errorf("%s: expected ProtoID %d, got %d", MessageTypeName(msgType), expectedID, env.ProtoID)
		}
	}
}

func TestEnvelopeEmptyPayloadRoundTrip(t *testing.T) {
	packed, err := PackEnvelope(ChannelNumber, FunctionRequest, nil)
	if err != nil {
		t.Fatalf("PackEnvelope failed: %v", err)
	}

	env, err := UnpackEnvelope(packed)
	if err != nil {
		t.Fatalf("UnpackEnvelope failed: %v", err)
	}
	if len(env.Payload) != 0 {
		t.Errorf("Expected empty payload, got % X", env.Payload)
	}
}

func TestPackEnvelopeGraphDataRejected(t *testing.T) {
	_, err := PackEnvelope(GraphData, FunctionRequest, []byte{0x01})
	if err == nil {
		t.Fatal("Expected error packing GraphData")
	}
	if !errors.HasCode(err, ErrUnsupportedMessageType) {
		t.Errorf("Expected unsupported_message_type code, got %s", errors.GetCode(err))
	}
}

func TestUnpackEnvelopeGraphDataFromUnit(t *testing.T) {
	// The unit streams GraphData under ProtoID 156 on an in-range payload
	// field; the host must decode it even though it can never pack it.
	data := []byte{0x08, 0x9C, 0x01, 0x10, 0x01, 0x32, 0x02, 0x11, 0x22}

	env, err := UnpackEnvelope(data)
	if err != nil {
		t.Fatalf("UnpackEnvelope failed: %v", err)
	}
	if env.Type != GraphData {
		t.Errorf("Expected GraphData, got %s", MessageTypeName(env.Type))
	}
	if !bytes.Equal(env.Payload, []byte{0x11, 0x22}) {
		t.Errorf("Expected payload 11 22, got % X", env.Payload)
	}
}

func TestUnpackEnvelopeUnknownProtoID(t *testing.T) {
	// ProtoID 999 is outside the protocol set
	data := []byte{0x08, 0xE7, 0x07, 0x10, 0x00, 0x1A, 0x01, 0x01}

	_, err := UnpackEnvelope(data)
	if err == nil {
		t.Fatal("Expected error for unknown ProtoID")
	}
	if !errors.HasCode(err, ErrUnsupportedMessageType) {
		t.Errorf("Expected unsupported_message_type code, got %s", errors.GetCode(err))
	}
}

func TestUnpackEnvelopeMissingFields(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"proto id only", []byte{0x08, 0x97, 0x01}},
		{"no payload", []byte{0x08, 0x97, 0x01, 0x10, 0x00}},
		{"no proto id", []byte{0x10, 0x00, 0x3A, 0x01, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnpackEnvelope(tt.data)
			if err == nil {
				t.Fatal("Expected error for incomplete envelope")
			}
			if !errors.HasCode(err, ErrEnvelopeDecodeFailed) {
				t.Errorf("Expected envelope_decode_failed code, got %s", errors.GetCode(err))
			}
		})
	}
}

func TestUnpackEnvelopeSkipsUnknownFields(t *testing.T) {
	// Field 20 varint (tag A0 01) and field 21 length-delimited (tag AA 01)
	// are unknown but skippable
	data := []byte{
		0xA0, 0x01, 0x2A,
		0x08, 0x97, 0x01,
		0xAA, 0x01, 0x02, 0xFF, 0xFF,
		0x10, 0x00,
		0x3A, 0x01, 0x01,
	}

	env, err := UnpackEnvelope(data)
	if err != nil {
		t.Fatalf("UnpackEnvelope failed: %v", err)
	}
	if env.Type != AncSwitch {
		t.Errorf("Expected AncSwitch, got %s", MessageTypeName(env.Type))
	}
	if !bytes.Equal(env.Payload, []byte{0x01}) {
		t.Errorf("Expected payload 01, got % X", env.Payload)
	}
}

func TestUnpackEnvelopeRejectsUnskippableWireType(t *testing.T) {
	// Unknown field 20 with fixed64 wire type (tag A1 01)
	data := []byte{0xA1, 0x01, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	_, err := UnpackEnvelope(data)
	if err == nil {
		t.Fatal("Expected error for unskippable wire type")
	}
	if !errors.HasCode(err, ErrEnvelopeDecodeFailed) {
		t.Errorf("Expected envelope_decode_failed code, got %s", errors.GetCode(err))
	}
}

func TestUnpackEnvelopeWrongWireTypes(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		// ProtoID as length-delimited (tag 0A)
		{"proto id wire type", []byte{0x0A, 0x01, 0x97, 0x10, 0x00, 0x3A, 0x01, 0x01}},
		// Function code as length-delimited (tag 12)
		{"function wire type", []byte{0x08, 0x97, 0x01, 0x12, 0x01, 0x00, 0x3A, 0x01, 0x01}},
		// Payload field as varint (tag 38)
		{"payload wire type", []byte{0x08, 0x97, 0x01, 0x10, 0x00, 0x38, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnpackEnvelope(tt.data); err == nil {
				t.Fatal("Expected wire type error")
			}
		})
	}
}

func TestUnpackEnvelopeFunctionCodeOutOfRange(t *testing.T) {
	data := []byte{0x08, 0x97, 0x01, 0x10, 0x02, 0x3A, 0x01, 0x01}

	_, err := UnpackEnvelope(data)
	if err == nil {
		t.Fatal("Expected error for function code 2")
	}
	if !errors.HasCode(err, ErrEnvelopeDecodeFailed) {
		t.Errorf("Expected envelope_decode_failed code, got %s", errors.GetCode(err))
	}
}

func TestUnpackEnvelopeTruncatedVarint(t *testing.T) {
	// ProtoID varint ends mid-value
	_, err := UnpackEnvelope([]byte{0x08, 0x97})
	if err == nil {
		t.Fatal("Expected error for truncated varint")
	}
}

func TestProtoIDTablePinned(t *testing.T) {
	// The wire contract with the unit firmware: these pairs never drift.
	expected := map[MessageType]uint32{
		ChannelNumber:    0,
		ChannelAmplitude: 25,
		FreqDivision:     27,
		Thresholds:       33,
		OrderFlag:        77,
		Order2Params:     78,
		Order4Params:     86,
		Order6Params:     87,
		ChannelSwitch:    119,
		VehicleState:     138,
		StreamCheck:      150,
		AncSwitch:        151,
		TranFuncFlag:     153,
		TranFuncState:    154,
		FilterRanges:     155,
		GraphData:        156,
		SystemRanges:     157,
		AlphaParams:      158,
	}

	for msgType, wantID := range expected {
		id, ok := ProtoIDForType(msgType)
		if !ok {
			t.Errorf("%s has no ProtoID", MessageTypeName(msgType))
			continue
		}
		if id != wantID {
			t.Errorf("%s: expected ProtoID %d, got %d", MessageTypeName(msgType), wantID, id)
		}

		back, ok := MessageTypeFromProtoID(wantID)
		if !ok || back != msgType {
			t.Errorf("ProtoID %d: expected %s back, got %s", wantID, MessageTypeName(msgType), MessageTypeName(back))
		}
	}

	if len(expected) != len(MessageTypes()) {
		t.Errorf("Expected %d message types, got %d", len(expected), len(MessageTypes()))
	}
}

func TestEnvelopeFieldTablePinned(t *testing.T) {
	expected := map[MessageType]uint32{
		ChannelNumber:    3,
		ChannelAmplitude: 4,
		ChannelSwitch:    5,
		StreamCheck:      6,
		AncSwitch:        7,
		VehicleState:     8,
		TranFuncFlag:     9,
		TranFuncState:    10,
		FilterRanges:     11,
		SystemRanges:     12,
		OrderFlag:        13,
		Order2Params:     14,
		Order4Params:     15,
		Order6Params:     16,
		AlphaParams:      17,
		FreqDivision:     18,
		Thresholds:       19,
	}

	for msgType, wantField := range expected {
		field, ok := EnvelopeFieldForType(msgType)
		if !ok {
			t.Errorf("%s has no envelope field", MessageTypeName(msgType))
			continue
		}
		if field != wantField {
			t.Errorf("%s: expected field %d, got %d", MessageTypeName(msgType), wantField, field)
		}
	}

	if _, ok := EnvelopeFieldForType(GraphData); ok {
		t.Error("GraphData must not have an envelope field")
	}
}
