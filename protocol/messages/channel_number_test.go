package messages

import (
	"bytes"
	"testing"

	"github.com/ancware/tunelink/protocol"
)

func TestChannelNumber(t *testing.T) {
	codec := NewChannelNumberCodec()

	// Test Type method
	if codec.Type() != protocol.ChannelNumber {
		t.Errorf("Expected Type() to return ChannelNumber, got %d", codec.Type())
	}

	// Test Serialize with all three counts
	params := protocol.ParamMap{
		PathChannelReferNum: protocol.Uint32Value(4),
		PathChannelErrNum:   protocol.Uint32Value(6),
		PathChannelSpkNum:   protocol.Uint32Value(8),
	}
	payload, err := codec.Serialize(params)
	if err != nil {
		t.Fatalf("Serialize() failed: %v", err)
	}
	expected := []byte{0x08, 0x04, 0x10, 0x06, 0x18, 0x08}
	if !bytes.Equal(payload, expected) {
		t.Errorf("Expected payload % X, got % X", expected, payload)
	}

	// Test Deserialize round trip
	decoded, err := codec.Deserialize(payload)
	if err != nil {
		t.Fatalf("Deserialize() failed: %v", err)
	}
	if decoded[PathChannelReferNum].Uint32 != 4 {
		t.Errorf("Expected refer_num 4, got %d", decoded[PathChannelReferNum].Uint32)
	}
	if decoded[PathChannelErrNum].Uint32 != 6 {
		t.Errorf("Expected err_num 6, got %d", decoded[PathChannelErrNum].Uint32)
	}
	if decoded[PathChannelSpkNum].Uint32 != 8 {
		t.Errorf("Expected spk_num 8, got %d", decoded[PathChannelSpkNum].Uint32)
	}
}

func TestChannelNumberBounds(t *testing.T) {
	codec := NewChannelNumberCodec()

	// Zero channels is invalid
	err := codec.Validate(protocol.ParamMap{
		PathChannelReferNum: protocol.Uint32Value(0),
	})
	if err == nil {
		t.Error("Expected error for zero channel count")
	}

	// 33 channels exceed the limit
	err = codec.Validate(protocol.ParamMap{
		PathChannelSpkNum: protocol.Uint32Value(33),
	})
	if err == nil {
		t.Error("Expected error for channel count above 32")
	}

	// 32 channels is the accepted ceiling
	err = codec.Validate(protocol.ParamMap{
		PathChannelSpkNum: protocol.Uint32Value(32),
	})
	if err != nil {
		t.Errorf("Expected 32 channels to validate, got %v", err)
	}
}

func TestChannelNumberValidateEmpty(t *testing.T) {
	codec := NewChannelNumberCodec()
	err := codec.Validate(protocol.ParamMap{})
	if err == nil {
		t.Error("Expected error when no channel count paths are present")
	}
}

func TestChannelNumberDeserializeUnknownField(t *testing.T) {
	codec := NewChannelNumberCodec()

	// Unknown length-delimited field 9 before a valid refer_num
	payload := []byte{0x4A, 0x02, 0xDE, 0xAD, 0x08, 0x02}
	decoded, err := codec.Deserialize(payload)
	if err != nil {
		t.Fatalf("Deserialize() failed: %v", err)
	}
	if decoded[PathChannelReferNum].Uint32 != 2 {
		t.Errorf("Expected refer_num 2, got %d", decoded[PathChannelReferNum].Uint32)
	}
}
