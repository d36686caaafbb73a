package messages

import (
	"testing"

	"github.com/ancware/tunelink/protocol"
)

func TestVehicleState(t *testing.T) {
	codec := NewVehicleStateCodec()

	// Test Type method
	if codec.Type() != protocol.VehicleState {
		t.Errorf("Expected Type() to return VehicleState, got %d", codec.Type())
	}

	// Test Serialize with scalars and state lists
	params := protocol.ParamMap{
		PathVehicleSpeed:       protocol.Uint32Value(120),
		PathVehicleEngineSpeed: protocol.Uint32Value(3500),
		PathVehicleAC:          protocol.Uint32Value(1),
		PathVehicleGear:        protocol.Uint32Value(4),
		PathVehicleDriveMod:    protocol.Uint32Value(2),
		PathVehicleDoor: protocol.ListValue(
			protocol.Uint32Value(0),
			protocol.Uint32Value(10),
			protocol.Uint32Value(3),
		),
		PathVehicleWindow: protocol.ListValue(
			protocol.Uint32Value(5),
			protocol.Uint32Value(5),
		),
		PathVehicleMedia: protocol.ListValue(
			protocol.Uint32Value(1),
		),
	}
	payload, err := codec.Serialize(params)
	if err != nil {
		t.Fatalf("Serialize() failed: %v", err)
	}
	if len(payload) == 0 {
		t.Fatal("Serialize() returned empty payload")
	}

	// Test Deserialize round trip
	decoded, err := codec.Deserialize(payload)
	if err != nil {
		t.Fatalf("Deserialize() failed: %v", err)
	}
	if decoded[PathVehicleSpeed].Uint32 != 120 {
		t.Errorf("Expected speed 120, got %d", decoded[PathVehicleSpeed].Uint32)
	}
	if decoded[PathVehicleEngineSpeed].Uint32 != 3500 {
		t.Errorf("Expected engine speed 3500, got %d", decoded[PathVehicleEngineSpeed].Uint32)
	}
	doors := decoded[PathVehicleDoor].List
	if len(doors) != 3 {
		t.Fatalf("Expected 3 door states, got %d", len(doors))
	}
	if doors[1].Uint32 != 10 {
		t.Errorf("Expected door[1] to be 10, got %d", doors[1].Uint32)
	}
	windows := decoded[PathVehicleWindow].List
	if len(windows) != 2 {
		t.Fatalf("Expected 2 window states, got %d", len(windows))
	}
	media := decoded[PathVehicleMedia].List
	if len(media) != 1 || media[0].Uint32 != 1 {
		t.Errorf("Expected media [1], got %v", media)
	}
}

func TestVehicleStateSpeedOutOfRange(t *testing.T) {
	codec := NewVehicleStateCodec()

	err := codec.Validate(protocol.ParamMap{
		PathVehicleSpeed: protocol.Uint32Value(301),
	})
	if err == nil {
		t.Error("Expected error for speed above 300")
	}
}

func TestVehicleStateEngineSpeedOutOfRange(t *testing.T) {
	codec := NewVehicleStateCodec()

	err := codec.Validate(protocol.ParamMap{
		PathVehicleEngineSpeed: protocol.Uint32Value(8001),
	})
	if err == nil {
		t.Error("Expected error for engine speed above 8000")
	}
}

func TestVehicleStateListBounds(t *testing.T) {
	codec := NewVehicleStateCodec()

	// Six doors exceed the five door limit
	six := protocol.ListValue(
		protocol.Uint32Value(0),
		protocol.Uint32Value(0),
		protocol.Uint32Value(0),
		protocol.Uint32Value(0),
		protocol.Uint32Value(0),
		protocol.Uint32Value(0),
	)
	err := codec.Validate(protocol.ParamMap{PathVehicleDoor: six})
	if err == nil {
		t.Error("Expected error for six door states")
	}

	// Opening degree above 10 is rejected
	err = codec.Validate(protocol.ParamMap{
		PathVehicleWindow: protocol.ListValue(protocol.Uint32Value(11)),
	})
	if err == nil {
		t.Error("Expected error for opening degree above 10")
	}
}

func TestVehicleStateValidateEmpty(t *testing.T) {
	codec := NewVehicleStateCodec()
	err := codec.Validate(protocol.ParamMap{})
	if err == nil {
		t.Error("Expected error when no vehicle paths are present")
	}
}

func TestVehicleStateDeserializeIndividualVarints(t *testing.T) {
	codec := NewVehicleStateCodec()

	// Door states as individual varint fields instead of a packed run
	payload := []byte{
		0x30, 0x02, // field 6 varint 2
		0x30, 0x07, // field 6 varint 7
	}
	decoded, err := codec.Deserialize(payload)
	if err != nil {
		t.Fatalf("Deserialize() failed: %v", err)
	}
	doors := decoded[PathVehicleDoor].List
	if len(doors) != 2 {
		t.Fatalf("Expected 2 door states, got %d", len(doors))
	}
	if doors[0].Uint32 != 2 || doors[1].Uint32 != 7 {
		t.Errorf("Expected door states [2 7], got [%d %d]", doors[0].Uint32, doors[1].Uint32)
	}
}
