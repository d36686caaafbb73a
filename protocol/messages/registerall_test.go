package messages

import (
	"testing"

	"github.com/ancware/tunelink/protocol"
)

func TestRegisterAll(t *testing.T) {
	registry := protocol.NewRegistry()
	factory := protocol.NewCodecFactory()

	if err := RegisterAll(registry, factory); err != nil {
		t.Fatalf("RegisterAll() failed: %v", err)
	}

	expected := []protocol.MessageType{
		protocol.ChannelNumber,
		protocol.ChannelAmplitude,
		protocol.ChannelSwitch,
		protocol.StreamCheck,
		protocol.AncSwitch,
		protocol.VehicleState,
		protocol.AlphaParams,
	}
	for _, msgType := range expected {
		if !registry.IsRegistered(msgType) {
			t.Errorf("Expected %s to be registered", protocol.MessageTypeName(msgType))
		}
		if !factory.IsRegistered(msgType) {
			t.Errorf("Expected %s constructor in factory", protocol.MessageTypeName(msgType))
		}
	}
	if len(registry.List()) != len(expected) {
		t.Errorf("Expected %d registered codecs, got %d", len(expected), len(registry.List()))
	}

	// Second registration collides on every type
	if err := RegisterAll(registry, factory); err == nil {
		t.Error("Expected error when registering all codecs twice")
	}
}

func TestRegisterAllInfoPaths(t *testing.T) {
	registry := protocol.NewRegistry()
	factory := protocol.NewCodecFactory()
	if err := RegisterAll(registry, factory); err != nil {
		t.Fatalf("RegisterAll() failed: %v", err)
	}

	info, err := registry.Info(protocol.AncSwitch)
	if err != nil {
		t.Fatalf("Info() failed: %v", err)
	}
	if len(info.Paths) != 3 {
		t.Errorf("Expected 3 AncSwitch paths, got %d", len(info.Paths))
	}
}

func TestNewDefaultPackager(t *testing.T) {
	packager, err := NewDefaultPackager()
	if err != nil {
		t.Fatalf("NewDefaultPackager() failed: %v", err)
	}

	// Full envelope round trip through a registered codec
	params := protocol.ParamMap{
		PathAncEnabled: protocol.BoolValue(true),
	}
	encoded, err := packager.EncodeParams(protocol.AncSwitch, protocol.FunctionRequest, params)
	if err != nil {
		t.Fatalf("EncodeParams() failed: %v", err)
	}

	decoded, err := packager.DecodeParams(encoded)
	if err != nil {
		t.Fatalf("DecodeParams() failed: %v", err)
	}
	if decoded.Type != protocol.AncSwitch {
		t.Errorf("Expected AncSwitch, got %s", protocol.MessageTypeName(decoded.Type))
	}
	if decoded.Function != protocol.FunctionRequest {
		t.Errorf("Expected request function code, got %d", decoded.Function)
	}
	if !decoded.Params[PathAncEnabled].Bool {
		t.Error("Expected anc.enabled to survive the envelope round trip")
	}
}
