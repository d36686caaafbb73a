package messages

import (
	"github.com/ancware/tunelink/protocol"
)

// RegisterAll installs every message codec into the given registry and
// factory. The engine calls this once at startup; partial registration is
// treated as fatal and the first failure is returned.
func RegisterAll(registry *protocol.Registry, factory *protocol.CodecFactory) error {
	codecs := []protocol.MessageCodec{
		NewChannelNumberCodec(),
		NewChannelAmplitudeCodec(),
		NewChannelSwitchCodec(),
		NewStreamCheckCodec(),
		NewAncSwitchCodec(),
		NewVehicleStateCodec(),
		NewAlphaParamsCodec(),
	}
	for _, codec := range codecs {
		if err := codec.Register(registry, factory); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultPackager builds a packager with all message codecs registered.
// Most callers want this instead of assembling registry and factory by hand.
func NewDefaultPackager() (*protocol.Packager, error) {
	registry := protocol.NewRegistry()
	factory := protocol.NewCodecFactory()
	if err := RegisterAll(registry, factory); err != nil {
		return nil, err
	}
	return protocol.NewPackager(registry, factory), nil
}
