package protocol

import (
	"github.com/ancware/tunelink/pkg/errors"
)

// Packager glues the envelope layer to the per-type message codecs: one call
// takes parameter values to envelope bytes and back.
type Packager struct {
	registry *Registry
	factory  *CodecFactory
}

// NewPackager creates a packager over a codec registry and factory
func NewPackager(registry *Registry, factory *CodecFactory) *Packager {
	return &Packager{
		registry: registry,
		factory:  factory,
	}
}

// EncodeParams serializes params with the message type's codec and wraps the
// payload in an envelope. Validation failures surface before any bytes are
// produced.
func (p *Packager) EncodeParams(t MessageType, fc FunctionCode, params ParamMap) ([]byte, error) {
	codec, err := p.registry.Get(t)
	if err != nil {
		return nil, err
	}

	payload, err := codec.Serialize(params)
	if err != nil {
		return nil, err
	}

	return PackEnvelope(t, fc, payload)
}

// DecodeParams parses an envelope and runs the payload through the message
// type's codec.
func (p *Packager) DecodeParams(data []byte) (*DecodedMessage, error) {
	env, err := UnpackEnvelope(data)
	if err != nil {
		return nil, err
	}
	return p.DecodePayload(env)
}

// DecodePayload runs an already-parsed envelope's payload through the message
// type's codec.
func (p *Packager) DecodePayload(env *Envelope) (*DecodedMessage, error) {
	codec, err := p.registry.Get(env.Type)
	if err != nil {
		return nil, err
	}

	params, err := codec.Deserialize(env.Payload)
	if err != nil {
		return nil, errors.AsError(err).AddContext("message_type", MessageTypeName(env.Type))
	}

	return &DecodedMessage{
		Type:     env.Type,
		Function: env.Function,
		Params:   params,
	}, nil
}

// NewCodec creates a fresh codec instance for a message type via the factory.
func (p *Packager) NewCodec(t MessageType) (MessageCodec, error) {
	return p.factory.CreateCodec(t)
}
