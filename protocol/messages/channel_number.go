package messages

import (
	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
)

// Logical paths handled by the ChannelNumber codec
const (
	PathChannelReferNum = "channel.refer_num"
	PathChannelErrNum   = "channel.err_num"
	PathChannelSpkNum   = "channel.spk_num"
)

// Wire field numbers of MSG_ChannelNumber
const (
	channelNumberFieldRefer = 1
	channelNumberFieldErr   = 2
	channelNumberFieldSpk   = 3
)

// Channel count bounds
const (
	minChannelCount = 1
	maxChannelCount = 32
)

// ChannelNumberCodec carries the reference, error and speaker channel
// counts of the unit's signal topology.
type ChannelNumberCodec struct{}

// NewChannelNumberCodec creates a new ChannelNumber codec
func NewChannelNumberCodec() *ChannelNumberCodec {
	return &ChannelNumberCodec{}
}

// Type returns the message type
func (c *ChannelNumberCodec) Type() protocol.MessageType {
	return protocol.ChannelNumber
}

// Describe returns a short codec summary
func (c *ChannelNumberCodec) Describe() string {
	return "reference/error/speaker channel counts"
}

// Validate checks that at least one count is present and all lie in 1..32
func (c *ChannelNumberCodec) Validate(params protocol.ParamMap) error {
	present := 0
	for _, path := range []string{PathChannelReferNum, PathChannelErrNum, PathChannelSpkNum} {
		v, ok := params[path]
		if !ok {
			continue
		}
		if v.Kind != protocol.KindUint32 {
			return errors.Newf(ErrValidationFailed, "%s expects Uint32, got %s", path, protocol.ValueKindNames[v.Kind])
		}
		if v.Uint32 < minChannelCount || v.Uint32 > maxChannelCount {
			return errors.Newf(ErrValidationFailed, "%s out of range [%d, %d]: %d",
				path, minChannelCount, maxChannelCount, v.Uint32)
		}
		present++
	}
	if present == 0 {
		return errors.New(ErrValidationFailed, "no channel count parameters present", nil)
	}
	return nil
}

// Serialize encodes the present channel counts
func (c *ChannelNumberCodec) Serialize(params protocol.ParamMap) ([]byte, error) {
	if err := c.Validate(params); err != nil {
		return nil, err
	}

	var buf []byte
	if v, ok := params[PathChannelReferNum]; ok {
		buf = protocol.AppendUint32Field(buf, channelNumberFieldRefer, v.Uint32)
	}
	if v, ok := params[PathChannelErrNum]; ok {
		buf = protocol.AppendUint32Field(buf, channelNumberFieldErr, v.Uint32)
	}
	if v, ok := params[PathChannelSpkNum]; ok {
		buf = protocol.AppendUint32Field(buf, channelNumberFieldSpk, v.Uint32)
	}
	return buf, nil
}

// Deserialize decodes the count fields present on the wire
func (c *ChannelNumberCodec) Deserialize(payload []byte) (protocol.ParamMap, error) {
	params := protocol.ParamMap{}

	pos := 0
	for pos < len(payload) {
		field, wireType, next, err := protocol.ReadTag(payload, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		switch field {
		case channelNumberFieldRefer, channelNumberFieldErr, channelNumberFieldSpk:
			if wireType != protocol.WireVarint {
				return nil, errors.Newf(ErrDecodeFailed, "count field %d has wire type %d, want varint", field, wireType)
			}
			var u uint32
			u, pos, err = protocol.ReadUvarint(payload, pos)
			if err != nil {
				return nil, err
			}
			value := protocol.Uint32Value(u)
			switch field {
			case channelNumberFieldRefer:
				params[PathChannelReferNum] = value
			case channelNumberFieldErr:
				params[PathChannelErrNum] = value
			case channelNumberFieldSpk:
				params[PathChannelSpkNum] = value
			}
		default:
			pos, err = protocol.SkipFieldValue(payload, pos, wireType)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := c.Validate(params); err != nil {
		return nil, err
	}
	return params, nil
}

// Register registers this codec in both registry and factory
func (c *ChannelNumberCodec) Register(registry *protocol.Registry, factory *protocol.CodecFactory) error {
	info := &protocol.CodecInfo{
		Type:  protocol.ChannelNumber,
		Name:  protocol.MessageTypeName(protocol.ChannelNumber),
		Paths: []string{PathChannelReferNum, PathChannelErrNum, PathChannelSpkNum},
	}
	if err := registry.Register(c, info); err != nil {
		return err
	}
	factory.RegisterConstructor(protocol.ChannelNumber, func() protocol.MessageCodec {
		return NewChannelNumberCodec()
	})
	return nil
}
