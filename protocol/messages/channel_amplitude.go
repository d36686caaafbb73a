package messages

import (
	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
)

// Logical paths handled by the ChannelAmplitude codec
const (
	PathChannelInputAmplitude  = "channel.input_amplitude"
	PathChannelOutputAmplitude = "channel.output_amplitude"
)

// Wire field numbers of MSG_ChannelAmplitude
const (
	channelAmplitudeFieldInput  = 1
	channelAmplitudeFieldOutput = 2
)

// Amplitude bounds
const (
	maxInputAmplitudes = 13
	maxAmplitudeValue  = 65535
)

// ChannelAmplitudeCodec carries the per-input amplitude calibration array
// and the output amplitude scalar.
type ChannelAmplitudeCodec struct{}

// NewChannelAmplitudeCodec creates a new ChannelAmplitude codec
func NewChannelAmplitudeCodec() *ChannelAmplitudeCodec {
	return &ChannelAmplitudeCodec{}
}

// Type returns the message type
func (c *ChannelAmplitudeCodec) Type() protocol.MessageType {
	return protocol.ChannelAmplitude
}

// Describe returns a short codec summary
func (c *ChannelAmplitudeCodec) Describe() string {
	return "input amplitude array and output amplitude"
}

// Validate checks amplitude types, array cap and value bounds
func (c *ChannelAmplitudeCodec) Validate(params protocol.ParamMap) error {
	present := 0

	if v, ok := params[PathChannelInputAmplitude]; ok {
		if v.Kind != protocol.KindList {
			return errors.Newf(ErrValidationFailed, "%s expects List, got %s", PathChannelInputAmplitude, protocol.ValueKindNames[v.Kind])
		}
		if len(v.List) > maxInputAmplitudes {
			return errors.Newf(ErrValidationFailed, "%s holds %d entries, limit %d", PathChannelInputAmplitude, len(v.List), maxInputAmplitudes)
		}
		for i, elem := range v.List {
			if elem.Kind != protocol.KindUint32 {
				return errors.Newf(ErrValidationFailed, "%s[%d] expects Uint32, got %s", PathChannelInputAmplitude, i, protocol.ValueKindNames[elem.Kind])
			}
			if elem.Uint32 > maxAmplitudeValue {
				return errors.Newf(ErrValidationFailed, "%s[%d] exceeds %d: %d", PathChannelInputAmplitude, i, maxAmplitudeValue, elem.Uint32)
			}
		}
		present++
	}

	if v, ok := params[PathChannelOutputAmplitude]; ok {
		if v.Kind != protocol.KindUint32 {
			return errors.Newf(ErrValidationFailed, "%s expects Uint32, got %s", PathChannelOutputAmplitude, protocol.ValueKindNames[v.Kind])
		}
		if v.Uint32 > maxAmplitudeValue {
			return errors.Newf(ErrValidationFailed, "%s exceeds %d: %d", PathChannelOutputAmplitude, maxAmplitudeValue, v.Uint32)
		}
		present++
	}

	if present == 0 {
		return errors.New(ErrValidationFailed, "no amplitude parameters present", nil)
	}
	return nil
}

// Serialize encodes the present amplitude paths
func (c *ChannelAmplitudeCodec) Serialize(params protocol.ParamMap) ([]byte, error) {
	if err := c.Validate(params); err != nil {
		return nil, err
	}

	var buf []byte
	if v, ok := params[PathChannelInputAmplitude]; ok {
		values := make([]uint32, len(v.List))
		for i, elem := range v.List {
			values[i] = elem.Uint32
		}
		buf = protocol.AppendPackedUint32Field(buf, channelAmplitudeFieldInput, values)
	}
	if v, ok := params[PathChannelOutputAmplitude]; ok {
		buf = protocol.AppendUint32Field(buf, channelAmplitudeFieldOutput, v.Uint32)
	}
	return buf, nil
}

// Deserialize decodes the amplitude fields present on the wire
func (c *ChannelAmplitudeCodec) Deserialize(payload []byte) (protocol.ParamMap, error) {
	params := protocol.ParamMap{}

	pos := 0
	for pos < len(payload) {
		field, wireType, next, err := protocol.ReadTag(payload, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		switch field {
		case channelAmplitudeFieldInput:
			switch wireType {
			case protocol.WireLengthDelimited:
				var body []byte
				body, pos, err = protocol.ReadLengthDelimited(payload, pos)
				if err != nil {
					return nil, err
				}
				values, err := protocol.ReadPackedUint32(body)
				if err != nil {
					return nil, err
				}
				v := params[PathChannelInputAmplitude]
				if v.Kind != protocol.KindList {
					v = protocol.ListValue()
				}
				for _, u := range values {
					v.List = append(v.List, protocol.Uint32Value(u))
				}
				params[PathChannelInputAmplitude] = v
			case protocol.WireVarint:
				var u uint32
				u, pos, err = protocol.ReadUvarint(payload, pos)
				if err != nil {
					return nil, err
				}
				v := params[PathChannelInputAmplitude]
				if v.Kind != protocol.KindList {
					v = protocol.ListValue()
				}
				v.List = append(v.List, protocol.Uint32Value(u))
				params[PathChannelInputAmplitude] = v
			default:
				return nil, errors.Newf(ErrDecodeFailed, "amplitude field %d has wire type %d", field, wireType)
			}

		case channelAmplitudeFieldOutput:
			if wireType != protocol.WireVarint {
				return nil, errors.Newf(ErrDecodeFailed, "amplitude field %d has wire type %d, want varint", field, wireType)
			}
			var u uint32
			u, pos, err = protocol.ReadUvarint(payload, pos)
			if err != nil {
				return nil, err
			}
			params[PathChannelOutputAmplitude] = protocol.Uint32Value(u)

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
func (c *ChannelAmplitudeCodec) Register(registry *protocol.Registry, factory *protocol.CodecFactory) error {
	info := &protocol.CodecInfo{
		Type:  protocol.ChannelAmplitude,
		Name:  protocol.MessageTypeName(protocol.ChannelAmplitude),
		Paths: []string{PathChannelInputAmplitude, PathChannelOutputAmplitude},
	}
	if err := registry.Register(c, info); err != nil {
		return err
	}
	factory.RegisterConstructor(protocol.ChannelAmplitude, func() protocol.MessageCodec {
		return NewChannelAmplitudeCodec()
	})
	return nil
}
