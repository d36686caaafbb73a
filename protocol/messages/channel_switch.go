package messages

import (
	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
)

// Logical paths handled by the ChannelSwitch codec
const (
	PathChannelFInputPoi  = "channel.f_input_poi"
	PathChannelFOutputPoi = "channel.f_output_poi"
)

// Wire field numbers of MSG_ChannelSwitch
const (
	channelSwitchFieldFInput  = 1
	channelSwitchFieldFOutput = 2
)

// Switch point bounds
const (
	maxFInputPoints  = 20
	maxFOutputPoints = 8
	maxSwitchValue   = 1000
)

// ChannelSwitchCodec carries the frequency switch point arrays for the
// input and output filter banks.
type ChannelSwitchCodec struct{}

// NewChannelSwitchCodec creates a new ChannelSwitch codec
func NewChannelSwitchCodec() *ChannelSwitchCodec {
	return &ChannelSwitchCodec{}
}

// Type returns the message type
func (c *ChannelSwitchCodec) Type() protocol.MessageType {
	return protocol.ChannelSwitch
}

// Describe returns a short codec summary
func (c *ChannelSwitchCodec) Describe() string {
	return "input and output frequency switch points"
}

func validateSwitchList(params protocol.ParamMap, path string, maxLen int) (bool, error) {
	v, ok := params[path]
	if !ok {
		return false, nil
	}
	if v.Kind != protocol.KindList {
		return false, errors.Newf(ErrValidationFailed, "%s expects List, got %s", path, protocol.ValueKindNames[v.Kind])
	}
	if len(v.List) > maxLen {
		return false, errors.Newf(ErrValidationFailed, "%s holds %d entries, limit %d", path, len(v.List), maxLen)
	}
	for i, elem := range v.List {
		if elem.Kind != protocol.KindUint32 {
			return false, errors.Newf(ErrValidationFailed, "%s[%d] expects Uint32, got %s", path, i, protocol.ValueKindNames[elem.Kind])
		}
		if elem.Uint32 > maxSwitchValue {
			return false, errors.Newf(ErrValidationFailed, "%s[%d] exceeds %d: %d", path, i, maxSwitchValue, elem.Uint32)
		}
	}
	return true, nil
}

// Validate checks both switch point arrays
func (c *ChannelSwitchCodec) Validate(params protocol.ParamMap) error {
	present := 0

	ok, err := validateSwitchList(params, PathChannelFInputPoi, maxFInputPoints)
	if err != nil {
		return err
	}
	if ok {
		present++
	}

	ok, err = validateSwitchList(params, PathChannelFOutputPoi, maxFOutputPoints)
	if err != nil {
		return err
	}
	if ok {
		present++
	}

	if present == 0 {
		return errors.New(ErrValidationFailed, "no switch point parameters present", nil)
	}
	return nil
}

// Serialize encodes the present switch point arrays
func (c *ChannelSwitchCodec) Serialize(params protocol.ParamMap) ([]byte, error) {
	if err := c.Validate(params); err != nil {
		return nil, err
	}

	var buf []byte
	if v, ok := params[PathChannelFInputPoi]; ok {
		values := make([]uint32, len(v.List))
		for i, elem := range v.List {
			values[i] = elem.Uint32
		}
		buf = protocol.AppendPackedUint32Field(buf, channelSwitchFieldFInput, values)
	}
	if v, ok := params[PathChannelFOutputPoi]; ok {
		values := make([]uint32, len(v.List))
		for i, elem := range v.List {
			values[i] = elem.Uint32
		}
		buf = protocol.AppendPackedUint32Field(buf, channelSwitchFieldFOutput, values)
	}
	return buf, nil
}

func appendSwitchElems(params protocol.ParamMap, path string, values []uint32) {
	v := params[path]
	if v.Kind != protocol.KindList {
		v = protocol.ListValue()
	}
	for _, u := range values {
		v.List = append(v.List, protocol.Uint32Value(u))
	}
	params[path] = v
}

// Deserialize decodes the switch point fields present on the wire
func (c *ChannelSwitchCodec) Deserialize(payload []byte) (protocol.ParamMap, error) {
	params := protocol.ParamMap{}

	pos := 0
	for pos < len(payload) {
		field, wireType, next, err := protocol.ReadTag(payload, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		var path string
		switch field {
		case channelSwitchFieldFInput:
			path = PathChannelFInputPoi
		case channelSwitchFieldFOutput:
			path = PathChannelFOutputPoi
		default:
			pos, err = protocol.SkipFieldValue(payload, pos, wireType)
			if err != nil {
				return nil, err
			}
			continue
		}

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
			appendSwitchElems(params, path, values)
		case protocol.WireVarint:
			var u uint32
			u, pos, err = protocol.ReadUvarint(payload, pos)
			if err != nil {
				return nil, err
			}
			appendSwitchElems(params, path, []uint32{u})
		default:
			return nil, errors.Newf(ErrDecodeFailed, "switch field %d has wire type %d", field, wireType)
		}
	}

	if err := c.Validate(params); err != nil {
		return nil, err
	}
	return params, nil
}

// Register registers this codec in both registry and factory
func (c *ChannelSwitchCodec) Register(registry *protocol.Registry, factory *protocol.CodecFactory) error {
	info := &protocol.CodecInfo{
		Type:  protocol.ChannelSwitch,
		Name:  protocol.MessageTypeName(protocol.ChannelSwitch),
		Paths: []string{PathChannelFInputPoi, PathChannelFOutputPoi},
	}
	if err := registry.Register(c, info); err != nil {
		return err
	}
	factory.RegisterConstructor(protocol.ChannelSwitch, func() protocol.MessageCodec {
		return NewChannelSwitchCodec()
	})
	return nil
}
