package messages

import (
	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
)

// Logical paths handled by the AncSwitch codec
const (
	PathAncEnabled = "anc.enabled"
	PathEncEnabled = "enc.enabled"
	PathRncEnabled = "rnc.enabled"
)

// Wire field numbers of MSG_AncSwitch
const (
	ancSwitchFieldAncOff = 1
	ancSwitchFieldEncOff = 2
	ancSwitchFieldRncOff = 3
)

// AncSwitchCodec carries the three noise-control master switches. The wire
// speaks in *_off flags while the parameter model speaks in enabled, so the
// polarity flips in both directions: enabled=true packs as off=false.
// Only the switches present in the params are encoded; a single-switch
// update must not clobber the other two on the unit.
type AncSwitchCodec struct{}

// NewAncSwitchCodec creates a new AncSwitch codec
func NewAncSwitchCodec() *AncSwitchCodec {
	return &AncSwitchCodec{}
}

// Type returns the message type
func (c *AncSwitchCodec) Type() protocol.MessageType {
	return protocol.AncSwitch
}

// Describe returns a short codec summary
func (c *AncSwitchCodec) Describe() string {
	return "ANC/ENC/RNC master switches (inverted wire polarity)"
}

// Validate checks that at least one switch is present and all are Bool
func (c *AncSwitchCodec) Validate(params protocol.ParamMap) error {
	present := 0
	for _, path := range []string{PathAncEnabled, PathEncEnabled, PathRncEnabled} {
		v, ok := params[path]
		if !ok {
			continue
		}
		if v.Kind != protocol.KindBool {
			return errors.Newf(ErrValidationFailed, "%s expects Bool, got %s", path, protocol.ValueKindNames[v.Kind])
		}
		present++
	}
	if present == 0 {
		return errors.New(ErrValidationFailed, "no switch parameters present", nil)
	}
	return nil
}

// Serialize encodes the present switches with inverted polarity
func (c *AncSwitchCodec) Serialize(params protocol.ParamMap) ([]byte, error) {
	if err := c.Validate(params); err != nil {
		return nil, err
	}

	var buf []byte
	if v, ok := params[PathAncEnabled]; ok {
		buf = protocol.AppendBoolField(buf, ancSwitchFieldAncOff, !v.Bool)
	}
	if v, ok := params[PathEncEnabled]; ok {
		buf = protocol.AppendBoolField(buf, ancSwitchFieldEncOff, !v.Bool)
	}
	if v, ok := params[PathRncEnabled]; ok {
		buf = protocol.AppendBoolField(buf, ancSwitchFieldRncOff, !v.Bool)
	}
	return buf, nil
}

// Deserialize decodes present switch fields back to enabled polarity
func (c *AncSwitchCodec) Deserialize(payload []byte) (protocol.ParamMap, error) {
	params := protocol.ParamMap{}

	pos := 0
	for pos < len(payload) {
		field, wireType, next, err := protocol.ReadTag(payload, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		switch field {
		case ancSwitchFieldAncOff, ancSwitchFieldEncOff, ancSwitchFieldRncOff:
			if wireType != protocol.WireVarint {
				return nil, errors.Newf(ErrDecodeFailed, "switch field %d has wire type %d, want varint", field, wireType)
			}
			var off uint32
			off, pos, err = protocol.ReadUvarint(payload, pos)
			if err != nil {
				return nil, err
			}
			enabled := protocol.BoolValue(off == 0)
			switch field {
			case ancSwitchFieldAncOff:
				params[PathAncEnabled] = enabled
			case ancSwitchFieldEncOff:
				params[PathEncEnabled] = enabled
			case ancSwitchFieldRncOff:
				params[PathRncEnabled] = enabled
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
func (c *AncSwitchCodec) Register(registry *protocol.Registry, factory *protocol.CodecFactory) error {
	info := &protocol.CodecInfo{
		Type:  protocol.AncSwitch,
		Name:  protocol.MessageTypeName(protocol.AncSwitch),
		Paths: []string{PathAncEnabled, PathEncEnabled, PathRncEnabled},
	}
	if err := registry.Register(c, info); err != nil {
		return err
	}
	factory.RegisterConstructor(protocol.AncSwitch, func() protocol.MessageCodec {
		return NewAncSwitchCodec()
	})
	return nil
}
