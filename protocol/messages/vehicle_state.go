package messages

import (
	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
)

// Logical paths handled by the VehicleState codec
const (
	PathVehicleSpeed       = "vehicle.speed"
	PathVehicleEngineSpeed = "vehicle.engine_speed"
	PathVehicleAC          = "vehicle.ac"
	PathVehicleGear        = "vehicle.gear"
	PathVehicleDriveMod    = "vehicle.drive_mod"
	PathVehicleDoor        = "vehicle.door"
	PathVehicleWindow      = "vehicle.window"
	PathVehicleMedia       = "vehicle.media"
)

// Wire field numbers of MSG_VehicleState
const (
	vehicleFieldSpeed       = 1
	vehicleFieldEngineSpeed = 2
	vehicleFieldAC          = 3
	vehicleFieldGear        = 4
	vehicleFieldDriveMod    = 5
	vehicleFieldDoor        = 6
	vehicleFieldWindow      = 7
	vehicleFieldMedia       = 8
)

// Vehicle signal bounds
const (
	maxVehicleSpeed  = 300
	maxEngineSpeed   = 8000
	maxDoorStates    = 5
	maxWindowStates  = 4
	maxMediaStates   = 8
	maxOpeningDegree = 10
)

// VehicleStateCodec carries the driving context the noise-control unit
// adapts to: speeds, gear, drive mode and the door/window/media state
// arrays. Every field is optional; only present paths are encoded.
type VehicleStateCodec struct{}

// NewVehicleStateCodec creates a new VehicleState codec
func NewVehicleStateCodec() *VehicleStateCodec {
	return &VehicleStateCodec{}
}

// Type returns the message type
func (c *VehicleStateCodec) Type() protocol.MessageType {
	return protocol.VehicleState
}

// Describe returns a short codec summary
func (c *VehicleStateCodec) Describe() string {
	return "vehicle driving context (speed, gear, door/window/media states)"
}

func (c *VehicleStateCodec) validateScalar(params protocol.ParamMap, path string, max uint32) error {
	v, ok := params[path]
	if !ok {
		return nil
	}
	if v.Kind != protocol.KindUint32 {
		return errors.Newf(ErrValidationFailed, "%s expects Uint32, got %s", path, protocol.ValueKindNames[v.Kind])
	}
	if max > 0 && v.Uint32 > max {
		return errors.Newf(ErrValidationFailed, "%s exceeds %d: %d", path, max, v.Uint32)
	}
	return nil
}

func (c *VehicleStateCodec) validateList(params protocol.ParamMap, path string, maxLen int, maxValue uint32) error {
	v, ok := params[path]
	if !ok {
		return nil
	}
	if v.Kind != protocol.KindList {
		return errors.Newf(ErrValidationFailed, "%s expects List, got %s", path, protocol.ValueKindNames[v.Kind])
	}
	if len(v.List) > maxLen {
		return errors.Newf(ErrValidationFailed, "%s holds %d entries, limit %d", path, len(v.List), maxLen)
	}
	for i, elem := range v.List {
		if elem.Kind != protocol.KindUint32 {
			return errors.Newf(ErrValidationFailed, "%s[%d] expects Uint32, got %s", path, i, protocol.ValueKindNames[elem.Kind])
		}
		if maxValue > 0 && elem.Uint32 > maxValue {
			return errors.Newf(ErrValidationFailed, "%s[%d] exceeds %d: %d", path, i, maxValue, elem.Uint32)
		}
	}
	return nil
}

// Validate checks types, ranges and array caps for the present paths
func (c *VehicleStateCodec) Validate(params protocol.ParamMap) error {
	if err := c.validateScalar(params, PathVehicleSpeed, maxVehicleSpeed); err != nil {
		return err
	}
	if err := c.validateScalar(params, PathVehicleEngineSpeed, maxEngineSpeed); err != nil {
		return err
	}
	if err := c.validateScalar(params, PathVehicleAC, 0); err != nil {
		return err
	}
	if err := c.validateScalar(params, PathVehicleGear, 0); err != nil {
		return err
	}
	if err := c.validateScalar(params, PathVehicleDriveMod, 0); err != nil {
		return err
	}
	if err := c.validateList(params, PathVehicleDoor, maxDoorStates, maxOpeningDegree); err != nil {
		return err
	}
	if err := c.validateList(params, PathVehicleWindow, maxWindowStates, maxOpeningDegree); err != nil {
		return err
	}
	if err := c.validateList(params, PathVehicleMedia, maxMediaStates, 0); err != nil {
		return err
	}

	for _, path := range c.paths() {
		if _, ok := params[path]; ok {
			return nil
		}
	}
	return errors.New(ErrValidationFailed, "no vehicle parameters present", nil)
}

// Serialize encodes the present vehicle paths in field order
func (c *VehicleStateCodec) Serialize(params protocol.ParamMap) ([]byte, error) {
	if err := c.Validate(params); err != nil {
		return nil, err
	}

	var buf []byte
	scalars := []struct {
		path  string
		field uint32
	}{
		{PathVehicleSpeed, vehicleFieldSpeed},
		{PathVehicleEngineSpeed, vehicleFieldEngineSpeed},
		{PathVehicleAC, vehicleFieldAC},
		{PathVehicleGear, vehicleFieldGear},
		{PathVehicleDriveMod, vehicleFieldDriveMod},
	}
	for _, s := range scalars {
		if v, ok := params[s.path]; ok {
			buf = protocol.AppendUint32Field(buf, s.field, v.Uint32)
		}
	}

	lists := []struct {
		path  string
		field uint32
	}{
		{PathVehicleDoor, vehicleFieldDoor},
		{PathVehicleWindow, vehicleFieldWindow},
		{PathVehicleMedia, vehicleFieldMedia},
	}
	for _, l := range lists {
		if v, ok := params[l.path]; ok {
			values := make([]uint32, len(v.List))
			for i, elem := range v.List {
				values[i] = elem.Uint32
			}
			buf = protocol.AppendPackedUint32Field(buf, l.field, values)
		}
	}
	return buf, nil
}

// Deserialize decodes present vehicle fields. Repeated fields are accepted
// both packed and as individual varint elements.
func (c *VehicleStateCodec) Deserialize(payload []byte) (protocol.ParamMap, error) {
	params := protocol.ParamMap{}

	appendElems := func(path string, values []uint32) {
		v := params[path]
		if v.Kind != protocol.KindList {
			v = protocol.ListValue()
		}
		for _, u := range values {
			v.List = append(v.List, protocol.Uint32Value(u))
		}
		params[path] = v
	}

	pos := 0
	for pos < len(payload) {
		field, wireType, next, err := protocol.ReadTag(payload, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		switch field {
		case vehicleFieldSpeed, vehicleFieldEngineSpeed, vehicleFieldAC, vehicleFieldGear, vehicleFieldDriveMod:
			if wireType != protocol.WireVarint {
				return nil, errors.Newf(ErrDecodeFailed, "vehicle field %d has wire type %d, want varint", field, wireType)
			}
			var u uint32
			u, pos, err = protocol.ReadUvarint(payload, pos)
			if err != nil {
				return nil, err
			}
			switch field {
			case vehicleFieldSpeed:
				params[PathVehicleSpeed] = protocol.Uint32Value(u)
			case vehicleFieldEngineSpeed:
				params[PathVehicleEngineSpeed] = protocol.Uint32Value(u)
			case vehicleFieldAC:
				params[PathVehicleAC] = protocol.Uint32Value(u)
			case vehicleFieldGear:
				params[PathVehicleGear] = protocol.Uint32Value(u)
			case vehicleFieldDriveMod:
				params[PathVehicleDriveMod] = protocol.Uint32Value(u)
			}

		case vehicleFieldDoor, vehicleFieldWindow, vehicleFieldMedia:
			var path string
			switch field {
			case vehicleFieldDoor:
				path = PathVehicleDoor
			case vehicleFieldWindow:
				path = PathVehicleWindow
			case vehicleFieldMedia:
				path = PathVehicleMedia
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
				appendElems(path, values)
			case protocol.WireVarint:
				var u uint32
				u, pos, err = protocol.ReadUvarint(payload, pos)
				if err != nil {
					return nil, err
				}
				appendElems(path, []uint32{u})
			default:
				return nil, errors.Newf(ErrDecodeFailed, "vehicle field %d has wire type %d", field, wireType)
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

func (c *VehicleStateCodec) paths() []string {
	return []string{
		PathVehicleSpeed, PathVehicleEngineSpeed, PathVehicleAC,
		PathVehicleGear, PathVehicleDriveMod,
		PathVehicleDoor, PathVehicleWindow, PathVehicleMedia,
	}
}

// Register registers this codec in both registry and factory
func (c *VehicleStateCodec) Register(registry *protocol.Registry, factory *protocol.CodecFactory) error {
	info := &protocol.CodecInfo{
		Type:  protocol.VehicleState,
		Name:  protocol.MessageTypeName(protocol.VehicleState),
		Paths: c.paths(),
	}
	if err := registry.Register(c, info); err != nil {
		return err
	}
	factory.RegisterConstructor(protocol.VehicleState, func() protocol.MessageCodec {
		return NewVehicleStateCodec()
	})
	return nil
}
