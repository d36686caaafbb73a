package messages

import (
	"math"

	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
)

// Logical paths handled by the AlphaParams codec
const (
	PathProcessingAlpha = "processing.alpha"
	PathProcessingBeta  = "processing.beta"
	PathProcessingGamma = "processing.gamma"
)

// Wire field numbers of MSG_Alpha
const (
	alphaFieldAlpha = 1
	alphaFieldBeta  = 2
	alphaFieldGamma = 3
)

// Alpha coefficient bounds
const (
	minAlphaValue = 0.0
	maxAlphaValue = 1.0
)

// AlphaParamsCodec carries the adaptive filter coefficients. Alpha is
// mandatory and bounded; beta and gamma ride along when present.
type AlphaParamsCodec struct{}

// NewAlphaParamsCodec creates a new AlphaParams codec
func NewAlphaParamsCodec() *AlphaParamsCodec {
	return &AlphaParamsCodec{}
}

// Type returns the message type
func (c *AlphaParamsCodec) Type() protocol.MessageType {
	return protocol.AlphaParams
}

// Describe returns a short codec summary
func (c *AlphaParamsCodec) Describe() string {
	return "adaptive filter coefficients alpha/beta/gamma"
}

// Validate checks alpha presence and range plus optional coefficient types
func (c *AlphaParamsCodec) Validate(params protocol.ParamMap) error {
	alpha, ok := params[PathProcessingAlpha]
	if !ok {
		return errors.Newf(ErrValidationFailed, "missing required parameter %s", PathProcessingAlpha)
	}
	if alpha.Kind != protocol.KindFloat32 {
		return errors.Newf(ErrValidationFailed, "%s expects Float32, got %s", PathProcessingAlpha, protocol.ValueKindNames[alpha.Kind])
	}
	if alpha.Float32 < minAlphaValue || alpha.Float32 > maxAlphaValue {
		return errors.Newf(ErrValidationFailed, "%s out of range [%g, %g]: %g",
			PathProcessingAlpha, minAlphaValue, maxAlphaValue, alpha.Float32)
	}

	for _, path := range []string{PathProcessingBeta, PathProcessingGamma} {
		v, ok := params[path]
		if !ok {
			continue
		}
		if v.Kind != protocol.KindFloat32 {
			return errors.Newf(ErrValidationFailed, "%s expects Float32, got %s", path, protocol.ValueKindNames[v.Kind])
		}
	}
	return nil
}

// Serialize encodes alpha and any present optional coefficients
func (c *AlphaParamsCodec) Serialize(params protocol.ParamMap) ([]byte, error) {
	if err := c.Validate(params); err != nil {
		return nil, err
	}

	var buf []byte
	buf = protocol.AppendFloat32Field(buf, alphaFieldAlpha, params[PathProcessingAlpha].Float32)
	if v, ok := params[PathProcessingBeta]; ok {
		buf = protocol.AppendFloat32Field(buf, alphaFieldBeta, v.Float32)
	}
	if v, ok := params[PathProcessingGamma]; ok {
		buf = protocol.AppendFloat32Field(buf, alphaFieldGamma, v.Float32)
	}
	return buf, nil
}

// Deserialize decodes the coefficient fields present on the wire
func (c *AlphaParamsCodec) Deserialize(payload []byte) (protocol.ParamMap, error) {
	params := protocol.ParamMap{}

	pos := 0
	for pos < len(payload) {
		field, wireType, next, err := protocol.ReadTag(payload, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		switch field {
		case alphaFieldAlpha, alphaFieldBeta, alphaFieldGamma:
			if wireType != protocol.WireFixed32 {
				return nil, errors.Newf(ErrDecodeFailed, "coefficient field %d has wire type %d, want fixed32", field, wireType)
			}
			var bits uint32
			bits, pos, err = protocol.ReadFixed32(payload, pos)
			if err != nil {
				return nil, err
			}
			value := protocol.Float32Value(math.Float32frombits(bits))
			switch field {
			case alphaFieldAlpha:
				params[PathProcessingAlpha] = value
			case alphaFieldBeta:
				params[PathProcessingBeta] = value
			case alphaFieldGamma:
				params[PathProcessingGamma] = value
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
func (c *AlphaParamsCodec) Register(registry *protocol.Registry, factory *protocol.CodecFactory) error {
	info := &protocol.CodecInfo{
		Type:  protocol.AlphaParams,
		Name:  protocol.MessageTypeName(protocol.AlphaParams),
		Paths: []string{PathProcessingAlpha, PathProcessingBeta, PathProcessingGamma},
	}
	if err := registry.Register(c, info); err != nil {
		return err
	}
	factory.RegisterConstructor(protocol.AlphaParams, func() protocol.MessageCodec {
		return NewAlphaParamsCodec()
	})
	return nil
}
