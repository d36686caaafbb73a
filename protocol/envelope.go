package protocol

import (
	"github.com/ancware/tunelink/pkg/errors"
)

// PackEnvelope wraps an already-serialized payload in the identification
// envelope: field 1 ProtoID, field 2 function code, then the payload under
// the message type's own field number. GraphData has no payload field and
// cannot be packed.
func PackEnvelope(t MessageType, fc FunctionCode, payload []byte) ([]byte, error) {
	protoID, ok := ProtoIDForType(t)
	if !ok {
		return nil, errors.Newf(ErrUnsupportedMessageType, "no ProtoID for message type %d", t)
	}
	payloadField, ok := EnvelopeFieldForType(t)
	if !ok {
		return nil, errors.Newf(ErrUnsupportedMessageType, "message type %s cannot be packed", MessageTypeName(t))
	}

	buf := make([]byte, 0, len(payload)+8)
	buf = AppendTag(buf, envelopeFieldProtoID, WireVarint)
	buf = AppendUvarint(buf, protoID)
	buf = AppendTag(buf, envelopeFieldFunction, WireVarint)
	buf = AppendUvarint(buf, uint32(fc))
	buf = AppendTag(buf, payloadField, WireLengthDelimited)
	buf = AppendLengthDelimited(buf, payload)
	return buf, nil
}

// UnpackEnvelope parses an envelope back into type, function code and raw
// payload. All three of ProtoID, function code and payload must be present.
// Any field in the payload-field range is accepted as the payload so that
// unit-initiated types decode the same way as host-packed ones; unknown
// fields outside the range are skipped when their wire type allows it.
func UnpackEnvelope(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, errors.New(ErrEnvelopeDecodeFailed, "empty envelope", nil)
	}

	var (
		protoID      uint32
		funCode      uint32
		payload      []byte
		foundProtoID bool
		foundFunCode bool
		foundPayload bool
	)

	pos := 0
	for pos < len(data) {
		field, wireType, next, err := ReadTag(data, pos)
		if err != nil {
			return nil, errors.New(ErrEnvelopeDecodeFailed, "malformed field tag", err)
		}
		pos = next

		switch {
		case field == envelopeFieldProtoID:
			if wireType != WireVarint {
				return nil, errors.Newf(ErrEnvelopeDecodeFailed, "ProtoID field has wire type %d, want varint", wireType)
			}
			protoID, pos, err = ReadUvarint(data, pos)
			if err != nil {
				return nil, errors.New(ErrEnvelopeDecodeFailed, "malformed ProtoID", err)
			}
			foundProtoID = true

		case field == envelopeFieldFunction:
			if wireType != WireVarint {
				return nil, errors.Newf(ErrEnvelopeDecodeFailed, "function code field has wire type %d, want varint", wireType)
			}
			funCode, pos, err = ReadUvarint(data, pos)
			if err != nil {
				return nil, errors.New(ErrEnvelopeDecodeFailed, "malformed function code", err)
			}
			foundFunCode = true

		case field >= 3 && field <= 19:
			if wireType != WireLengthDelimited {
				return nil, errors.Newf(ErrEnvelopeDecodeFailed, "payload field %d has wire type %d, want length-delimited", field, wireType)
			}
			payload, pos, err = ReadLengthDelimited(data, pos)
			if err != nil {
				return nil, errors.New(ErrEnvelopeDecodeFailed, "malformed payload field", err)
			}
			foundPayload = true

		default:
			switch wireType {
			case WireVarint:
				_, pos, err = ReadUvarint(data, pos)
			case WireLengthDelimited:
				_, pos, err = ReadLengthDelimited(data, pos)
			default:
				return nil, errors.Newf(ErrEnvelopeDecodeFailed, "unknown field %d has unsupported wire type %d", field, wireType)
			}
			if err != nil {
				return nil, errors.Newf(ErrEnvelopeDecodeFailed, "malformed unknown field %d", field).WithCause(err)
			}
		}
	}

	if !foundProtoID || !foundFunCode || !foundPayload {
		return nil, errors.Newf(ErrEnvelopeDecodeFailed,
			"incomplete envelope: ProtoID=%t function=%t payload=%t", foundProtoID, foundFunCode, foundPayload)
	}

	msgType, ok := MessageTypeFromProtoID(protoID)
	if !ok {
		return nil, errors.Newf(ErrUnsupportedMessageType, "unknown ProtoID %d", protoID)
	}

	if funCode != uint32(FunctionRequest) && funCode != uint32(FunctionResponse) {
		return nil, errors.Newf(ErrEnvelopeDecodeFailed, "function code %d outside protocol set", funCode)
	}

	out := make([]byte, len(payload))
	copy(out, payload)

	return &Envelope{
		Type:     msgType,
		ProtoID:  protoID,
		Function: FunctionCode(funCode),
		Payload:  out,
	}, nil
}
