package protocol

import (
	"encoding/binary"
	"math"

	"github.com/ancware/tunelink/pkg/errors"
)

// Wire types used by the envelope and the protobuf-style message payloads.
const (
	WireVarint          = 0
	WireLengthDelimited = 2
	WireFixed32         = 5
)

// AppendUvarint appends v as a little-endian base-128 varint.
func AppendUvarint(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// ReadUvarint decodes a varint starting at pos and returns the value and the
// position after it. Values are capped at 32 bits: a fifth continuation
// pushes the shift past 31 and fails decode.
func ReadUvarint(data []byte, pos int) (uint32, int, error) {
	var value uint32
	var shift uint

	for pos < len(data) {
		b := data[pos]
		pos++
		value |= uint32(b&0x7F) << shift

		if b&0x80 == 0 {
			return value, pos, nil
		}

		shift += 7
		if shift >= 32 {
			return 0, pos, errors.New(ErrVarintOverflow, "varint exceeds 32 bits", nil)
		}
	}

	return 0, pos, errors.New(ErrPayloadTruncated, "incomplete varint", nil)
}

// AppendTag appends a field tag (field number plus wire type).
func AppendTag(dst []byte, field uint32, wireType uint32) []byte {
	return AppendUvarint(dst, field<<3|wireType)
}

// ReadTag decodes a field tag at pos.
func ReadTag(data []byte, pos int) (field uint32, wireType uint32, next int, err error) {
	tag, next, err := ReadUvarint(data, pos)
	if err != nil {
		return 0, 0, next, err
	}
	return tag >> 3, tag & 0x07, next, nil
}

// AppendLengthDelimited appends a length-prefixed byte string.
func AppendLengthDelimited(dst []byte, payload []byte) []byte {
	dst = AppendUvarint(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// ReadLengthDelimited decodes a length-prefixed byte string at pos. The
// returned slice aliases data.
func ReadLengthDelimited(data []byte, pos int) ([]byte, int, error) {
	n, pos, err := ReadUvarint(data, pos)
	if err != nil {
		return nil, pos, err
	}
	end := pos + int(n)
	if end < pos || end > len(data) {
		return nil, pos, errors.Newf(ErrPayloadTruncated, "length-delimited field wants %d bytes, %d available", n, len(data)-pos)
	}
	return data[pos:end], end, nil
}

// AppendFixed32 appends a 32-bit little-endian value.
func AppendFixed32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

// ReadFixed32 decodes a 32-bit little-endian value at pos.
func ReadFixed32(data []byte, pos int) (uint32, int, error) {
	if pos+4 > len(data) {
		return 0, pos, errors.New(ErrPayloadTruncated, "incomplete fixed32 value", nil)
	}
	return binary.LittleEndian.Uint32(data[pos : pos+4]), pos + 4, nil
}

// AppendFloat32Field appends a tagged float field (fixed32, IEEE 754 bits).
func AppendFloat32Field(dst []byte, field uint32, v float32) []byte {
	dst = AppendTag(dst, field, WireFixed32)
	return AppendFixed32(dst, math.Float32bits(v))
}

// AppendUint32Field appends a tagged varint field.
func AppendUint32Field(dst []byte, field uint32, v uint32) []byte {
	dst = AppendTag(dst, field, WireVarint)
	return AppendUvarint(dst, v)
}

// AppendBoolField appends a tagged bool field. The byte is always emitted,
// false included: field presence is meaningful to the peer.
func AppendBoolField(dst []byte, field uint32, v bool) []byte {
	dst = AppendTag(dst, field, WireVarint)
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

// AppendPackedUint32Field appends a repeated varint field in packed form.
func AppendPackedUint32Field(dst []byte, field uint32, values []uint32) []byte {
	var packed []byte
	for _, v := range values {
		packed = AppendUvarint(packed, v)
	}
	dst = AppendTag(dst, field, WireLengthDelimited)
	return AppendLengthDelimited(dst, packed)
}

// ReadPackedUint32 decodes every varint in a packed field body.
func ReadPackedUint32(body []byte) ([]uint32, error) {
	var out []uint32
	pos := 0
	for pos < len(body) {
		v, next, err := ReadUvarint(body, pos)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		pos = next
	}
	return out, nil
}

// SkipFieldValue advances past an unknown field's value. Varint,
// length-delimited and fixed32 values can be skipped; anything else fails
// decode.
func SkipFieldValue(data []byte, pos int, wireType uint32) (int, error) {
	switch wireType {
	case WireVarint:
		_, next, err := ReadUvarint(data, pos)
		return next, err
	case WireLengthDelimited:
		_, next, err := ReadLengthDelimited(data, pos)
		return next, err
	case WireFixed32:
		_, next, err := ReadFixed32(data, pos)
		return next, err
	}
	return pos, errors.Newf(ErrEnvelopeDecodeFailed, "cannot skip wire type %d", wireType)
}
