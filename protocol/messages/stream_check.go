package messages

import (
	"encoding/binary"
	"math"

	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
)

// Logical paths handled by the StreamCheck codec
const (
	PathStreamChannelCount = "stream.channel_count"
	PathStreamSampleRate   = "stream.sample_rate"
	PathStreamDataFormat   = "stream.data_format"
	PathStreamChannels     = "stream.channels"
	PathStreamTimestamp    = "stream.timestamp"
)

// Map keys of a stream.channels entry
const (
	streamKeyChannelID = "channel_id"
	streamKeyAmplitude = "amplitude"
	streamKeyFrequency = "frequency"
)

// Stream bounds
const (
	maxStreamChannels  = 32
	minSampleRate      = 1
	maxSampleRate      = 48000
	maxDataFormat      = 3
	maxStreamAmplitude = 100.0
	maxStreamPayload   = 512
	streamHeaderSize   = 16
	streamRecordSize   = 12
	streamTimeSize     = 8
)

// StreamCheckCodec carries the audio stream health report. Unlike the other
// codecs this payload is a raw little-endian record, not tagged fields: a
// fixed header, a run of per-channel samples and an optional trailing
// timestamp. The timestamp rides as Float64 since sample clocks stay well
// inside exact integer range.
type StreamCheckCodec struct{}

// NewStreamCheckCodec creates a new StreamCheck codec
func NewStreamCheckCodec() *StreamCheckCodec {
	return &StreamCheckCodec{}
}

// Type returns the message type
func (c *StreamCheckCodec) Type() protocol.MessageType {
	return protocol.StreamCheck
}

// Describe returns a short codec summary
func (c *StreamCheckCodec) Describe() string {
	return "audio stream health report"
}

func (c *StreamCheckCodec) validateChannel(i int, v protocol.Value) error {
	if v.Kind != protocol.KindMap {
		return errors.Newf(ErrValidationFailed, "%s[%d] expects Map, got %s", PathStreamChannels, i, protocol.ValueKindNames[v.Kind])
	}

	id, ok := v.Map[streamKeyChannelID]
	if !ok || id.Kind != protocol.KindUint32 {
		return errors.Newf(ErrValidationFailed, "%s[%d] missing Uint32 %s", PathStreamChannels, i, streamKeyChannelID)
	}
	if id.Uint32 >= maxStreamChannels {
		return errors.Newf(ErrValidationFailed, "%s[%d] %s out of range: %d", PathStreamChannels, i, streamKeyChannelID, id.Uint32)
	}

	amp, ok := v.Map[streamKeyAmplitude]
	if !ok || amp.Kind != protocol.KindFloat32 {
		return errors.Newf(ErrValidationFailed, "%s[%d] missing Float32 %s", PathStreamChannels, i, streamKeyAmplitude)
	}
	if amp.Float32 < -maxStreamAmplitude || amp.Float32 > maxStreamAmplitude {
		return errors.Newf(ErrValidationFailed, "%s[%d] %s out of range: %f", PathStreamChannels, i, streamKeyAmplitude, amp.Float32)
	}

	freq, ok := v.Map[streamKeyFrequency]
	if !ok || freq.Kind != protocol.KindFloat32 {
		return errors.Newf(ErrValidationFailed, "%s[%d] missing Float32 %s", PathStreamChannels, i, streamKeyFrequency)
	}
	return nil
}

// Validate checks the header scalars and every channel sample. The raw
// record layout makes the header paths mandatory; only the timestamp is
// optional.
func (c *StreamCheckCodec) Validate(params protocol.ParamMap) error {
	count, ok := params[PathStreamChannelCount]
	if !ok || count.Kind != protocol.KindUint32 {
		return errors.Newf(ErrValidationFailed, "%s missing or not Uint32", PathStreamChannelCount)
	}
	if count.Uint32 > maxStreamChannels {
		return errors.Newf(ErrValidationFailed, "%s exceeds %d: %d", PathStreamChannelCount, maxStreamChannels, count.Uint32)
	}

	rate, ok := params[PathStreamSampleRate]
	if !ok || rate.Kind != protocol.KindUint32 {
		return errors.Newf(ErrValidationFailed, "%s missing or not Uint32", PathStreamSampleRate)
	}
	if rate.Uint32 < minSampleRate || rate.Uint32 > maxSampleRate {
		return errors.Newf(ErrValidationFailed, "%s out of range [%d,%d]: %d", PathStreamSampleRate, minSampleRate, maxSampleRate, rate.Uint32)
	}

	format, ok := params[PathStreamDataFormat]
	if !ok || format.Kind != protocol.KindUint32 {
		return errors.Newf(ErrValidationFailed, "%s missing or not Uint32", PathStreamDataFormat)
	}
	if format.Uint32 > maxDataFormat {
		return errors.Newf(ErrValidationFailed, "%s out of range [0,%d]: %d", PathStreamDataFormat, maxDataFormat, format.Uint32)
	}

	channels, ok := params[PathStreamChannels]
	if !ok || channels.Kind != protocol.KindList {
		return errors.Newf(ErrValidationFailed, "%s missing or not List", PathStreamChannels)
	}
	if len(channels.List) > maxStreamChannels {
		return errors.Newf(ErrValidationFailed, "%s holds %d entries, limit %d", PathStreamChannels, len(channels.List), maxStreamChannels)
	}
	for i, elem := range channels.List {
		if err := c.validateChannel(i, elem); err != nil {
			return err
		}
	}

	if ts, ok := params[PathStreamTimestamp]; ok {
		if ts.Kind != protocol.KindFloat64 {
			return errors.Newf(ErrValidationFailed, "%s expects Float64, got %s", PathStreamTimestamp, protocol.ValueKindNames[ts.Kind])
		}
		if ts.Float64 < 0 {
			return errors.Newf(ErrValidationFailed, "%s is negative: %f", PathStreamTimestamp, ts.Float64)
		}
	}
	return nil
}

// Serialize encodes the raw little-endian stream record
func (c *StreamCheckCodec) Serialize(params protocol.ParamMap) ([]byte, error) {
	if err := c.Validate(params); err != nil {
		return nil, err
	}

	channels := params[PathStreamChannels].List

	buf := make([]byte, 0, streamHeaderSize+len(channels)*streamRecordSize+streamTimeSize)
	buf = binary.LittleEndian.AppendUint32(buf, params[PathStreamChannelCount].Uint32)
	buf = binary.LittleEndian.AppendUint32(buf, params[PathStreamSampleRate].Uint32)
	buf = binary.LittleEndian.AppendUint32(buf, params[PathStreamDataFormat].Uint32)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(channels)))

	for _, elem := range channels {
		buf = binary.LittleEndian.AppendUint32(buf, elem.Map[streamKeyChannelID].Uint32)
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(elem.Map[streamKeyAmplitude].Float32))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(elem.Map[streamKeyFrequency].Float32))
	}

	if ts, ok := params[PathStreamTimestamp]; ok {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(ts.Float64))
	}
	return buf, nil
}

// Deserialize decodes the raw stream record, rejecting malformed lengths
func (c *StreamCheckCodec) Deserialize(payload []byte) (protocol.ParamMap, error) {
	if len(payload) > maxStreamPayload {
		return nil, errors.Newf(ErrPayloadOversized, "stream payload is %d bytes, limit %d", len(payload), maxStreamPayload)
	}
	if len(payload) < streamHeaderSize {
		return nil, errors.Newf(ErrDecodeFailed, "stream payload is %d bytes, header needs %d", len(payload), streamHeaderSize)
	}

	channelCount := binary.LittleEndian.Uint32(payload[0:4])
	sampleRate := binary.LittleEndian.Uint32(payload[4:8])
	dataFormat := binary.LittleEndian.Uint32(payload[8:12])
	sampleCount := binary.LittleEndian.Uint32(payload[12:16])

	if sampleCount > maxStreamChannels {
		return nil, errors.Newf(ErrDecodeFailed, "stream sample count %d exceeds %d", sampleCount, maxStreamChannels)
	}

	body := payload[streamHeaderSize:]
	need := int(sampleCount) * streamRecordSize
	if len(body) < need {
		return nil, errors.Newf(ErrDecodeFailed, "stream payload truncated: %d sample bytes, need %d", len(body), need)
	}
	tail := body[need:]
	if len(tail) != 0 && len(tail) != streamTimeSize {
		return nil, errors.Newf(ErrDecodeFailed, "stream payload has %d trailing bytes", len(tail))
	}

	channels := protocol.ListValue()
	for i := 0; i < int(sampleCount); i++ {
		rec := body[i*streamRecordSize:]
		entry := map[string]protocol.Value{
			streamKeyChannelID: protocol.Uint32Value(binary.LittleEndian.Uint32(rec[0:4])),
			streamKeyAmplitude: protocol.Float32Value(math.Float32frombits(binary.LittleEndian.Uint32(rec[4:8]))),
			streamKeyFrequency: protocol.Float32Value(math.Float32frombits(binary.LittleEndian.Uint32(rec[8:12]))),
		}
		channels.List = append(channels.List, protocol.MapValue(entry))
	}

	params := protocol.ParamMap{
		PathStreamChannelCount: protocol.Uint32Value(channelCount),
		PathStreamSampleRate:   protocol.Uint32Value(sampleRate),
		PathStreamDataFormat:   protocol.Uint32Value(dataFormat),
		PathStreamChannels:     channels,
	}
	if len(tail) == streamTimeSize {
		params[PathStreamTimestamp] = protocol.Float64Value(float64(binary.LittleEndian.Uint64(tail)))
	}

	if err := c.Validate(params); err != nil {
		return nil, err
	}
	return params, nil
}

// Register registers this codec in both registry and factory
func (c *StreamCheckCodec) Register(registry *protocol.Registry, factory *protocol.CodecFactory) error {
	info := &protocol.CodecInfo{
		Type: protocol.StreamCheck,
		Name: protocol.MessageTypeName(protocol.StreamCheck),
		Paths: []string{
			PathStreamChannelCount,
			PathStreamSampleRate,
			PathStreamDataFormat,
			PathStreamChannels,
			PathStreamTimestamp,
		},
	}
	if err := registry.Register(c, info); err != nil {
		return err
	}
	factory.RegisterConstructor(protocol.StreamCheck, func() protocol.MessageCodec {
		return NewStreamCheckCodec()
	})
	return nil
}
