package protocol

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Message types of the tuning protocol. The set is closed: the unit firmware
// and this stack must agree on it byte for byte.
const (
	ChannelNumber MessageType = iota
	ChannelAmplitude
	ChannelSwitch
	StreamCheck
	AncSwitch
	VehicleState
	TranFuncFlag
	TranFuncState
	FilterRanges
	SystemRanges
	OrderFlag
	Order2Params
	Order4Params
	Order6Params
	AlphaParams
	FreqDivision
	Thresholds
	GraphData
)

// Frame layer constants
const (
	FrameHeader byte = 0xAA
	FrameFooter byte = 0x55

	// MinFrameSize is header + length byte + footer, i.e. an empty payload.
	MinFrameSize = 3

	// MaxFramePayload is the largest payload a one-byte length field can carry.
	MaxFramePayload = 255

	// DefaultMaxBuffer bounds the framer's accumulation buffer.
	DefaultMaxBuffer = 4096
)

// Envelope field numbers for the identification fields.
const (
	envelopeFieldProtoID  = 1
	envelopeFieldFunction = 2
)

// protoIDByType assigns each message type its wire ProtoID. The values are
// firmware-assigned and non-contiguous; never derive them from enum order.
var protoIDByType = map[MessageType]uint32{
	ChannelNumber:    0,
	ChannelAmplitude: 25,
	FreqDivision:     27,
	Thresholds:       33,
	OrderFlag:        77,
	Order2Params:     78,
	Order4Params:     86,
	Order6Params:     87,
	ChannelSwitch:    119,
	VehicleState:     138,
	StreamCheck:      150,
	AncSwitch:        151,
	TranFuncFlag:     153,
	TranFuncState:    154,
	FilterRanges:     155,
	GraphData:        156,
	SystemRanges:     157,
	AlphaParams:      158,
}

// envelopeFieldByType assigns each packable message type its payload field
// number inside the envelope. GraphData is absent: the unit streams it, the
// host never packs it.
var envelopeFieldByType = map[MessageType]uint32{
	ChannelNumber:    3,
	ChannelAmplitude: 4,
	ChannelSwitch:    5,
	StreamCheck:      6,
	AncSwitch:        7,
	VehicleState:     8,
	TranFuncFlag:     9,
	TranFuncState:    10,
	FilterRanges:     11,
	SystemRanges:     12,
	OrderFlag:        13,
	Order2Params:     14,
	Order4Params:     15,
	Order6Params:     16,
	AlphaParams:      17,
	FreqDivision:     18,
	Thresholds:       19,
}

// typeByProtoID is the reverse of protoIDByType, built and checked at startup.
var typeByProtoID map[uint32]MessageType

func init() {
	typeByProtoID = make(map[uint32]MessageType, len(protoIDByType))
	for mt, id := range protoIDByType {
		if prev, dup := typeByProtoID[id]; dup {
			panic(fmt.Sprintf("protocol: ProtoID %d assigned to both %s and %s",
				id, MessageTypeName(prev), MessageTypeName(mt)))
		}
		typeByProtoID[id] = mt
	}
	for mt := range envelopeFieldByType {
		if _, ok := protoIDByType[mt]; !ok {
			panic(fmt.Sprintf("protocol: envelope field assigned to unknown type %d", mt))
		}
	}
	seen := make(map[uint32]MessageType, len(envelopeFieldByType))
	for mt, field := range envelopeFieldByType {
		if prev, dup := seen[field]; dup {
			panic(fmt.Sprintf("protocol: envelope field %d assigned to both %s and %s",
				field, MessageTypeName(prev), MessageTypeName(mt)))
		}
		seen[field] = mt
	}
}

// MessageTypeNames maps message types to readable names for logging
var MessageTypeNames = map[MessageType]string{
	ChannelNumber:    "ChannelNumber",
	ChannelAmplitude: "ChannelAmplitude",
	ChannelSwitch:    "ChannelSwitch",
	StreamCheck:      "StreamCheck",
	AncSwitch:        "AncSwitch",
	VehicleState:     "VehicleState",
	TranFuncFlag:     "TranFuncFlag",
	TranFuncState:    "TranFuncState",
	FilterRanges:     "FilterRanges",
	SystemRanges:     "SystemRanges",
	OrderFlag:        "OrderFlag",
	Order2Params:     "Order2Params",
	Order4Params:     "Order4Params",
	Order6Params:     "Order6Params",
	AlphaParams:      "AlphaParams",
	FreqDivision:     "FreqDivision",
	Thresholds:       "Thresholds",
	GraphData:        "GraphData",
}

// MessageTypeName returns the human-readable name for a message type
func MessageTypeName(t MessageType) string {
	if name, exists := MessageTypeNames[t]; exists {
		return name
	}
	return "Unknown"
}

// MessageTypeFromName resolves a type name to its message type. Device-team
// mapping documents spell names in upper snake case ("ANC_SWITCH"); names are
// normalized before comparison so both spellings resolve.
func MessageTypeFromName(name string) (MessageType, bool) {
	want := normalizeTypeName(name)
	for t, n := range MessageTypeNames {
		if normalizeTypeName(n) == want {
			return t, true
		}
	}
	return 0, false
}

func normalizeTypeName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+'a'-'A')
		case c == '_' || c == '-' || c == ' ':
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// FunctionCodeName returns the human-readable name for a function code
func FunctionCodeName(fc FunctionCode) string {
	switch fc {
	case FunctionRequest:
		return "Request"
	case FunctionResponse:
		return "Response"
	}
	return "Unknown"
}

// ProtoIDForType returns the wire ProtoID for a message type.
func ProtoIDForType(t MessageType) (uint32, bool) {
	id, ok := protoIDByType[t]
	return id, ok
}

// MessageTypeFromProtoID resolves a wire ProtoID to its message type.
// The second return is false for IDs outside the protocol set; callers must
// treat that as an unsupported message, never substitute a default.
func MessageTypeFromProtoID(id uint32) (MessageType, bool) {
	mt, ok := typeByProtoID[id]
	return mt, ok
}

// EnvelopeFieldForType returns the envelope payload field number for a
// message type. GraphData has none.
func EnvelopeFieldForType(t MessageType) (uint32, bool) {
	field, ok := envelopeFieldByType[t]
	return field, ok
}

// MessageTypes returns all message types in declaration order.
func MessageTypes() []MessageType {
	out := make([]MessageType, 0, len(protoIDByType))
	for t := ChannelNumber; t <= GraphData; t++ {
		out = append(out, t)
	}
	return out
}

// FormatValue renders a value for diagnostics. Value carries a String
// field, so it cannot implement fmt.Stringer itself.
func FormatValue(v Value) string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt32:
		return strconv.FormatInt(int64(v.Int32), 10)
	case KindUint32:
		return strconv.FormatUint(uint64(v.Uint32), 10)
	case KindFloat32:
		return strconv.FormatFloat(float64(v.Float32), 'g', -1, 32)
	case KindFloat64:
		return strconv.FormatFloat(v.Float64, 'g', -1, 64)
	case KindString:
		return v.String
	case KindBytes:
		return "0x" + hex.EncodeToString(v.Bytes)
	case KindList:
		parts := make([]string, len(v.List))
		for i, elem := range v.List {
			parts[i] = FormatValue(elem)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + FormatValue(v.Map[k])
		}
		return "{" + strings.Join(parts, " ") + "}"
	}
	return fmt.Sprintf("unknown kind %d", v.Kind)
}
