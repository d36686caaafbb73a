package protocol

// MessageType identifies a tuning message within the closed protocol set.
type MessageType uint8

// FunctionCode distinguishes host requests from unit responses.
type FunctionCode uint8

const (
	FunctionRequest  FunctionCode = 0
	FunctionResponse FunctionCode = 1
)

// ValueKind discriminates the variants of Value.
type ValueKind uint8

const (
	KindBool ValueKind = iota
	KindInt32
	KindUint32
	KindFloat32
	KindFloat64
	KindString
	KindBytes
	KindList
	KindMap
)

// ValueKindNames maps value kinds to readable names for diagnostics
var ValueKindNames = map[ValueKind]string{
	KindBool:    "Bool",
	KindInt32:   "Int32",
	KindUint32:  "Uint32",
	KindFloat32: "Float32",
	KindFloat64: "Float64",
	KindString:  "String",
	KindBytes:   "Bytes",
	KindList:    "List",
	KindMap:     "Map",
}

// Value is a decoded or to-be-encoded parameter value. Kind selects which
// variant field is meaningful; codecs match on Kind and never convert.
type Value struct {
	Kind    ValueKind
	Bool    bool
	Int32   int32
	Uint32  uint32
	Float32 float32
	Float64 float64
	String  string
	Bytes   []byte
	List    []Value
	Map     map[string]Value
}

// ParamMap carries parameter values keyed by logical path.
type ParamMap map[string]Value

// Value constructors keep codec and test code compact.

func BoolValue(v bool) Value       { return Value{Kind: KindBool, Bool: v} }
func Int32Value(v int32) Value     { return Value{Kind: KindInt32, Int32: v} }
func Uint32Value(v uint32) Value   { return Value{Kind: KindUint32, Uint32: v} }
func Float32Value(v float32) Value { return Value{Kind: KindFloat32, Float32: v} }
func Float64Value(v float64) Value { return Value{Kind: KindFloat64, Float64: v} }
func StringValue(v string) Value   { return Value{Kind: KindString, String: v} }
func BytesValue(v []byte) Value    { return Value{Kind: KindBytes, Bytes: v} }
func ListValue(v ...Value) Value   { return Value{Kind: KindList, List: v} }

func MapValue(v map[string]Value) Value { return Value{Kind: KindMap, Map: v} }

// MessageCodec serializes one message type between ParamMap and payload bytes.
type MessageCodec interface {
	// Type returns the message type this codec handles
	Type() MessageType

	// Serialize validates params and encodes them to a payload.
	// It never produces partial output: validation failures return nil bytes.
	Serialize(params ParamMap) ([]byte, error)

	// Deserialize decodes a payload into parameter values.
	// Only fields present on the wire appear in the result.
	Deserialize(payload []byte) (ParamMap, error)

	// Validate checks params against the codec's field set and ranges
	Validate(params ParamMap) error

	// Describe returns a short human-readable summary of the codec
	Describe() string

	// Register registers this codec in both registry and factory
	Register(registry *Registry, factory *CodecFactory) error
}

// CodecInfo provides metadata about a registered codec
type CodecInfo struct {
	Type    MessageType
	Name    string
	Paths   []string
	Version int
}

// Envelope is a parsed Layer 2 message: identification plus raw payload.
type Envelope struct {
	Type     MessageType
	ProtoID  uint32
	Function FunctionCode
	Payload  []byte
}

// DecodedMessage is an envelope whose payload has passed through its codec.
type DecodedMessage struct {
	Type     MessageType
	Function FunctionCode
	Params   ParamMap
}
