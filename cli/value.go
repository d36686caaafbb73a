package cli

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/go-faster/errors"

	"github.com/ancware/tunelink/params"
	"github.com/ancware/tunelink/protocol"
)

// parseSwitch accepts the usual spellings of a switch state
func parseSwitch(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	default:
		return false, errors.Errorf("not a switch state: %q (want on/off)", raw)
	}
}

// parseParamValue converts command line text into a wire value for a mapped
// parameter. List-valued parameters, recognized by their List default, take
// comma-separated entries of the element kind.
func parseParamValue(info params.ParameterInfo, raw string) (protocol.Value, error) {
	if info.Default.Kind == protocol.KindList {
		return parseList(info.Kind, raw)
	}
	return parseValue(info.Kind, raw)
}

// parseList parses comma-separated entries of one element kind
func parseList(elem protocol.ValueKind, raw string) (protocol.Value, error) {
	parts := strings.Split(raw, ",")
	list := make([]protocol.Value, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := parseValue(elem, part)
		if err != nil {
			return protocol.Value{}, errors.Wrapf(err, "list entry %q", part)
		}
		list = append(list, v)
	}
	return protocol.ListValue(list...), nil
}

// parseValue converts command line text into a scalar wire value
func parseValue(kind protocol.ValueKind, raw string) (protocol.Value, error) {
	switch kind {
	case protocol.KindBool:
		on, err := parseSwitch(raw)
		if err != nil {
			return protocol.Value{}, err
		}
		return protocol.BoolValue(on), nil

	case protocol.KindInt32:
		n, err := strconv.ParseInt(raw, 0, 32)
		if err != nil {
			return protocol.Value{}, errors.Wrap(err, "parse int32")
		}
		return protocol.Int32Value(int32(n)), nil

	case protocol.KindUint32:
		n, err := strconv.ParseUint(raw, 0, 32)
		if err != nil {
			return protocol.Value{}, errors.Wrap(err, "parse uint32")
		}
		return protocol.Uint32Value(uint32(n)), nil

	case protocol.KindFloat32:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return protocol.Value{}, errors.Wrap(err, "parse float32")
		}
		return protocol.Float32Value(float32(f)), nil

	case protocol.KindFloat64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return protocol.Value{}, errors.Wrap(err, "parse float64")
		}
		return protocol.Float64Value(f), nil

	case protocol.KindString:
		return protocol.StringValue(raw), nil

	case protocol.KindBytes:
		b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return protocol.Value{}, errors.Wrap(err, "parse hex bytes")
		}
		return protocol.BytesValue(b), nil

	default:
		return protocol.Value{}, errors.Errorf("unsupported value kind %s", protocol.ValueKindNames[kind])
	}
}

// formatValue renders a wire value as round-trippable command line text
func formatValue(v protocol.Value) string {
	switch v.Kind {
	case protocol.KindBool:
		if v.Bool {
			return "on"
		}
		return "off"
	case protocol.KindInt32:
		return strconv.FormatInt(int64(v.Int32), 10)
	case protocol.KindUint32:
		return strconv.FormatUint(uint64(v.Uint32), 10)
	case protocol.KindFloat32:
		return strconv.FormatFloat(float64(v.Float32), 'g', -1, 32)
	case protocol.KindFloat64:
		return strconv.FormatFloat(v.Float64, 'g', -1, 64)
	case protocol.KindString:
		return v.String
	case protocol.KindBytes:
		return hex.EncodeToString(v.Bytes)
	case protocol.KindList:
		parts := make([]string, len(v.List))
		for i, elem := range v.List {
			parts[i] = formatValue(elem)
		}
		return strings.Join(parts, ",")
	case protocol.KindMap:
		parts := make([]string, 0, len(v.Map))
		for key, elem := range v.Map {
			parts = append(parts, key+"="+formatValue(elem))
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

// valueToGo converts a wire value into a JSON-encodable Go value
func valueToGo(v protocol.Value) interface{} {
	switch v.Kind {
	case protocol.KindBool:
		return v.Bool
	case protocol.KindInt32:
		return v.Int32
	case protocol.KindUint32:
		return v.Uint32
	case protocol.KindFloat32:
		return v.Float32
	case protocol.KindFloat64:
		return v.Float64
	case protocol.KindString:
		return v.String
	case protocol.KindBytes:
		return hex.EncodeToString(v.Bytes)
	case protocol.KindList:
		out := make([]interface{}, len(v.List))
		for i, elem := range v.List {
			out[i] = valueToGo(elem)
		}
		return out
	case protocol.KindMap:
		out := make(map[string]interface{}, len(v.Map))
		for key, elem := range v.Map {
			out[key] = valueToGo(elem)
		}
		return out
	default:
		return nil
	}
}

// paramsToGo converts a whole parameter map for JSON output
func paramsToGo(p protocol.ParamMap) map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for path, v := range p {
		out[path] = valueToGo(v)
	}
	return out
}
