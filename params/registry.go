package params

import (
	"os"
	"sort"
	"sync"

	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// ParameterInfo binds a logical parameter path to its wire representation.
// Kind describes the wire field's element kind; list-valued parameters keep
// the element kind here and carry a List default.
type ParameterInfo struct {
	LogicalPath string
	WireField   string
	Kind        protocol.ValueKind
	Default     protocol.Value
	Type        protocol.MessageType
	Deprecated  bool
	ReplacedBy  string
	Description string
}

// DeprecationHandler is notified when a deprecated parameter is resolved
type DeprecationHandler func(path string, replacedBy string)

// fieldKindsByName maps mapping-document type strings to value kinds
var fieldKindsByName = map[string]protocol.ValueKind{
	"bool":   protocol.KindBool,
	"int32":  protocol.KindInt32,
	"uint32": protocol.KindUint32,
	"float":  protocol.KindFloat32,
	"double": protocol.KindFloat64,
	"string": protocol.KindString,
	"bytes":  protocol.KindBytes,
}

// Registry maps logical parameter paths to wire bindings. Lookups are O(1);
// loads replace the table wholesale so in-flight operations keep whatever
// snapshot they already resolved.
type Registry struct {
	mu           sync.RWMutex
	entries      map[string]ParameterInfo
	byType       map[protocol.MessageType][]string
	onDeprecated DeprecationHandler
	logger       zerolog.Logger
}

// NewRegistry creates a registry seeded with the built-in mappings for every
// shipped codec path.
func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{
		entries: make(map[string]ParameterInfo),
		byType:  make(map[protocol.MessageType][]string),
		logger:  logger.With().Str("component", "param-registry").Logger(),
	}
	r.install(builtinMappings())
	return r
}

// SetDeprecationHandler installs the callback fired when a deprecated
// parameter is resolved. Pass nil to silence notifications.
func (r *Registry) SetDeprecationHandler(handler DeprecationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDeprecated = handler
}

func validateInfo(info ParameterInfo) error {
	if info.LogicalPath == "" {
		return errors.New(ErrLoadFailed, "parameter has empty logical path", nil)
	}
	if _, ok := protocol.ValueKindNames[info.Kind]; !ok {
		return errors.Newf(ErrInvalidFieldKind, "parameter %s has unrecognized field kind %d", info.LogicalPath, info.Kind)
	}
	if info.Deprecated && info.ReplacedBy == "" {
		return errors.Newf(ErrMissingReplacement, "deprecated parameter %s has no replacement", info.LogicalPath)
	}
	return nil
}

// Register adds a single parameter mapping. Registering a path that already
// exists is an error; use Load to replace the table wholesale.
func (r *Registry) Register(info ParameterInfo) error {
	if err := validateInfo(info); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[info.LogicalPath]; exists {
		return errors.Newf(ErrDuplicatePath, "parameter %s is already registered", info.LogicalPath)
	}
	r.entries[info.LogicalPath] = info
	r.byType[info.Type] = append(r.byType[info.Type], info.LogicalPath)
	return nil
}

// Resolve looks up a parameter by path. Resolving a deprecated parameter
// succeeds and fires the deprecation handler.
func (r *Registry) Resolve(path string) (ParameterInfo, error) {
	r.mu.RLock()
	info, ok := r.entries[path]
	handler := r.onDeprecated
	r.mu.RUnlock()

	if !ok {
		return ParameterInfo{}, errors.Newf(ErrUnknownParameter, "parameter %s is not mapped", path)
	}
	if info.Deprecated {
		r.logger.Warn().
			Str("path", path).
			Str("replaced_by", info.ReplacedBy).
			Msg("Deprecated parameter used")
		if handler != nil {
			handler(path, info.ReplacedBy)
		}
	}
	return info, nil
}

// ResolveActive resolves a path and, when it lands on a deprecated entry,
// follows the replacement chain until it reaches a live one. Each deprecated
// hop fires the deprecation handler.
func (r *Registry) ResolveActive(path string) (ParameterInfo, error) {
	seen := map[string]bool{}
	for {
		info, err := r.Resolve(path)
		if err != nil {
			return ParameterInfo{}, err
		}
		if !info.Deprecated {
			return info, nil
		}
		if seen[path] {
			return ParameterInfo{}, errors.Newf(ErrReplacementCycle, "replacement chain for %s loops back on itself", path)
		}
		seen[path] = true
		path = info.ReplacedBy
	}
}

// Has reports whether a path is mapped without firing deprecation handling
func (r *Registry) Has(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[path]
	return ok
}

// PathsFor returns the mapped paths owned by one message type, sorted
func (r *Registry) PathsFor(t protocol.MessageType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, len(r.byType[t]))
	copy(paths, r.byType[t])
	sort.Strings(paths)
	return paths
}

// Paths returns every mapped path, sorted
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.entries))
	for path := range r.entries {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Count returns the number of mapped parameters
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// install swaps in a fresh entry table and rebuilds the reverse index
func (r *Registry) install(entries map[string]ParameterInfo) {
	byType := make(map[protocol.MessageType][]string)
	for path, info := range entries {
		byType[info.Type] = append(byType[info.Type], path)
	}

	r.mu.Lock()
	r.entries = entries
	r.byType = byType
	r.mu.Unlock()
}

// LoadFile reads a mapping document from disk and loads it
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Newf(ErrLoadFailed, "cannot read mapping file %s", path).WithCause(err)
	}
	return r.Load(data)
}

// Load parses a JSON mapping document and replaces the registry contents
// with the built-in mappings overlaid by the document's entries. Malformed
// entries are skipped with a warning; a duplicate path within one document
// keeps the last occurrence. Deprecated entries whose replacement does not
// resolve are skipped.
func (r *Registry) Load(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New(ErrLoadFailed, "mapping document is not valid JSON", nil)
	}

	mappings := gjson.GetBytes(data, "mappings")
	if !mappings.IsObject() {
		return errors.New(ErrLoadFailed, "mapping document has no mappings object", nil)
	}

	entries := builtinMappings()
	seen := make(map[string]bool)
	loaded := 0

	mappings.ForEach(func(key, value gjson.Result) bool {
		path := key.String()
		if !value.IsObject() {
			r.logger.Warn().Str("path", path).Msg("Skipping mapping entry that is not an object")
			return true
		}
		if seen[path] {
			r.logger.Warn().Str("path", path).Msg("Duplicate mapping path, keeping last occurrence")
		}

		info, err := parseEntry(path, value)
		if err != nil {
			r.logger.Warn().Str("path", path).Err(err).Msg("Skipping malformed mapping entry")
			return true
		}

		entries[path] = info
		seen[path] = true
		loaded++
		return true
	})

	// Deprecated entries must point at a path that resolves after the merge
	for path, info := range entries {
		if !info.Deprecated {
			continue
		}
		if _, ok := entries[info.ReplacedBy]; !ok {
			r.logger.Warn().
				Str("path", path).
				Str("replaced_by", info.ReplacedBy).
				Msg("Skipping deprecated mapping with unresolvable replacement")
			delete(entries, path)
		}
	}

	r.install(entries)
	r.logger.Info().
		Int("loaded", loaded).
		Int("total", len(entries)).
		Msg("Parameter mapping loaded")
	return nil
}

// parseEntry builds a ParameterInfo from one mapping-document entry
func parseEntry(path string, value gjson.Result) (ParameterInfo, error) {
	fieldType := value.Get("fieldType").String()
	kind, ok := fieldKindsByName[fieldType]
	if !ok {
		return ParameterInfo{}, errors.Newf(ErrInvalidFieldKind, "parameter %s has field type %q", path, fieldType)
	}

	typeName := value.Get("messageType").String()
	msgType, ok := protocol.MessageTypeFromName(typeName)
	if !ok {
		return ParameterInfo{}, errors.Newf(ErrLoadFailed, "parameter %s names unknown message type %q", path, typeName)
	}

	info := ParameterInfo{
		LogicalPath: path,
		WireField:   value.Get("protobufPath").String(),
		Kind:        kind,
		Default:     parseDefault(value.Get("defaultValue"), kind),
		Type:        msgType,
		Deprecated:  value.Get("deprecated").Bool(),
		ReplacedBy:  value.Get("replacedBy").String(),
		Description: value.Get("description").String(),
	}
	if err := validateInfo(info); err != nil {
		return ParameterInfo{}, err
	}
	return info, nil
}

// parseDefault converts a mapping-document default into a tagged value. An
// array default becomes a List of the element kind; an absent default is the
// kind's zero value.
func parseDefault(result gjson.Result, kind protocol.ValueKind) protocol.Value {
	if result.IsArray() {
		list := protocol.ListValue()
		result.ForEach(func(_, elem gjson.Result) bool {
			list.List = append(list.List, scalarDefault(elem, kind))
			return true
		})
		return list
	}
	return scalarDefault(result, kind)
}

func scalarDefault(result gjson.Result, kind protocol.ValueKind) protocol.Value {
	switch kind {
	case protocol.KindBool:
		return protocol.BoolValue(result.Bool())
	case protocol.KindInt32:
		return protocol.Int32Value(int32(result.Int()))
	case protocol.KindUint32:
		return protocol.Uint32Value(uint32(result.Uint()))
	case protocol.KindFloat32:
		return protocol.Float32Value(float32(result.Float()))
	case protocol.KindFloat64:
		return protocol.Float64Value(result.Float())
	case protocol.KindString:
		return protocol.StringValue(result.String())
	case protocol.KindBytes:
		return protocol.BytesValue([]byte(result.String()))
	}
	return protocol.Value{}
}
