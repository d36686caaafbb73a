package protocol

import (
	"sort"
	"sync"

	"github.com/ancware/tunelink/pkg/errors"
)

// Registry manages message codecs and their metadata
type Registry struct {
	mu sync.RWMutex

	codecs map[MessageType]MessageCodec

	// Codec metadata
	info map[MessageType]*CodecInfo
}

// NewRegistry creates a new codec registry
func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[MessageType]MessageCodec),
		info:   make(map[MessageType]*CodecInfo),
	}
}

// Register registers a codec implementation with its metadata. The info type
// must match the codec's own type, and a type can be registered only once.
func (r *Registry) Register(codec MessageCodec, info *CodecInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info != nil && info.Type != codec.Type() {
		return errors.Newf(ErrCodecTypeMismatch, "info declares %s but codec handles %s",
			MessageTypeName(info.Type), MessageTypeName(codec.Type()))
	}

	if _, exists := r.codecs[codec.Type()]; exists {
		return errors.Newf(ErrCodecAlreadyRegistered, "codec for %s already registered", MessageTypeName(codec.Type()))
	}

	r.codecs[codec.Type()] = codec
	if info != nil {
		r.info[codec.Type()] = info
	}

	return nil
}

// Get returns the codec registered for a message type
func (r *Registry) Get(t MessageType) (MessageCodec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codec, exists := r.codecs[t]
	if !exists {
		return nil, errors.Newf(ErrCodecNotRegistered, "no codec registered for %s", MessageTypeName(t))
	}

	return codec, nil
}

// Info returns metadata for a registered codec
func (r *Registry) Info(t MessageType) (*CodecInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.info[t]
	if !exists {
		return nil, errors.Newf(ErrCodecNotRegistered, "no codec info for %s", MessageTypeName(t))
	}

	return info, nil
}

// List returns all registered message types in stable order
func (r *Registry) List() []MessageType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]MessageType, 0, len(r.codecs))
	for t := range r.codecs {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// IsRegistered returns true if a codec is registered for the message type
func (r *Registry) IsRegistered(t MessageType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.codecs[t]
	return exists
}

// Clear removes all registered codecs (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.codecs = make(map[MessageType]MessageCodec)
	r.info = make(map[MessageType]*CodecInfo)
}
