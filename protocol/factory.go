package protocol

import (
	"github.com/ancware/tunelink/pkg/errors"
)

// CodecFactory creates fresh codec instances by message type
type CodecFactory struct {
	constructors map[MessageType]func() MessageCodec
}

// NewCodecFactory creates a new codec factory
func NewCodecFactory() *CodecFactory {
	return &CodecFactory{
		constructors: make(map[MessageType]func() MessageCodec),
	}
}

// RegisterConstructor registers a constructor function for a message type
func (f *CodecFactory) RegisterConstructor(t MessageType, constructor func() MessageCodec) {
	f.constructors[t] = constructor
}

// CreateCodec creates a new codec instance of the specified type
func (f *CodecFactory) CreateCodec(t MessageType) (MessageCodec, error) {
	constructor, exists := f.constructors[t]
	if !exists {
		return nil, errors.Newf(ErrCodecNotRegistered, "no constructor registered for %s", MessageTypeName(t))
	}

	return constructor(), nil
}

// IsRegistered returns true if a constructor is registered for the type
func (f *CodecFactory) IsRegistered(t MessageType) bool {
	_, exists := f.constructors[t]
	return exists
}

// ListRegisteredTypes returns all registered message types
func (f *CodecFactory) ListRegisteredTypes() []MessageType {
	types := make([]MessageType, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}
	return types
}

// Clear removes all registered constructors (useful for testing)
func (f *CodecFactory) Clear() {
	f.constructors = make(map[MessageType]func() MessageCodec)
}
