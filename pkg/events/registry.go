package events

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FrameCodec decodes a wire payload into a concrete Frame instance.
type FrameCodec func([]byte) (Frame, error)

var (
	registryOnce sync.Once
	reg          *frameRegistry
)

type frameRegistry struct {
	mu       sync.RWMutex
	decoders map[string]FrameCodec
}

func ensureRegistry() {
	registryOnce.Do(func() {
		reg = &frameRegistry{
			decoders: make(map[string]FrameCodec),
		}
	})
}

// RegisterFrameCodec registers a decoder for a custom frame type name. It
// returns an error if a decoder is already registered for the type.
func RegisterFrameCodec(typeName string, dec FrameCodec) error {
	ensureRegistry()
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.decoders[typeName]; exists {
		return fmt.Errorf("decoder already registered for type %q", typeName)
	}
	reg.decoders[typeName] = dec
	return nil
}

// RegisterFrameFactory registers a factory based on standard json.Unmarshal.
// The factory must return a zero-value concrete struct implementing Frame
// with Type_ set.
func RegisterFrameFactory(typeName string, factory func() Frame) error {
	return RegisterFrameCodec(typeName, func(b []byte) (Frame, error) {
		f := factory()
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, err
		}
		return f, nil
	})
}

func lookupDecoder(typeName string) FrameCodec {
	ensureRegistry()
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.decoders[typeName]
}
