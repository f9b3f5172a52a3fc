package uitree

import (
	"fmt"
	"sync"
)

// RenderFunc renders one node. children holds the already rendered views of
// the node's children, in order; rc is the shared interaction context for
// the whole render root.
type RenderFunc func(node *Node, children []string, rc *RenderContext) (string, error)

// Registry maps a node type tag to the primitive that can render it.
// Absence of a tag is a recoverable condition, not a programming error.
type Registry struct {
	mu         sync.RWMutex
	primitives map[string]RenderFunc
}

func NewRegistry() *Registry {
	return &Registry{
		primitives: make(map[string]RenderFunc),
	}
}

// Register binds a render function to a type tag. It returns an error if the
// tag is already taken.
func (r *Registry) Register(typeTag string, fn RenderFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.primitives[typeTag]; exists {
		return fmt.Errorf("primitive already registered for type %q", typeTag)
	}
	r.primitives[typeTag] = fn
	return nil
}

// MustRegister is Register for process-initialization call sites.
func (r *Registry) MustRegister(typeTag string, fn RenderFunc) {
	if err := r.Register(typeTag, fn); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(typeTag string) (RenderFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.primitives[typeTag]
	return fn, ok
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.primitives))
	for t := range r.primitives {
		out = append(out, t)
	}
	return out
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

// DefaultRegistry returns the process-wide registry, created on first use.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}
