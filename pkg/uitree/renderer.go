package uitree

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Action is a named event with an opaque payload, produced by a leaf in
// response to user interaction and consumed exactly once by the surrounding
// controller.
type Action struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data,omitempty"`
}

// RenderContext is the shared interaction context threaded through every
// node of one render root. There is exactly one form-data store per root;
// sibling leaves read each other's collected values through it.
type RenderContext struct {
	mu       sync.Mutex
	formData map[string]any
	onAction func(Action)
}

func NewRenderContext(onAction func(Action)) *RenderContext {
	return &RenderContext{
		formData: map[string]any{},
		onAction: onAction,
	}
}

// NewRenderContextWithData seeds the form store, used to prefill a tree from
// previously collected fields.
func NewRenderContextWithData(onAction func(Action), seed map[string]any) *RenderContext {
	rc := NewRenderContext(onAction)
	for k, v := range seed {
		rc.formData[k] = v
	}
	return rc
}

// FormData returns a snapshot of the store. Mutating the returned map does
// not affect the context.
func (rc *RenderContext) FormData() map[string]any {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[string]any, len(rc.formData))
	for k, v := range rc.formData {
		out[k] = v
	}
	return out
}

// SetFormData accepts either a full replacement map or an updater function
// of the previous state. The update is applied atomically with respect to
// concurrent updates from other leaves; within one render cycle the final
// value per key is last-write-wins.
func (rc *RenderContext) SetFormData(update any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	switch u := update.(type) {
	case map[string]any:
		rc.formData = u
	case func(map[string]any) map[string]any:
		prev := make(map[string]any, len(rc.formData))
		for k, v := range rc.formData {
			prev[k] = v
		}
		next := u(prev)
		if next != nil {
			rc.formData = next
		}
	default:
		log.Warn().Type("update", update).Msg("ignoring unsupported form data update")
	}
}

// SetField writes a single field value.
func (rc *RenderContext) SetField(key string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.formData[key] = value
}

// Dispatch forwards an action to the controller synchronously, from the
// leaf's interaction handler. Dispatch is never batched or delayed; the
// first action received decides the controller's next call.
func (rc *RenderContext) Dispatch(a Action) {
	if rc.onAction == nil {
		log.Warn().Str("action", a.Name).Msg("dropping action, no handler attached")
		return
	}
	rc.onAction(a)
}

// Renderer walks a node tree and dispatches each node to the primitive
// registered for its type tag.
type Renderer struct {
	registry *Registry
}

func NewRenderer(registry *Registry) *Renderer {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Renderer{registry: registry}
}

// Render produces the view for a tree. The walk is pre-order and children
// render in the order given. An unregistered type tag renders a visible
// placeholder carrying the raw tag; a hidden failure is worse than a visible
// one, so nodes are never silently dropped and traversal never aborts.
func (r *Renderer) Render(root *Node, rc *RenderContext) string {
	if root == nil {
		return ""
	}
	return r.renderNode(root, rc)
}

func (r *Renderer) renderNode(n *Node, rc *RenderContext) string {
	children := make([]string, 0, len(n.Children))
	for _, child := range n.Children {
		if child == nil {
			continue
		}
		children = append(children, r.renderNode(child, rc))
	}

	fn, ok := r.registry.Lookup(n.Type)
	if !ok {
		log.Debug().Str("type", n.Type).Msg("no primitive registered for node type")
		return placeholder(n.Type, children)
	}

	view, err := fn(n, children, rc)
	if err != nil {
		log.Warn().Err(err).Str("type", n.Type).Msg("primitive render failed")
		return placeholder(n.Type, children)
	}
	return view
}

func placeholder(typeTag string, children []string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[unsupported component: %s]", typeTag))
	for _, c := range children {
		if c == "" {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(c)
	}
	return sb.String()
}
