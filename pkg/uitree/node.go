package uitree

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"
)

// Node is one backend-specified unit of interactive content. A tree is a
// single root node; container types carry their children either in Children
// or nested inside a property value.
type Node struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Children   []*Node        `json:"children,omitempty"`
}

// StringProp returns the named property as a string, or def when absent or
// not a string. Unknown or mistyped properties are never an error.
func (n *Node) StringProp(key string, def string) string {
	if n == nil || n.Properties == nil {
		return def
	}
	if s, ok := n.Properties[key].(string); ok {
		return s
	}
	return def
}

func (n *Node) BoolProp(key string, def bool) bool {
	if n == nil || n.Properties == nil {
		return def
	}
	if b, ok := n.Properties[key].(bool); ok {
		return b
	}
	return def
}

// FloatProp handles both float64 (JSON numbers) and int property values.
func (n *Node) FloatProp(key string, def float64) float64 {
	if n == nil || n.Properties == nil {
		return def
	}
	switch v := n.Properties[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func (n *Node) IntProp(key string, def int) int {
	if n == nil || n.Properties == nil {
		return def
	}
	switch v := n.Properties[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// StringsProp returns a []string property, accepting both []string and the
// []any shape produced by json.Unmarshal.
func (n *Node) StringsProp(key string) []string {
	if n == nil || n.Properties == nil {
		return nil
	}
	switch v := n.Properties[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// NodesProp extracts nested nodes stored inside a property value, the shape
// container types use for named slots. Accepts []*Node directly or the
// generic []any/map[string]any shape from JSON decoding.
func (n *Node) NodesProp(key string) []*Node {
	if n == nil || n.Properties == nil {
		return nil
	}
	switch v := n.Properties[key].(type) {
	case []*Node:
		return v
	case []any:
		out := make([]*Node, 0, len(v))
		for _, e := range v {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			child := &Node{}
			if err := mapstructure.Decode(m, child); err != nil {
				continue
			}
			out = append(out, child)
		}
		return out
	}
	return nil
}

// DecodeProps decodes the property bag into a typed struct. Unknown keys are
// ignored; leaves validate and default their own fields afterwards.
func (n *Node) DecodeProps(out any) error {
	if n == nil || n.Properties == nil {
		return nil
	}
	return mapstructure.Decode(n.Properties, out)
}

// ParseTree decodes a JSON node tree. Used by the frame decoder and by
// tests; malformed trees are reported to the caller, which degrades them to
// plain text.
func ParseTree(b []byte) (*Node, error) {
	var root Node
	if err := json.Unmarshal(b, &root); err != nil {
		return nil, err
	}
	return &root, nil
}
