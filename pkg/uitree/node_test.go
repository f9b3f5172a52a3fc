package uitree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropHelpers(t *testing.T) {
	n := &Node{
		Type: "Test",
		Properties: map[string]any{
			"text":    "hello",
			"count":   float64(3), // JSON numbers decode as float64
			"ratio":   0.5,
			"enabled": true,
			"options": []any{"a", "b", 1},
		},
	}

	assert.Equal(t, "hello", n.StringProp("text", ""))
	assert.Equal(t, "fallback", n.StringProp("missing", "fallback"))
	assert.Equal(t, "fallback", n.StringProp("count", "fallback"))
	assert.Equal(t, 3, n.IntProp("count", 0))
	assert.Equal(t, 0.5, n.FloatProp("ratio", 0))
	assert.True(t, n.BoolProp("enabled", false))
	assert.Equal(t, []string{"a", "b"}, n.StringsProp("options"))

	var nilNode *Node
	assert.Equal(t, "d", nilNode.StringProp("x", "d"))
}

func TestNodesPropFromJSONShape(t *testing.T) {
	n := &Node{
		Type: "Tabs",
		Properties: map[string]any{
			"panes": []any{
				map[string]any{"type": "Text", "properties": map[string]any{"text": "one"}},
				map[string]any{"type": "Text", "properties": map[string]any{"text": "two"}},
				"not a node",
			},
		},
	}

	panes := n.NodesProp("panes")
	require.Len(t, panes, 2)
	assert.Equal(t, "Text", panes[0].Type)
	assert.Equal(t, "one", panes[0].StringProp("text", ""))
	assert.Equal(t, "two", panes[1].StringProp("text", ""))
}

func TestDecodeProps(t *testing.T) {
	n := &Node{
		Type: "TextInput",
		Properties: map[string]any{
			"field":       "energy",
			"placeholder": "1-10",
			"unknown":     "ignored",
		},
	}

	var props struct {
		Field       string `mapstructure:"field"`
		Placeholder string `mapstructure:"placeholder"`
	}
	require.NoError(t, n.DecodeProps(&props))
	assert.Equal(t, "energy", props.Field)
	assert.Equal(t, "1-10", props.Placeholder)
}

func TestParseTree(t *testing.T) {
	raw := []byte(`{
		"type": "Card",
		"properties": {"title": "Check-in"},
		"children": [
			{"type": "Text", "properties": {"text": "How are you?"}}
		]
	}`)

	root, err := ParseTree(raw)
	require.NoError(t, err)
	assert.Equal(t, "Card", root.Type)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "Text", root.Children[0].Type)

	_, err = ParseTree([]byte(`not json`))
	require.Error(t, err)
}
