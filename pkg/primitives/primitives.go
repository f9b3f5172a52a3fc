package primitives

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/mento/pkg/uitree"
)

// Built-in leaf type tags.
const (
	TypeText        = "Text"
	TypeCard        = "Card"
	TypeButton      = "Button"
	TypeTextInput   = "TextInput"
	TypeChoiceGroup = "ChoiceGroup"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	cardStyle   = lipgloss.NewStyle().PaddingLeft(2)
	buttonStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
	chosenStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
)

// RegisterBuiltins binds the built-in leaves to a registry. Call it once at
// process initialization.
func RegisterBuiltins(reg *uitree.Registry) error {
	for tag, fn := range map[string]uitree.RenderFunc{
		TypeText:        renderText,
		TypeCard:        renderCard,
		TypeButton:      renderButton,
		TypeTextInput:   renderTextInput,
		TypeChoiceGroup: renderChoiceGroup,
	} {
		if err := reg.Register(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

func renderText(n *uitree.Node, _ []string, _ *uitree.RenderContext) (string, error) {
	text := n.StringProp("text", "")
	if n.BoolProp("bold", false) {
		return titleStyle.Render(text), nil
	}
	return text, nil
}

func renderCard(n *uitree.Node, children []string, _ *uitree.RenderContext) (string, error) {
	var sb strings.Builder
	if title := n.StringProp("title", ""); title != "" {
		sb.WriteString(titleStyle.Render(title))
	}
	for _, c := range children {
		if c == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(cardStyle.Render(c))
	}
	return sb.String(), nil
}

func renderButton(n *uitree.Node, _ []string, _ *uitree.RenderContext) (string, error) {
	label := n.StringProp("label", "OK")
	return buttonStyle.Render(fmt.Sprintf("[ %s ]", label)), nil
}

// PressButton dispatches the button's action synchronously. Debouncing a
// double press is the surface's responsibility, not the renderer's.
func PressButton(n *uitree.Node, rc *uitree.RenderContext) {
	data := map[string]any{}
	if m, ok := n.Properties["data"].(map[string]any); ok {
		for k, v := range m {
			data[k] = v
		}
	}
	rc.Dispatch(uitree.Action{
		Name: n.StringProp("action", "send_message"),
		Data: data,
	})
}

func renderTextInput(n *uitree.Node, _ []string, rc *uitree.RenderContext) (string, error) {
	field := n.StringProp("field", "")
	label := n.StringProp("label", field)

	value := ""
	if field != "" {
		if v, ok := rc.FormData()[field]; ok {
			value = fmt.Sprintf("%v", v)
		}
	}
	if value == "" {
		value = faintStyle.Render(n.StringProp("placeholder", "..."))
	}
	return fmt.Sprintf("%s: %s", label, value), nil
}

// SetInput writes a text input's value into the shared form-data store.
func SetInput(n *uitree.Node, rc *uitree.RenderContext, value string) {
	field := n.StringProp("field", "")
	if field == "" {
		return
	}
	rc.SetField(field, value)
}

func renderChoiceGroup(n *uitree.Node, _ []string, rc *uitree.RenderContext) (string, error) {
	field := n.StringProp("field", "")
	options := n.StringsProp("options")

	selected := ""
	if field != "" {
		if v, ok := rc.FormData()[field]; ok {
			selected = fmt.Sprintf("%v", v)
		}
	}

	var sb strings.Builder
	if label := n.StringProp("label", ""); label != "" {
		sb.WriteString(label)
	}
	for _, opt := range options {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		if opt == selected {
			sb.WriteString(chosenStyle.Render(fmt.Sprintf("(x) %s", opt)))
		} else {
			sb.WriteString(fmt.Sprintf("( ) %s", opt))
		}
	}
	return sb.String(), nil
}

// Choose records a choice-group selection in the shared form-data store.
func Choose(n *uitree.Node, rc *uitree.RenderContext, option string) {
	field := n.StringProp("field", "")
	if field == "" {
		return
	}
	rc.SetField(field, option)
}
