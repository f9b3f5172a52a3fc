package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/mento/pkg/controller"
	"github.com/go-go-golems/mento/pkg/events"
	"github.com/go-go-golems/mento/pkg/session"
	"github.com/go-go-golems/mento/pkg/transport"
)

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	statusStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type turnMsg struct {
	turn *session.Turn
}

type surfaceErrorMsg struct {
	message string
}

type statusMsg struct {
	state session.ConnState
}

type chatModel struct {
	ctrl       *controller.Controller
	input      textinput.Model
	spin       spinner.Model
	transcript []string
	status     session.ConnState
	errLine    string
}

func newChatModel(ctrl *controller.Controller) chatModel {
	input := textinput.New()
	input.Placeholder = "say something"
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return chatModel{
		ctrl:   ctrl,
		input:  input,
		spin:   spin,
		status: session.ConnStateDisconnected,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick)
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			content := strings.TrimSpace(m.input.Value())
			if content == "" {
				return m, nil
			}
			m.input.Reset()
			m.errLine = ""
			if err := m.ctrl.SendMessage(context.Background(), content, false); err != nil {
				m.errLine = err.Error()
				return m, nil
			}
			m.transcript = append(m.transcript, userStyle.Render("you: ")+content)
			return m, nil
		}

	case turnMsg:
		line := assistantStyle.Render("mento: ") + msg.turn.Content
		if view, _ := m.ctrl.RenderTurn(msg.turn); view != "" {
			line += "\n" + view
		}
		m.transcript = append(m.transcript, line)
		return m, nil

	case surfaceErrorMsg:
		m.errLine = msg.message
		return m, nil

	case statusMsg:
		m.status = msg.state
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) View() string {
	var sb strings.Builder
	for _, line := range m.transcript {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if m.ctrl.IsTyping() {
		sb.WriteString(m.spin.View())
		sb.WriteString(statusStyle.Render(" thinking..."))
		sb.WriteString("\n")
	}
	if m.errLine != "" {
		sb.WriteString(errorStyle.Render(m.errLine))
		sb.WriteString("\n")
	}
	sb.WriteString(statusStyle.Render(fmt.Sprintf("[%s]", m.status)))
	sb.WriteString("\n")
	sb.WriteString(m.input.View())
	return sb.String()
}

func runUI(ctx context.Context, client *transport.Client, ctrl *controller.Controller) error {
	p := tea.NewProgram(newChatModel(ctrl), tea.WithAltScreen())

	ctrl.OnTurn = func(t *session.Turn) {
		p.Send(turnMsg{turn: t})
	}
	ctrl.OnSurfaceError = func(message string) {
		p.Send(surfaceErrorMsg{message: message})
	}
	unsubStatus := client.OnStatus(func(f *events.StatusFrame) {
		p.Send(statusMsg{state: f.State})
	})
	defer unsubStatus()

	ctrl.Start()
	defer ctrl.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// a failed first dial is not fatal, reconnection is already scheduled
		if err := client.Connect(ctx); err != nil {
			log.Warn().Err(err).Msg("initial connect failed")
		}
		if _, err := ctrl.Synchronizer().FetchState(ctx); err != nil {
			log.Warn().Err(err).Msg("initial state fetch failed")
		}
		return nil
	})
	g.Go(func() error {
		_, err := p.Run()
		client.Disconnect()
		return err
	})
	return g.Wait()
}
