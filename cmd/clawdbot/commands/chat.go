package commands

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/clawdbot/clawdbot/internal/agent"
	"github.com/clawdbot/clawdbot/internal/gateway"
	"github.com/clawdbot/clawdbot/internal/sessions"
)

var (
	chatUserStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chatAgentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	chatErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// newChatCmd creates the `clawdbot chat` command: a minimal bubbletea REPL
// against the main session, for local use outside any chat provider.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session with the agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			runner, _, err := gateway.NewStandaloneRunner(cfg)
			if err != nil {
				return err
			}

			m := chatModel{runner: runner, sessionKey: sessions.MainKey(gateway.DefaultAgentID)}
			p := tea.NewProgram(m)
			_, err = p.Run()
			return err
		},
	}
}

type chatLine struct {
	style lipgloss.Style
	text  string
}

type chatModel struct {
	runner     *agent.Runner
	sessionKey string
	input      string
	lines      []chatLine
	waiting    bool
}

type chatReplyMsg struct {
	text string
	err  error
}

func (m chatModel) Init() tea.Cmd { return nil }

func (m chatModel) runTurn(text string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.runner.Run(context.Background(), agent.RunRequest{SessionKey: m.sessionKey, Message: text})
		if err != nil {
			return chatReplyMsg{err: err}
		}
		return chatReplyMsg{text: result.Response}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.waiting || m.input == "" {
				return m, nil
			}
			text := m.input
			m.lines = append(m.lines, chatLine{chatUserStyle, "you: " + text})
			m.input = ""
			m.waiting = true
			return m, m.runTurn(text)
		case tea.KeyBackspace:
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
			return m, nil
		default:
			m.input += msg.String()
			return m, nil
		}
	case chatReplyMsg:
		m.waiting = false
		if msg.err != nil {
			m.lines = append(m.lines, chatLine{chatErrStyle, "error: " + msg.err.Error()})
		} else {
			m.lines = append(m.lines, chatLine{chatAgentStyle, "clawdbot: " + msg.text})
		}
		return m, nil
	}
	return m, nil
}

func (m chatModel) View() string {
	out := ""
	for _, l := range m.lines {
		out += l.style.Render(l.text) + "\n"
	}
	if m.waiting {
		out += "...\n"
	}
	out += "> " + m.input
	return out
}
