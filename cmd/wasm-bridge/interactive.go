package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	gasStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newInteractiveCmd(a *app) *cobra.Command {
	var stubs []string

	cmd := &cobra.Command{
		Use:   "interactive <file.wasm>",
		Short: "Pick exports and invoke them from a terminal UI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("interactive mode needs a terminal; use run instead")
			}
			parsed, err := parseStubs(stubs)
			if err != nil {
				return err
			}
			return a.runInteractive(args[0], parsed)
		},
	}
	cmd.Flags().StringArrayVar(&stubs, "stub", nil, "host import answer: module.name=value or module.name=!status")
	return cmd
}

type modelState int

const (
	stateSelectExport modelState = iota
	stateInputLimit
	stateShowResult
)

type interactiveModel struct {
	app      *app
	session  *session
	stubs    map[string]stub
	err      error
	filename string
	exports  []wasm.Export
	limit    textinput.Model
	result   runtime.Result
	selected int
	state    modelState
}

func newInteractiveModel(a *app, filename string, stubs map[string]stub) *interactiveModel {
	return &interactiveModel{
		app:      a,
		filename: filename,
		stubs:    stubs,
		state:    stateSelectExport,
	}
}

type loadedMsg struct {
	err     error
	session *session
}

type invokedMsg struct {
	result runtime.Result
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	s, err := m.app.openSession(context.Background(), m.filename, m.stubs)
	return loadedMsg{err: err, session: s}
}

func (m *interactiveModel) shutdown() {
	if m.session != nil {
		m.session.close(context.Background())
		m.session = nil
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputLimit && msg.String() == "q" {
				break
			}
			m.shutdown()
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectExport && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectExport && m.selected < len(m.exports)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectExport:
				if len(m.exports) == 0 {
					return m, nil
				}
				return m, m.invoke(nil)

			case stateInputLimit:
				v := strings.TrimSpace(m.limit.Value())
				if v == "" {
					return m, m.invoke(nil)
				}
				n, err := strconv.ParseUint(v, 10, 64)
				if err != nil {
					m.limit.SetValue("")
					m.limit.Placeholder = "not a number"
					return m, nil
				}
				return m, m.invoke(&n)

			case stateShowResult:
				m.state = stateSelectExport
			}

		case "l":
			if m.state == stateSelectExport && len(m.exports) > 0 {
				m.limit = textinput.New()
				m.limit.Placeholder = "empty draws from the budget"
				m.limit.Prompt = "gas limit: "
				m.limit.Width = 30
				m.limit.Focus()
				m.state = stateInputLimit
				return m, textinput.Blink
			}

		case "r":
			if m.state == stateSelectExport && m.session != nil {
				m.session.rt.SetAvailableGas(m.app.cfg.DefaultGasLimit)
			}

		case "esc":
			if m.state != stateSelectExport {
				m.state = stateSelectExport
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.exports = msg.session.exports()

	case invokedMsg:
		m.result = msg.result
		m.state = stateShowResult
	}

	if m.state == stateInputLimit {
		var cmd tea.Cmd
		m.limit, cmd = m.limit.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) invoke(limit *uint64) tea.Cmd {
	export := m.exports[m.selected].Name
	rt := m.session.rt
	return func() tea.Msg {
		return invokedMsg{result: rt.Invoke(context.Background(), export, limit)}
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.session == nil {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Bridge"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString(" ")
	b.WriteString(gasStyle.Render(fmt.Sprintf("[%s, gas %d, %s]",
		m.app.cfg.Engine, m.session.rt.AvailableGas(), m.session.rt.State())))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectExport:
		if len(m.exports) == 0 {
			b.WriteString(errorStyle.Render("No invocable exports (want () -> i64)."))
			b.WriteString("\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select an export to invoke:\n\n")
		for i, e := range m.exports {
			line := "  " + e.Name
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + e.Name))
			} else {
				b.WriteString(funcStyle.Render(line))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter invoke • l invoke with limit • r refill gas • q quit"))

	case stateInputLimit:
		b.WriteString(fmt.Sprintf("Invoking %s\n\n", funcStyle.Render(m.exports[m.selected].Name)))
		b.WriteString(m.limit.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter invoke • esc back"))

	case stateShowResult:
		res := m.result
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(m.exports[m.selected].Name)))
		switch res.Err {
		case hostfn.None:
			b.WriteString(resultStyle.Render(fmt.Sprintf("value %d", res.Value)))
		case hostfn.Return:
			b.WriteString(resultStyle.Render("returned early"))
		default:
			b.WriteString(errorStyle.Render(res.Err.String()))
			if res.Cause != nil {
				b.WriteString("\n")
				b.WriteString(errorStyle.Render(res.Cause.Error()))
			}
		}
		b.WriteString("\n")
		b.WriteString(gasStyle.Render(fmt.Sprintf("gas consumed %d", res.GasConsumed)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (a *app) runInteractive(filename string, stubs map[string]stub) error {
	m := newInteractiveModel(a, filename, stubs)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	m.shutdown()
	return err
}
