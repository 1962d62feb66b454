// Command ringctl is a terminal debug surface for a running deskbroker:
// it lists the current app's eight ring slots and usage counters and
// lets an operator trigger a manual dispatch, the same way the broker's
// own websocket control plane drives a UI shell.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "ringctl",
		Short: "Inspect and manually dispatch a running deskbroker's ring",
		RunE: func(cmd *cobra.Command, args []string) error {
			program := tea.NewProgram(newRingModel(addr), tea.WithAltScreen())
			_, err := program.Run()
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8743", "deskbroker control-plane address")
	return cmd
}

type slotView struct {
	Position   int    `json:"position"`
	Enabled    bool   `json:"enabled"`
	ActionName string `json:"action_name,omitempty"`
	UsageCount int    `json:"usage_count"`
}

type ringResponse struct {
	AppName string     `json:"app_name"`
	Slots   []slotView `json:"slots"`
}

type ringFetchedMsg struct {
	ring ringResponse
	err  error
}

type dispatchedMsg struct {
	position int
	err      error
}

type tickMsg time.Time

const pollInterval = time.Second

var (
	styleHeader   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	styleSelected = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	styleDisabled = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleStatus   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Padding(1, 0, 0, 0)
	styleError    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Dispatch key.Binding
	Refresh  key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Dispatch, k.Refresh, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "select up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "select down")),
	Dispatch: key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "dispatch")),
	Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type ringModel struct {
	addr     string
	client   *http.Client
	ring     ringResponse
	selected int
	status   string
	err      error
	help     help.Model
}

func newRingModel(addr string) *ringModel {
	return &ringModel{
		addr:   addr,
		client: &http.Client{Timeout: 3 * time.Second},
		help:   help.New(),
	}
}

func (m *ringModel) Init() tea.Cmd {
	return tea.Batch(m.fetchRing(), tickEvery())
}

func tickEvery() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *ringModel) fetchRing() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Get(m.addr + "/api/ring")
		if err != nil {
			return ringFetchedMsg{err: err}
		}
		defer resp.Body.Close()

		var decoded ringResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return ringFetchedMsg{err: err}
		}
		return ringFetchedMsg{ring: decoded}
	}
}

func (m *ringModel) dispatch(position int) tea.Cmd {
	return func() tea.Msg {
		body, _ := json.Marshal(map[string]int{"position": position})
		resp, err := m.client.Post(m.addr+"/api/ring/click", "application/json", bytes.NewReader(body))
		if err != nil {
			return dispatchedMsg{position: position, err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return dispatchedMsg{position: position, err: fmt.Errorf("click rejected: %s", resp.Status)}
		}
		return dispatchedMsg{position: position}
	}
}

func (m *ringModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.selected = (m.selected + 7) % 8
		case key.Matches(msg, keys.Down):
			m.selected = (m.selected + 1) % 8
		case key.Matches(msg, keys.Dispatch):
			m.status = fmt.Sprintf("dispatching position %d...", m.selected)
			return m, m.dispatch(m.selected)
		case key.Matches(msg, keys.Refresh):
			return m, m.fetchRing()
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchRing(), tickEvery())

	case ringFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.ring = msg.ring
		return m, nil

	case dispatchedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("position %d failed: %v", msg.position, msg.err)
			return m, nil
		}
		m.status = fmt.Sprintf("position %d dispatched", msg.position)
		return m, m.fetchRing()
	}

	return m, nil
}

func (m *ringModel) View() string {
	if m.err != nil {
		return styleError.Render(fmt.Sprintf("cannot reach %s: %v", m.addr, m.err)) + "\n\nq to quit\n"
	}

	header := styleHeader.Render(fmt.Sprintf("deskbroker ring — %s", displayAppName(m.ring.AppName)))
	lines := []string{header, ""}

	for i := 0; i < 8; i++ {
		var slot slotView
		for _, s := range m.ring.Slots {
			if s.Position == i {
				slot = s
			}
		}

		row := fmt.Sprintf("[%d] %-24s used %dx", i, displaySlotName(slot), slot.UsageCount)
		switch {
		case i == m.selected:
			row = styleSelected.Render("> " + row)
		case !slot.Enabled:
			row = styleDisabled.Render("  " + row)
		default:
			row = "  " + row
		}
		lines = append(lines, row)
	}

	lines = append(lines, styleStatus.Render(m.help.View(keys)))
	if m.status != "" {
		lines = append(lines, styleStatus.Render(m.status))
	}

	result := ""
	for i, line := range lines {
		if i > 0 {
			result += "\n"
		}
		result += line
	}
	return result
}

func displayAppName(name string) string {
	if name == "" {
		return "(no foreground app)"
	}
	return name
}

func displaySlotName(slot slotView) string {
	if slot.ActionName == "" {
		return "(empty)"
	}
	return slot.ActionName
}
