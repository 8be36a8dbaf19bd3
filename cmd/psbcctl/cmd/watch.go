package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// watchPollInterval matches the spec's supervisor.steadyPollMs default
// order of magnitude; the dashboard doesn't need to poll faster than the
// Supervisor itself updates.
const watchPollInterval = 2 * time.Second

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of every supervised subprocess's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := tea.NewProgram(newWatchModel())
			_, err := p.Run()
			return err
		},
	}
}

type tickMsg time.Time

type statusesMsg struct {
	statuses []supervisorStatus
	err      error
}

// watchModel is a tea.Model rendering the get_supervisor_status surface
// the Bridge exposes per spec §4.7's icon/colour/tooltip status concept,
// generalized from a desktop status-bar widget to a terminal dashboard.
// Grounded on the Update/View/key-handling shape of the bubbletea model
// in other_examples' tui.go.go (this repo's own teacher never exercises
// bubbletea despite carrying it in go.mod).
type watchModel struct {
	statuses []supervisorStatus
	err      error
	quitting bool
}

func newWatchModel() watchModel {
	return watchModel{}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(pollStatuses, tick())
}

func tick() tea.Cmd {
	return tea.Tick(watchPollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func pollStatuses() tea.Msg {
	var statuses []supervisorStatus
	err := client().Call(context.Background(), "get_supervisor_status", nil, &statuses)
	return statusesMsg{statuses: statuses, err: err}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(pollStatuses, tick())
	case statusesMsg:
		m.statuses = msg.statuses
		m.err = msg.err
	}
	return m, nil
}

var (
	stateStyles = map[string]lipgloss.Style{
		"Healthy":    lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF99")),
		"Starting":   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")),
		"Error":      lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")),
		"NotStarted": lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
	}
	headerStyle = lipgloss.NewStyle().Bold(true)
)

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return fmt.Sprintf("psbcctl watch: %s\n", m.err)
	}

	out := headerStyle.Render("psbcctl watch — supervised subprocesses") + "\n\n"
	for _, s := range m.statuses {
		style, ok := stateStyles[s.State]
		if !ok {
			style = lipgloss.NewStyle()
		}
		out += fmt.Sprintf("%-12s %s  %s\n", s.Name, style.Render(s.State), s.Tooltip)
	}
	out += "\n" + lipgloss.NewStyle().Faint(true).Render("q / ctrl+c to quit")
	return out
}
