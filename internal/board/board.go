// Package board renders a live terminal view of the walk-in queue for the
// waiting room screen.
package board

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"github.com/medq/medq/internal/domain/queue"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	servingStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("42")).
		Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("244"))

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statusStyles = map[queue.Status]lipgloss.Style{
		queue.StatusWaiting:        lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		queue.StatusCalled:         lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		queue.StatusInConsultation: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		queue.StatusCompleted:      lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		queue.StatusNoShow:         lipgloss.NewStyle().Foreground(lipgloss.Color("160")),
	}
)

type (
	tickMsg  time.Time
	stateMsg queue.QueueState
	errMsg   struct{ err error }
)

// Model is the bubbletea model behind the board.
type Model struct {
	ctx      context.Context
	fetcher  Fetcher
	interval time.Duration

	state     *queue.QueueState
	err       error
	fetchedAt time.Time
	width     int
	height    int
}

func NewModel(ctx context.Context, fetcher Fetcher, interval time.Duration) Model {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return Model{ctx: ctx, fetcher: fetcher, interval: interval}
}

func (m Model) Init() tea.Cmd {
	return m.fetch()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, m.fetch()

	case stateMsg:
		s := queue.QueueState(msg)
		m.state = &s
		m.err = nil
		m.fetchedAt = time.Now()
		return m, m.tick()

	case errMsg:
		m.err = msg.err
		return m, m.tick()
	}

	return m, nil
}

func (m Model) View() tea.View {
	return tea.NewView(m.render())
}

// fetch loads the queue once. The next tick is scheduled only after the
// result arrives so requests never overlap.
func (m Model) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, m.interval)
		defer cancel()
		state, err := m.fetcher.Fetch(ctx)
		if err != nil {
			return errMsg{err}
		}
		return stateMsg(state)
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) render() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("MedQ - Walk-in Queue"))
	b.WriteString("\n")

	switch {
	case m.state == nil && m.err == nil:
		b.WriteString("Loading queue...\n")
	case m.state != nil:
		b.WriteString(renderServing(m.state.CurrentlyServing))
		b.WriteString("\n\n")
		b.WriteString(renderPatients(m.state.Patients))
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Update failed: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	footer := "Press 'r' to refresh, 'q' to quit"
	if !m.fetchedAt.IsZero() {
		footer = fmt.Sprintf("Updated %s  |  %s", m.fetchedAt.Format("15:04:05"), footer)
	}
	b.WriteString(helpStyle.Render(footer))
	return b.String()
}

func renderServing(p *queue.QueuedPatient) string {
	if p == nil {
		return servingStyle.Render("Now serving: nobody")
	}
	line := "Now serving: " + p.Name
	if p.DoctorID != nil && *p.DoctorID != "" {
		line += " (doctor " + *p.DoctorID + ")"
	}
	return servingStyle.Render(line)
}

func renderPatients(patients []*queue.QueuedPatient) string {
	if len(patients) == 0 {
		return "The queue is empty.\n"
	}

	rows := []string{headerStyle.Render(fmt.Sprintf("%-4s %-24s %-16s %s", "#", "NAME", "STATUS", "EST. WAIT"))}
	for _, p := range patients {
		status := statusStyles[p.Status].Render(fmt.Sprintf("%-16s", p.Status))
		wait := "-"
		if p.Status == queue.StatusWaiting {
			wait = fmt.Sprintf("%d min", p.EstimatedWaitTime)
		}
		rows = append(rows, fmt.Sprintf("%-4d %-24s %s %s", p.Position, truncate(p.Name, 24), status, wait))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...) + "\n"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Run starts the board in the alternate screen and blocks until the user
// quits or ctx is cancelled.
func Run(ctx context.Context, fetcher Fetcher, interval time.Duration) error {
	p := tea.NewProgram(NewModel(ctx, fetcher, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
