package metrics

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	dashboardTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205")).
				MarginBottom(1)

	dashboardHelpStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241")).
				MarginTop(1)

	tableBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240"))
)

type refreshMsg struct{}

// dashboardModel is the bubbletea model for the live metrics view.
type dashboardModel struct {
	dir     string
	table   table.Model
	err     error
	updated time.Time
}

// NewDashboard creates the interactive metrics dashboard program.
func NewDashboard(metricsDir string) *tea.Program {
	columns := []table.Column{
		{Title: "Model", Width: 24},
		{Title: "Processed", Width: 10},
		{Title: "Errors", Width: 8},
		{Title: "Total (s)", Width: 10},
		{Title: "Avg/doc (s)", Width: 12},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderBottom(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	m := dashboardModel{dir: metricsDir, table: t}
	return tea.NewProgram(m)
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.refresh, tickRefresh())
}

func tickRefresh() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (m dashboardModel) refresh() tea.Msg {
	return refreshMsg{}
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refresh
		}
	case refreshMsg:
		m.loadStats()
		return m, tickRefresh()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *dashboardModel) loadStats() {
	summary, err := LoadSummary(m.dir)
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.updated = time.Now()

	names := make([]string, 0, len(summary.Models))
	for name := range summary.Models {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		stats := summary.Models[name]
		rows = append(rows, table.Row{
			name,
			fmt.Sprintf("%d", stats.Processed),
			fmt.Sprintf("%d", stats.Errors),
			fmt.Sprintf("%.1f", stats.TotalTime),
			fmt.Sprintf("%.1f", stats.AverageTimePerDoc),
		})
	}
	m.table.SetRows(rows)
}

func (m dashboardModel) View() string {
	s := dashboardTitleStyle.Render("Model Run Metrics") + "\n"

	if m.err != nil {
		s += fmt.Sprintf("error loading metrics: %v\n", m.err)
	} else if len(m.table.Rows()) == 0 {
		s += "No metrics recorded yet.\n"
	} else {
		s += tableBorderStyle.Render(m.table.View()) + "\n"
	}

	updated := "never"
	if !m.updated.IsZero() {
		updated = m.updated.Format("15:04:05")
	}
	s += dashboardHelpStyle.Render(fmt.Sprintf("updated %s · r refresh · q quit", updated))
	return s
}
