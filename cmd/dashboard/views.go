package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/rxtech-lab/argo-batch/internal/scheduler"
	"github.com/rxtech-lab/argo-batch/internal/types"
)

// View names shown in the view list.
const (
	ViewTasks     = "Tasks"
	ViewPositions = "Positions"
)

// listItem implements list.Item for the view list.
type listItem struct {
	name        string
	description string
}

func (i listItem) Title() string       { return i.name }
func (i listItem) Description() string { return i.description }
func (i listItem) FilterValue() string { return i.name }

// NewViewList creates the list used to pick a view.
func NewViewList() list.Model {
	items := []list.Item{
		listItem{name: ViewTasks, description: "Daily stages with next run and last outcome"},
		listItem{name: ViewPositions, description: "Held positions with live pnl and excursions"},
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true

	l := list.New(items, delegate, 0, 0)
	l.Title = "Select View"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return l
}

// NewAddressInput creates the text input for the engine's HTTP address.
func NewAddressInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "localhost:9090"
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 50
	ti.Prompt = "> "

	return ti
}

// ParseAddress turns host:port or a URL into the /status endpoint.
func ParseAddress(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("address is empty")
	}

	if !strings.Contains(s, "://") {
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", input, err)
	}

	if u.Host == "" {
		return "", fmt.Errorf("invalid address %q: missing host", input)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/status"

	return u.String(), nil
}

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)

	t.SetStyles(s)

	return t
}

// NewTasksTable creates the table of scheduled stages.
func NewTasksTable() table.Model {
	return newTable([]table.Column{
		{Title: "Task", Width: 18},
		{Title: "Trigger", Width: 8},
		{Title: "Next Run", Width: 17},
		{Title: "Last Run", Width: 17},
		{Title: "Outcome", Width: 10},
		{Title: "Tries", Width: 6},
		{Title: "Error", Width: 30},
	})
}

// NewPositionsTable creates the table of held positions.
func NewPositionsTable() table.Model {
	return newTable([]table.Column{
		{Title: "Symbol", Width: 10},
		{Title: "Side", Width: 6},
		{Title: "Strategy", Width: 18},
		{Title: "Qty", Width: 8},
		{Title: "Entry", Width: 10},
		{Title: "Last", Width: 10},
		{Title: "Stop", Width: 10},
		{Title: "Target", Width: 10},
		{Title: "PnL", Width: 14},
		{Title: "MFE", Width: 10},
		{Title: "MAE", Width: 10},
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Format("01-02 15:04:05")
}

// UpdateTaskRows fills the tasks table.
func UpdateTaskRows(t table.Model, tasks []scheduler.TaskStatus) table.Model {
	rows := make([]table.Row, 0, len(tasks))

	for _, task := range tasks {
		outcome := task.LastOutcome
		if outcome == "" {
			outcome = "-"
		}

		rows = append(rows, table.Row{
			task.Name,
			task.Trigger,
			formatTime(task.NextRun),
			formatTime(task.LastRun),
			outcome,
			fmt.Sprintf("%d", task.Attempts),
			task.LastError,
		})
	}

	t.SetRows(rows)

	return t
}

// UpdatePositionRows fills the positions table. prevPnL holds each symbol's
// pnl from the previous poll.
func UpdatePositionRows(t table.Model, positions []types.PositionSnapshot, prevPnL map[string]float64) table.Model {
	rows := make([]table.Row, 0, len(positions))

	for _, p := range positions {
		prev, seen := prevPnL[p.Symbol]

		rows = append(rows, table.Row{
			p.Symbol,
			string(p.Direction),
			p.Strategy,
			fmt.Sprintf("%.2f", p.Quantity),
			fmt.Sprintf("%.2f", p.EntryPrice),
			fmt.Sprintf("%.2f", p.LastPrice),
			fmt.Sprintf("%.2f", p.StopPrice),
			fmt.Sprintf("%.2f", p.TargetPrice),
			FormatPnL(p.UnrealizedPnL, prev, seen),
			fmt.Sprintf("%.2f", p.MFE),
			fmt.Sprintf("%.2f", p.MAE),
		})
	}

	t.SetRows(rows)

	return t
}
