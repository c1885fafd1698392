package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rxtech-lab/argo-batch/internal/server"
)

// Application states.
const (
	StateAddressInput = iota
	StateViewSelect
	StateTasks
	StatePositions
)

// Model is the Bubble Tea model for the engine dashboard.
type Model struct {
	state          int
	addressInput   textinput.Model
	viewList       list.Model
	tasksTable     table.Model
	positionsTable table.Model
	status         *server.Status
	prevPnL        map[string]float64
	endpoint       string
	interval       time.Duration
	client         *http.Client
	err            error
	width          int
	height         int
}

// NewModel creates a dashboard. A non-empty address skips the address prompt.
func NewModel(address string, interval time.Duration) Model {
	m := Model{
		state:          StateAddressInput,
		addressInput:   NewAddressInput(),
		viewList:       NewViewList(),
		tasksTable:     NewTasksTable(),
		positionsTable: NewPositionsTable(),
		prevPnL:        make(map[string]float64),
		interval:       interval,
		client:         &http.Client{Timeout: 5 * time.Second},
	}

	if address != "" {
		if endpoint, err := ParseAddress(address); err == nil {
			m.endpoint = endpoint
			m.state = StateViewSelect
		} else {
			m.err = err
		}
	}

	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.endpoint != "" {
		return m.fetchStatus()
	}

	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.state != StateAddressInput {
				return m, tea.Quit
			}
		case "esc":
			return m.handleEsc()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewList.SetSize(msg.Width, msg.Height-4)
		m.tasksTable.SetWidth(msg.Width)
		m.tasksTable.SetHeight(msg.Height - 8)
		m.positionsTable.SetWidth(msg.Width)
		m.positionsTable.SetHeight(msg.Height - 8)

		return m, nil

	case StatusMsg:
		m.err = nil
		m.applyStatus(msg.Status)

		return m, m.scheduleTick()

	case FetchErrorMsg:
		m.err = msg.Err

		return m, m.scheduleTick()

	case TickMsg:
		if m.endpoint == "" {
			return m, nil
		}

		return m, m.fetchStatus()
	}

	switch m.state {
	case StateAddressInput:
		return m.updateAddressInput(msg)
	case StateViewSelect:
		return m.updateViewSelect(msg)
	case StateTasks:
		var cmd tea.Cmd
		m.tasksTable, cmd = m.tasksTable.Update(msg)

		return m, cmd
	case StatePositions:
		var cmd tea.Cmd
		m.positionsTable, cmd = m.positionsTable.Update(msg)

		return m, cmd
	}

	return m, nil
}

func (m *Model) applyStatus(status server.Status) {
	var previous map[string]float64
	if m.status != nil {
		previous = make(map[string]float64, len(m.status.Positions))
		for _, p := range m.status.Positions {
			previous[p.Symbol] = p.UnrealizedPnL
		}
	}

	if previous != nil {
		m.prevPnL = previous
	}

	m.status = &status
	m.tasksTable = UpdateTaskRows(m.tasksTable, status.Tasks)
	m.positionsTable = UpdatePositionRows(m.positionsTable, status.Positions, m.prevPnL)
}

func (m Model) handleEsc() (tea.Model, tea.Cmd) {
	switch m.state {
	case StateViewSelect:
		m.endpoint = ""
		m.status = nil
		m.prevPnL = make(map[string]float64)
		m.err = nil
		m.addressInput.Reset()
		m.addressInput.Focus()
		m.state = StateAddressInput

		return m, textinput.Blink
	case StateTasks, StatePositions:
		m.state = StateViewSelect
	}

	return m, nil
}

func (m Model) updateAddressInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		endpoint, err := ParseAddress(m.addressInput.Value())
		if err != nil {
			m.err = err

			return m, nil
		}

		m.err = nil
		m.endpoint = endpoint
		m.state = StateViewSelect
		m.addressInput.Blur()

		return m, m.fetchStatus()
	}

	var cmd tea.Cmd
	m.addressInput, cmd = m.addressInput.Update(msg)

	return m, cmd
}

func (m Model) updateViewSelect(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		if item, ok := m.viewList.SelectedItem().(listItem); ok {
			switch item.name {
			case ViewTasks:
				m.state = StateTasks
			case ViewPositions:
				m.state = StatePositions
			}

			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewList, cmd = m.viewList.Update(msg)

	return m, cmd
}

func (m Model) scheduleTick() tea.Cmd {
	if m.interval <= 0 {
		return nil
	}

	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchStatus returns a command that reads the status endpoint once.
func (m Model) fetchStatus() tea.Cmd {
	endpoint := m.endpoint
	client := m.client

	return func() tea.Msg {
		status, err := getStatus(context.Background(), client, endpoint)
		if err != nil {
			return FetchErrorMsg{Err: err}
		}

		return StatusMsg{Status: status}
	}
}

func getStatus(ctx context.Context, client *http.Client, endpoint string) (server.Status, error) {
	var status server.Status

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return status, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return status, fmt.Errorf("failed to reach engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("status endpoint returned %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("failed to decode status: %w", err)
	}

	return status, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var s strings.Builder

	switch m.state {
	case StateAddressInput:
		s.WriteString(TitleStyle.Render("Argo Batch - Dashboard"))
		s.WriteString("\n\n")
		s.WriteString("Enter the engine's HTTP address:\n\n")
		s.WriteString(m.addressInput.View())
		s.WriteString("\n\n")

		if m.err != nil {
			s.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			s.WriteString("\n\n")
		}

		s.WriteString(HelpStyle.Render("Press Enter to connect, ctrl+c to quit"))

	case StateViewSelect:
		s.WriteString(m.header())
		s.WriteString(m.viewList.View())
		s.WriteString("\n")
		s.WriteString(HelpStyle.Render("Press Enter to select, Esc to change address, q to quit"))

	case StateTasks:
		s.WriteString(m.header())
		s.WriteString(m.tasksTable.View())
		s.WriteString("\n")
		s.WriteString(HelpStyle.Render("q: quit | Esc: back"))

	case StatePositions:
		s.WriteString(m.header())

		if m.status != nil && len(m.status.Positions) == 0 {
			s.WriteString("No open positions\n")
		} else {
			s.WriteString(m.positionsTable.View())
		}

		s.WriteString("\n")
		s.WriteString(HelpStyle.Render("q: quit | Esc: back"))
	}

	return s.String()
}

func (m Model) header() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("Argo Batch - " + m.endpoint))
	s.WriteString("\n")

	switch {
	case m.status == nil:
		s.WriteString("Waiting for status...\n")
	default:
		monitor := "stopped"
		if m.status.MonitorRunning {
			monitor = "running"
		}

		s.WriteString(fmt.Sprintf("Monitor %s | %d positions | %s\n", monitor, len(m.status.Positions), m.status.Time.Format(time.DateTime)))

		if b := m.status.Batch; b != nil {
			line := fmt.Sprintf("Batch %s (%s regime, %d candidates)", b.TradeDate, b.Regime, b.Candidates)
			if b.Stale {
				s.WriteString(StaleStyle.Render(line + " stale from " + b.StaleSource))
			} else {
				s.WriteString(line)
			}

			s.WriteString("\n")
		}
	}

	if m.err != nil {
		s.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n")
	}

	s.WriteString("\n")

	return s.String()
}
