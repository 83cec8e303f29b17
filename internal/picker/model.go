package picker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// debounceInterval is the delay after the last keystroke before a fetch.
const debounceInterval = 100 * time.Millisecond

type pickerState int

const (
	stateIdle pickerState = iota
	stateLoading
	stateLoaded
	stateEmpty
	stateError
	stateCancelled
)

type fetchDoneMsg struct {
	requestID uint64
	items     []Item
	atEnd     bool
	err       error
}

type debounceMsg struct {
	id uint64
}

// initMsg triggers the first fetch through Update so the state change is
// kept by the runtime.
type initMsg struct{}

// Model is the Bubble Tea model of the history search picker.
type Model struct {
	state     pickerState
	tabs      []Tab
	activeTab int
	items     []Item
	selection int // -1 when empty
	input     textinput.Model
	offset    int
	atEnd     bool
	err       error

	requestID uint64
	provider  Provider

	width  int
	height int

	result string

	cancelFetch context.CancelFunc
	debounceID  uint64
}

// NewModel creates a picker over provider. The query starts as initial.
func NewModel(tabs []Tab, provider Provider, initial string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = queryStyle
	ti.Placeholder = "search history"
	ti.SetValue(initial)
	ti.Focus()

	return Model{
		state:     stateIdle,
		tabs:      tabs,
		selection: -1,
		input:     ti,
		provider:  provider,
	}
}

// Result returns the selected command, or "" if the picker was cancelled.
func (m Model) Result() string {
	return m.result
}

// Cancelled reports whether the user dismissed the picker.
func (m Model) Cancelled() bool {
	return m.state == stateCancelled
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, func() tea.Msg { return initMsg{} })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(0, msg.Width-len(m.input.Prompt)-1)
		return m, nil

	case fetchDoneMsg:
		return m.handleFetchDone(msg)

	case debounceMsg:
		if msg.id != m.debounceID {
			return m, nil
		}
		return m, m.startFetch()

	case initMsg:
		return m, m.startFetch()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.state = stateCancelled
		m.cancelInflight()
		return m, tea.Quit

	case tea.KeyEnter:
		if m.selection >= 0 && m.selection < len(m.items) {
			m.result = m.items[m.selection].Command
		}
		m.cancelInflight()
		return m, tea.Quit

	case tea.KeyUp, tea.KeyCtrlP:
		if m.state != stateLoading && m.selection > 0 {
			m.selection--
		}
		return m, nil

	case tea.KeyDown, tea.KeyCtrlN:
		if m.state == stateLoading {
			return m, nil
		}
		if m.selection < len(m.items)-1 {
			m.selection++
		} else if !m.atEnd && m.selection == len(m.items)-1 {
			m.offset += len(m.items)
			return m, m.startFetch()
		}
		return m, nil

	case tea.KeyTab:
		if len(m.tabs) > 1 {
			m.activeTab = (m.activeTab + 1) % len(m.tabs)
			m.offset = 0
			m.selection = -1
			return m, m.startFetch()
		}
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() == before {
		return m, cmd
	}
	m.offset = 0
	m.selection = -1
	return m, tea.Batch(cmd, m.startDebounce())
}

func (m Model) handleFetchDone(msg fetchDoneMsg) (tea.Model, tea.Cmd) {
	if msg.requestID != m.requestID {
		return m, nil
	}

	if msg.err != nil {
		m.state = stateError
		m.err = msg.err
		m.items = nil
		m.selection = -1
		return m, nil
	}

	m.items = msg.items
	m.atEnd = msg.atEnd

	if len(m.items) == 0 {
		m.state = stateEmpty
		m.selection = -1
	} else {
		m.state = stateLoaded
		m.clampSelection()
	}
	return m, nil
}

func (m *Model) startDebounce() tea.Cmd {
	m.debounceID++
	id := m.debounceID
	return tea.Tick(debounceInterval, func(time.Time) tea.Msg {
		return debounceMsg{id: id}
	})
}

// startFetch cancels any in-flight fetch and returns a command that asks
// the provider for the current page.
func (m *Model) startFetch() tea.Cmd {
	m.cancelInflight()
	m.requestID++
	m.state = stateLoading

	reqID := m.requestID
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFetch = cancel

	tab := m.currentTab()
	req := Request{
		RequestID: reqID,
		Query:     m.input.Value(),
		TabID:     tab.ID,
		Options:   tab.Args,
		Limit:     m.listHeight(),
		Offset:    m.offset,
	}

	p := m.provider
	return func() tea.Msg {
		resp, err := p.Fetch(ctx, req)
		if err != nil {
			return fetchDoneMsg{requestID: reqID, err: err}
		}
		return fetchDoneMsg{requestID: reqID, items: resp.Items, atEnd: resp.AtEnd}
	}
}

func (m *Model) cancelInflight() {
	if m.cancelFetch != nil {
		m.cancelFetch()
		m.cancelFetch = nil
	}
}

func (m *Model) clampSelection() {
	if len(m.items) == 0 {
		m.selection = -1
		return
	}
	m.selection = min(max(m.selection, 0), len(m.items)-1)
}

func (m Model) currentTab() Tab {
	if m.activeTab >= 0 && m.activeTab < len(m.tabs) {
		return m.tabs[m.activeTab]
	}
	return Tab{ID: TabAll, Label: "All"}
}

// listHeight is the terminal height minus the tab bar, query and status rows.
func (m Model) listHeight() int {
	const chrome = 3
	if h := m.height - chrome; h >= 1 {
		return h
	}
	return 20
}

var (
	activeTabStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62"))
	inactiveTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	selectedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	normalStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	queryStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.viewTabBar())
	b.WriteRune('\n')
	b.WriteString(m.viewContent())
	b.WriteRune('\n')
	b.WriteString(m.input.View())
	return b.String()
}

func (m Model) viewTabBar() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		label := " " + tab.Label + " "
		if i == m.activeTab {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, inactiveTabStyle.Render(label))
		}
	}
	return strings.Join(parts, " ")
}

func (m Model) viewContent() string {
	switch m.state {
	case stateIdle, stateLoading:
		return dimStyle.Render("Loading...")
	case stateEmpty:
		return dimStyle.Render("No matches")
	case stateError:
		msg := "Error"
		if m.err != nil {
			msg = fmt.Sprintf("Error: %s", m.err)
		}
		return errorStyle.Render(msg)
	case stateCancelled:
		return dimStyle.Render("Cancelled")
	case stateLoaded:
		return m.viewList()
	default:
		return ""
	}
}

func (m Model) viewList() string {
	var b strings.Builder
	rows := min(len(m.items), m.listHeight())
	for i := 0; i < rows; i++ {
		item := m.items[i]
		display := DisplayCommand(item.Command)
		if m.width > 4 {
			room := m.width - 4
			if item.Detail != "" {
				room -= len(item.Detail) + 2
			}
			display = MiddleTruncate(display, max(room, 8))
		}

		if i == m.selection {
			b.WriteString(selectedStyle.Render("> " + display))
		} else {
			b.WriteString(normalStyle.Render("  " + display))
		}
		if item.Detail != "" {
			b.WriteString("  " + dimStyle.Render(item.Detail))
		}
		if i < rows-1 {
			b.WriteRune('\n')
		}
	}
	return b.String()
}
