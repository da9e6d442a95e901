package tui

import (
	"bytes"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-suite-runner/internal/supervisor"
)

// =============================================================================
// Group State
// =============================================================================

// GroupState is a test group's position in the run.
type GroupState int

const (
	StatePending GroupState = iota
	StateRunning
	StatePassed
	StateFailed
	StateInterrupted
	StateNotRun
)

// String returns the label shown in the dashboard.
func (s GroupState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StatePassed:
		return "ok"
	case StateFailed:
		return "failed"
	case StateInterrupted:
		return "interrupted"
	case StateNotRun:
		return "not run"
	default:
		return "unknown"
	}
}

// Icon returns a one-character state marker.
func (s GroupState) Icon() string {
	switch s {
	case StateRunning:
		return "●"
	case StatePassed:
		return "✓"
	case StateFailed:
		return "✗"
	case StateInterrupted:
		return "!"
	case StateNotRun:
		return "-"
	default:
		return "·"
	}
}

func stateFor(o supervisor.Outcome) GroupState {
	switch o {
	case supervisor.OutcomeSuccess:
		return StatePassed
	case supervisor.OutcomeInterrupted:
		return StateInterrupted
	default:
		return StateFailed
	}
}

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update elapsed times.
type TickMsg time.Time

// GroupStartedMsg reports a group entering the running state.
type GroupStartedMsg struct {
	Section string
	At      time.Time
}

// GroupFinishedMsg reports a finished group.
type GroupFinishedMsg struct {
	Result supervisor.Result
}

// RunDoneMsg signals that the scheduler returned; the dashboard exits.
type RunDoneMsg struct{}

// =============================================================================
// Model
// =============================================================================

type groupRow struct {
	name     string
	state    GroupState
	started  time.Time
	duration time.Duration
	status   int
	lastLine string
}

// Config holds TUI configuration.
type Config struct {
	Program string
	Groups  []string // groups to run, in submission order
	NotRun  []string
	Workers int

	// OnInterrupt is called once when the user asks to stop the run.
	OnInterrupt func()
}

// Model represents the TUI state.
type Model struct {
	program string
	workers int
	rows    []groupRow
	index   map[string]int

	startTime time.Time
	now       time.Time

	width  int
	height int

	onInterrupt  func()
	interrupting bool
	done         bool
	quitting     bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	m := Model{
		program:     cfg.Program,
		workers:     cfg.Workers,
		index:       make(map[string]int),
		startTime:   time.Now(),
		now:         time.Now(),
		width:       80,
		height:      24,
		onInterrupt: cfg.OnInterrupt,
	}
	for _, g := range cfg.Groups {
		m.index[g] = len(m.rows)
		m.rows = append(m.rows, groupRow{name: g, state: StatePending})
	}
	for _, g := range cfg.NotRun {
		m.index[g] = len(m.rows)
		m.rows = append(m.rows, groupRow{name: g, state: StateNotRun})
	}
	return m
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			// First press interrupts the run and keeps the dashboard up
			// until the scheduler returns; a second press leaves at once.
			if m.done || m.interrupting || m.onInterrupt == nil {
				m.quitting = true
				return m, tea.Quit
			}
			m.interrupting = true
			m.onInterrupt()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()

	case GroupStartedMsg:
		if i, ok := m.index[msg.Section]; ok {
			m.rows[i].state = StateRunning
			m.rows[i].started = msg.At
		}
		return m, nil

	case GroupFinishedMsg:
		res := msg.Result
		if i, ok := m.index[res.Section]; ok {
			m.rows[i].state = stateFor(res.Outcome)
			m.rows[i].duration = res.Duration
			m.rows[i].status = res.Status
			m.rows[i].lastLine = lastLine(res.Output)
		}
		return m, nil

	case RunDoneMsg:
		m.done = true
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the run started.
func (m Model) Elapsed() time.Duration {
	return m.now.Sub(m.startTime)
}

// Count returns the number of groups in state s.
func (m Model) Count(s GroupState) int {
	n := 0
	for _, r := range m.rows {
		if r.state == s {
			n++
		}
	}
	return n
}

// State returns the state of the named group.
func (m Model) State(section string) (GroupState, bool) {
	i, ok := m.index[section]
	if !ok {
		return 0, false
	}
	return m.rows[i].state, true
}

// Progress returns the finished fraction of runnable groups (0.0 to 1.0).
func (m Model) Progress() float64 {
	total := len(m.rows) - m.Count(StateNotRun)
	if total == 0 {
		return 0
	}
	finished := m.Count(StatePassed) + m.Count(StateFailed) + m.Count(StateInterrupted)
	return float64(finished) / float64(total)
}

// Interrupting reports whether the user has asked to stop the run.
func (m Model) Interrupting() bool {
	return m.interrupting
}

func lastLine(out []byte) string {
	out = bytes.TrimRight(out, "\r\n\t ")
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		out = out[i+1:]
	}
	return string(bytes.TrimSpace(out))
}

// =============================================================================
// Scheduler Observer
// =============================================================================

// Notifier forwards scheduler events to a running program.
type Notifier struct {
	p *tea.Program
}

// NewNotifier creates a notifier for p.
func NewNotifier(p *tea.Program) *Notifier {
	return &Notifier{p: p}
}

// GroupStarted implements the scheduler observer.
func (n *Notifier) GroupStarted(section string) {
	n.p.Send(GroupStartedMsg{Section: section, At: time.Now()})
}

// GroupFinished implements the scheduler observer.
func (n *Notifier) GroupFinished(res supervisor.Result) {
	n.p.Send(GroupFinishedMsg{Result: res})
}

// Done tells the dashboard the run is over.
func (n *Notifier) Done() {
	n.p.Send(RunDoneMsg{})
}
