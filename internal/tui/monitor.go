// Package tui provides the live monitor: a compact terminal view of every
// task the orchestrator is running, fed by the event bus.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/taskdeck/agentexec/internal/events"
	"github.com/taskdeck/agentexec/pkg/models"
)

const barWidth = 20

// taskState is the monitor's view of one task, folded from its events.
type taskState struct {
	taskID    string
	runID     string
	phase     models.ExecutionPhase
	progress  int
	lastLine  string
	exited    bool
	exitCode  int
	failure   models.FailureKind
	swappedTo string
}

// Model is the bubbletea model for the monitor. Create with New, run under
// a tea.Program.
type Model struct {
	sub     <-chan events.Event
	spinner spinner.Model

	order  []string
	tasks  map[string]*taskState
	width  int
	height int

	quitting bool
}

// New creates a monitor model reading from the given event subscription.
func New(sub <-chan events.Event) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		sub:     sub,
		spinner: sp,
		tasks:   make(map[string]*taskState),
	}
}

// waitForEvent returns a command that waits for the next bus event.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil
		}
		return event
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.sub), m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case events.Event:
		m.apply(msg)
		return m, waitForEvent(m.sub)
	}

	return m, nil
}

// apply folds one bus event into the per-task state.
func (m *Model) apply(ev events.Event) {
	st := m.state(ev.TaskID())

	switch e := ev.(type) {
	case events.LogEvent:
		if line := strings.TrimSpace(e.Line); line != "" {
			st.lastLine = line
		}

	case events.ProgressEvent:
		// A fresh generation resets the row.
		if e.RunID != "" && e.RunID != st.runID {
			*st = taskState{taskID: st.taskID, runID: e.RunID}
		}
		st.phase = e.Progress.Phase
		st.progress = e.Progress.OverallProgress
		if e.Progress.Message != "" {
			st.lastLine = e.Progress.Message
		}

	case events.ExitEvent:
		if e.RunID != st.runID {
			return
		}
		st.exited = true
		st.exitCode = e.ExitCode
		st.phase = e.Outcome.FinalPhase
		if e.ExitCode == 0 {
			st.progress = 100
		}
		if cls := e.Outcome.Classification; cls != nil {
			st.failure = cls.Kind
		}

	case events.ErrorEvent:
		st.lastLine = e.Message

	case events.RateLimitEvent:
		st.lastLine = "rate limited: " + e.Info.Message

	case events.AuthFailureEvent:
		st.lastLine = "auth failure: " + e.Info.Message

	case events.SwapRestartEvent:
		st.swappedTo = e.NewProfileID
		st.lastLine = "restarting under profile " + e.NewProfileID
	}
}

// state returns the task's row, creating it in arrival order.
func (m *Model) state(taskID string) *taskState {
	if st, ok := m.tasks[taskID]; ok {
		return st
	}
	st := &taskState{taskID: taskID}
	m.tasks[taskID] = st
	m.order = append(m.order, taskID)
	return st
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(styleTitle.Render("agentexec monitor"))
	b.WriteString(styleHelp.Render(fmt.Sprintf("  %d running, %d finished", m.countRunning(), m.countFinished())))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(styleLastLine.Render("  waiting for tasks..."))
		b.WriteString("\n")
	}
	for _, id := range m.order {
		b.WriteString(m.renderRow(m.tasks[id]))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(styleHelp.Render("  q quit"))
	b.WriteString("\n")
	return b.String()
}

// renderRow renders one task line: marker, id, phase, bar, last output.
func (m Model) renderRow(st *taskState) string {
	marker := m.spinner.View()
	phaseStyle := stylePhaseRunning
	detail := st.lastLine

	switch {
	case st.exited && st.exitCode == 0:
		marker = stylePhaseComplete.Render("✓")
		phaseStyle = stylePhaseComplete
		detail = "exit 0"
	case st.exited:
		marker = stylePhaseFailed.Render("✗")
		phaseStyle = stylePhaseFailed
		detail = fmt.Sprintf("exit %d", st.exitCode)
		if st.failure != "" {
			detail += " (" + string(st.failure) + ")"
		}
	case st.phase == models.PhaseFailed:
		marker = stylePhaseFailed.Render("✗")
		phaseStyle = stylePhaseFailed
	}
	if st.swappedTo != "" && !st.exited {
		detail = "swapped to " + st.swappedTo
	}

	phase := string(st.phase)
	if phase == "" {
		phase = "pending"
	}

	row := fmt.Sprintf("  %s %s  %s %s %3d%%  %s",
		marker,
		styleTaskID.Render(padRight(st.taskID, 14)),
		phaseStyle.Render(padRight(phase, 12)),
		styleBar.Render(renderBar(st.progress)),
		st.progress,
		styleLastLine.Render(truncate(detail, m.detailWidth())),
	)
	return row
}

// detailWidth is the space left for the trailing output snippet.
func (m Model) detailWidth() int {
	if m.width <= 0 {
		return 60
	}
	w := m.width - barWidth - 44
	if w < 10 {
		w = 10
	}
	return w
}

// renderBar draws a fixed-width progress bar for a 0-100 value.
func renderBar(progress int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	filled := progress * barWidth / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled) + "]"
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

func truncate(s string, width int) string {
	if width <= 3 || len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}

// countRunning counts rows without a terminal event yet.
func (m Model) countRunning() int {
	n := 0
	for _, st := range m.tasks {
		if !st.exited {
			n++
		}
	}
	return n
}

func (m Model) countFinished() int {
	return len(m.tasks) - m.countRunning()
}
