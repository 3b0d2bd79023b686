package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/litscreen/internal/controlplane"
	"github.com/fentz26/litscreen/internal/models"
)

// DefaultPollInterval is how often the watcher asks for a task's status.
const DefaultPollInterval = time.Second

// maxPollFailures ends the watch after this many consecutive failed polls.
const maxPollFailures = 5

type statusMsg struct {
	view *controlplane.StatusView
}

type errMsg struct {
	err error
}

type tickMsg time.Time

// StatusSource is the part of Client the watcher needs.
type StatusSource interface {
	Status(id string) (*controlplane.StatusView, error)
}

// WatchModel follows one task until it reaches a terminal state.
type WatchModel struct {
	source   StatusSource
	taskID   string
	interval time.Duration

	spinner  spinner.Model
	progress progress.Model
	status   *controlplane.StatusView
	err      error
	failures int
	done     bool
	width    int
}

// NewWatch creates a watcher for taskID.
func NewWatch(source StatusSource, taskID string, interval time.Duration) *WatchModel {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusProcessing

	return &WatchModel{
		source:   source,
		taskID:   taskID,
		interval: interval,
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
	}
}

// Run starts the watcher and blocks until the task ends or the user quits.
func (m *WatchModel) Run() (*controlplane.StatusView, error) {
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return nil, err
	}
	return m.status, m.err
}

// Status returns the last status received.
func (m *WatchModel) Status() *controlplane.StatusView {
	return m.status
}

// Err returns the error that ended the watch, if any.
func (m *WatchModel) Err() error {
	return m.err
}

// Init implements tea.Model
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

// Update implements tea.Model
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = clamp(msg.Width-20, 10, 80)

	case statusMsg:
		m.status = msg.view
		m.failures = 0
		m.err = nil
		if msg.view.Status.IsTerminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, m.tickCmd()

	case errMsg:
		m.failures++
		m.err = msg.err
		if IsNotFound(msg.err) || m.failures >= maxPollFailures {
			m.done = true
			return m, tea.Quit
		}
		return m, m.tickCmd()

	case tickMsg:
		return m, m.poll()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m *WatchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("litscreen") + labelStyle.Render(" task "+m.taskID) + "\n\n")

	if m.status == nil {
		if m.err != nil {
			b.WriteString("  " + errorStyle.Render("Error: "+m.err.Error()) + "\n")
		} else {
			b.WriteString("  " + m.spinner.View() + " Connecting...\n")
		}
		return b.String()
	}

	st := m.status
	prefix := m.spinner.View()
	if st.Status.IsTerminal() {
		prefix = " "
	}
	b.WriteString(fmt.Sprintf("  %s %s  %s\n", prefix, formatStatus(st.Status), st.Message))
	b.WriteString("  " + m.progress.ViewAs(float64(st.Progress)/100) + "\n")

	switch st.Status {
	case models.TaskStatusCompleted:
		if st.Stats != nil {
			b.WriteString("\n" + panelStyle.Render(RenderStats(*st.Stats)) + "\n")
		}
	case models.TaskStatusError:
		b.WriteString("\n  " + errorStyle.Render("Error: "+st.Error) + "\n")
	}

	if m.err != nil && !m.done {
		b.WriteString("\n  " + errorStyle.Render(fmt.Sprintf("poll failed (%d/%d): %v", m.failures, maxPollFailures, m.err)) + "\n")
	}
	if !m.done {
		b.WriteString("\n  " + helpStyle.Render("q: stop watching (the task keeps running)") + "\n")
	}
	return b.String()
}

// RenderStats formats the counts of a completed run.
func RenderStats(s models.ScreeningStats) string {
	rows := []struct {
		label string
		value int
	}{
		{"Total records", s.Total},
		{"After dedup", s.AfterDedup},
		{"Title/abstract excluded", s.TitleAbstractExcluded},
		{"Journal excluded", s.JournalExcluded},
		{"AI excluded", s.AIExcluded},
		{"AI verification excluded", s.AIVerificationExcluded},
		{"AI errors", s.AIErrors},
		{"Kept", s.Kept},
		{"Excluded", s.Excluded},
	}
	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("%s %d", labelStyle.Render(fmt.Sprintf("%-26s", r.label)), r.value))
	}
	return b.String()
}

func (m *WatchModel) poll() tea.Cmd {
	return func() tea.Msg {
		view, err := m.source.Status(m.taskID)
		if err != nil {
			return errMsg{err}
		}
		return statusMsg{view}
	}
}

func (m *WatchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
