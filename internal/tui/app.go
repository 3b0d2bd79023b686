// Package tui provides the terminal views for litscreen: a dashboard over
// all tasks and a progress watcher for a single task.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/litscreen/internal/controlplane"
)

// RefreshInterval is how often the dashboard reloads.
const RefreshInterval = 2 * time.Second

var filters = []string{"", "queued", "processing", "completed", "error"}
var filterNames = []string{"ALL", "QUEUED", "PROCESSING", "DONE", "ERROR"}

// Source is the API surface the dashboard reads from.
type Source interface {
	StatusSource
	ListTasks(status string) ([]controlplane.TaskSummary, error)
	GetWorkers() (*WorkersStats, error)
}

type tasksLoadedMsg struct {
	tasks   []controlplane.TaskSummary
	workers *WorkersStats
}

type detailLoadedMsg struct {
	view *controlplane.StatusView
}

type refreshMsg time.Time

// App is the dashboard model.
type App struct {
	source      Source
	tasks       []controlplane.TaskSummary
	workers     *WorkersStats
	selectedIdx int
	filterIdx   int
	detail      *controlplane.StatusView
	showDetail  bool
	message     string
	online      bool
	width       int
	height      int
}

// New creates a new dashboard.
func New(source Source) *App {
	return &App{source: source}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return a.fetchTasks()
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit

		case "esc":
			a.showDetail = false
			a.detail = nil

		case "up", "k":
			if a.selectedIdx > 0 {
				a.selectedIdx--
			}

		case "down", "j":
			if a.selectedIdx < len(a.tasks)-1 {
				a.selectedIdx++
			}

		case "tab":
			a.filterIdx = (a.filterIdx + 1) % len(filters)
			a.selectedIdx = 0
			return a, a.fetchTasks()

		case "enter":
			if len(a.tasks) > 0 {
				a.showDetail = true
				return a, a.fetchDetail(a.tasks[a.selectedIdx].ID)
			}

		case "r":
			return a, a.fetchTasks()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case tasksLoadedMsg:
		a.online = true
		a.message = ""
		a.tasks = msg.tasks
		a.workers = msg.workers
		if a.selectedIdx >= len(a.tasks) {
			a.selectedIdx = max(0, len(a.tasks)-1)
		}
		cmds := []tea.Cmd{a.refreshCmd()}
		if a.showDetail && len(a.tasks) > 0 {
			cmds = append(cmds, a.fetchDetail(a.tasks[a.selectedIdx].ID))
		}
		return a, tea.Batch(cmds...)

	case detailLoadedMsg:
		a.detail = msg.view

	case refreshMsg:
		return a, a.fetchTasks()

	case errMsg:
		a.online = false
		a.message = "Error: " + msg.err.Error()
		return a, a.refreshCmd()
	}
	return a, nil
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	serverStatus := statusCompleted.Render("● SERVER")
	if !a.online {
		serverStatus = statusError.Render("○ SERVER")
	}
	b.WriteString(titleStyle.Render("litscreen tasks") + "  " + serverStatus)
	if a.workers != nil {
		b.WriteString(labelStyle.Render(fmt.Sprintf("  workers %d/%d  queued %d  done %d  failed %d",
			a.workers.ActiveWorkers, a.workers.GlobalMax, a.workers.Queued, a.workers.Completed, a.workers.Failed)))
	}
	b.WriteString("\n")
	b.WriteString(labelStyle.Render(fmt.Sprintf(" Filter: [%s]", filterNames[a.filterIdx])) + "\n\n")

	if a.showDetail {
		b.WriteString(a.renderDetail())
	} else {
		b.WriteString(a.renderTaskList())
	}

	if a.message != "" {
		b.WriteString("\n" + errorStyle.Render(a.message) + "\n")
	}

	status := fmt.Sprintf(" Tasks: %d | ↑↓:nav | Enter:detail | Tab:filter | r:refresh | q:quit", len(a.tasks))
	if a.showDetail {
		status = " Esc:back | q:quit"
	}
	b.WriteString("\n" + statusBarStyle.Width(max(a.width, len(status)+2)).Render(status))
	return b.String()
}

func (a *App) renderTaskList() string {
	if len(a.tasks) == 0 {
		return "  No tasks found. Submit one with: litscreen submit FILE...\n"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %s  %s  %s  %s\n",
		headerStyle.Render(fmt.Sprintf("%-36s", "TASK")),
		headerStyle.Render(fmt.Sprintf("%-12s", "STATUS")),
		headerStyle.Render(fmt.Sprintf("%-5s", "PROG")),
		headerStyle.Render("FILES"),
	))
	for i, t := range a.tasks {
		line := fmt.Sprintf("%-36s  %-12s  %4d%%  %s", t.ID, t.Status, t.Progress, strings.Join(t.Files, ", "))
		if i == a.selectedIdx {
			b.WriteString("▶ " + selectedStyle.Render(line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	return b.String()
}

func (a *App) renderDetail() string {
	d := a.detail
	if d == nil {
		return "  Loading...\n"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("Task:"), d.ID))
	b.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("Status:"), formatStatus(d.Status)))
	b.WriteString(fmt.Sprintf("  %s %d%% %s\n", labelStyle.Render("Progress:"), d.Progress, d.Message))
	if len(d.Files) > 0 {
		b.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("Files:"), strings.Join(d.Files, ", ")))
	}
	if d.Stats != nil {
		b.WriteString("\n" + panelStyle.Render(RenderStats(*d.Stats)) + "\n")
	}
	if d.Dedup != nil && len(d.Dedup.Basis) > 0 {
		b.WriteString("  " + labelStyle.Render("Dedup: ") + strings.Join(d.Dedup.Basis, "; ") + "\n")
	}
	if d.Error != "" {
		b.WriteString("\n  " + errorStyle.Render("Error: "+d.Error) + "\n")
	}
	return b.String()
}

func (a *App) fetchTasks() tea.Cmd {
	filter := filters[a.filterIdx]
	return func() tea.Msg {
		tasks, err := a.source.ListTasks(filter)
		if err != nil {
			return errMsg{err}
		}
		workers, err := a.source.GetWorkers()
		if err != nil {
			return errMsg{err}
		}
		return tasksLoadedMsg{tasks, workers}
	}
}

func (a *App) fetchDetail(id string) tea.Cmd {
	return func() tea.Msg {
		view, err := a.source.Status(id)
		if err != nil {
			return errMsg{err}
		}
		return detailLoadedMsg{view}
	}
}

func (a *App) refreshCmd() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}
