// Package tui provides the live ingestion monitor.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 1)

	itemStyle = lipgloss.NewStyle().
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	daemonOnlineStyle = lipgloss.NewStyle().
				Foreground(successColor).
				Bold(true)

	daemonOfflineStyle = lipgloss.NewStyle().
				Foreground(errorColor)
)

const refreshInterval = 2 * time.Second

// App is the monitor TUI model.
type App struct {
	client       *Client
	records      []ProgressItem
	stats        *QueueStats
	worker       *WorkerStatus
	events       []EventItem
	selectedIdx  int
	width        int
	height       int
	mode         string // "list", "detail"
	bar          progress.Model
	message      string
	daemonOnline bool
}

// New creates a new monitor application.
func New(apiAddr string) *App {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40
	return &App{
		client: NewClient(apiAddr),
		mode:   "list",
		bar:    bar,
	}
}

// Run starts the monitor.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return a.refresh()
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit

		case "esc":
			if a.mode == "detail" {
				a.mode = "list"
				a.events = nil
			}

		case "up", "k":
			if a.mode == "list" && a.selectedIdx > 0 {
				a.selectedIdx--
			}

		case "down", "j":
			if a.mode == "list" && a.selectedIdx < len(a.records)-1 {
				a.selectedIdx++
			}

		case "enter":
			if a.mode == "list" && len(a.records) > 0 {
				a.mode = "detail"
				return a, a.fetchEvents(a.records[a.selectedIdx].TaskID)
			}

		case "r":
			return a, a.refresh()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		barWidth := msg.Width - 40
		if barWidth < 10 {
			barWidth = 10
		}
		if barWidth > 60 {
			barWidth = 60
		}
		a.bar.Width = barWidth

	case refreshedMsg:
		a.daemonOnline = msg.online
		if msg.online {
			a.records = msg.records
			a.stats = msg.stats
			a.worker = msg.worker
			a.message = ""
		} else {
			a.message = "daemon unreachable"
		}
		if a.selectedIdx >= len(a.records) {
			a.selectedIdx = maxInt(0, len(a.records)-1)
		}
		// Schedule the next tick only after the current fetch is complete.
		return a, a.tickCmd()

	case eventsLoadedMsg:
		a.events = msg.events

	case tickMsg:
		return a, a.refresh()

	case errMsg:
		a.message = "Error: " + msg.err.Error()
		// Keep the refresh chain alive so the monitor recovers on its own.
		return a, a.tickCmd()
	}

	return a, nil
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := daemonOnlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = daemonOfflineStyle.Render("○ DAEMON")
	}

	header := titleStyle.Render("VOXKB Ingestion Monitor")
	header += "  " + daemonStatus
	if a.worker != nil {
		workerLabel := "idle"
		if a.worker.Busy {
			workerLabel = "busy"
		}
		if !a.worker.Running {
			workerLabel = "stopped"
		}
		header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render("[worker: "+workerLabel+"]")
	}
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", maxInt(a.width, 20)) + "\n")

	b.WriteString(a.renderStats() + "\n")

	switch a.mode {
	case "detail":
		b.WriteString(a.renderDetail())
	default:
		b.WriteString(a.renderList())
	}

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(errorColor)
		b.WriteString("\n" + msgStyle.Render(a.message))
	}

	var status string
	switch a.mode {
	case "detail":
		status = " Esc:back | r:refresh | q:quit"
	default:
		status = fmt.Sprintf(" Active: %d | ↑↓:nav | Enter:events | r:refresh | q:quit", len(a.records))
	}
	b.WriteString("\n" + statusBarStyle.Width(maxInt(a.width, 20)).Render(status))

	return b.String()
}

func (a *App) renderStats() string {
	if a.stats == nil {
		return helpStyle.Render(" loading queue stats...")
	}
	queued := lipgloss.NewStyle().Foreground(warningColor).Render(fmt.Sprintf("%d queued", a.stats.Queued))
	processing := lipgloss.NewStyle().Foreground(secondaryColor).Render(fmt.Sprintf("%d processing", a.stats.Processing))
	completed := lipgloss.NewStyle().Foreground(successColor).Render(fmt.Sprintf("%d completed", a.stats.Completed))
	failed := lipgloss.NewStyle().Foreground(errorColor).Render(fmt.Sprintf("%d failed", a.stats.Failed))
	return fmt.Sprintf(" %s | %s | %s | %s", queued, processing, completed, failed)
}

func (a *App) renderList() string {
	if len(a.records) == 0 {
		return "\n  No active ingestions.\n"
	}

	var lines []string
	for i, rec := range a.records {
		line := a.renderRecord(rec)
		if i == a.selectedIdx {
			lines = append(lines, selectedStyle.Render("▶ "+line))
		} else {
			lines = append(lines, itemStyle.Render("  "+line))
		}
	}
	return "\n" + strings.Join(lines, "\n") + "\n"
}

func (a *App) renderRecord(rec ProgressItem) string {
	stage := a.formatStage(rec)
	bar := a.bar.ViewAs(rec.ProgressPercentage / 100)

	detail := ""
	switch rec.Stage {
	case "queued":
		if rec.QueuePosition != nil {
			detail = fmt.Sprintf("position %d", *rec.QueuePosition)
		}
	case "file_processing", "text_extraction":
		if rec.CurrentFile != "" {
			detail = fmt.Sprintf("%s (%d/%d)", truncate(rec.CurrentFile, 24), rec.CurrentFileIndex, rec.TotalFiles)
		}
	case "embedding":
		detail = fmt.Sprintf("batch %d/%d", rec.CurrentBatch, rec.TotalBatches)
	case "storage":
		detail = fmt.Sprintf("batch %d/%d", rec.CurrentBatch, rec.TotalBatches)
	}

	return fmt.Sprintf("%-14s %s %s  %s",
		truncate(rec.ExpertID, 14), stage, bar,
		lipgloss.NewStyle().Foreground(mutedColor).Render(detail))
}

func (a *App) renderDetail() string {
	if len(a.records) == 0 || a.selectedIdx >= len(a.records) {
		return "\n  Nothing selected.\n"
	}
	rec := a.records[a.selectedIdx]

	var b strings.Builder
	b.WriteString(fmt.Sprintf("\n  %s\n", lipgloss.NewStyle().Bold(true).Render(rec.ExpertID)))
	b.WriteString(fmt.Sprintf("  Task: %s\n", rec.TaskID))
	b.WriteString(fmt.Sprintf("  Stage: %s  %.1f%%\n", rec.Stage, rec.ProgressPercentage))
	b.WriteString(fmt.Sprintf("  Files: %d processed, %d failed of %d\n",
		rec.ProcessedFiles, rec.FailedFiles, rec.TotalFiles))
	if rec.ErrorMessage != "" {
		b.WriteString("  Error: " + lipgloss.NewStyle().Foreground(errorColor).Render(rec.ErrorMessage) + "\n")
	}

	if len(a.events) > 0 {
		b.WriteString("\n  History:\n")
		for _, e := range a.events {
			outcomeStyle := lipgloss.NewStyle().Foreground(successColor)
			if e.Outcome == "failed" {
				outcomeStyle = lipgloss.NewStyle().Foreground(errorColor)
			} else if e.Outcome == "retry" {
				outcomeStyle = lipgloss.NewStyle().Foreground(warningColor)
			}
			line := fmt.Sprintf("    %s  %-14s %s",
				e.CreatedAt.Local().Format("15:04:05"),
				e.Action,
				outcomeStyle.Render(e.Outcome))
			if e.Details != "" {
				line += "  " + lipgloss.NewStyle().Foreground(mutedColor).Render(truncate(e.Details, 48))
			}
			b.WriteString(line + "\n")
		}
	}

	return b.String()
}

func (a *App) formatStage(rec ProgressItem) string {
	switch rec.Stage {
	case "queued":
		return lipgloss.NewStyle().Foreground(warningColor).Render("○ QUEUED    ")
	case "file_processing":
		return lipgloss.NewStyle().Foreground(secondaryColor).Render("◐ FILES     ")
	case "text_extraction":
		return lipgloss.NewStyle().Foreground(secondaryColor).Render("◑ EXTRACT   ")
	case "embedding":
		return lipgloss.NewStyle().Foreground(primaryColor).Render("◒ EMBED     ")
	case "storage":
		return lipgloss.NewStyle().Foreground(cyanColor).Render("◓ STORE     ")
	case "complete":
		return lipgloss.NewStyle().Foreground(successColor).Render("● DONE      ")
	case "failed":
		return lipgloss.NewStyle().Foreground(errorColor).Render("✗ FAILED    ")
	default:
		return rec.Stage
	}
}

func (a *App) refresh() tea.Cmd {
	return func() tea.Msg {
		if !a.client.CheckHealth() {
			return refreshedMsg{online: false}
		}
		records, err := a.client.ActiveProgress()
		if err != nil {
			return errMsg{err}
		}
		stats, err := a.client.QueueStats()
		if err != nil {
			return errMsg{err}
		}
		worker, err := a.client.WorkerStatus()
		if err != nil {
			return errMsg{err}
		}
		return refreshedMsg{online: true, records: records, stats: stats, worker: worker}
	}
}

func (a *App) fetchEvents(taskID string) tea.Cmd {
	return func() tea.Msg {
		events, err := a.client.TaskEvents(taskID)
		if err != nil {
			return errMsg{err}
		}
		return eventsLoadedMsg{events}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type refreshedMsg struct {
	online  bool
	records []ProgressItem
	stats   *QueueStats
	worker  *WorkerStatus
}

type eventsLoadedMsg struct {
	events []EventItem
}

type errMsg struct {
	err error
}

type tickMsg time.Time
