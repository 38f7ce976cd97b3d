// Package app is the interactive terminal front-end. It talks to the fetch
// core only through the progress callback, the per-result callback, the
// confirmation callback, and the cancellation signal.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tokfetch/tokfetch/internal/fetch"
	"github.com/tokfetch/tokfetch/internal/scheduler"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	menuStyle        = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("79"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	promptStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	progressBarStyle = lipgloss.NewStyle().Padding(0, 1)
	fileStatusStyle  = map[string]lipgloss.Style{
		"Complete":  lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		"Error":     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		"Duplicate": lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
)

// Runner executes the full fetch workflow with the given collaborator hooks
// and returns a summary message. It runs on its own goroutine; the hooks are
// invoked from the workflow side and must not touch the model directly.
type Runner func(sig *scheduler.Signal, progressFn func(done, total int), onResult func(fetch.Result), confirm func() bool) (string, error)

type fileRow struct {
	name   string
	status string
	errMsg string
}

// Model is the bubbletea model for the downloader UI. All mutation happens
// on the Update goroutine; workflow goroutines communicate via uiMsgChan.
type Model struct {
	runner Runner

	state       AppState
	menuChoices []string
	menuCursor  int

	spinner         spinner.Model
	overallProgress progress.Model

	signal        *scheduler.Signal
	uiMsgChan     chan tea.Msg
	pendingReply  chan bool
	taskStartTime time.Time

	current int64
	total   int64
	rows    []fileRow

	lastError error
	finalNote string
	Quitting  bool

	termWidth  int
	termHeight int
}

func NewModel(runner Runner) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	prog := progress.New(progress.WithDefaultGradient())

	return &Model{
		runner:          runner,
		state:           ShowMenu,
		menuChoices:     []string{"Start Download", "Exit"},
		spinner:         s,
		overallProgress: prog,
	}
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.state {
		case ShowMenu:
			cmds = append(cmds, m.handleMenuKey(msg))
		case AwaitingConfirm:
			cmds = append(cmds, m.handleConfirmKey(msg))
		case ShowError:
			if msg.Type == tea.KeyEnter || msg.Type == tea.KeyEsc || msg.String() == "q" {
				m.state = ShowMenu
				m.lastError = nil
			}
		case Exiting:
			return m, nil
		case Fetching:
			switch msg.String() {
			case "s":
				// Cooperative stop: the run winds down and reports back.
				if m.signal != nil {
					m.signal.Set()
				}
			case "ctrl+c", "q":
				if m.signal != nil {
					m.signal.Set()
				}
				m.Quitting = true
				m.state = Exiting
				return m, tea.Quit
			}
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.overallProgress.Width = maxInt(0, m.termWidth-4)
	case ProgressMsg:
		m.current = msg.Current
		m.total = msg.Total
		var percent float64
		if msg.Total > 0 {
			percent = float64(msg.Current) / float64(msg.Total)
		}
		cmds = append(cmds, m.overallProgress.SetPercent(percent))
	case FileResultMsg:
		m.rows = append(m.rows, fileRow{name: msg.Name, status: msg.Status, errMsg: msg.ErrMsg})
	case BatchPromptMsg:
		m.state = AwaitingConfirm
		m.pendingReply = msg.Reply
	case TaskFinishedMsg:
		m.uiMsgChan = nil
		m.signal = nil
		m.pendingReply = nil
		if msg.Err != nil {
			m.lastError = fmt.Errorf("download failed: %w", msg.Err)
			m.state = ShowError
		} else {
			m.finalNote = fmt.Sprintf("%s (took %s)", msg.Message, msg.EndTime.Sub(msg.StartTime).Round(time.Second))
			m.state = ShowMenu
		}
	case spinner.TickMsg:
		if m.state == Fetching || m.state == AwaitingConfirm {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case progress.FrameMsg:
		progModel, frameCmd := m.overallProgress.Update(msg)
		if newModel, ok := progModel.(progress.Model); ok {
			m.overallProgress = newModel
			cmds = append(cmds, frameCmd)
		}
	}

	if m.uiMsgChan != nil {
		cmds = append(cmds, waitForActivityCmd(m.uiMsgChan))
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("--- tokfetch ---"))
	b.WriteString("\n\n")

	switch m.state {
	case ShowMenu:
		b.WriteString(m.viewMenu())
		if m.finalNote != "" {
			b.WriteString("\n")
			b.WriteString(infoStyle.Render(m.finalNote))
		}
	case Fetching, AwaitingConfirm:
		b.WriteString(m.viewProgress())
		if m.state == AwaitingConfirm {
			b.WriteString("\n")
			b.WriteString(promptStyle.Render("Continue with next batch? [y/N]"))
		}
	case ShowError:
		b.WriteString(errorStyle.Render("An error occurred:"))
		b.WriteString("\n\n")
		if m.lastError != nil {
			b.WriteString(m.lastError.Error())
		}
	case Exiting:
		b.WriteString(infoStyle.Render("Exiting..."))
	}

	b.WriteString("\n\n")
	switch m.state {
	case ShowMenu:
		b.WriteString(infoStyle.Render("Use up/down arrows and Enter to select. 'q' or Ctrl+C to quit."))
	case Fetching:
		b.WriteString(infoStyle.Render("Downloading... 's' to stop, 'q' or Ctrl+C to quit."))
	case ShowError:
		b.WriteString(infoStyle.Render("Press Enter or Esc to return to menu."))
	}
	return b.String()
}

func (m *Model) viewMenu() string {
	var b strings.Builder
	b.WriteString("Select an action:\n")
	for i, choice := range m.menuChoices {
		var line string
		if m.menuCursor == i {
			line = "> " + selectedStyle.Render(choice)
		} else {
			line = "  " + choice
		}
		b.WriteString(menuStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) viewProgress() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s Downloading media\n", m.spinner.View()))
	b.WriteString(progressBarStyle.Render(m.overallProgress.View()))
	b.WriteString(fmt.Sprintf(" (%d/%d)\n\n", m.current, m.total))

	maxLines := m.termHeight - 10
	if maxLines < 1 {
		maxLines = 1
	}
	startIdx := 0
	if len(m.rows) > maxLines {
		startIdx = len(m.rows) - maxLines
	}
	for i := startIdx; i < len(m.rows); i++ {
		row := m.rows[i]
		style, ok := fileStatusStyle[row.status]
		if !ok {
			style = infoStyle
		}
		name := row.name
		if len(name) > 60 {
			name = name[:57] + "..."
		}
		b.WriteString(fmt.Sprintf("%-60s | %s", name, style.Render(row.status)))
		if row.status == "Error" && row.errMsg != "" {
			errMsg := row.errMsg
			if len(errMsg) > 60 {
				errMsg = errMsg[:57] + "..."
			}
			b.WriteString("\n")
			b.WriteString(errorStyle.Render("  -> " + errMsg))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) handleMenuKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k":
		if m.menuCursor > 0 {
			m.menuCursor--
		}
	case "down", "j":
		if m.menuCursor < len(m.menuChoices)-1 {
			m.menuCursor++
		}
	case "enter":
		switch m.menuChoices[m.menuCursor] {
		case "Start Download":
			return m.startFetchTask()
		case "Exit":
			m.Quitting = true
			m.state = Exiting
			return tea.Quit
		}
	case "ctrl+c", "q":
		m.Quitting = true
		m.state = Exiting
		return tea.Quit
	}
	return nil
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) tea.Cmd {
	reply := m.pendingReply
	if reply == nil {
		return nil
	}
	switch msg.String() {
	case "ctrl+c", "q":
		// Quit wins over the prompt: decline the batch so the workflow
		// goroutine unblocks, flag the stop, and exit.
		m.pendingReply = nil
		if m.signal != nil {
			m.signal.Set()
		}
		m.Quitting = true
		m.state = Exiting
		reply <- false
		return tea.Quit
	case "y", "Y":
		m.pendingReply = nil
		m.state = Fetching
		reply <- true
	default:
		m.pendingReply = nil
		m.state = Fetching
		reply <- false
	}
	return nil
}

// startFetchTask wires the collaborator hooks to uiMsgChan and launches the
// workflow goroutine.
func (m *Model) startFetchTask() tea.Cmd {
	m.state = Fetching
	m.rows = nil
	m.current, m.total = 0, 0
	m.finalNote = ""
	m.lastError = nil
	m.taskStartTime = time.Now()
	m.signal = scheduler.NewSignal()
	m.uiMsgChan = make(chan tea.Msg)

	uiMsgChan := m.uiMsgChan
	sig := m.signal
	startTime := m.taskStartTime
	runner := m.runner

	launch := func() tea.Msg {
		go func() {
			progressFn := func(done, total int) {
				uiMsgChan <- ProgressMsg{Current: int64(done), Total: int64(total)}
			}
			onResult := func(res fetch.Result) {
				uiMsgChan <- FileResultMsg{
					Name:   resultName(res),
					Status: resultStatus(res),
					ErrMsg: resultError(res),
				}
			}
			confirm := func() bool {
				reply := make(chan bool)
				uiMsgChan <- BatchPromptMsg{Reply: reply}
				return <-reply
			}

			summary, err := runner(sig, progressFn, onResult, confirm)
			uiMsgChan <- TaskFinishedMsg{
				Err:       err,
				Message:   summary,
				StartTime: startTime,
				EndTime:   time.Now(),
			}
		}()
		return nil
	}
	return tea.Batch(launch, waitForActivityCmd(uiMsgChan))
}

func waitForActivityCmd(uiMsgChan chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-uiMsgChan
	}
}

func resultName(res fetch.Result) string {
	if res.Path != "" {
		return res.Path
	}
	return res.Task.URL
}

func resultStatus(res fetch.Result) string {
	switch res.Kind {
	case fetch.OutcomeSuccess:
		return "Complete"
	case fetch.OutcomeSkippedDuplicate:
		return "Duplicate"
	default:
		return "Error"
	}
}

func resultError(res fetch.Result) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return ""
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
