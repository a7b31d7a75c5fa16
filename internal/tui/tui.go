// Package tui renders the interactive chat surface: a tab bar over the open
// sessions, the focused session's transcript, an optional activity pane, and
// an input line.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joescharf/cdesk/internal/activity"
	"github.com/joescharf/cdesk/internal/coordinator"
	"github.com/joescharf/cdesk/internal/git"
	"github.com/joescharf/cdesk/internal/models"
)

// refreshMsg is sent when the coordinator applied an event and the read
// model may have changed.
type refreshMsg struct{}

// Model is the bubbletea model for the chat surface.
type Model struct {
	coord *coordinator.Coordinator
	gitc  git.Client

	vp    viewport.Model
	input textinput.Model

	// branch is the focused session's git branch label, refreshed on tab
	// switches rather than per render.
	branch string

	width  int
	height int
	ready  bool

	showActivity bool
	quitting     bool
}

// NewModel builds the chat model around an already-wired coordinator with at
// least one open session.
func NewModel(coord *coordinator.Coordinator) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message... (Enter to send, Ctrl+C to quit)"
	ti.Prompt = "> "
	ti.CharLimit = 4096
	ti.Focus()

	m := Model{
		coord: coord,
		gitc:  git.NewClient(),
		input: ti,
		vp:    viewport.New(80, 20),
	}
	m.refreshBranch()
	return m
}

func (m *Model) refreshBranch() {
	m.branch = ""
	if sess := m.coord.Registry().Session(m.coord.Registry().ActiveTabID()); sess != nil {
		m.branch = git.BranchLabel(m.gitc, sess.WorkingDirectory)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForRefresh())
}

// waitForRefresh blocks on the coordinator's update signal.
func (m Model) waitForRefresh() tea.Cmd {
	updates := m.coord.Updates()
	return func() tea.Msg {
		<-updates
		return refreshMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = msg.Width
		m.vp.Height = max(1, msg.Height-chromeHeight(m.showActivity))
		m.input.Width = max(10, msg.Width-4)
		m.ready = true
		m.refreshTranscript()
		return m, nil

	case refreshMsg:
		m.refreshTranscript()
		return m, m.waitForRefresh()

	case tea.KeyMsg:
		return m.updateKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		content := strings.TrimSpace(m.input.Value())
		if content == "" {
			return m, nil
		}
		m.input.Reset()
		sessionID := m.coord.Registry().ActiveTabID()
		coord := m.coord
		return m, func() tea.Msg {
			// Errors surface as coordinator notifications.
			_ = coord.SendMessage(context.Background(), sessionID, content)
			return refreshMsg{}
		}

	case "tab":
		m.cycleTab(1)
		m.refreshTranscript()
		return m, nil

	case "shift+tab":
		m.cycleTab(-1)
		m.refreshTranscript()
		return m, nil

	case "ctrl+x":
		sessionID := m.coord.Registry().ActiveTabID()
		coord := m.coord
		return m, func() tea.Msg {
			_ = coord.CancelResponse(context.Background(), sessionID)
			return refreshMsg{}
		}

	case "ctrl+f":
		m.showActivity = !m.showActivity
		if m.ready {
			m.vp.Height = max(1, m.height-chromeHeight(m.showActivity))
		}
		m.refreshTranscript()
		return m, nil

	case "pgup":
		m.vp.HalfViewUp()
		return m, nil

	case "pgdown":
		m.vp.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// cycleTab focuses the tab offset positions away from the current one.
func (m *Model) cycleTab(offset int) {
	tabs := m.coord.Registry().Tabs()
	if len(tabs) < 2 {
		return
	}
	cur := 0
	for i, t := range tabs {
		if t.Active {
			cur = i
			break
		}
	}
	next := (cur + offset + len(tabs)) % len(tabs)
	m.coord.SelectTab(tabs[next].SessionID)
	m.refreshBranch()
}

func (m *Model) refreshTranscript() {
	sessionID := m.coord.Registry().ActiveTabID()
	atBottom := m.vp.AtBottom()
	m.vp.SetContent(renderTranscript(m.coord.Registry().Messages(sessionID), m.width))
	if atBottom {
		m.vp.GotoBottom()
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(renderTabBar(m.coord.Registry().Tabs()))
	b.WriteString("\n")
	b.WriteString(m.vp.View())
	b.WriteString("\n")

	if m.showActivity {
		sessionID := m.coord.Registry().ActiveTabID()
		b.WriteString(renderActivityPane(m.coord.Activity(sessionID, activity.FilterAll), activityPaneRows))
		b.WriteString("\n")
	}

	b.WriteString(m.statusBar())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab: switch  ctrl+x: cancel  ctrl+f: files  ctrl+c: quit"))
	return b.String()
}

const activityPaneRows = 6

// chromeHeight is the number of rows used by everything except the
// transcript viewport.
func chromeHeight(showActivity bool) int {
	h := 5 // tab bar, status bar, input, help, spacing
	if showActivity {
		h += activityPaneRows + 1
	}
	return h
}

func (m Model) statusBar() string {
	reg := m.coord.Registry()
	sessionID := reg.ActiveTabID()
	status := reg.Status(sessionID)

	parts := []string{statusLabel(status)}
	if sess := reg.Session(sessionID); sess != nil {
		parts = append(parts, dimStyle.Render(sess.WorkingDirectory))
	}
	if m.branch != "" {
		parts = append(parts, dimStyle.Render(m.branch))
	}
	if n := m.coord.PreviewRefreshCount(); n > 0 {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("preview #%d", n)))
	}
	if notes := m.coord.Notifications(); len(notes) > 0 {
		parts = append(parts, notificationStyle.Render(truncate(notes[0].Message, 60)))
	}
	return statusBarStyle.Width(m.width).Render(strings.Join(parts, "  "))
}

func statusLabel(status models.SessionStatus) string {
	switch status {
	case models.StatusReady:
		return statusReadyStyle.Render("ready")
	case models.StatusBusy:
		return statusBusyStyle.Render("busy")
	case models.StatusStarting:
		return statusBusyStyle.Render("starting")
	case models.StatusError:
		return statusErrorStyle.Render("error")
	default:
		return dimStyle.Render(string(status))
	}
}

// renderTabBar renders one segment per open tab. The dirty marker flags
// background sessions with unseen output.
func renderTabBar(tabs []*models.Tab) string {
	if len(tabs) == 0 {
		return inactiveTabStyle.Render("no sessions")
	}
	segments := make([]string, len(tabs))
	for i, t := range tabs {
		title := truncate(t.Title, 20)
		switch {
		case t.Active:
			segments[i] = activeTabStyle.Render(title)
		case t.Dirty:
			segments[i] = dirtyTabStyle.Render(title + " ●")
		default:
			segments[i] = inactiveTabStyle.Render(title)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, segments...)
}

// renderTranscript renders the session's messages oldest first.
func renderTranscript(messages []*models.Message, width int) string {
	if len(messages) == 0 {
		return dimStyle.Render("No messages yet.")
	}

	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		switch msg.Role {
		case models.RoleUser:
			b.WriteString(userRoleStyle.Render("you"))
		default:
			b.WriteString(assistantRoleStyle.Render("assistant"))
		}
		b.WriteString("\n")

		content := msg.Content
		if msg.Streaming {
			content += " ▌"
		}
		if content != "" {
			b.WriteString(wrap(content, width))
			b.WriteString("\n")
		}
		for _, tu := range msg.ToolUsage {
			b.WriteString(toolLineStyle.Render(fmt.Sprintf("  ⚒ %s (%s)", tu.Name, tu.Status)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderActivityPane renders the most recent file changes, newest first.
func renderActivityPane(entries []*models.ActivityEntry, rows int) string {
	var b strings.Builder
	b.WriteString(activityHeaderStyle.Render("Files"))
	b.WriteString("\n")
	if len(entries) == 0 {
		b.WriteString(dimStyle.Render("  no file activity"))
		return b.String()
	}
	if len(entries) > rows-1 {
		entries = entries[:rows-1]
	}
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		marker := "~"
		switch e.Operation {
		case models.OpCreated:
			marker = "+"
		case models.OpDeleted:
			marker = "-"
		}
		line := fmt.Sprintf("  %s %s", marker, e.Path)
		if e.Source == models.SourceAssistant {
			line += dimStyle.Render("  (assistant)")
		}
		b.WriteString(line)
	}
	return b.String()
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

// wrap does simple whitespace-preserving line wrapping for the transcript.
func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	var b strings.Builder
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			b.WriteString("\n")
		}
		for len(line) > width {
			b.WriteString(line[:width])
			b.WriteString("\n")
			line = line[width:]
		}
		b.WriteString(line)
	}
	return b.String()
}
