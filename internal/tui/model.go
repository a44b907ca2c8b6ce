// Package tui renders a conversation in the terminal. It only observes the
// controller's snapshots and submits text through Controller.Send.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"SiteChat/internal/conversation"
)

// SessionOpener is the part of the session manager the widget drives
type SessionOpener interface {
	EnsureSession(ctx context.Context) (string, bool)
	Close()
}

type sessionReadyMsg struct {
	id string
	ok bool
}

type snapshotMsg conversation.Snapshot

type sendDoneMsg struct {
	err error
}

// Model is the bubbletea model of the chat widget
type Model struct {
	ctrl        *conversation.Controller
	sessions    SessionOpener
	updates     chan conversation.Snapshot
	unsubscribe func()

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	styles   styles

	snapshot   conversation.Snapshot
	sessionID  string
	connecting bool
	quickIndex int
	notice     string
	width      int
	height     int
	ready      bool
}

// New creates the widget model and subscribes it to ctrl
func New(ctrl *conversation.Controller, sessions SessionOpener) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "Enter your message..."
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(matrixGreen)

	updates := make(chan conversation.Snapshot, 1)
	unsubscribe := ctrl.Subscribe(func(s conversation.Snapshot) {
		publishLatest(updates, s)
	})

	return Model{
		ctrl:        ctrl,
		sessions:    sessions,
		updates:     updates,
		unsubscribe: unsubscribe,
		input:       input,
		spinner:     sp,
		viewport:    viewport.New(80, 20),
		styles:      defaultStyles(),
		snapshot:    ctrl.Snapshot(),
		connecting:  true,
		width:       80,
		height:      24,
	}
}

// publishLatest replaces any unread snapshot so the sender never blocks
func publishLatest(ch chan conversation.Snapshot, s conversation.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.openSessionCmd(),
		waitForSnapshot(m.updates),
	)
}

func (m Model) openSessionCmd() tea.Cmd {
	sessions := m.sessions
	return func() tea.Msg {
		id, ok := sessions.EnsureSession(context.Background())
		return sessionReadyMsg{id: id, ok: ok}
	}
}

func waitForSnapshot(ch <-chan conversation.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(s)
	}
}

func (m Model) sendCmd(text string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return sendDoneMsg{err: ctrl.Send(context.Background(), text)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case sessionReadyMsg:
		m.connecting = false
		m.sessionID = msg.id

	case snapshotMsg:
		m.snapshot = conversation.Snapshot(msg)
		m.refreshViewport()
		cmds = append(cmds, waitForSnapshot(m.updates))

	case sendDoneMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		} else {
			m.notice = ""
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.snapshot.Pending() {
			m.refreshViewport()
		}
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.closeWidget()
			return m, tea.Quit

		case tea.KeyEnter:
			return m, m.submit()

		case tea.KeyTab:
			m.nextQuickReply()
			return m, nil

		case tea.KeyCtrlR:
			if m.connecting || m.sessionID != "" {
				return m, nil
			}
			m.connecting = true
			return m, m.openSessionCmd()

		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		if m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) busy() bool {
	return m.snapshot.State != conversation.StateIdle || m.ctrl.Busy()
}

// submit hands the input to the controller unless a reply is pending
func (m *Model) submit() tea.Cmd {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" || m.busy() {
		return nil
	}
	m.input.Reset()
	m.quickIndex = 0
	return m.sendCmd(text)
}

// nextQuickReply pre-fills the input with the next canned prompt
func (m *Model) nextQuickReply() {
	if m.busy() || !m.ctrl.QuickRepliesVisible() {
		return
	}
	replies := m.ctrl.QuickReplies()
	if len(replies) == 0 {
		return
	}
	m.input.SetValue(replies[m.quickIndex%len(replies)])
	m.input.CursorEnd()
	m.quickIndex++
}

func (m *Model) closeWidget() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.sessions.Close()
}

func (m *Model) resize() {
	m.viewport.Width = m.width
	h := m.height - 6
	if m.ctrl.QuickRepliesVisible() {
		h -= 2
	}
	if h < 3 {
		h = 3
	}
	m.viewport.Height = h
	m.input.Width = m.width - 4
	m.refreshViewport()
	m.ready = true
}

func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderLog())
	m.viewport.GotoBottom()
}

func (m Model) renderLog() string {
	var b strings.Builder
	for i, msg := range m.snapshot.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessage(msg conversation.Message) string {
	label := m.styles.botLabel.Render("AI_ASSISTANT")
	if msg.Role == conversation.RoleUser {
		label = m.styles.userLabel.Render("USER")
	}
	header := fmt.Sprintf("%s %s", label, m.styles.timestamp.Render(msg.CreatedAt.Format("15:04")))

	if msg.Pending {
		return header + "\n" + m.styles.pending.Render(m.spinner.View()+" typing...")
	}
	return header + "\n" + m.styles.body.Render(msg.Text)
}

func (m Model) renderQuickReplies() string {
	if !m.ctrl.QuickRepliesVisible() {
		return ""
	}
	replies := m.ctrl.QuickReplies()
	items := make([]string, len(replies))
	for i, r := range replies {
		items[i] = m.styles.quickItem.Render("[" + r + "]")
	}
	return m.styles.quickTitle.Render("QUICK_COMMANDS (tab):") + "\n" + strings.Join(items, " ")
}

func (m Model) renderStatus() string {
	var session string
	switch {
	case m.connecting:
		session = m.styles.status.Render("SESSION: CONNECTING")
	case m.sessionID == "":
		session = m.styles.offline.Render("SESSION: OFFLINE")
	default:
		session = m.styles.status.Render("SESSION: " + m.sessionID)
	}

	status := "READY_FOR_INPUT"
	if m.busy() {
		status = "AI_PROCESSING..."
	}
	line := session + m.styles.status.Render(" | Status: "+status+" | ctrl+r reconnect | esc close")
	if m.notice != "" {
		line += m.styles.offline.Render(" | " + m.notice)
	}
	return line
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.header.Render("NOWHERE_AI_ASSISTANT"))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if quick := m.renderQuickReplies(); quick != "" {
		b.WriteString(quick)
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	return b.String()
}

// Run starts the widget and blocks until it is closed
func Run(ctrl *conversation.Controller, sessions SessionOpener) error {
	p := tea.NewProgram(New(ctrl, sessions), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run chat widget: %w", err)
	}
	return nil
}
