package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SiteChat/internal/conversation"
)

type fakeSessions struct {
	mu     sync.Mutex
	id     string
	opens  int
	closed bool
}

func (f *fakeSessions) EnsureSession(ctx context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return f.id, f.id != ""
}

func (f *fakeSessions) SessionID() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id, f.id != ""
}

func (f *fakeSessions) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

type gatedSender struct {
	reply string
	gate  chan struct{}
}

func (g *gatedSender) SendMessage(ctx context.Context, sessionID, message string) (string, error) {
	if g.gate != nil {
		<-g.gate
	}
	return g.reply, nil
}

func newTestModel(t *testing.T, sender conversation.Sender, opts ...conversation.Option) (Model, *conversation.Controller, *fakeSessions) {
	t.Helper()
	sessions := &fakeSessions{id: "s1"}
	ctrl := conversation.New(sessions, sender, opts...)
	return New(ctrl, sessions), ctrl, sessions
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestEnterSubmitsMessage(t *testing.T) {
	m, ctrl, _ := newTestModel(t, &gatedSender{reply: "R"})
	m.input.SetValue("hi")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Empty(t, m.input.Value())

	done, ok := cmd().(sendDoneMsg)
	require.True(t, ok)
	assert.NoError(t, done.err)

	msgs := ctrl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, "R", msgs[1].Text)
}

func TestEnterIgnoresBlankInput(t *testing.T) {
	m, ctrl, _ := newTestModel(t, &gatedSender{reply: "R"})
	m.input.SetValue("   ")

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, ctrl.Messages())
}

func TestInputDisabledWhileAwaitingReply(t *testing.T) {
	sender := &gatedSender{reply: "R", gate: make(chan struct{})}
	m, ctrl, _ := newTestModel(t, sender)

	done := make(chan error)
	go func() {
		done <- ctrl.Send(context.Background(), "first")
	}()
	require.Eventually(t, ctrl.Busy, time.Second, time.Millisecond)

	m.input.SetValue("second")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "second", m.input.Value())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Equal(t, "second", m.input.Value())
	assert.Contains(t, m.renderStatus(), "AI_PROCESSING...")

	close(sender.gate)
	require.NoError(t, <-done)
	assert.Len(t, ctrl.Messages(), 2)
}

func TestTabCyclesQuickReplies(t *testing.T) {
	m, _, _ := newTestModel(t, &gatedSender{reply: "R"},
		conversation.WithQuickReplies([]string{"one", "two"}),
		conversation.WithQuickReplyThreshold(1))

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "one", m.input.Value())
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "two", m.input.Value())
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "one", m.input.Value())
	assert.Contains(t, m.View(), "QUICK_COMMANDS")
}

func TestQuickRepliesHiddenPastThreshold(t *testing.T) {
	m, ctrl, _ := newTestModel(t, &gatedSender{reply: "R"},
		conversation.WithQuickReplies([]string{"one"}),
		conversation.WithQuickReplyThreshold(1))
	require.NoError(t, ctrl.Send(context.Background(), "hi"))

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Empty(t, m.input.Value())
	assert.NotContains(t, m.View(), "QUICK_COMMANDS")
}

func TestSnapshotsReachTheView(t *testing.T) {
	m, ctrl, _ := newTestModel(t, &gatedSender{reply: "line one\nline two"})
	require.NoError(t, ctrl.Send(context.Background(), "question"))

	msg := waitForSnapshot(m.updates)()
	snap, ok := msg.(snapshotMsg)
	require.True(t, ok)
	assert.Equal(t, conversation.StateIdle, snap.State)

	m, cmd := update(t, m, snap)
	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "question")
	assert.Contains(t, view, "line one")
	assert.Contains(t, view, "line two")
	assert.Contains(t, view, "READY_FOR_INPUT")
}

func TestPendingMessageRendersTyping(t *testing.T) {
	m, _, _ := newTestModel(t, &gatedSender{})
	m, _ = update(t, m, snapshotMsg{
		State: conversation.StateAwaitingResponse,
		Messages: []conversation.Message{
			{ID: "1", Role: conversation.RoleUser, Text: "hi", CreatedAt: time.Now()},
			{ID: "2", Role: conversation.RoleAssistant, Pending: true, CreatedAt: time.Now()},
		},
	})

	assert.Contains(t, m.View(), "typing...")
}

func TestSessionStatus(t *testing.T) {
	m, _, sessions := newTestModel(t, &gatedSender{})
	assert.Contains(t, m.renderStatus(), "CONNECTING")

	msg := m.openSessionCmd()()
	m, _ = update(t, m, msg)
	assert.Contains(t, m.renderStatus(), "SESSION: s1")
	assert.Equal(t, 1, sessions.opens)
}

func TestReconnectWhenOffline(t *testing.T) {
	m, _, sessions := newTestModel(t, &gatedSender{})
	sessions.id = ""

	m, _ = update(t, m, m.openSessionCmd()())
	assert.Contains(t, m.renderStatus(), "OFFLINE")

	sessions.id = "s2"
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Contains(t, m.renderStatus(), "SESSION: s2")
	assert.Equal(t, 2, sessions.opens)

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.Nil(t, cmd)
}

func TestEscClosesWidget(t *testing.T) {
	m, ctrl, sessions := newTestModel(t, &gatedSender{reply: "R"})

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.True(t, sessions.closed)

	// Unsubscribed: later changes no longer reach the widget channel
	require.NoError(t, ctrl.Send(context.Background(), "hi"))
	select {
	case <-m.updates:
		t.Fatalf("unexpected snapshot after close")
	default:
	}
}

func TestPublishLatestKeepsNewest(t *testing.T) {
	ch := make(chan conversation.Snapshot, 1)
	publishLatest(ch, conversation.Snapshot{State: conversation.StateSubmitted})
	publishLatest(ch, conversation.Snapshot{State: conversation.StateIdle})

	assert.Equal(t, conversation.StateIdle, (<-ch).State)
}
