package ui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/catchat/pkg/chat"
	"github.com/go-go-golems/catchat/pkg/session"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu      sync.Mutex
	history []chat.Message
	posts   []string
	fetches int
}

func (f *fakeTransport) FetchHistory(context.Context, string) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return chat.CloneMessages(f.history), nil
}

func (f *fakeTransport) PostMessage(_ context.Context, _ string, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, message)
	f.history = append(f.history, chat.NewUserMessage(message), chat.NewAssistantMessage("meow"))
	return nil
}

func (f *fakeTransport) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func newTestModel(t *testing.T, opts ...Option) (Model, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	sess := session.New(session.NewMemoryStore(), session.WithFixedID("thread-1-test"))
	m := NewModel(context.Background(), ft, sess, opts...)
	res := m.openCmd()()
	opened, ok := res.(openedMsg)
	require.True(t, ok)
	require.NoError(t, opened.err)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), ft
}

func TestBlankEnterSendsNothing(t *testing.T) {
	m, ft := newTestModel(t)
	m.input.SetValue("   ")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Empty(t, ft.posts)
}

func TestEnterSendsAndRefreshes(t *testing.T) {
	m, ft := newTestModel(t)
	m.input.SetValue("hello cat")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m = next.(Model)
	require.True(t, m.state.Loading)

	// A second enter while loading is dropped.
	_, again := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, again)

	msg := cmd()
	sent, ok := msg.(sentMsg)
	require.True(t, ok)
	require.NoError(t, sent.err)
	require.Equal(t, []string{"hello cat"}, ft.posts)

	next, _ = m.Update(sent)
	m = next.(Model)
	require.Equal(t, "", m.input.Value())

	next, _ = m.Update(changedMsg{})
	m = next.(Model)
	require.False(t, m.state.Loading)
	require.Len(t, m.state.Messages, 2)
	require.Contains(t, m.viewport.View(), "meow")
}

func TestCopyLastReply(t *testing.T) {
	var copied string
	m, ft := newTestModel(t, WithClipboard(func(s string) error {
		copied = s
		return nil
	}))
	ft.history = []chat.Message{chat.NewUserMessage("q"), chat.NewAssistantMessage("the answer")}
	require.NoError(t, m.ctrl.Refresh(context.Background()))
	next, _ := m.Update(changedMsg{})
	m = next.(Model)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlY})
	require.NotNil(t, cmd)
	res := cmd().(copiedMsg)
	require.NoError(t, res.err)
	require.Equal(t, "the answer", copied)
}

func TestCopyWithNothingToCopy(t *testing.T) {
	m, _ := newTestModel(t, WithClipboard(func(string) error {
		t.Fatal("clipboard should not be written")
		return nil
	}))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlY})
	require.Nil(t, cmd)
	require.Equal(t, "Nothing to copy yet", next.(Model).status)
}

func TestNewConversationKey(t *testing.T) {
	m, _ := newTestModel(t)
	before := m.ctrl.ConversationID()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	require.NotNil(t, cmd)
	res := cmd().(resetMsg)
	require.NoError(t, res.err)
	require.True(t, res.res.Created)
	require.NotEqual(t, before, m.ctrl.ConversationID())
}

func TestViewShowsHeaderAndPlaceholder(t *testing.T) {
	m, _ := newTestModel(t)
	next, _ := m.Update(changedMsg{})
	view := next.(Model).View()
	require.Contains(t, view, "Conversation ID: thread-1-test")
	require.Contains(t, view, EmptyText)
	require.Contains(t, view, "sk me anything")
}

func TestQuitKey(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	require.True(t, ok)
}

func TestPollSkipsFetchWhileLoading(t *testing.T) {
	m, ft := newTestModel(t, WithPollInterval(time.Second))
	before := ft.fetchCount()
	m.state.Loading = true

	next, cmd := m.Update(pollMsg{})
	require.NotNil(t, cmd)
	require.Equal(t, before, ft.fetchCount())
	require.True(t, next.(Model).state.Loading)
}

func TestPollRefreshesWhileIdle(t *testing.T) {
	m, ft := newTestModel(t, WithPollInterval(time.Second))
	ft.mu.Lock()
	ft.history = []chat.Message{chat.NewUserMessage("q"), chat.NewAssistantMessage("polled reply")}
	ft.mu.Unlock()
	before := ft.fetchCount()

	_, cmd := m.Update(pollMsg{})
	require.NotNil(t, cmd)
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	require.Len(t, batch, 2)

	// The first command of the batch is the refresh, the second re-arms the tick.
	res, ok := batch[0]().(refreshedMsg)
	require.True(t, ok)
	require.NoError(t, res.err)
	require.Equal(t, before+1, ft.fetchCount())
	require.Len(t, m.ctrl.Snapshot().Messages, 2)
}

func TestRefreshKeyIgnoredWhileLoading(t *testing.T) {
	m, ft := newTestModel(t)
	before := ft.fetchCount()
	m.state.Loading = true

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	require.Nil(t, cmd)
	require.Equal(t, before, ft.fetchCount())
}
