// Package ui is the bubbletea front end of a conversation.Controller.
package ui

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/catchat/pkg/chat"
	"github.com/go-go-golems/catchat/pkg/conversation"
	"github.com/go-go-golems/catchat/pkg/session"
	"github.com/rs/zerolog/log"
)

type changedMsg struct{}

type pollMsg struct{}

type openedMsg struct {
	res session.InitResult
	err error
}

type sentMsg struct{ err error }

type refreshedMsg struct{ err error }

type resetMsg struct {
	res session.InitResult
	err error
}

type copiedMsg struct{ err error }

type Model struct {
	ctx     context.Context
	ctrl    *conversation.Controller
	changes chan struct{}
	state   conversation.State

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	keys     keyMap

	renderer     ContentRenderer
	copyFn       func(string) error
	pollInterval time.Duration

	width  int
	height int
	ready  bool
	status string
	err    string
}

type Option func(*Model)

// WithRenderer sets how message content is rendered. Defaults to plain text.
func WithRenderer(r ContentRenderer) Option {
	return func(m *Model) {
		m.renderer = r
	}
}

// WithPollInterval re-fetches history every d while idle. Zero disables it.
func WithPollInterval(d time.Duration) Option {
	return func(m *Model) {
		m.pollInterval = d
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(f func(string) error) Option {
	return func(m *Model) {
		m.copyFn = f
	}
}

// NewModel builds the controller for transport and sess and wires its change
// notifications into the bubbletea loop.
func NewModel(ctx context.Context, transport conversation.Transport, sess *session.Session, opts ...Option) Model {
	changes := make(chan struct{}, 1)
	ctrl := conversation.NewController(transport, sess, conversation.WithOnChange(func(conversation.State) {
		select {
		case changes <- struct{}{}:
		default:
		}
	}))

	ti := textinput.New()
	ti.Placeholder = Placeholder
	ti.Prompt = "> "
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = thinkingStyle

	m := Model{
		ctx:      ctx,
		ctrl:     ctrl,
		changes:  changes,
		input:    ti,
		spinner:  sp,
		keys:     defaultKeyMap(),
		renderer: PlainRenderer{},
		copyFn:   clipboard.WriteAll,
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

// Controller exposes the underlying controller.
func (m Model) Controller() *conversation.Controller { return m.ctrl }

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.spinner.Tick,
		m.openCmd(),
		m.waitForChange(),
	}
	if m.pollInterval > 0 {
		cmds = append(cmds, m.pollCmd())
	}
	return tea.Batch(cmds...)
}

func (m Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changes:
			return changedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m Model) pollCmd() tea.Cmd {
	return tea.Tick(m.pollInterval, func(time.Time) tea.Msg { return pollMsg{} })
}

func (m Model) openCmd() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		res, err := ctrl.Open(ctx)
		return openedMsg{res: res, err: err}
	}
}

func (m Model) sendCmd(text string) tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return sentMsg{err: ctrl.Send(ctx, text)}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return refreshedMsg{err: ctrl.Refresh(ctx)}
	}
}

func (m Model) resetCmd() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		res, err := ctrl.Reset(ctx)
		return resetMsg{res: res, err: err}
	}
}

func (m Model) copyCmd(text string) tea.Cmd {
	copyFn := m.copyFn
	return func() tea.Msg {
		return copiedMsg{err: copyFn(text)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		h := m.viewportHeight()
		if !m.ready {
			m.viewport = viewport.New(msg.Width, h)
			m.viewport.KeyMap = viewportKeyMap()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = h
		}
		m.input.Width = msg.Width - 6
		m.syncContent()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case changedMsg:
		m.state = m.ctrl.Snapshot()
		m.syncContent()
		return m, m.waitForChange()

	case openedMsg:
		if msg.err != nil {
			log.Error().Err(msg.err).Msg("could not open conversation")
			m.err = "Could not open conversation: " + msg.err.Error()
			return m, nil
		}
		if msg.res.Created {
			m.status = "Started a new conversation"
		} else {
			m.status = "Resumed conversation"
		}
		return m, nil

	case sentMsg:
		m.input.Reset()
		m.input.Focus()
		switch {
		case msg.err == nil:
			m.err = ""
		case stderrors.Is(msg.err, conversation.ErrBusy), stderrors.Is(msg.err, conversation.ErrEmptyMessage):
		default:
			m.err = conversation.SendErrorMessage
		}
		return m, textinput.Blink

	case refreshedMsg:
		if msg.err != nil {
			m.err = "Could not refresh history"
		} else {
			m.err = ""
			m.status = "History refreshed"
		}
		return m, nil

	case resetMsg:
		if msg.err != nil {
			if stderrors.Is(msg.err, conversation.ErrBusy) {
				m.status = "Wait for the reply before starting a new conversation"
				return m, nil
			}
			log.Error().Err(msg.err).Msg("could not reset conversation")
			m.err = "Could not start a new conversation"
			return m, nil
		}
		m.err = ""
		m.status = "Started a new conversation"
		m.input.Reset()
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			log.Warn().Err(msg.err).Msg("clipboard write failed")
			m.err = "Could not copy to clipboard"
		} else {
			m.status = "Copied last reply to clipboard"
		}
		return m, nil

	case pollMsg:
		if m.state.Loading {
			return m, m.pollCmd()
		}
		return m, tea.Batch(m.refreshCmd(), m.pollCmd())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.state.Loading {
			m.syncContent()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Send):
		if m.state.Loading {
			return m, nil
		}
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.ctrl.SetInput(text)
		m.input.Blur()
		// Loading is set by the controller once the command runs; mark it
		// here as well so a second enter in the same frame is dropped.
		m.state.Loading = true
		m.status = ""
		return m, m.sendCmd(text)

	case key.Matches(msg, m.keys.Refresh):
		// The send refreshes on its own once it completes.
		if m.state.Loading {
			return m, nil
		}
		return m, m.refreshCmd()

	case key.Matches(msg, m.keys.Copy):
		last, ok := chat.LastAssistant(m.state.Messages)
		if !ok {
			m.status = "Nothing to copy yet"
			return m, nil
		}
		return m, m.copyCmd(last.Content)

	case key.Matches(msg, m.keys.New):
		return m, m.resetCmd()

	case key.Matches(msg, m.viewport.KeyMap.PageUp, m.viewport.KeyMap.PageDown,
		m.viewport.KeyMap.Up, m.viewport.KeyMap.Down):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.state.Loading {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// header, blank line, input box (3 lines), status and help.
const chromeHeight = 7

func (m Model) viewportHeight() int {
	h := m.height - chromeHeight
	if h < 3 {
		h = 3
	}
	return h
}

func (m *Model) syncContent() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(RenderTranscript(m.state, m.viewport.Width, m.renderer, m.spinner.View()+" "+ThinkingText))
	if atBottom || m.state.Loading {
		m.viewport.GotoBottom()
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	id := m.state.ConversationID
	if id == "" {
		id = m.ctrl.ConversationID()
	}

	var status string
	switch {
	case m.err != "":
		status = errorStyle.Render(m.err)
	case m.state.Error != "":
		status = errorStyle.Render(m.state.Error)
	case m.status != "":
		status = statusStyle.Render(m.status)
	}

	return strings.Join([]string{
		headerStyle.Render(Header(id)),
		m.viewport.View(),
		inputBorderStyle.Width(max(m.width-2, 10)).Render(m.input.View()),
		status,
		helpStyle.Render(m.keys.help()),
	}, "\n")
}
