// Package conversation holds the client-side state of one chat thread and
// the send/refresh operations that mutate it.
package conversation

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"

	"github.com/go-go-golems/catchat/pkg/chat"
	"github.com/go-go-golems/catchat/pkg/session"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SendErrorMessage is what the user sees when posting a message fails.
const SendErrorMessage = "Error sending message. Please try again."

var (
	// ErrEmptyMessage is returned for blank input; nothing is sent.
	ErrEmptyMessage = stderrors.New("empty message")
	// ErrBusy is returned while a previous message is still being sent.
	ErrBusy = stderrors.New("a message is already being sent")
	// ErrNotOpen is returned when Open has not established a conversation id.
	ErrNotOpen = stderrors.New("conversation not opened")
)

// Transport is the subset of the chat service client the controller needs.
type Transport interface {
	FetchHistory(ctx context.Context, conversationID string) ([]chat.Message, error)
	PostMessage(ctx context.Context, conversationID, message string) error
}

// State is a copy of the controller state at one point in time.
type State struct {
	ConversationID string
	Messages       []chat.Message
	Input          string
	Loading        bool
	// Error is the user-visible error of the last send, or "".
	Error string
}

// Controller is safe for concurrent use. At most one Send runs at a time.
type Controller struct {
	transport Transport
	session   *session.Session
	onChange  func(State)

	mu       sync.Mutex
	messages []chat.Message
	input    string
	loading  bool
	errMsg   string
	// gen is bumped by Reset; fetches started under an older gen are dropped.
	gen uint64
}

type Option func(*Controller)

// WithOnChange registers a callback invoked with a fresh snapshot after
// every state change. It is called without the controller lock held.
func WithOnChange(f func(State)) Option {
	return func(c *Controller) {
		c.onChange = f
	}
}

func NewController(transport Transport, sess *session.Session, opts ...Option) *Controller {
	c := &Controller{
		transport: transport,
		session:   sess,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open establishes the conversation id. A reused id has history upstream, so
// it is fetched right away; a fresh id starts with an empty thread.
func (c *Controller) Open(ctx context.Context) (session.InitResult, error) {
	res, err := c.session.Init(ctx)
	if err != nil {
		return res, err
	}
	c.notify()
	if !res.Created {
		_ = c.Refresh(ctx)
	}
	return res, nil
}

// ConversationID is the active id, "" before Open.
func (c *Controller) ConversationID() string {
	return c.session.ID()
}

// SetInput records the pending, not yet sent, user input.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
	c.notify()
}

// ClearError dismisses the last send error.
func (c *Controller) ClearError() {
	c.mu.Lock()
	c.errMsg = ""
	c.mu.Unlock()
	c.notify()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		ConversationID: c.session.ID(),
		Messages:       chat.CloneMessages(c.messages),
		Input:          c.input,
		Loading:        c.loading,
		Error:          c.errMsg,
	}
}

// Send posts text to the service. The user message is appended locally before
// the request goes out; on success the whole list is replaced by the
// server's history. Input and loading are reset however the call ends.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	id := c.session.ID()
	if id == "" {
		return ErrNotOpen
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.loading = true
	c.errMsg = ""
	optimistic := chat.NewUserMessage(text)
	optimistic.ID = "local-" + uuid.NewString()
	c.messages = append(c.messages, optimistic)
	c.mu.Unlock()
	c.notify()

	defer func() {
		c.mu.Lock()
		c.loading = false
		c.input = ""
		c.mu.Unlock()
		c.notify()
	}()

	if err := c.transport.PostMessage(ctx, id, text); err != nil {
		log.Error().Err(err).Str("conversation_id", id).Msg("error sending message")
		c.mu.Lock()
		c.errMsg = SendErrorMessage
		c.mu.Unlock()
		return errors.Wrap(err, "send message")
	}

	_ = c.Refresh(ctx)
	return nil
}

// Refresh replaces the message list with the server's history. On failure
// the current list is kept and the error is only logged and returned. A
// result that arrives after the conversation was reset is discarded.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	id := c.session.ID()
	if id == "" {
		return ErrNotOpen
	}
	msgs, err := c.transport.FetchHistory(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", id).Msg("error fetching chat history")
		return errors.Wrap(err, "refresh history")
	}
	c.mu.Lock()
	if c.gen != gen || c.session.ID() != id {
		c.mu.Unlock()
		log.Debug().Str("conversation_id", id).Msg("dropping history of a previous conversation")
		return nil
	}
	c.messages = chat.CloneMessages(msgs)
	c.mu.Unlock()
	c.notify()
	return nil
}

// Reset clears the stored conversation id and starts a new, empty thread.
func (c *Controller) Reset(ctx context.Context) (session.InitResult, error) {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return session.InitResult{}, ErrBusy
	}
	c.gen++
	c.messages = nil
	c.input = ""
	c.errMsg = ""
	c.mu.Unlock()

	if err := c.session.Clear(ctx); err != nil {
		return session.InitResult{}, err
	}
	res, err := c.session.Init(ctx)
	c.notify()
	return res, err
}

func (c *Controller) notify() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.Snapshot())
}
