package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-go-golems/catchat/pkg/chat"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Responder produces the assistant reply to a user message.
type Responder interface {
	Respond(ctx context.Context, conversationID string, history []chat.Message, text string) (chat.Message, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, conversationID string, history []chat.Message, text string) (chat.Message, error)

func (f ResponderFunc) Respond(ctx context.Context, conversationID string, history []chat.Message, text string) (chat.Message, error) {
	return f(ctx, conversationID, history, text)
}

// SearchToolName is the name of the tool call the echo responder attaches.
const SearchToolName = "search_knowledge_base"

// EchoResponder answers with a markdown echo of the user message and a
// search tool call whose output lists a few fake sources, one of them twice.
type EchoResponder struct {
	// SourceBaseURL prefixes the generated source urls.
	SourceBaseURL string
}

var _ Responder = EchoResponder{}

type contextItem struct {
	URL      string         `json:"url,omitempty"`
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (e EchoResponder) Respond(_ context.Context, conversationID string, history []chat.Message, text string) (chat.Message, error) {
	base := e.SourceBaseURL
	if base == "" {
		base = "https://docs.example.com"
	}
	topic := url.PathEscape(topicSlug(text, 48))

	items := []contextItem{
		{URL: base + "/cats/" + topic, Title: "On " + firstWords(text, 6)},
		{URL: base + "/cats/care", Title: "Cat care basics"},
		{URL: base + "/cats/" + topic, Title: "Duplicate of the first result"},
		{Metadata: map[string]any{"score": 0.12}},
	}
	output, err := json.Marshal(map[string]any{"context": items})
	if err != nil {
		return chat.Message{}, errors.Wrap(err, "encode tool output")
	}

	turns := 0
	for _, m := range history {
		if m.Role.IsUser() {
			turns++
		}
	}
	content := fmt.Sprintf("Meow. You said:\n\n> %s\n\nThat makes **%d** message(s) in `%s`.",
		text, turns, conversationID)

	msg := chat.NewAssistantMessage(content, chat.ToolCall{
		ID:     "call_" + uuid.NewString(),
		Name:   SearchToolName,
		Output: string(output),
		Type:   "function",
	})
	msg.ID = uuid.NewString()
	return msg, nil
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = append(words[:n], "…")
	}
	return strings.Join(words, " ")
}

// topicSlug joins the lowercased words of s with dashes, cut to at most n
// runes.
func topicSlug(s string, n int) string {
	slug := []rune(strings.ToLower(strings.Join(strings.Fields(s), "-")))
	if len(slug) > n {
		slug = slug[:n]
	}
	return strings.TrimRight(string(slug), "-")
}
