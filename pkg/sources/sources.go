// Package sources extracts the source citations that an assistant's tool
// call embeds in its JSON output.
//
// The output of the first tool call on a message is expected to look like
//
//	{"context": [{"url": "...", "title": "..."}, ...]}
//
// Anything else degrades to "no sources".
package sources

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-go-golems/catchat/pkg/chat"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Entry is a single source citation. Either field may be empty, never both.
type Entry struct {
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
}

// Label is the text shown for the entry: its title, or its url when untitled.
func (e Entry) Label() string {
	if e.Title != "" {
		return e.Title
	}
	return e.URL
}

var (
	// ErrNoToolCall is returned when the message carries no tool call.
	ErrNoToolCall = stderrors.New("message has no tool call")
	// ErrNoContext is returned when the tool output has no context sequence.
	ErrNoContext = stderrors.New("tool output has no context")
)

// ToolOutput is the validated shape of a tool call output.
type ToolOutput struct {
	// Context holds one item per retrieved document. Items that carry
	// neither url nor title are already dropped.
	Context []Entry
	// Skipped counts context items that were dropped.
	Skipped int
}

type rawToolOutput struct {
	Context *[]json.RawMessage `json:"context"`
}

// ParseToolOutput decodes and validates a tool call output string.
func ParseToolOutput(output string) (*ToolOutput, error) {
	var raw rawToolOutput
	if err := json.Unmarshal([]byte(output), &raw); err != nil {
		return nil, errors.Wrap(err, "decode tool output")
	}
	if raw.Context == nil {
		return nil, ErrNoContext
	}

	ret := &ToolOutput{Context: make([]Entry, 0, len(*raw.Context))}
	for _, item := range *raw.Context {
		e, ok := decodeItem(item)
		if !ok {
			ret.Skipped++
			continue
		}
		ret.Context = append(ret.Context, e)
	}
	return ret, nil
}

// decodeItem copies url and title out of a context item. Null items,
// non-object items and items with neither field are rejected. Non-string
// values count as absent.
func decodeItem(item json.RawMessage) (Entry, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return Entry{}, false
	}
	e := Entry{
		URL:   stringField(fields, "url"),
		Title: stringField(fields, "title"),
	}
	if e.URL == "" && e.Title == "" {
		return Entry{}, false
	}
	return e, true
}

func stringField(fields map[string]json.RawMessage, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

// ForMessage returns the deduplicated sources of msg or an error describing
// why there are none. Only the first tool call is inspected.
func ForMessage(msg chat.Message) ([]Entry, error) {
	tc, ok := msg.FirstToolCall()
	if !ok {
		return nil, ErrNoToolCall
	}
	out, err := ParseToolOutput(tc.Output)
	if err != nil {
		return nil, err
	}
	return Dedupe(out.Context), nil
}

// Extract is the rendering-side entry point: it never fails, and returns nil
// when there is nothing to show.
func Extract(msg chat.Message) []Entry {
	entries, err := ForMessage(msg)
	if err != nil {
		if !stderrors.Is(err, ErrNoToolCall) {
			log.Debug().Err(err).Str("message_id", msg.ID).Msg("no sources in tool output")
		}
		return nil
	}
	if len(entries) == 0 {
		return nil
	}
	return entries
}

// Dedupe keeps the first entry for every url, preserving order. Entries
// without a url share the empty key and collapse as well.
func Dedupe(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	ret := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.URL]; ok {
			continue
		}
		seen[e.URL] = struct{}{}
		ret = append(ret, e)
	}
	return ret
}

// Render formats entries as a numbered "Sources" block. It returns the empty
// string for an empty list.
func Render(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Sources:\n")
	for i, e := range entries {
		switch {
		case e.Title != "" && e.URL != "":
			fmt.Fprintf(&sb, "  %d. %s (%s)\n", i+1, e.Title, e.URL)
		default:
			fmt.Fprintf(&sb, "  %d. %s\n", i+1, e.Label())
		}
	}
	return sb.String()
}
