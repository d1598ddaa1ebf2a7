package cmds

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/catchat/pkg/chat"
	"github.com/go-go-golems/catchat/pkg/sources"
	"github.com/go-go-golems/catchat/pkg/tokens"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type Transcript struct {
	ConversationID string         `json:"conversationId" yaml:"conversationId"`
	Messages       []chat.Message `json:"messages" yaml:"messages"`
	Stats          *Stats         `json:"stats,omitempty" yaml:"stats,omitempty"`
}

type Stats struct {
	Messages          int    `json:"messages" yaml:"messages"`
	UserMessages      int    `json:"userMessages" yaml:"userMessages"`
	AssistantMessages int    `json:"assistantMessages" yaml:"assistantMessages"`
	Sources           int    `json:"sources" yaml:"sources"`
	Tokens            int    `json:"tokens" yaml:"tokens"`
	Tokenizer         string `json:"tokenizer" yaml:"tokenizer"`
}

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return errors.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

// computeStats counts messages, deduplicated sources and content tokens.
func computeStats(msgs []chat.Message, counter tokens.Counter) (*Stats, error) {
	st := &Stats{Messages: len(msgs), Tokenizer: counter.Name()}
	for _, m := range msgs {
		if m.Role.IsUser() {
			st.UserMessages++
		} else {
			st.AssistantMessages++
			st.Sources += len(sources.Extract(m))
		}
		n, err := counter.Count(m.Content)
		if err != nil {
			return nil, errors.Wrap(err, "count tokens")
		}
		st.Tokens += n
	}
	return st, nil
}

func writeTranscripts(w io.Writer, format string, ts []Transcript) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(ts), "encode json")
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(ts); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return errors.Wrap(enc.Close(), "encode yaml")
	default:
		for i, t := range ts {
			if i > 0 {
				fmt.Fprintln(w)
			}
			writeText(w, t)
		}
		return nil
	}
}

func writeText(w io.Writer, t Transcript) {
	fmt.Fprintf(w, "Conversation ID: %s\n", t.ConversationID)
	if len(t.Messages) == 0 {
		fmt.Fprintln(w, "(no messages)")
	}
	for _, m := range t.Messages {
		role := string(m.Role)
		if role == "" {
			role = string(chat.RoleAssistant)
		}
		fmt.Fprintf(w, "\n%s:\n", role)
		for _, line := range strings.Split(strings.TrimRight(m.Content, "\n"), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
		if m.Role.IsUser() {
			continue
		}
		if block := sources.Render(sources.Extract(m)); block != "" {
			for _, line := range strings.Split(strings.TrimRight(block, "\n"), "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
	}
	if st := t.Stats; st != nil {
		fmt.Fprintf(w, "\n%d messages (%d user, %d assistant), %d sources, %d tokens (%s)\n",
			st.Messages, st.UserMessages, st.AssistantMessages, st.Sources, st.Tokens, st.Tokenizer)
	}
}
