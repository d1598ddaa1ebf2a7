// Package chat holds the wire types shared by the client, the renderer and
// the development backend.
package chat

import "strings"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsUser reports whether the message was written by the human side of the
// conversation. Any other role is rendered like an assistant reply.
func (r Role) IsUser() bool {
	return Role(strings.ToLower(string(r))) == RoleUser
}

// ToolCall records an automated action the assistant took while producing a
// reply. Output is the tool's result serialized as a JSON string.
type ToolCall struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Output string `json:"output" yaml:"output"`
	Type   string `json:"type" yaml:"type"`
}

// Message is one entry of a conversation thread.
type Message struct {
	Role      Role       `json:"role" yaml:"role"`
	Content   string     `json:"content" yaml:"content"`
	ID        string     `json:"id,omitempty" yaml:"id,omitempty"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty" yaml:"toolCalls,omitempty"`
}

// NewUserMessage builds a message authored by the user.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage builds an assistant reply with optional tool calls.
func NewAssistantMessage(content string, toolCalls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// FirstToolCall returns the first tool call of the message, if any.
func (m Message) FirstToolCall() (ToolCall, bool) {
	if len(m.ToolCalls) == 0 {
		return ToolCall{}, false
	}
	return m.ToolCalls[0], true
}

// CloneMessages returns a copy of msgs that shares no slice storage with it.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if m.ToolCalls != nil {
			out[i].ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		}
	}
	return out
}

// LastAssistant returns the most recent non-user message.
func LastAssistant(msgs []Message) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].Role.IsUser() {
			return msgs[i], true
		}
	}
	return Message{}, false
}
