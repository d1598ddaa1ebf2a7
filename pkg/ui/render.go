package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/catchat/pkg/chat"
	"github.com/go-go-golems/catchat/pkg/conversation"
	"github.com/go-go-golems/catchat/pkg/sources"
)

const (
	EmptyText    = "This is the start of your conversation with the feline assistant."
	ThinkingText = "Thinking..."
	Placeholder  = "Ask me anything..."
)

// Header is the line shown above the transcript.
func Header(conversationID string) string {
	return fmt.Sprintf("Conversation ID: %s", conversationID)
}

// RenderTranscript lays out the message list of st for a terminal width
// columns wide. thinking is appended while a send is outstanding; pass ""
// to use ThinkingText.
func RenderTranscript(st conversation.State, width int, renderer ContentRenderer, thinking string) string {
	if renderer == nil {
		renderer = PlainRenderer{}
	}
	if width <= 0 {
		width = 80
	}
	if thinking == "" {
		thinking = ThinkingText
	}

	blocks := []string{}
	if len(st.Messages) == 0 && !st.Loading {
		blocks = append(blocks, emptyStyle.Width(width).Render(EmptyText))
	}
	for _, msg := range st.Messages {
		blocks = append(blocks, renderMessage(msg, width, renderer))
	}
	if st.Loading {
		blocks = append(blocks, thinkingStyle.Render(thinking))
	}
	return strings.Join(blocks, "\n\n")
}

func renderMessage(msg chat.Message, width int, renderer ContentRenderer) string {
	bubbleWidth := width * 3 / 4
	if bubbleWidth < 20 {
		bubbleWidth = width
	}
	// Padding eats two columns of the bubble.
	contentWidth := bubbleWidth - 2

	if msg.Role.IsUser() {
		body := userBubbleStyle.Render(PlainRenderer{}.Render(msg.Content, contentWidth))
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, body)
	}

	body := assistantBubbleStyle.Render(renderer.Render(msg.Content, contentWidth))
	if block := sources.Render(sources.Extract(msg)); block != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, body, sourcesStyle.Render(strings.TrimRight(block, "\n")))
	}
	return lipgloss.PlaceHorizontal(width, lipgloss.Left, body)
}
