package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
)

// ContentRenderer turns message content into terminal text at most width
// columns wide.
type ContentRenderer interface {
	Render(content string, width int) string
}

// PlainRenderer wraps content without interpreting markdown.
type PlainRenderer struct{}

func (PlainRenderer) Render(content string, width int) string {
	content = strings.TrimSpace(content)
	if width <= 0 {
		return content
	}
	wrapped := lipgloss.NewStyle().Width(width).Render(content)
	lines := strings.Split(wrapped, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n")
}

// MarkdownRenderer renders content with glamour. Renderers are cached per
// width since building one parses the whole style sheet.
type MarkdownRenderer struct {
	style     string
	renderers map[int]*glamour.TermRenderer
	fallback  PlainRenderer
}

// NewMarkdownRenderer uses one of glamour's standard styles ("dark",
// "light", "notty", ...). The zero value picks "dark".
func NewMarkdownRenderer(style string) *MarkdownRenderer {
	if style == "" {
		style = "dark"
	}
	return &MarkdownRenderer{
		style:     style,
		renderers: map[int]*glamour.TermRenderer{},
	}
}

func (r *MarkdownRenderer) Render(content string, width int) string {
	tr, err := r.renderer(width)
	if err != nil {
		log.Warn().Err(err).Msg("markdown renderer unavailable, falling back to plain text")
		return r.fallback.Render(content, width)
	}
	out, err := tr.Render(content)
	if err != nil {
		log.Debug().Err(err).Msg("markdown render failed")
		return r.fallback.Render(content, width)
	}
	return strings.Trim(out, "\n")
}

func (r *MarkdownRenderer) renderer(width int) (*glamour.TermRenderer, error) {
	if tr, ok := r.renderers[width]; ok {
		return tr, nil
	}
	opts := []glamour.TermRendererOption{glamour.WithStandardStyle(r.style)}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	tr, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, err
	}
	r.renderers[width] = tr
	return tr, nil
}
