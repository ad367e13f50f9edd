// Package docs is a small document toolset exposed over MCP by
// "minimcp serve -toolset docs": markdown rendering, visible-text
// extraction from HTML, and word counting.
package docs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/nugget/minimcp/internal/mcp"
)

// Instructions is the initialize-time description of the toolset.
const Instructions = "Document helpers: render markdown to HTML, extract readable text from HTML, count words."

// RenderMarkdown converts CommonMark to an HTML fragment.
func RenderMarkdown(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Tools returns render_markdown, extract_text and word_count.
func Tools() []mcp.ExposedTool {
	return []mcp.ExposedTool{
		{
			Name:        "render_markdown",
			Description: "Render markdown to an HTML fragment",
			Params: map[string]mcp.Property{
				"markdown": {Type: "string", Description: "Markdown source"},
			},
			Required: []string{"markdown"},
			Invoke: func(_ context.Context, args map[string]any) (any, error) {
				md, err := stringArg(args, "markdown")
				if err != nil {
					return nil, err
				}
				return RenderMarkdown(md)
			},
		},
		{
			Name:        "extract_text",
			Description: "Extract the title and visible text of an HTML document",
			Params: map[string]mcp.Property{
				"html": {Type: "string", Description: "HTML source"},
			},
			Required: []string{"html"},
			Invoke: func(_ context.Context, args map[string]any) (any, error) {
				raw, err := stringArg(args, "html")
				if err != nil {
					return nil, err
				}
				title, text := ExtractText(raw)
				if title == "" {
					return text, nil
				}
				return "# " + title + "\n\n" + text, nil
			},
		},
		{
			Name:        "word_count",
			Description: "Count the words in a text",
			Params: map[string]mcp.Property{
				"text": {Type: "string", Description: "Text to count"},
			},
			Required: []string{"text"},
			Invoke: func(_ context.Context, args map[string]any) (any, error) {
				text, err := stringArg(args, "text")
				if err != nil {
					return nil, err
				}
				return map[string]int{"words": WordCount(text), "chars": len([]rune(text))}, nil
			},
		},
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.New(key + " must be a string")
	}
	return s, nil
}
