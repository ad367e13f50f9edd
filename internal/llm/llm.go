// Package llm adapts vendor chat-completion APIs to one pull-based
// streaming interface. The agent loop only ever sees text fragments; it
// never learns which vendor produced them.
package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client opens streamed completions over a message history.
type Client interface {
	// Stream starts a completion. The returned Stream must be closed.
	Stream(ctx context.Context, messages []Message) (Stream, error)
}

// Stream is a finite, non-restartable sequence of text fragments.
// Recv returns io.EOF after the last fragment. Close may be called at
// any point, including before the end, and releases the connection.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Options configure a provider adapter.
type Options struct {
	Model       string
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float32
	// Timeout bounds one streamed request end to end. Zero relies on
	// the caller's context alone.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (o Options) logger(provider string) *slog.Logger {
	l := o.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("provider", provider, "model", o.Model)
}

// Collect drains s and returns the concatenated text. s is closed.
func Collect(s Stream) (string, error) {
	defer s.Close()
	var b strings.Builder
	for {
		frag, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(frag)
	}
}

// splitSystem separates system turns, joined by blank lines, from the
// rest. Consecutive turns with the same role are merged for vendors
// that require strict user/assistant alternation.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].Role == m.Role {
			turns[n-1].Content += "\n\n" + m.Content
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

// withTimeout derives the per-stream context. The cancel func must be
// called when the stream is closed.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
