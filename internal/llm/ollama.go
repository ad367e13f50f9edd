package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/nugget/minimcp/internal/config"
	"github.com/nugget/minimcp/internal/httpkit"
)

// DefaultOllamaURL is used when neither BaseURL nor OLLAMA_HOST is set.
const DefaultOllamaURL = "http://localhost:11434"

// Ollama streams from a local Ollama server.
type Ollama struct {
	client *api.Client
	opts   Options
	logger *slog.Logger
}

// NewOllama creates an Ollama client for opts.BaseURL.
func NewOllama(opts Options) (*Ollama, error) {
	base := opts.BaseURL
	if base == "" {
		base = DefaultOllamaURL
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", base, err)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = httpkit.NewClient(httpkit.WithStreaming())
	}
	return &Ollama{
		client: api.NewClient(u, hc),
		opts:   opts,
		logger: opts.logger(config.ProviderOllama),
	}, nil
}

// Stream implements Client. The Ollama API delivers fragments through
// a callback; a goroutine feeds them to Recv one at a time.
func (c *Ollama) Stream(ctx context.Context, messages []Message) (Stream, error) {
	msgs := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, api.Message{Role: m.Role, Content: m.Content})
	}
	streaming := true
	req := &api.ChatRequest{
		Model:    c.opts.Model,
		Messages: msgs,
		Stream:   &streaming,
		Options:  map[string]any{},
	}
	if c.opts.MaxTokens > 0 {
		req.Options["num_predict"] = c.opts.MaxTokens
	}
	if c.opts.Temperature > 0 {
		req.Options["temperature"] = c.opts.Temperature
	}

	c.logger.Debug("opening stream", "messages", len(msgs))

	ctx, cancel := withTimeout(ctx, c.opts.Timeout)
	s := &callbackStream{
		frags:  make(chan string),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(s.done)
		s.err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Done {
				c.logger.Debug("stream finished",
					"reason", resp.DoneReason,
					"eval_count", resp.EvalCount,
				)
			}
			if resp.Message.Content == "" {
				return nil
			}
			select {
			case s.frags <- resp.Message.Content:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return s, nil
}

// callbackStream turns a push-style producer into a Stream. The
// producer goroutine closes done after setting err.
type callbackStream struct {
	frags  chan string
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

func (s *callbackStream) Recv() (string, error) {
	select {
	case frag := <-s.frags:
		return frag, nil
	case <-s.done:
		if s.err != nil {
			return "", fmt.Errorf("ollama stream: %w", s.err)
		}
		return "", io.EOF
	}
}

// Close abandons the request. Errors surface through Recv only.
func (s *callbackStream) Close() error {
	s.cancel()
	<-s.done
	return nil
}
