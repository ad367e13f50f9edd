package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/nugget/minimcp/internal/config"
)

// OpenAI streams from the OpenAI chat completions API or any vendor
// that speaks it (DeepSeek, vLLM, llama.cpp server) via BaseURL.
type OpenAI struct {
	client *openai.Client
	opts   Options
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI-compatible client.
func NewOpenAI(opts Options) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		opts:   opts,
		logger: opts.logger(config.ProviderOpenAI),
	}
}

// Stream implements Client.
func (c *OpenAI) Stream(ctx context.Context, messages []Message) (Stream, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	req := openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		Messages:    msgs,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		Stream:      true,
	}

	c.logger.Debug("opening stream", "messages", len(msgs))

	ctx, cancel := withTimeout(ctx, c.opts.Timeout)
	s, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("openai stream: %w", err)
	}
	return &openAIStream{s: s, cancel: cancel, logger: c.logger}, nil
}

type openAIStream struct {
	s      *openai.ChatCompletionStream
	cancel context.CancelFunc
	logger *slog.Logger
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.s.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("openai stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			s.logger.Debug("stream finished", "reason", choice.FinishReason)
		}
		if choice.Delta.Content == "" {
			continue
		}
		return choice.Delta.Content, nil
	}
}

func (s *openAIStream) Close() error {
	defer s.cancel()
	return s.s.Close()
}
