package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/nugget/minimcp/internal/config"
)

// Anthropic streams from the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	opts   Options
	logger *slog.Logger
}

// NewAnthropic creates an Anthropic client. An empty APIKey falls back
// to the SDK's ANTHROPIC_API_KEY lookup.
func NewAnthropic(opts Options) *Anthropic {
	var ro []option.RequestOption
	if opts.APIKey != "" {
		ro = append(ro, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		ro = append(ro, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		ro = append(ro, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	return &Anthropic{
		client: anthropic.NewClient(ro...),
		opts:   opts,
		logger: opts.logger(config.ProviderAnthropic),
	}
}

// Stream implements Client. System turns become the system parameter.
func (c *Anthropic) Stream(ctx context.Context, messages []Message) (Stream, error) {
	system, turns := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.opts.Model),
		MaxTokens: int64(c.opts.MaxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(turns)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if c.opts.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.opts.Temperature))
	}
	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	c.logger.Debug("opening stream", "messages", len(params.Messages), "system_len", len(system))

	ctx, cancel := withTimeout(ctx, c.opts.Timeout)
	s := c.client.Messages.NewStreaming(ctx, params)
	if err := s.Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}
	return &anthropicStream{s: s, cancel: cancel, logger: c.logger}, nil
}

type anthropicStream struct {
	s      *ssestream.Stream[anthropic.MessageStreamEventUnion]
	cancel context.CancelFunc
	logger *slog.Logger
}

func (s *anthropicStream) Recv() (string, error) {
	for s.s.Next() {
		switch ev := s.s.Current().AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				return delta.Text, nil
			}
		case anthropic.MessageDeltaEvent:
			s.logger.Debug("stream finished",
				"reason", ev.Delta.StopReason,
				"output_tokens", ev.Usage.OutputTokens,
			)
		}
	}
	if err := s.s.Err(); err != nil {
		return "", fmt.Errorf("anthropic stream: %w", err)
	}
	return "", io.EOF
}

func (s *anthropicStream) Close() error {
	defer s.cancel()
	return s.s.Close()
}
