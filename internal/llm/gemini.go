package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/nugget/minimcp/internal/config"
)

// Gemini streams from the Google Gemini API.
type Gemini struct {
	client *genai.Client
	opts   Options
	logger *slog.Logger
}

// NewGemini creates a Gemini client. The caller must Close it.
func NewGemini(ctx context.Context, opts Options) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: missing api key (set llm.api_key or GEMINI_API_KEY)")
	}
	co := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		co = append(co, option.WithEndpoint(opts.BaseURL))
	}
	client, err := genai.NewClient(ctx, co...)
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &Gemini{
		client: client,
		opts:   opts,
		logger: opts.logger(config.ProviderGemini),
	}, nil
}

// Close releases the underlying connection.
func (c *Gemini) Close() error {
	return c.client.Close()
}

// Stream implements Client. Everything but the last turn is sent as
// chat history; the last turn is the message being answered.
func (c *Gemini) Stream(ctx context.Context, messages []Message) (Stream, error) {
	system, history := geminiHistory(messages)
	if len(history) == 0 {
		return nil, errors.New("gemini: no user turn to answer")
	}
	last := history[len(history)-1]
	if last.Role != "user" {
		return nil, errors.New("gemini: last turn must come from the user")
	}

	model := c.client.GenerativeModel(c.opts.Model)
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	if c.opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(c.opts.MaxTokens))
	}
	if c.opts.Temperature > 0 {
		model.SetTemperature(c.opts.Temperature)
	}

	cs := model.StartChat()
	cs.History = history[:len(history)-1]

	c.logger.Debug("opening stream", "history", len(cs.History), "system_len", len(system))

	ctx, cancel := withTimeout(ctx, c.opts.Timeout)
	it := cs.SendMessageStream(ctx, last.Parts...)
	return &geminiStream{it: it, cancel: cancel}, nil
}

// geminiHistory converts messages to Gemini contents. Gemini calls the
// assistant role "model".
func geminiHistory(messages []Message) (string, []*genai.Content) {
	system, turns := splitSystem(messages)
	out := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return system, out
}

type geminiStream struct {
	it     *genai.GenerateContentResponseIterator
	cancel context.CancelFunc
	// pending holds text from a response that has not been returned.
	pending string
}

func (s *geminiStream) Recv() (string, error) {
	for s.pending == "" {
		resp, err := s.it.Next()
		if errors.Is(err, iterator.Done) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("gemini stream: %w", err)
		}
		s.pending = responseText(resp)
	}
	frag := s.pending
	s.pending = ""
	return frag, nil
}

func (s *geminiStream) Close() error {
	s.cancel()
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	return b.String()
}
