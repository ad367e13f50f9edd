package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/nugget/minimcp/internal/events"
	"github.com/nugget/minimcp/internal/llm"
	"github.com/nugget/minimcp/internal/mcp"
	"github.com/nugget/minimcp/internal/tools"
)

// turn is one scripted completion: either fragments or an error.
type turn struct {
	frags   []string
	err     error // returned by Stream
	recvErr error // returned by Recv after frags
}

// scriptedLLM replays turns in order and records what it was sent.
type scriptedLLM struct {
	mu      sync.Mutex
	turns   []turn
	calls   [][]llm.Message
	streams []*fakeStream
}

func (s *scriptedLLM) Stream(_ context.Context, messages []llm.Message) (llm.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, messages)
	if len(s.turns) == 0 {
		return nil, errors.New("script exhausted")
	}
	t := s.turns[0]
	if len(s.turns) > 1 {
		s.turns = s.turns[1:]
	}
	if t.err != nil {
		return nil, t.err
	}
	fs := &fakeStream{frags: t.frags, err: t.recvErr}
	s.streams = append(s.streams, fs)
	return fs, nil
}

type fakeStream struct {
	frags  []string
	err    error
	read   int
	closed bool
}

func (f *fakeStream) Recv() (string, error) {
	if f.closed {
		return "", errors.New("recv after close")
	}
	if f.read < len(f.frags) {
		f.read++
		return f.frags[f.read-1], nil
	}
	if f.err != nil {
		return "", f.err
	}
	return "", io.EOF
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

// recordingSink captures everything the loop hands out.
type recordingSink struct {
	content strings.Builder
	results []string
	answers []string
}

func (r *recordingSink) OnContent(s string)            { r.content.WriteString(s) }
func (r *recordingSink) OnToolResult(name, res string) { r.results = append(r.results, name+"="+res) }
func (r *recordingSink) OnFinalAnswer(a string)        { r.answers = append(r.answers, a) }

func testRegistry() *tools.Registry {
	reg := tools.NewRegistry(slog.New(slog.DiscardHandler))
	tools.RegisterBuiltins(reg, nil)
	reg.Register(&tools.Tool{
		Name:        "get_weather",
		Description: "Get the weather of a location",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"location": map[string]any{"type": "string"}},
			"required":   []string{"location"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			return "sunny in " + tools.StringArg(args, "location"), nil
		},
	})
	reg.Register(&tools.Tool{
		Name: "flaky",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "", errors.New("boom")
		},
	})
	reg.Register(&tools.Tool{
		Name: "broken_pipe",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "", fmt.Errorf("%w: write |1: broken pipe", mcp.ErrTransport)
		},
	})
	return reg
}

func newTestLoop(script *scriptedLLM, bus *events.Bus, maxIter int) *Loop {
	return NewLoop(Options{
		LLM:           script,
		Registry:      testRegistry(),
		SystemPrompt:  "sys",
		MaxIterations: maxIter,
		Bus:           bus,
		Logger:        slog.New(slog.DiscardHandler),
	})
}

const finalAnswer42 = "<final_answer><answer>42</answer></final_answer>"

func TestChat_FinalAnswer(t *testing.T) {
	script := &scriptedLLM{turns: []turn{
		{frags: []string{"<thinking>easy</thinking>\n<final_", "answer>\n<answer>42</answer>\n</final_answer>"}},
	}}
	loop := newTestLoop(script, nil, 0)
	sink := &recordingSink{}

	out, err := loop.Chat(context.Background(), "  what is six times seven?  ", sink)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Status != StatusAnswered || out.Answer != "42" {
		t.Errorf("outcome = %+v", out)
	}
	if len(sink.answers) != 1 || sink.answers[0] != "42" {
		t.Errorf("answers = %v", sink.answers)
	}

	hist := loop.History()
	if len(hist) != 3 {
		t.Fatalf("history len = %d, want 3", len(hist))
	}
	if hist[1].Content != "what is six times seven?" {
		t.Errorf("user turn = %q, want trimmed", hist[1].Content)
	}
	if hist[2].Role != llm.RoleAssistant || !strings.Contains(hist[2].Content, "</final_answer>") {
		t.Errorf("assistant turn = %+v", hist[2])
	}
}

func TestChat_ToolRoundStopsStreamEarly(t *testing.T) {
	script := &scriptedLLM{turns: []turn{
		{frags: []string{"<get_weather><location>Shanghai</location></get_weather>", " SHOULD NOT BE READ"}},
		{frags: []string{finalAnswer42}},
	}}
	loop := newTestLoop(script, nil, 0)
	sink := &recordingSink{}

	out, err := loop.Chat(context.Background(), "weather?", sink)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Iterations != 2 || out.ToolCalls != 2 {
		t.Errorf("outcome = %+v, want 2 iterations and 2 tool calls", out)
	}
	if strings.Contains(sink.content.String(), "SHOULD NOT") {
		t.Error("fragments after the call reached the sink")
	}
	if !script.streams[0].closed {
		t.Error("first stream not closed")
	}
	if len(sink.results) != 1 || sink.results[0] != "get_weather=sunny in Shanghai" {
		t.Errorf("tool results = %v", sink.results)
	}

	second := script.calls[1]
	last := second[len(second)-1]
	if last.Role != llm.RoleUser || last.Content != "tool result for get_weather: sunny in Shanghai" {
		t.Errorf("last message of second call = %+v", last)
	}
}

func TestChat_PlainReply(t *testing.T) {
	script := &scriptedLLM{turns: []turn{
		{frags: []string{"Hello! ", "<unknown_tool><x>1</x></unknown_tool>"}},
	}}
	loop := newTestLoop(script, nil, 0)

	out, err := loop.Chat(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Status != StatusReplied || out.ToolCalls != 0 {
		t.Errorf("outcome = %+v", out)
	}
	if !strings.HasPrefix(out.Reply, "Hello!") {
		t.Errorf("Reply = %q", out.Reply)
	}
}

func TestChat_ToolFailureContinues(t *testing.T) {
	script := &scriptedLLM{turns: []turn{
		{frags: []string{"<flaky></flaky>"}},
		{frags: []string{"<use_mcp_tool><server_name>nope</server_name><tool_name>x</tool_name></use_mcp_tool>"}},
		{frags: []string{finalAnswer42}},
	}}
	reg := testRegistry()
	mcp.RegisterUseTool(reg, mcp.NewHub(mcp.ClientOptions{}))
	loop := NewLoop(Options{LLM: script, Registry: reg, SystemPrompt: "sys", Logger: slog.New(slog.DiscardHandler)})

	out, err := loop.Chat(context.Background(), "go", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Status != StatusAnswered {
		t.Fatalf("status = %s", out.Status)
	}

	third := script.calls[2]
	var results []string
	for _, m := range third {
		if strings.HasPrefix(m.Content, "tool result for ") {
			results = append(results, m.Content)
		}
	}
	if len(results) != 2 {
		t.Fatalf("tool result turns = %v", results)
	}
	if !strings.Contains(results[0], "tool flaky failed: boom") {
		t.Errorf("flaky result = %q", results[0])
	}
	if !strings.Contains(results[1], "nope/x") {
		t.Errorf("unknown server result = %q", results[1])
	}
}

func TestChat_Exhausted(t *testing.T) {
	script := &scriptedLLM{turns: []turn{
		{frags: []string{"<get_weather><location>nyc</location></get_weather>"}},
	}}
	loop := newTestLoop(script, nil, 3)

	out, err := loop.Chat(context.Background(), "loop forever", nil)
	if !errors.Is(err, ErrRoundsExhausted) {
		t.Fatalf("err = %v, want ErrRoundsExhausted", err)
	}
	if out == nil || out.Status != StatusExhausted || out.Iterations != 3 {
		t.Errorf("outcome = %+v", out)
	}
	if len(script.calls) != 3 {
		t.Errorf("completions = %d, want 3", len(script.calls))
	}
}

func TestChat_StreamErrors(t *testing.T) {
	tests := []struct {
		name string
		turn turn
	}{
		{name: "open fails", turn: turn{err: errors.New("401 unauthorized")}},
		{name: "recv fails", turn: turn{frags: []string{"partial"}, recvErr: errors.New("connection reset")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop := newTestLoop(&scriptedLLM{turns: []turn{tt.turn}}, nil, 0)
			out, err := loop.Chat(context.Background(), "hi", nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if out != nil {
				t.Errorf("outcome = %+v, want nil", out)
			}
		})
	}
}

func TestChat_TransportErrorIsFatal(t *testing.T) {
	script := &scriptedLLM{turns: []turn{
		{frags: []string{"<broken_pipe></broken_pipe>"}},
		{frags: []string{finalAnswer42}},
	}}
	loop := newTestLoop(script, nil, 0)

	_, err := loop.Chat(context.Background(), "hi", nil)
	if !errors.Is(err, mcp.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if len(script.calls) != 1 {
		t.Errorf("completions = %d, want 1", len(script.calls))
	}
}

func TestChat_Events(t *testing.T) {
	bus := events.New()
	ch := bus.Subscribe(32)
	script := &scriptedLLM{turns: []turn{
		{frags: []string{"<get_weather><location>nyc</location></get_weather>"}},
		{frags: []string{finalAnswer42}},
	}}
	loop := newTestLoop(script, bus, 0)

	if _, err := loop.Chat(context.Background(), "hi", nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	var kinds []string
	for len(ch) > 0 {
		e := <-ch
		if e.Data["conversation_id"] != loop.ConversationID() {
			t.Errorf("event %s has conversation_id %v", e.Kind, e.Data["conversation_id"])
		}
		kinds = append(kinds, e.Kind)
	}
	want := []string{
		events.KindRequestStart,
		events.KindLLMCall, events.KindToolCall, events.KindToolDone,
		events.KindLLMCall, events.KindToolCall, events.KindToolDone,
		events.KindRequestComplete,
	}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v\nwant     %v", kinds, want)
	}
}

func TestGenerateRequestID(t *testing.T) {
	id := generateRequestID()
	if !strings.HasPrefix(id, "r_") || len(id) != 10 {
		t.Errorf("id = %q, want r_ plus 8 hex digits", id)
	}
}
