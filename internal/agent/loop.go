// Package agent runs the conversation loop: it streams a completion,
// watches the stream for a tag-shaped tool call, dispatches the call
// through the tool registry, feeds the result back as a turn, and
// repeats until the model gives a final answer or the iteration cap is
// reached.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/minimcp/internal/events"
	"github.com/nugget/minimcp/internal/llm"
	"github.com/nugget/minimcp/internal/mcp"
	"github.com/nugget/minimcp/internal/tools"
)

// DefaultMaxIterations caps the completions issued for one user message.
const DefaultMaxIterations = 20

// ErrRoundsExhausted is returned when the iteration cap is reached
// without a final answer.
var ErrRoundsExhausted = errors.New("iteration limit reached without a final answer")

// Status describes how a Chat call ended.
type Status string

const (
	// StatusAnswered means the final_answer tool was called.
	StatusAnswered Status = "answered"
	// StatusReplied means the model replied without calling a tool.
	StatusReplied Status = "replied"
	// StatusExhausted means the iteration cap was hit.
	StatusExhausted Status = "exhausted"
	// StatusFailed means the provider or a transport failed.
	StatusFailed Status = "failed"
)

// Outcome summarizes one Chat call.
type Outcome struct {
	Status Status
	// Answer is the final answer text (StatusAnswered).
	Answer string
	// Reply is the last assistant reply.
	Reply      string
	Iterations int
	ToolCalls  int
}

// Sink receives what the loop produces, in order.
type Sink interface {
	// OnContent receives each streamed fragment as it arrives.
	OnContent(fragment string)
	// OnToolResult receives the text result of a non-final tool call.
	OnToolResult(tool, result string)
	// OnFinalAnswer receives the final answer.
	OnFinalAnswer(answer string)
}

// SinkFuncs adapts optional functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	Content     func(fragment string)
	ToolResult  func(tool, result string)
	FinalAnswer func(answer string)
}

func (s SinkFuncs) OnContent(fragment string) {
	if s.Content != nil {
		s.Content(fragment)
	}
}

func (s SinkFuncs) OnToolResult(tool, result string) {
	if s.ToolResult != nil {
		s.ToolResult(tool, result)
	}
}

func (s SinkFuncs) OnFinalAnswer(answer string) {
	if s.FinalAnswer != nil {
		s.FinalAnswer(answer)
	}
}

// Options configure a Loop.
type Options struct {
	LLM          llm.Client
	Registry     *tools.Registry
	SystemPrompt string
	// MaxRounds bounds history to 2×MaxRounds non-system turns.
	MaxRounds int
	// MaxIterations caps completions per user message.
	MaxIterations int
	Bus           *events.Bus
	Logger        *slog.Logger
}

// Loop is one conversation. It is not safe for concurrent use; Chat
// calls must not overlap.
type Loop struct {
	llm           llm.Client
	registry      *tools.Registry
	names         []string
	history       *History
	maxIterations int
	bus           *events.Bus
	logger        *slog.Logger
	convID        string
}

// NewLoop starts a conversation. The registry's tool names are captured
// now and stay fixed for the conversation's lifetime.
func NewLoop(opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	convID := uuid.Must(uuid.NewV7()).String()
	return &Loop{
		llm:           opts.LLM,
		registry:      opts.Registry,
		names:         opts.Registry.Names(),
		history:       NewHistory(opts.SystemPrompt, opts.MaxRounds),
		maxIterations: opts.MaxIterations,
		bus:           opts.Bus,
		logger:        logger.With("conversation_id", convID),
		convID:        convID,
	}
}

// ConversationID identifies this conversation in logs and events.
func (l *Loop) ConversationID() string {
	return l.convID
}

// History returns a copy of the conversation so far.
func (l *Loop) History() []llm.Message {
	return l.history.Messages()
}

// Chat answers one user message. Tool failures and unknown tools become
// conversation turns; provider errors and MCP transport failures end
// the call with an error. Reaching the iteration cap returns an
// Outcome with StatusExhausted together with ErrRoundsExhausted.
func (l *Loop) Chat(ctx context.Context, message string, sink Sink) (*Outcome, error) {
	if sink == nil {
		sink = SinkFuncs{}
	}
	reqID := generateRequestID()
	log := l.logger.With("request_id", reqID)
	start := time.Now()

	l.bus.Emit(events.SourceAgent, events.KindRequestStart, map[string]any{
		"conversation_id": l.convID,
		"request_id":      reqID,
		"message_len":     len(message),
	})
	log.Info("chat started", "message_len", len(message), "history", l.history.Len())

	out := &Outcome{}
	finish := func(status Status, err error) (*Outcome, error) {
		out.Status = status
		l.bus.Emit(events.SourceAgent, events.KindRequestComplete, map[string]any{
			"conversation_id": l.convID,
			"request_id":      reqID,
			"status":          string(status),
			"iterations":      out.Iterations,
			"tool_calls":      out.ToolCalls,
			"elapsed_ms":      time.Since(start).Milliseconds(),
		})
		log.Info("chat finished",
			"status", status,
			"iterations", out.Iterations,
			"tool_calls", out.ToolCalls,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
		if err != nil && status == StatusFailed {
			return nil, err
		}
		return out, err
	}

	l.history.Append(llm.RoleUser, strings.TrimSpace(message))

	for iter := 1; iter <= l.maxIterations; iter++ {
		out.Iterations = iter
		l.bus.Emit(events.SourceAgent, events.KindLLMCall, map[string]any{
			"conversation_id": l.convID,
			"request_id":      reqID,
			"iter":            iter,
			"history_len":     l.history.Len(),
		})

		call, reply, err := l.round(ctx, sink, log)
		if err != nil {
			log.Error("completion failed", "iter", iter, "error", err)
			return finish(StatusFailed, err)
		}
		if reply != "" {
			out.Reply = reply
		}
		if call == nil {
			return finish(StatusReplied, nil)
		}

		out.ToolCalls++
		res := l.dispatch(ctx, reqID, iter, call, log)
		if res.Err != nil && errors.Is(res.Err, mcp.ErrTransport) {
			return finish(StatusFailed, fmt.Errorf("tool %s: %w", call.Name, res.Err))
		}
		if res.Final {
			out.Answer = res.Text
			sink.OnFinalAnswer(res.Text)
			return finish(StatusAnswered, nil)
		}

		sink.OnToolResult(call.Name, res.Text)
		l.history.Append(llm.RoleUser, fmt.Sprintf("tool result for %s: %s", call.Name, res.Text))
	}

	log.Warn("iteration limit reached", "max_iterations", l.maxIterations)
	return finish(StatusExhausted, ErrRoundsExhausted)
}

// round streams one completion. Every fragment reaches the sink before
// it is scanned. The reply is appended to history once, either when a
// call is detected or when the stream ends.
func (l *Loop) round(ctx context.Context, sink Sink, log *slog.Logger) (*ToolCall, string, error) {
	stream, err := l.llm.Stream(ctx, l.history.Messages())
	if err != nil {
		return nil, "", err
	}
	defer stream.Close()

	det := NewDetector(l.names)
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", err
		}
		sink.OnContent(frag)
		if call, ok := det.Feed(frag); ok {
			reply := det.Text()
			l.appendReply(reply)
			log.Debug("tool call detected mid-stream", "tool", call.Name, "reply_len", len(reply))
			return call, reply, nil
		}
	}

	reply := det.Text()
	l.appendReply(reply)
	if call, ok := Detect(l.names, reply); ok {
		log.Debug("tool call found in final scan", "tool", call.Name)
		return call, reply, nil
	}
	return nil, reply, nil
}

func (l *Loop) appendReply(reply string) {
	if reply != "" {
		l.history.Append(llm.RoleAssistant, reply)
	}
}

func (l *Loop) dispatch(ctx context.Context, reqID string, iter int, call *ToolCall, log *slog.Logger) tools.Result {
	l.bus.Emit(events.SourceAgent, events.KindToolCall, map[string]any{
		"conversation_id": l.convID,
		"request_id":      reqID,
		"iter":            iter,
		"tool":            call.Name,
		"params":          len(call.Params),
	})
	log.Info("dispatching tool", "tool", call.Name, "iter", iter)

	start := time.Now()
	res := l.registry.Dispatch(ctx, call.Name, call.Args())
	elapsed := time.Since(start)

	l.bus.Emit(events.SourceAgent, events.KindToolDone, map[string]any{
		"conversation_id": l.convID,
		"request_id":      reqID,
		"tool":            call.Name,
		"ok":              res.Err == nil,
		"final":           res.Final,
		"duration_ms":     elapsed.Milliseconds(),
		"result_len":      len(res.Text),
	})
	if res.Err != nil {
		log.Warn("tool failed", "tool", call.Name, "error", res.Err, "elapsed", elapsed)
	} else {
		log.Debug("tool done", "tool", call.Name, "result_len", len(res.Text), "elapsed", elapsed)
	}
	return res
}

// generateRequestID returns a short id like "r_0192a3f4" for log lines.
func generateRequestID() string {
	id := uuid.New()
	return fmt.Sprintf("r_%x", id[:4])
}
