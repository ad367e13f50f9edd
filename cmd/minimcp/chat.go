package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nugget/minimcp/internal/agent"
)

// replSink streams the conversation to the terminal.
type replSink struct {
	w io.Writer
}

func (s replSink) OnContent(fragment string) {
	fmt.Fprint(s.w, fragment)
}

func (s replSink) OnToolResult(tool, result string) {
	fmt.Fprintf(s.w, "\n[tool_result] %s: %s\n", tool, result)
}

func (s replSink) OnFinalAnswer(answer string) {
	fmt.Fprintf(s.w, "\n[final_answer] %s\n", answer)
}

// runChat handles "minimcp chat": a read-eval-print loop over one
// conversation. "exit" or "quit" (or end of input) ends it; blank lines
// are ignored. A failed turn is reported and the loop continues.
func runChat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath string) error {
	h, err := newHost(ctx, configPath, stderr, hostOptions{needLLM: true})
	if err != nil {
		return err
	}
	defer h.close()

	loop := h.newLoop()
	sink := replSink{w: stdout}
	h.logger.Info("chat started", "conversation_id", loop.ConversationID(), "tools", len(h.registry.Names()))

	fmt.Fprintln(stdout, "minimcp chat. Type exit or quit to leave.")
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		out, err := loop.Chat(ctx, line, sink)
		fmt.Fprintln(stdout)
		switch {
		case errors.Is(err, agent.ErrRoundsExhausted):
			fmt.Fprintf(stdout, "[stopped] no final answer after %d iterations\n", out.Iterations)
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(stdout, "[error] %v\n", err)
		}
	}
}

// runAsk handles "minimcp ask <question>": one turn, printing only the
// answer.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, question string) error {
	h, err := newHost(ctx, configPath, stderr, hostOptions{needLLM: true})
	if err != nil {
		return err
	}
	defer h.close()

	out, err := h.newLoop().Chat(ctx, question, nil)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	if out.Status == agent.StatusAnswered {
		fmt.Fprintln(stdout, out.Answer)
	} else {
		fmt.Fprintln(stdout, strings.TrimSpace(out.Reply))
	}
	return nil
}
