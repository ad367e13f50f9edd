package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Transport moves newline-delimited JSON documents between a [Client]
// and one MCP server. Implementations do no request/response
// correlation; that is the Client's job.
type Transport interface {
	// WriteLine encodes msg as a single JSON line and writes it.
	WriteLine(ctx context.Context, msg any) error

	// ReadLine returns the next non-blank line. It blocks until a line
	// arrives, the transport fails, or ctx is done.
	ReadLine(ctx context.Context) ([]byte, error)

	// Close shuts down the transport and releases resources. It is
	// safe to call more than once.
	Close() error
}

// ReadLineTimeout is ReadLine bounded by d. It fails with ErrTimeout
// when no line arrives in time. Only the handshake uses it; every other
// read waits as long as the caller's context allows.
func ReadLineTimeout(ctx context.Context, tr Transport, d time.Duration) ([]byte, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: deadline already passed", ErrTimeout)
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	line, err := tr.ReadLine(tctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w: no line within %s", ErrTimeout, d)
	}
	return line, err
}
