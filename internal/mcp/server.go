package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/nugget/minimcp/internal/config"
)

// maxLineSize is the longest request line the server accepts.
const maxLineSize = 1 << 20

// HandlerFunc handles one method. The returned value becomes the
// response result; returning a *Response sends that envelope with the
// request id stamped on it. Returning an *RPCError sends its code and
// message; any other error becomes -32603.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Server is a line-oriented JSON-RPC 2.0 dispatcher: one request per
// input line, at most one response line per request.
type Server struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewServer creates a Server with no methods registered.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Handle registers h for method, replacing any earlier handler.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

func (s *Server) handler(method string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[method]
	return h, ok
}

// ProcessLine handles one input line and returns the response line
// without its trailing newline, or nil when nothing should be written
// (blank lines and notifications).
func (s *Server) ProcessLine(ctx context.Context, line []byte) []byte {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	s.logger.Log(ctx, config.LevelTrace, "JSON-RPC recv", "line", string(line))

	if !json.Valid(line) {
		s.logger.Warn("malformed JSON-RPC line")
		return s.encode(NewErrorResponse(nil, CodeParseError, "Parse error"))
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return s.encode(NewErrorResponse(nil, CodeInvalidRequest, "Invalid Request"))
	}
	if req.JSONRPC != jsonrpcVersion {
		return s.encode(NewErrorResponse(req.ID, CodeInvalidRequest, "Invalid Request"))
	}

	params := req.Params
	if len(bytes.TrimSpace(params)) == 0 || bytes.Equal(bytes.TrimSpace(params), []byte("null")) {
		params = json.RawMessage("{}")
	}

	if req.IsNotification() {
		s.logger.Debug("received notification", "method", req.Method)
		if h, ok := s.handler(req.Method); ok {
			if _, err := s.invoke(ctx, h, params); err != nil {
				s.logger.Error("notification handler failed", "method", req.Method, "error", err)
			}
		}
		return nil
	}

	s.logger.Debug("processing request", "method", req.Method, "id", string(req.ID))
	h, ok := s.handler(req.Method)
	if !ok {
		s.logger.Warn("method not found", "method", req.Method)
		return s.encode(NewErrorResponse(req.ID, CodeMethodNotFound, "Method not found"))
	}

	result, err := s.invoke(ctx, h, params)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return s.encode(&Response{JSONRPC: jsonrpcVersion, ID: req.ID, Error: rpcErr})
		}
		s.logger.Error("handler failed", "method", req.Method, "error", err)
		return s.encode(NewErrorResponse(req.ID, CodeInternalError, "Internal error: "+err.Error()))
	}

	if resp, ok := result.(*Response); ok {
		out := *resp
		out.JSONRPC = jsonrpcVersion
		out.ID = req.ID
		return s.encode(&out)
	}

	resp, err := NewResult(req.ID, result)
	if err != nil {
		return s.encode(NewErrorResponse(req.ID, CodeInternalError, "Internal error: "+err.Error()))
	}
	return s.encode(resp)
}

// invoke runs h, turning a panic into an error.
func (s *Server) invoke(ctx context.Context, h HandlerFunc, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, params)
}

func (s *Server) encode(resp *Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// Only a non-marshalable Data field can get here.
		data, _ = json.Marshal(NewErrorResponse(resp.ID, CodeInternalError, "Internal error: "+err.Error()))
	}
	return data
}

type lineResult struct {
	line []byte
	err  error
}

// Serve reads requests from r and writes responses to w, flushing after
// every line, until end of input, Stop, or ctx cancellation. A bad line
// produces an error response and the loop continues. Serve returns nil
// at end of input and the write error if w fails.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan lineResult)
	go readLines(r, lines, s.stop)

	bw := bufio.NewWriter(w)
	for {
		var lr lineResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			s.logger.Info("server stopped")
			return nil
		case lr = <-lines:
		}

		if lr.err != nil {
			if errors.Is(lr.err, io.EOF) {
				s.logger.Info("end of input, server shutting down")
				return nil
			}
			return fmt.Errorf("read request: %w", lr.err)
		}

		var out []byte
		if lr.line == nil {
			s.logger.Warn("request line too long", "limit", maxLineSize)
			out = s.encode(NewErrorResponse(nil, CodeParseError, "Parse error"))
		} else {
			out = s.ProcessLine(ctx, lr.line)
		}
		if out == nil {
			continue
		}

		s.logger.Log(ctx, config.LevelTrace, "JSON-RPC send", "line", string(out))
		if _, err := bw.Write(append(out, '\n')); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// Stop makes Serve return after the line it is handling.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// readLines splits r into lines. A line longer than maxLineSize is
// discarded and reported as a nil line.
func readLines(r io.Reader, out chan<- lineResult, stop <-chan struct{}) {
	br := bufio.NewReaderSize(r, 64*1024)
	send := func(lr lineResult) bool {
		select {
		case out <- lr:
			return true
		case <-stop:
			return false
		}
	}

	for {
		var buf []byte
		tooLong := false
		var err error
		for {
			var chunk []byte
			chunk, err = br.ReadSlice('\n')
			if !tooLong {
				buf = append(buf, chunk...)
				if len(buf) > maxLineSize {
					tooLong = true
					buf = nil
				}
			}
			if !errors.Is(err, bufio.ErrBufferFull) {
				break
			}
		}

		if len(bytes.TrimSpace(buf)) > 0 || tooLong {
			lr := lineResult{line: buf}
			if tooLong {
				lr.line = nil
			}
			if !send(lr) {
				return
			}
		}
		if err != nil {
			send(lineResult{err: err})
			return
		}
	}
}
