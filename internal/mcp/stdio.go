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
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/nugget/minimcp/internal/config"
)

const (
	// defaultCloseGrace is how long a server gets between SIGTERM and
	// SIGKILL when StdioConfig.CloseGrace is zero.
	defaultCloseGrace = 2 * time.Second

	// drainWait bounds how long Close waits for the stderr drain to
	// finish after closing the server's stdin.
	drainWait = 1 * time.Second

	// maxStderrLine is the longest diagnostic line logged intact.
	maxStderrLine = 256 * 1024
)

// StdioConfig configures a stdio MCP transport that communicates with
// a subprocess over stdin/stdout using newline-delimited JSON-RPC.
type StdioConfig struct {
	// Name identifies the server in log output.
	Name string

	// Command is the executable to run.
	Command string

	// Args are command-line arguments passed to the executable.
	Args []string

	// Env are additional environment variables for the subprocess
	// (format: "KEY=VALUE"). They are merged over the current process
	// environment; a configured key replaces the inherited value.
	Env []string

	// Dir is the working directory. Empty means the current one.
	Dir string

	// CloseGrace is how long Close waits after SIGTERM before killing
	// the subprocess. Zero means 2s.
	CloseGrace time.Duration

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// StdioTransport communicates with an MCP server running as a
// subprocess. JSON-RPC messages are newline-delimited on stdin/stdout;
// stderr is drained in the background and logged.
type StdioTransport struct {
	config StdioConfig
	logger *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	wmu sync.Mutex

	lines     chan []byte
	readErr   error // valid once readDone is closed
	readDone  chan struct{}
	drainDone chan struct{}
	exited    chan struct{}
	closing   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// StartStdio launches the subprocess and starts the background stdout
// reader and stderr drain. The returned transport owns the process
// until Close.
func StartStdio(cfg StdioConfig) (*StdioTransport, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = defaultCloseGrace
	}

	logger.Info("starting MCP subprocess",
		"command", cfg.Command,
		"args", cfg.Args,
	)

	cmd := exec.Command(cfg.Command, cfg.Args...)
	// exec keeps the last value for duplicate keys, so configured
	// variables override inherited ones.
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Dir = cfg.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stderr.Close()
		stdout.Close()
		stdin.Close()
		return nil, fmt.Errorf("start subprocess %s: %w", cfg.Command, err)
	}

	t := &StdioTransport{
		config:    cfg,
		logger:    logger,
		cmd:       cmd,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		lines:     make(chan []byte),
		readDone:  make(chan struct{}),
		drainDone: make(chan struct{}),
		exited:    make(chan struct{}),
		closing:   make(chan struct{}),
	}

	go t.readLoop(bufio.NewReaderSize(stdout, 1<<20)) // 1 MiB buffer for large responses
	go t.drainStderr(stderr)
	go t.wait()

	logger.Info("MCP subprocess started", "pid", cmd.Process.Pid)
	return t, nil
}

// Pid returns the subprocess id.
func (t *StdioTransport) Pid() int {
	return t.cmd.Process.Pid
}

// readLoop hands each non-blank stdout line to ReadLine. It exits on
// EOF, a read error, or Close.
func (t *StdioTransport) readLoop(r *bufio.Reader) {
	defer close(t.readDone)
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			select {
			case t.lines <- trimmed:
			case <-t.closing:
				t.readErr = errTransportClosed
				return
			}
		}
		if err != nil {
			t.readErr = err
			return
		}
	}
}

// drainStderr reads stderr lines and logs them. Nothing downstream
// consumes them; draining keeps the child from blocking on a full pipe.
func (t *StdioTransport) drainStderr(r io.Reader) {
	defer close(t.drainDone)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStderrLine)
	for scanner.Scan() {
		t.logger.Info("MCP subprocess stderr", "line", scanner.Text())
	}
}

// wait reaps the process once both output pipes are finished, so that
// Wait never closes a pipe that still holds unread data.
func (t *StdioTransport) wait() {
	<-t.readDone
	<-t.drainDone
	err := t.cmd.Wait()
	t.logger.Debug("MCP subprocess exited", "pid", t.cmd.Process.Pid, "error", err)
	close(t.exited)
}

var errTransportClosed = errors.New("transport closed")

// WriteLine encodes msg as one JSON line on the server's stdin.
func (t *StdioTransport) WriteLine(ctx context.Context, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-t.closing:
		return fmt.Errorf("%w: write to %s: %v", ErrTransport, t.config.Name, errTransportClosed)
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	t.logger.Log(ctx, config.LevelTrace, "MCP send", "line", string(data))

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: write to %s stdin: %v", ErrTransport, t.config.Name, err)
	}
	return nil
}

// ReadLine returns the next non-blank stdout line. It has no deadline
// of its own; only ctx bounds it.
func (t *StdioTransport) ReadLine(ctx context.Context) ([]byte, error) {
	select {
	case line := <-t.lines:
		t.logger.Log(ctx, config.LevelTrace, "MCP recv", "line", string(line))
		return line, nil
	case <-t.readDone:
		return nil, t.readFailure()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *StdioTransport) readFailure() error {
	switch {
	case errors.Is(t.readErr, errTransportClosed):
		return fmt.Errorf("%w: read from %s: %v", ErrTransport, t.config.Name, errTransportClosed)
	case errors.Is(t.readErr, io.EOF):
		return fmt.Errorf("%w: %s closed its stdout", ErrTransport, t.config.Name)
	default:
		return fmt.Errorf("%w: read from %s stdout: %v", ErrTransport, t.config.Name, t.readErr)
	}
}

// Close stops the subprocess: stdin and stdout are closed, the stderr
// drain gets up to a second to finish, then the process receives
// SIGTERM and, after the grace period, SIGKILL. Later calls return the
// first call's result.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.stop()
	})
	return t.closeErr
}

func (t *StdioTransport) stop() error {
	pid := t.cmd.Process.Pid
	t.logger.Info("stopping MCP subprocess", "pid", pid)

	close(t.closing)
	t.stdin.Close()
	t.stdout.Close()

	select {
	case <-t.drainDone:
	case <-time.After(drainWait):
		t.logger.Debug("stderr drain still running, closing pipe", "pid", pid)
		t.stderr.Close()
	}

	select {
	case <-t.exited:
		return nil
	default:
	}

	if err := t.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		t.logger.Debug("SIGTERM failed", "pid", pid, "error", err)
	}

	select {
	case <-t.exited:
		return nil
	case <-time.After(t.config.CloseGrace):
	}

	t.logger.Warn("MCP subprocess did not exit gracefully, killing",
		"pid", pid,
		"grace", t.config.CloseGrace,
	)
	if err := t.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill MCP subprocess %d: %w", pid, err)
	}
	<-t.exited
	return nil
}
