package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nugget/minimcp/internal/buildinfo"
)

// protocolVersion is the MCP protocol version we advertise during initialization.
const protocolVersion = "2024-11-05"

// defaultHandshakeTimeout bounds the initialize response read.
const defaultHandshakeTimeout = 30 * time.Second

// State is the lifecycle position of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ClientOptions tunes a Client. The zero value is usable.
type ClientOptions struct {
	// HandshakeTimeout bounds the wait for the initialize response.
	// Zero means 30s.
	HandshakeTimeout time.Duration

	// CallTimeout bounds tools/list, tools/call and ping once the
	// connection is ready. Zero leaves them bounded only by the
	// caller's context.
	CallTimeout time.Duration

	// Roots are the directories reported when the server asks
	// roots/list.
	Roots []string

	Logger *slog.Logger
}

// Client is one Connection to an MCP server: the handshake, the tool
// catalog, and correlated request/response exchange. Requests are
// strictly one at a time; a second caller waits until the first has
// read its response.
type Client struct {
	name      string
	transport Transport
	opts      ClientOptions
	logger    *slog.Logger
	nextID    atomic.Int64
	state     atomic.Int32

	// callMu is held from a request's write until its response is read.
	callMu sync.Mutex

	mu           sync.RWMutex
	server       ServerInfo
	instructions string
	tools        []ToolDefinition

	closeOnce sync.Once
	closeErr  error
}

// NewClient creates a Disconnected client for the named server. The
// transport should already be attached to the server process.
func NewClient(name string, transport Transport, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Client{
		name:      name,
		transport: transport,
		opts:      opts,
		logger:    logger.With("mcp_server", name),
	}
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// ServerInfo returns the name and version the server reported.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// Instructions returns the usage instructions from the initialize
// result, if the server sent any.
func (c *Client) Instructions() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instructions
}

// Tools returns a copy of the current tool catalog.
func (c *Client) Tools() []ToolDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ToolDefinition, len(c.tools))
	copy(out, c.tools)
	return out
}

// Tool looks up a catalog entry by its server-side name.
func (c *Client) Tool(name string) (ToolDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, td := range c.tools {
		if td.Name == name {
			return td, true
		}
	}
	return ToolDefinition{}, false
}

// Connect performs the MCP handshake: initialize, the initialized
// notification, then tools/list. Any failure closes the connection and
// returns a *ConnectionError. There is no retry.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return &ConnectionError{Server: c.name, Err: fmt.Errorf("connection is %s", c.State())}
	}

	if err := c.handshake(ctx); err != nil {
		c.Close()
		return &ConnectionError{Server: c.name, Err: err}
	}

	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateReady)) {
		return &ConnectionError{Server: c.name, Err: errors.New("closed during handshake")}
	}
	return nil
}

func (c *Client) handshake(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"roots": map[string]any{"listChanged": false},
		},
		"clientInfo": map[string]any{
			"name":    "minimcp",
			"version": buildinfo.Version,
		},
	}

	deadline := time.Now().Add(c.opts.HandshakeTimeout)
	resp, err := c.roundTrip(ctx, "initialize", params, deadline)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("initialize: %w", resp.Error)
	}

	var result initializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("unmarshal initialize result: %w", err)
	}

	c.mu.Lock()
	c.server = result.ServerInfo
	c.instructions = result.Instructions
	c.mu.Unlock()

	c.logger.Info("MCP server initialized",
		"server_name", result.ServerInfo.Name,
		"server_version", result.ServerInfo.Version,
		"protocol_version", result.ProtocolVersion,
	)

	// Send the initialized notification to complete the handshake.
	if err := c.transport.WriteLine(ctx, NewNotification("notifications/initialized", nil)); err != nil {
		return fmt.Errorf("send initialized notification: %w", err)
	}

	if _, err := c.listTools(ctx); err != nil {
		return err
	}
	return nil
}

// ListTools calls tools/list, following nextCursor pages, and replaces
// the catalog with the result. On failure the previous catalog is kept.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return c.listTools(ctx)
}

func (c *Client) listTools(ctx context.Context) ([]ToolDefinition, error) {
	var all []ToolDefinition
	seen := make(map[string]bool)
	cursor := ""
	for {
		params := map[string]any{}
		if cursor != "" {
			params["cursor"] = cursor
		}

		result, err := c.request(ctx, "tools/list", params)
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}

		var page toolsListResult
		if err := json.Unmarshal(result, &page); err != nil {
			return nil, fmt.Errorf("unmarshal tools/list result: %w", err)
		}
		all = append(all, page.Tools...)

		if page.NextCursor == "" || seen[page.NextCursor] {
			break
		}
		seen[page.NextCursor] = true
		cursor = page.NextCursor
	}

	c.mu.Lock()
	c.tools = all
	c.mu.Unlock()

	c.logger.Info("discovered MCP tools", "count", len(all))
	return all, nil
}

// CallTool invokes a tool by name. The text of every "text" content
// block is joined with newlines. A JSON-RPC error object or an isError
// result becomes a *ToolInvocationError and the connection stays Ready;
// a transport failure closes the connection.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	if args == nil {
		args = map[string]any{}
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	params := map[string]any{
		"name":      name,
		"arguments": args,
	}

	result, err := c.request(ctx, "tools/call", params)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return "", &ToolInvocationError{Server: c.name, Tool: name, Code: rpcErr.Code, Message: rpcErr.Message}
		}
		return "", fmt.Errorf("tools/call %s: %w", name, err)
	}

	var r callToolResult
	if err := json.Unmarshal(result, &r); err != nil {
		return "", fmt.Errorf("unmarshal tools/call result: %w", err)
	}

	text := extractText(r.Content)
	if r.IsError {
		return "", &ToolInvocationError{Server: c.name, Tool: name, Code: CodeToolError, Message: text}
	}
	return text, nil
}

// Ping checks whether the MCP server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	_, err := c.request(ctx, "ping", map[string]any{})
	return err
}

// Close moves the connection to Closed and shuts the transport down.
// It is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		c.logger.Info("closing MCP client")
		c.closeErr = c.transport.Close()
	})
	return c.closeErr
}

func (c *Client) ready() error {
	if s := c.State(); s != StateReady {
		return fmt.Errorf("%w: %s is %s", ErrTransport, c.name, s)
	}
	return nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.CallTimeout > 0 {
		return context.WithTimeout(ctx, c.opts.CallTimeout)
	}
	return ctx, func() {}
}

// request issues a JSON-RPC request and returns its result. Error
// objects come back as *RPCError. Transport failures close the
// connection.
func (c *Client) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	resp, err := c.roundTrip(ctx, method, params, time.Time{})
	if err != nil {
		if errors.Is(err, ErrTransport) {
			c.logger.Warn("MCP transport failed, closing connection", "method", method, "error", err)
			c.Close()
		}
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// roundTrip writes one request and reads until the response with the
// same id arrives. Server-initiated requests that show up first are
// answered inline; notifications, non-JSON lines and responses to
// abandoned requests are logged and skipped. A non-zero deadline
// bounds the whole read.
func (c *Client) roundTrip(ctx context.Context, method string, params any, deadline time.Time) (*Response, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	req, err := NewRequest(c.nextID.Add(1), method, params)
	if err != nil {
		return nil, err
	}
	if err := c.transport.WriteLine(ctx, req); err != nil {
		return nil, err
	}

	for {
		var line []byte
		if deadline.IsZero() {
			line, err = c.transport.ReadLine(ctx)
		} else {
			line, err = ReadLineTimeout(ctx, c.transport, time.Until(deadline))
		}
		if err != nil {
			return nil, err
		}

		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			c.logger.Debug("skipping non-JSON line from MCP server", "line", string(line))
			continue
		}

		switch {
		case msg.Method != "" && !isNullID(msg.ID):
			c.answer(ctx, &msg)
		case msg.Method != "":
			c.logger.Debug("MCP notification", "method", msg.Method)
		case sameID(msg.ID, req.ID):
			return &Response{JSONRPC: msg.JSONRPC, ID: msg.ID, Result: msg.Result, Error: msg.Error}, nil
		default:
			c.logger.Debug("skipping unmatched MCP message", "id", string(msg.ID), "want", string(req.ID))
		}
	}
}

// answer replies to a request the server sent while we were waiting.
func (c *Client) answer(ctx context.Context, msg *message) {
	var resp *Response
	switch msg.Method {
	case "roots/list":
		r, err := NewResult(msg.ID, map[string]any{"roots": c.roots()})
		if err != nil {
			resp = NewErrorResponse(msg.ID, CodeInternalError, err.Error())
		} else {
			resp = r
		}
	case "ping":
		resp, _ = NewResult(msg.ID, map[string]any{})
	default:
		resp = NewErrorResponse(msg.ID, CodeMethodNotFound, "Method not found")
	}

	c.logger.Debug("answering server request", "method", msg.Method)
	if err := c.transport.WriteLine(ctx, resp); err != nil {
		c.logger.Warn("failed to answer server request", "method", msg.Method, "error", err)
	}
}

type root struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

func (c *Client) roots() []root {
	out := make([]root, 0, len(c.opts.Roots))
	for _, dir := range c.opts.Roots {
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
		out = append(out, root{URI: u.String(), Name: filepath.Base(abs)})
	}
	return out
}

// extractText joins the text of every "text" content block.
func extractText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
