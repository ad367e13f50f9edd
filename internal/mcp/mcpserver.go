package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
)

// ExposedTool is a local function offered to MCP hosts.
type ExposedTool struct {
	Name        string
	Description string
	Params      map[string]Property
	Required    []string
	// Invoke receives the call's arguments. Its result is sent as one
	// text block: strings verbatim, anything else JSON-encoded.
	Invoke func(ctx context.Context, args map[string]any) (any, error)
}

// Definition returns the tools/list entry for t.
func (t ExposedTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: InputSchema{
			Type:       "object",
			Properties: t.Params,
			Required:   t.Required,
		},
	}
}

// ToolServerOptions describes the server in the initialize result.
type ToolServerOptions struct {
	Info         ServerInfo
	Instructions string
	Logger       *slog.Logger
}

// NewToolServer returns a Server answering the MCP method set for the
// given tools. Tools are listed in name order.
func NewToolServer(opts ToolServerOptions, exposed []ExposedTool) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	byName := make(map[string]ExposedTool, len(exposed))
	defs := make([]ToolDefinition, 0, len(exposed))
	for _, t := range exposed {
		byName[t.Name] = t
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	ts := &toolServer{
		opts:   opts,
		logger: logger,
		tools:  byName,
		defs:   defs,
	}

	s := NewServer(logger)
	s.Handle("initialize", ts.initialize)
	s.Handle("notifications/initialized", ts.ack("client finished initialization"))
	s.Handle("tools/list", ts.listTools)
	s.Handle("tools/call", ts.callTool)
	s.Handle("prompts/list", func(context.Context, json.RawMessage) (any, error) {
		return map[string]any{"prompts": []any{}}, nil
	})
	s.Handle("prompts/get", func(context.Context, json.RawMessage) (any, error) {
		return nil, nil
	})
	s.Handle("resources/list", func(context.Context, json.RawMessage) (any, error) {
		return map[string]any{"resources": []any{}}, nil
	})
	s.Handle("ping", func(context.Context, json.RawMessage) (any, error) {
		return map[string]any{}, nil
	})
	s.Handle("notifications/tools/list_changed", ts.ack("tool list changed"))
	s.Handle("notifications/prompts/list_changed", ts.ack("prompt list changed"))

	logger.Info("MCP tool server ready", "tools", len(defs))
	return s
}

type toolServer struct {
	opts   ToolServerOptions
	logger *slog.Logger
	tools  map[string]ExposedTool
	defs   []ToolDefinition
}

func (ts *toolServer) initialize(_ context.Context, params json.RawMessage) (any, error) {
	var p struct {
		ProtocolVersion string     `json:"protocolVersion"`
		ClientInfo      ServerInfo `json:"clientInfo"`
	}
	_ = json.Unmarshal(params, &p)
	ts.logger.Info("initialize",
		"client_name", p.ClientInfo.Name,
		"client_version", p.ClientInfo.Version,
		"protocol_version", p.ProtocolVersion,
	)

	return initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: map[string]any{
			"tools":     map[string]any{"listChanged": true},
			"logging":   map[string]any{},
			"prompts":   map[string]any{"listChanged": false},
			"resources": map[string]any{"subscribe": false, "listChanged": false},
		},
		ServerInfo:   ts.opts.Info,
		Instructions: ts.opts.Instructions,
	}, nil
}

func (ts *toolServer) ack(what string) HandlerFunc {
	return func(context.Context, json.RawMessage) (any, error) {
		ts.logger.Debug(what)
		return nil, nil
	}
}

func (ts *toolServer) listTools(context.Context, json.RawMessage) (any, error) {
	return toolsListResult{Tools: ts.defs}, nil
}

func (ts *toolServer) callTool(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "Invalid params: " + err.Error()}
	}

	tool, ok := ts.tools[p.Name]
	if !ok {
		ts.logger.Warn("call to unknown tool", "tool", p.Name)
		return nil, &RPCError{Code: CodeToolError, Message: fmt.Sprintf("Tool '%s' not found", p.Name)}
	}
	if p.Arguments == nil {
		p.Arguments = map[string]any{}
	}

	ts.logger.Info("tool called", "tool", p.Name)
	value, err := invokeExposed(ctx, tool, p.Arguments)
	if err != nil {
		ts.logger.Error("tool execution failed", "tool", p.Name, "error", err)
		return nil, &RPCError{Code: CodeToolError, Message: "Tool execution failed: " + err.Error()}
	}

	text, err := resultText(value)
	if err != nil {
		return nil, &RPCError{Code: CodeToolError, Message: "Tool execution failed: " + err.Error()}
	}
	return callToolResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: false,
	}, nil
}

func invokeExposed(ctx context.Context, tool ExposedTool, args map[string]any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tool.Invoke(ctx, args)
}

func resultText(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}
