package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/nugget/minimcp/internal/tools"
)

// UseToolName is the generic forwarder registered by [RegisterUseTool].
const UseToolName = "use_mcp_tool"

// sanitizeRe matches characters that are not lowercase alphanumeric or underscore.
var sanitizeRe = regexp.MustCompile(`[^a-z0-9_]`)

// BridgeTools registers one proxy per catalog tool of client on the
// registry. Tool names are namespaced as "mcp_{server}_{tool}" to avoid
// collisions with built-ins.
//
// The include and exclude lists control which MCP tools are bridged:
//   - If include is non-empty, only tools whose MCP names appear in it are registered.
//   - Otherwise tools whose MCP names appear in exclude are skipped.
//
// BridgeTools returns the number of tools registered.
func BridgeTools(client *Client, registry *tools.Registry, include, exclude []string, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	includeSet := toSet(include)
	excludeSet := toSet(exclude)

	count := 0
	for _, td := range client.Tools() {
		if len(includeSet) > 0 {
			if !includeSet[td.Name] {
				continue
			}
		} else if excludeSet[td.Name] {
			continue
		}

		name := ToolName(client.Name(), td.Name)
		registry.Register(bridgeTool(client, name, td))
		count++

		logger.Debug("bridged MCP tool",
			"mcp_name", td.Name,
			"tool_name", name,
			"server", client.Name(),
		)
	}

	return count
}

// ToolName generates a namespaced tool name from an MCP server name and
// tool name. Both components are sanitized to contain only lowercase
// alphanumeric characters and underscores.
func ToolName(serverName, mcpToolName string) string {
	return fmt.Sprintf("mcp_%s_%s", sanitize(serverName), sanitize(mcpToolName))
}

// bridgeTool creates a registry tool that proxies calls to an MCP server.
func bridgeTool(client *Client, name string, td ToolDefinition) *tools.Tool {
	mcpName := td.Name
	schema := td.InputSchema

	return &tools.Tool{
		Name:        name,
		Description: td.Description,
		Parameters:  schema.Map(),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return client.CallTool(ctx, mcpName, CoerceArgs(schema, args))
		},
	}
}

// Lookup finds a connection by server name.
type Lookup interface {
	Client(name string) (*Client, bool)
}

// RegisterUseTool adds use_mcp_tool, which forwards a call to any tool
// on any connected server. Arguments arrive as a JSON object in text
// form, since tag-parsed parameters are always strings.
func RegisterUseTool(registry *tools.Registry, servers Lookup) {
	registry.Register(&tools.Tool{
		Name:        UseToolName,
		Description: "Call a tool provided by a connected MCP server.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"server_name": map[string]any{
					"type":        "string",
					"description": "Name of the MCP server providing the tool",
				},
				"tool_name": map[string]any{
					"type":        "string",
					"description": "Name of the tool to call",
				},
				"arguments": map[string]any{
					"type":        "string",
					"description": "JSON object with the tool's input parameters",
				},
			},
			"required": []string{"server_name", "tool_name"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			serverName := tools.StringArg(args, "server_name")
			toolName := tools.StringArg(args, "tool_name")

			client, ok := servers.Client(serverName)
			if !ok {
				return "", &tools.ErrNoSuchTool{ToolName: serverName + "/" + toolName}
			}
			td, ok := client.Tool(toolName)
			if !ok {
				return "", &tools.ErrNoSuchTool{ToolName: serverName + "/" + toolName}
			}

			callArgs, err := parseArguments(args["arguments"])
			if err != nil {
				return "", err
			}
			return client.CallTool(ctx, toolName, CoerceArgs(td.InputSchema, callArgs))
		},
	})
}

func parseArguments(v any) (map[string]any, error) {
	switch a := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return a, nil
	case string:
		a = strings.TrimSpace(a)
		if a == "" {
			return map[string]any{}, nil
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(a), &out); err != nil {
			return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
		}
		if out == nil {
			out = map[string]any{}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("arguments must be a JSON object, got %T", v)
	}
}

// CoerceArgs converts string argument values to the types the schema
// declares (integer, number, boolean, object, array). Values that do not
// parse, and arguments the schema does not describe, pass through
// unchanged. The input map is not modified.
func CoerceArgs(schema InputSchema, args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for name, v := range args {
		out[name] = v
		s, ok := v.(string)
		if !ok {
			continue
		}
		prop, ok := schema.Properties[name]
		if !ok {
			continue
		}
		if c, ok := coerce(string(prop.Type), strings.TrimSpace(s)); ok {
			out[name] = c
		}
	}
	return out
}

func coerce(typ, s string) (any, bool) {
	switch typ {
	case "integer":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	case "number":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	case "boolean":
		switch strings.ToLower(s) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	case "object":
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err == nil && m != nil {
			return m, true
		}
	case "array":
		var a []any
		if err := json.Unmarshal([]byte(s), &a); err == nil && a != nil {
			return a, true
		}
	}
	return nil, false
}

// sanitize converts a name to lowercase and replaces non-alphanumeric
// characters (except underscore) with underscores. Consecutive
// underscores are collapsed and leading/trailing underscores are trimmed.
func sanitize(name string) string {
	s := strings.ToLower(name)
	s = sanitizeRe.ReplaceAllString(s, "_")

	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}

	return strings.Trim(s, "_")
}

// toSet converts a string slice to a set for O(1) lookups.
func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	m := make(map[string]bool, len(items))
	for _, item := range items {
		m[item] = true
	}
	return m
}
