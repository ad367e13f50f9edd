package mcp

import (
	"encoding/json"
	"slices"
)

// ToolDefinition is an MCP tool as returned by tools/list.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema is the JSON Schema object describing a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one argument.
type Property struct {
	Type        SchemaType `json:"type,omitempty"`
	Description string     `json:"description,omitempty"`
	Enum        []any      `json:"enum,omitempty"`
	Items       *Property  `json:"items,omitempty"`
}

// SchemaType is a JSON Schema type name. Servers sometimes send a list
// such as ["string","null"]; the first non-null entry is kept.
type SchemaType string

// UnmarshalJSON accepts a string or an array of strings.
func (t *SchemaType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = SchemaType(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*t = ""
	for _, v := range list {
		if v != "null" {
			*t = SchemaType(v)
			break
		}
	}
	return nil
}

// IsRequired reports whether the named argument must be supplied.
func (s InputSchema) IsRequired(name string) bool {
	return slices.Contains(s.Required, name)
}

// ParamNames returns property names, required ones first, each group
// in sorted order.
func (s InputSchema) ParamNames() []string {
	var req, opt []string
	for name := range s.Properties {
		if s.IsRequired(name) {
			req = append(req, name)
		} else {
			opt = append(opt, name)
		}
	}
	slices.Sort(req)
	slices.Sort(opt)
	return append(req, opt...)
}

// Map renders the schema as a generic JSON object, the shape tool
// registries carry.
func (s InputSchema) Map() map[string]any {
	if s.Type == "" {
		s.Type = "object"
	}
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// ContentBlock is a single content item in a tools/call response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// callToolResult is the result payload of a tools/call response.
type callToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// toolsListResult is the result payload of a tools/list response.
type toolsListResult struct {
	Tools      []ToolDefinition `json:"tools"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ServerInfo names an MCP implementation in the initialize exchange.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// initializeResult is the full initialize response result.
type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
	Instructions    string         `json:"instructions,omitempty"`
}
