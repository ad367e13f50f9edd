package prompts

import (
	"fmt"
	"strings"
)

// Param describes one tool parameter for a prompt section.
type Param struct {
	Name        string
	Description string
	Required    bool
}

// Tool describes one callable tool for a prompt section.
type Tool struct {
	Name        string
	Description string
	Params      []Param
}

// Server describes one connected MCP server and its catalog.
type Server struct {
	Name         string
	Instructions string
	Tools        []Tool
}

// ToolsSection renders the "# Tools" block for locally registered tools,
// each with a usage example in tag syntax.
func ToolsSection(tools []Tool) string {
	var b strings.Builder
	b.WriteString("# Tools\n\nYou can call the following tools.\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "\n## %s\nDescription: %s\n", t.Name, t.Description)
		if len(t.Params) > 0 {
			b.WriteString("Parameters:\n")
			for _, p := range t.Params {
				b.WriteString(paramLine(p))
			}
		}
		b.WriteString("Usage:\n\n")
		b.WriteString(usage(t))
	}
	return b.String()
}

// MCPServersSection renders the "# MCP Servers" block: how to call a
// server tool through use_mcp_tool, then every server's catalog. It
// returns "" when there are no servers.
func MCPServersSection(servers []Server) string {
	if len(servers) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(useMCPToolHelp)
	b.WriteString("\n# MCP Servers\n")
	for _, s := range servers {
		fmt.Fprintf(&b, "\n## %s\n", s.Name)
		if s.Instructions != "" {
			fmt.Fprintf(&b, "%s\n", strings.TrimSpace(s.Instructions))
		}
		if len(s.Tools) == 0 {
			b.WriteString("(no tools)\n")
			continue
		}
		b.WriteString("\n### Available Tools\n")
		for _, t := range s.Tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
			for _, p := range t.Params {
				b.WriteString("  " + paramLine(p))
			}
		}
	}
	return b.String()
}

// NotesSection wraps project notes loaded from the notes file.
func NotesSection(notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return ""
	}
	return "# Project Notes\n\nThe user keeps these notes for this project. Treat them as background knowledge.\n\n" + notes + "\n"
}

const useMCPToolHelp = `
# use_mcp_tool

Description: Call a tool provided by a connected MCP server. Each server offers tools with an input schema that names required and optional parameters.
Parameters:
- server_name: (required) the server that provides the tool
- tool_name: (required) the tool to run
- arguments: (required) a JSON object with the tool's input parameters
Usage:

<use_mcp_tool>
<server_name>server name here</server_name>
<tool_name>tool name here</tool_name>
<arguments>
{"param1": "value1", "param2": "value2"}
</arguments>
</use_mcp_tool>
`

func paramLine(p Param) string {
	mark := "optional"
	if p.Required {
		mark = "required"
	}
	if p.Description == "" {
		return fmt.Sprintf("- %s: (%s)\n", p.Name, mark)
	}
	return fmt.Sprintf("- %s: (%s) %s\n", p.Name, mark, p.Description)
}

func usage(t Tool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s>\n", t.Name)
	for _, p := range t.Params {
		fmt.Fprintf(&b, "<%s>%s</%s>\n", p.Name, p.Name+" here", p.Name)
	}
	fmt.Fprintf(&b, "</%s>\n", t.Name)
	return b.String()
}
