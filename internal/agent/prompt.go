package agent

import (
	"strings"

	"github.com/nugget/minimcp/internal/mcp"
	"github.com/nugget/minimcp/internal/prompts"
	"github.com/nugget/minimcp/internal/tools"
)

// SystemPrompt assembles the system message: the base instructions
// (the built-in template when base is blank), the local tools section,
// the MCP server catalogs and any project notes. Bridged mcp_ proxies
// and use_mcp_tool are described by the server section instead of the
// tools section.
func SystemPrompt(base string, registry *tools.Registry, clients []*mcp.Client, notes string) string {
	if strings.TrimSpace(base) == "" {
		base = prompts.BaseSystemPrompt()
	}

	var local []prompts.Tool
	for _, t := range registry.List() {
		if t.Name == mcp.UseToolName || strings.HasPrefix(t.Name, "mcp_") {
			continue
		}
		local = append(local, promptTool(t))
	}

	servers := make([]prompts.Server, 0, len(clients))
	for _, c := range clients {
		servers = append(servers, promptServer(c))
	}

	sections := []string{strings.TrimSpace(base), prompts.ToolsSection(local)}
	if s := prompts.MCPServersSection(servers); s != "" {
		sections = append(sections, strings.TrimSpace(s))
	}
	if s := prompts.NotesSection(notes); s != "" {
		sections = append(sections, s)
	}
	return strings.Join(sections, "\n\n")
}

func promptTool(t *tools.Tool) prompts.Tool {
	required, optional := t.Params()
	pt := prompts.Tool{Name: t.Name, Description: t.Description}
	for _, name := range required {
		pt.Params = append(pt.Params, prompts.Param{Name: name, Description: t.ParamDescription(name), Required: true})
	}
	for _, name := range optional {
		pt.Params = append(pt.Params, prompts.Param{Name: name, Description: t.ParamDescription(name)})
	}
	return pt
}

func promptServer(c *mcp.Client) prompts.Server {
	s := prompts.Server{Name: c.Name(), Instructions: c.Instructions()}
	for _, td := range c.Tools() {
		pt := prompts.Tool{Name: td.Name, Description: td.Description}
		for _, name := range td.InputSchema.ParamNames() {
			pt.Params = append(pt.Params, prompts.Param{
				Name:        name,
				Description: td.InputSchema.Properties[name].Description,
				Required:    td.InputSchema.IsRequired(name),
			})
		}
		s.Tools = append(s.Tools, pt)
	}
	return s
}
