package prompts

import (
	"strings"
	"testing"
)

func TestBaseSystemPrompt(t *testing.T) {
	p := BaseSystemPrompt()
	for _, want := range []string{"<thinking>", "final_answer", "<tool_name>"} {
		if !strings.Contains(p, want) {
			t.Errorf("base prompt missing %q", want)
		}
	}
}

func TestToolsSection(t *testing.T) {
	got := ToolsSection([]Tool{
		{
			Name:        "read_file",
			Description: "Read the full content of a file.",
			Params:      []Param{{Name: "path", Description: "Path of the file to read", Required: true}},
		},
		{Name: "ls", Description: "List a directory.", Params: []Param{{Name: "path"}}},
	})

	for _, want := range []string{
		"## read_file\nDescription: Read the full content of a file.\n",
		"- path: (required) Path of the file to read\n",
		"<read_file>\n<path>path here</path>\n</read_file>\n",
		"- path: (optional)\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("section missing %q\n---\n%s", want, got)
		}
	}
}

func TestMCPServersSection(t *testing.T) {
	if got := MCPServersSection(nil); got != "" {
		t.Errorf("no servers = %q, want empty", got)
	}

	got := MCPServersSection([]Server{
		{
			Name:         "weather",
			Instructions: "  Demo weather server.  ",
			Tools: []Tool{{
				Name:        "get_weather",
				Description: "Get the weather of a location",
				Params: []Param{
					{Name: "location", Description: "City name", Required: true},
					{Name: "days"},
				},
			}},
		},
		{Name: "empty"},
	})

	for _, want := range []string{
		"<use_mcp_tool>",
		"## weather\nDemo weather server.\n",
		"- get_weather: Get the weather of a location\n",
		"  - location: (required) City name\n",
		"  - days: (optional)\n",
		"## empty\n(no tools)\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("section missing %q\n---\n%s", want, got)
		}
	}
}

func TestNotesSection(t *testing.T) {
	if got := NotesSection(" \n "); got != "" {
		t.Errorf("blank notes = %q", got)
	}
	got := NotesSection("Build with make.\n")
	if !strings.HasPrefix(got, "# Project Notes") || !strings.Contains(got, "Build with make.") {
		t.Errorf("NotesSection = %q", got)
	}
}
