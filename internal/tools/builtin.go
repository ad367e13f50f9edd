package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Names of the built-in tools.
const (
	ReadFileTool    = "read_file"
	ListDirTool     = "ls"
	FinalAnswerTool = "final_answer"
)

// RegisterBuiltins adds read_file, ls and final_answer to r. A nil fsys
// means the host filesystem with no workspace root.
func RegisterBuiltins(r *Registry, fsys FS) {
	if fsys == nil {
		fsys = OSFS{}
	}

	r.Register(&Tool{
		Name:        ReadFileTool,
		Description: "Read the full content of a file.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path of the file to read",
				},
			},
			"required": []string{"path"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			path := StringArg(args, "path")
			if path == "" {
				return "", errors.New("path is required")
			}
			data, err := fsys.ReadFile(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return "", fmt.Errorf("file not found: %s", path)
				}
				return "", err
			}
			return string(data), nil
		},
	})

	r.Register(&Tool{
		Name:        ListDirTool,
		Description: "List the entries of a directory. Directories are shown with a trailing /.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Directory to list (default: current directory)",
				},
			},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			path := StringArg(args, "path")
			if path == "" {
				path = "."
			}
			entries, err := fsys.ReadDir(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return "", fmt.Errorf("directory not found: %s", path)
				}
				return "", err
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			return strings.Join(names, "\n"), nil
		},
	})

	r.Register(&Tool{
		Name:        FinalAnswerTool,
		Description: "Give the final answer to the user and end the task.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer": map[string]any{
					"type":        "string",
					"description": "The answer to show the user",
				},
			},
			"required": []string{"answer"},
		},
		Final: true,
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			return StringArg(args, "answer"), nil
		},
	})
}

// StringArg returns args[key] as a string. Non-string values are
// formatted with %v; a missing key yields "".
func StringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
