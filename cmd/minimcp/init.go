package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/minimcp/internal/defaults"
)

// runInit writes a starter config and notes file into dir. Existing
// files are never overwritten.
func runInit(w io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	for _, f := range []struct {
		name    string
		content []byte
	}{
		{"minimcp.yaml", defaults.ConfigYAML},
		{"NOTES.md", defaults.NotesMD},
	} {
		path := filepath.Join(dir, f.name)
		written, err := writeIfMissing(path, f.content)
		if err != nil {
			return err
		}
		if written {
			fmt.Fprintf(w, "  ✓ %s\n", path)
		} else {
			fmt.Fprintf(w, "  - %s (exists, kept)\n", path)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit minimcp.yaml to choose a provider and MCP servers.")
	return nil
}

// writeIfMissing writes content to path unless the file already exists.
func writeIfMissing(path string, content []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
