package tools

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOSFS_ResolvePath(t *testing.T) {
	workspace := t.TempDir()
	o := OSFS{Root: workspace}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative path", "test.txt", false},
		{"nested path", "dir/subdir/file.txt", false},
		{"dot prefix", "./test.txt", false},
		{"workspace itself", ".", false},
		{"parent escape attempt", "../outside.txt", true},
		{"absolute escape attempt", "/etc/passwd", true},
		{"sneaky escape", "dir/../../outside.txt", true},
		{"sibling with shared prefix", workspace + "2/file.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.resolvePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("resolvePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestOSFS_ReadThroughRoot(t *testing.T) {
	workspace := t.TempDir()
	if err := os.MkdirAll(filepath.Join(workspace, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "sub", "a.txt"), []byte("A"), 0o600); err != nil {
		t.Fatal(err)
	}

	o := OSFS{Root: workspace}
	data, err := o.ReadFile("sub/a.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "A" {
		t.Errorf("ReadFile = %q, want A", data)
	}

	entries, err := o.ReadDir("sub")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.txt" {
		t.Errorf("ReadDir = %v", entries)
	}
}
