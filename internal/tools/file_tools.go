package tools

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FS is the filesystem the read_file and ls tools work against.
type FS interface {
	ReadFile(path string) ([]byte, error)
	ReadDir(path string) ([]fs.DirEntry, error)
}

// OSFS reads the host filesystem. When Root is set, relative paths
// resolve against it and paths that leave it are rejected; when Root
// is empty, paths are used as given.
type OSFS struct {
	Root string
}

// ReadFile implements FS.
func (o OSFS) ReadFile(path string) ([]byte, error) {
	abs, err := o.resolvePath(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

// ReadDir implements FS.
func (o OSFS) ReadDir(path string) ([]fs.DirEntry, error) {
	abs, err := o.resolvePath(path)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(abs)
}

// resolvePath converts path to an absolute path within Root.
func (o OSFS) resolvePath(path string) (string, error) {
	if o.Root == "" {
		return path, nil
	}

	rootAbs, err := filepath.Abs(o.Root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}

	var absPath string
	if filepath.IsAbs(path) {
		absPath = filepath.Clean(path)
	} else {
		absPath = filepath.Join(rootAbs, path)
	}

	rel, err := filepath.Rel(rootAbs, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return absPath, nil
}
