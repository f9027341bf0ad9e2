package node

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/verdandi"
)

// FileNode appends the node input as one JSON line. When a base directory is
// configured, paths are confined to it.
type FileNode struct {
	baseDir string
}

func NewFile(baseDir string) *FileNode {
	return &FileNode{baseDir: baseDir}
}

func (f *FileNode) Execute(ctx context.Context, node verdandi.Node, input map[string]interface{}, ec verdandi.ExecContext) (map[string]interface{}, error) {
	path := node.ConfigString("path")
	if path == "" {
		return nil, fmt.Errorf("file node %s has no path", node.ID)
	}
	full, err := f.resolvePath(path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	line, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input: %w", err)
	}

	fh, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer fh.Close()

	n, err := fh.Write(append(line, '\n'))
	if err != nil {
		return nil, fmt.Errorf("failed to write to file: %w", err)
	}

	return map[string]interface{}{
		"path":  full,
		"bytes": n,
	}, nil
}

// resolvePath joins the configured path under the base directory and refuses
// anything that escapes it.
func (f *FileNode) resolvePath(path string) (string, error) {
	if f.baseDir == "" {
		return filepath.Clean(path), nil
	}
	full := filepath.Join(f.baseDir, path)
	base := filepath.Clean(f.baseDir)
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the output directory", path)
	}
	return full, nil
}
