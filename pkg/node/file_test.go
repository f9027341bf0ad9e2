package node

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/verdandi"
)

func TestFileAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	n := verdandi.Node{
		ID:     "store",
		Type:   "output.file",
		Config: map[string]interface{}{"path": "out/events.jsonl"},
	}
	f := NewFile(dir)

	for _, event := range []string{"created", "updated"} {
		out, err := f.Execute(context.Background(), n, map[string]interface{}{"event": event}, testEC(nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out["path"] != filepath.Join(dir, "out", "events.jsonl") {
			t.Errorf("unexpected path: %v", out["path"])
		}
		if out["bytes"].(int) <= 0 {
			t.Errorf("unexpected byte count: %v", out["bytes"])
		}
	}

	raw, err := os.ReadFile(filepath.Join(dir, "out", "events.jsonl"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("first line is not JSON: %v", err)
	}
	if first["event"] != "created" {
		t.Errorf("unexpected first line: %v", first)
	}
}

func TestFileRejectsEscapingPath(t *testing.T) {
	n := verdandi.Node{
		ID:     "store",
		Type:   "output.file",
		Config: map[string]interface{}{"path": "../evil.jsonl"},
	}
	_, err := NewFile(t.TempDir()).Execute(context.Background(), n, nil, testEC(nil))
	if err == nil || !strings.Contains(err.Error(), "escapes") {
		t.Errorf("expected escape error, got %v", err)
	}
}

func TestFileWithoutBaseDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "direct.jsonl")
	n := verdandi.Node{
		ID:     "store",
		Type:   "output.file",
		Config: map[string]interface{}{"path": path},
	}
	out, err := NewFile("").Execute(context.Background(), n, map[string]interface{}{"k": "v"}, testEC(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["path"] != path {
		t.Errorf("unexpected path: %v", out["path"])
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not written: %v", err)
	}
}

func TestFileMissingPath(t *testing.T) {
	n := verdandi.Node{ID: "store", Type: "output.file"}
	_, err := NewFile(t.TempDir()).Execute(context.Background(), n, nil, testEC(nil))
	if err == nil || !strings.Contains(err.Error(), "no path") {
		t.Errorf("expected missing path error, got %v", err)
	}
}
