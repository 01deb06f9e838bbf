package onnx

import (
	"os"
	"path/filepath"
	"testing"
)

// writeManifest writes a manifest plus placeholder graph files into dir and
// returns the manifest path.
func writeManifest(t *testing.T, dir, content string, graphFiles ...string) string {
	t.Helper()

	for _, name := range graphFiles {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("onnx"), 0o644); err != nil {
			t.Fatalf("write graph file: %v", err)
		}
	}

	path := filepath.Join(dir, "graphs.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	return path
}

func TestNewSessionManager(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `{
		"graphs": [
			{
				"name": "backbone_step",
				"filename": "backbone.onnx",
				"inputs": [{"name": "tokens", "dtype": "int64", "shape": [1, "seq", 33]}],
				"outputs": [{"name": "codebook_logits", "dtype": "float32", "shape": [1, 32, "vocab"]}]
			}
		]
	}`, "backbone.onnx")

	sm, err := NewSessionManager(path)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}

	s, err := sm.Get("backbone_step")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if s.Path != filepath.Join(dir, "backbone.onnx") {
		t.Errorf("path = %q, want file in manifest dir", s.Path)
	}
	if len(s.Inputs) != 1 || s.Inputs[0].Name != "tokens" {
		t.Errorf("inputs = %+v", s.Inputs)
	}

	if _, err := sm.Get("no_such_graph"); err == nil {
		t.Error("expected error for unknown graph")
	}
}

func TestNewSessionManagerErrors(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		if _, err := NewSessionManager(""); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing manifest", func(t *testing.T) {
		if _, err := NewSessionManager(filepath.Join(t.TempDir(), "nope.json")); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		path := writeManifest(t, t.TempDir(), "{not json")
		if _, err := NewSessionManager(path); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("no graphs", func(t *testing.T) {
		path := writeManifest(t, t.TempDir(), `{"graphs": []}`)
		if _, err := NewSessionManager(path); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("empty graph name", func(t *testing.T) {
		path := writeManifest(t, t.TempDir(),
			`{"graphs": [{"name": "", "filename": "a.onnx"}]}`, "a.onnx")
		if _, err := NewSessionManager(path); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("empty filename", func(t *testing.T) {
		path := writeManifest(t, t.TempDir(),
			`{"graphs": [{"name": "backbone_step", "filename": ""}]}`)
		if _, err := NewSessionManager(path); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("duplicate graph name", func(t *testing.T) {
		path := writeManifest(t, t.TempDir(), `{"graphs": [
			{"name": "backbone_step", "filename": "a.onnx"},
			{"name": "backbone_step", "filename": "b.onnx"}
		]}`, "a.onnx", "b.onnx")
		if _, err := NewSessionManager(path); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing graph file", func(t *testing.T) {
		path := writeManifest(t, t.TempDir(),
			`{"graphs": [{"name": "backbone_step", "filename": "missing.onnx"}]}`)
		if _, err := NewSessionManager(path); err == nil {
			t.Fatal("expected error")
		}
	})
}
