package onnx_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-csm/internal/onnx"
	"github.com/example/go-csm/internal/testutil"
)

// placeholderManifest writes a manifest whose backbone graph file exists
// but holds no valid ONNX content.
func placeholderManifest(t *testing.T) *onnx.SessionManager {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "backbone.onnx"), []byte("not onnx"), 0o644); err != nil {
		t.Fatalf("write graph file: %v", err)
	}

	path := filepath.Join(dir, "graphs.json")
	content := `{"graphs": [{"name": "backbone_step", "filename": "backbone.onnx"}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	sm, err := onnx.NewSessionManager(path)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}

	return sm
}

// TestNewRunnerRejectsBadGraph loads the real ONNX Runtime library (when
// available) and verifies that session creation fails cleanly for a file
// that is not a valid ONNX graph.
func TestNewRunnerRejectsBadGraph(t *testing.T) {
	lib := testutil.RequireONNXRuntime(t)

	sm := placeholderManifest(t)

	meta, err := sm.Get(onnx.GraphBackboneStep)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	_, err = onnx.NewRunner(meta, onnx.RunnerConfig{LibraryPath: lib})
	if err == nil {
		t.Fatal("expected error for non-ONNX graph file")
	}
}

// TestEngineEndToEnd runs the full pipeline against an exported graph
// bundle. It only runs when CSM_GRAPH_MANIFEST points at real graphs.
func TestEngineEndToEnd(t *testing.T) {
	lib := testutil.RequireONNXRuntime(t)
	manifest := testutil.RequireGraphManifest(t)

	engine, err := onnx.NewEngine(onnx.Config{
		ManifestPath: manifest,
		LibraryPath:  lib,
		Seed:         1,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer engine.Close()

	if engine.SampleRate() != 24000 {
		t.Errorf("sample rate = %d, want 24000", engine.SampleRate())
	}

	// One second of silence survives an encode/decode round trip with the
	// codec's frame granularity.
	pcm := make([]float32, 24000)
	codes, err := engine.Encode(context.Background(), pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(codes) == 0 {
		t.Fatal("encoder produced no frames")
	}

	decoded, err := engine.Decode(context.Background(), codes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) == 0 {
		t.Fatal("decoder produced no samples")
	}
}
