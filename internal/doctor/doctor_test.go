package doctor

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}

	return path
}

func validManifest(t *testing.T, dir string) string {
	t.Helper()

	for _, name := range []string{"backbone.onnx", "encoder.onnx", "decoder.onnx"} {
		writeFile(t, dir, name, "onnx")
	}

	return writeFile(t, dir, "graphs.json", `{"graphs": [
		{"name": "backbone_step", "filename": "backbone.onnx"},
		{"name": "audio_encoder", "filename": "encoder.onnx"},
		{"name": "audio_decoder", "filename": "decoder.onnx"}
	]}`)
}

func TestRunAllChecksPass(t *testing.T) {
	dir := t.TempDir()
	lib := writeFile(t, dir, "libonnxruntime.so", "lib")
	tok := writeFile(t, dir, "tokenizer.model", "sp")
	manifest := validManifest(t, dir)

	var out bytes.Buffer
	res := Run(Config{
		ORTLibraryPath: lib,
		GraphManifest:  manifest,
		TokenizerModel: tok,
	}, &out)

	if res.Failed() {
		t.Fatalf("unexpected failures: %v", res.Failures())
	}
	if strings.Contains(out.String(), FailMark) {
		t.Errorf("output contains fail mark:\n%s", out.String())
	}
}

func TestRunMissingORTLibrary(t *testing.T) {
	dir := t.TempDir()
	tok := writeFile(t, dir, "tokenizer.model", "sp")
	manifest := validManifest(t, dir)

	var out bytes.Buffer
	res := Run(Config{
		ORTLibraryPath: filepath.Join(dir, "missing.so"),
		GraphManifest:  manifest,
		TokenizerModel: tok,
	}, &out)

	if !res.Failed() {
		t.Fatal("expected failure for missing library")
	}
	if !strings.Contains(out.String(), "onnxruntime library") {
		t.Errorf("output missing library check:\n%s", out.String())
	}
}

func TestRunBadManifest(t *testing.T) {
	dir := t.TempDir()
	lib := writeFile(t, dir, "libonnxruntime.so", "lib")
	tok := writeFile(t, dir, "tokenizer.model", "sp")

	// Manifest parses but lacks the decoder graph.
	writeFile(t, dir, "backbone.onnx", "onnx")
	writeFile(t, dir, "encoder.onnx", "onnx")
	manifest := writeFile(t, dir, "graphs.json", `{"graphs": [
		{"name": "backbone_step", "filename": "backbone.onnx"},
		{"name": "audio_encoder", "filename": "encoder.onnx"}
	]}`)

	var out bytes.Buffer
	res := Run(Config{
		ORTLibraryPath: lib,
		GraphManifest:  manifest,
		TokenizerModel: tok,
	}, &out)

	if !res.Failed() {
		t.Fatal("expected failure for incomplete manifest")
	}

	found := false
	for _, f := range res.Failures() {
		if strings.Contains(f, "audio_decoder") {
			found = true
		}
	}
	if !found {
		t.Errorf("failures = %v, want audio_decoder mentioned", res.Failures())
	}
}

func TestRunMissingTokenizer(t *testing.T) {
	dir := t.TempDir()
	lib := writeFile(t, dir, "libonnxruntime.so", "lib")
	manifest := validManifest(t, dir)

	var out bytes.Buffer
	res := Run(Config{
		ORTLibraryPath: lib,
		GraphManifest:  manifest,
		TokenizerModel: filepath.Join(dir, "missing.model"),
	}, &out)

	if !res.Failed() {
		t.Fatal("expected failure for missing tokenizer model")
	}
}
